/*
 * MIT License
 *
 * Copyright (c) 2026 sendrawtx contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package config loads and validates the INI-style configuration. Loading
// itself is treated as an external collaborator whose internals aren't
// prescribed beyond the keys/sections it must honor and the validated,
// typed Config it hands back.
package config

import "time"

// Chain is one of the four Bitcoin network backends, or the special
// Mixed auto-routing mode.
type Chain string

const (
	ChainMainnet Chain = "mainnet"
	ChainTestnet Chain = "testnet"
	ChainSignet  Chain = "signet"
	ChainRegtest Chain = "regtest"
	ChainMixed   Chain = "mixed"
)

type BufferConfig struct {
	InitialSize uint64 `mapstructure:"initial_size"`
	MaxSize     uint64 `mapstructure:"max_size" validate:"required,gt=0"`
}

type TiersConfig struct {
	LargeThreshold uint64 `mapstructure:"large_threshold" validate:"required,gt=0"`
	HugeThreshold  uint64 `mapstructure:"huge_threshold" validate:"required,gtfield=LargeThreshold"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	MaxConnections int           `mapstructure:"max_connections" validate:"required,gt=0"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

type StaticConfig struct {
	Dir          string `mapstructure:"dir"`
	CacheMaxAge  int    `mapstructure:"cache_max_age"`
}

type SlotsConfig struct {
	NormalMax uint32 `mapstructure:"normal_max" validate:"required,gt=0"`
	LargeMax  uint32 `mapstructure:"large_max"`
	HugeMax   uint32 `mapstructure:"huge_max"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" validate:"required,gt=0"`
	Burst float64 `mapstructure:"burst" validate:"required,gt=0"`
}

type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port" validate:"required_if=Enabled true,omitempty,min=1,max=65535"`
	CertFile    string `mapstructure:"cert_file" validate:"required_if=Enabled true"`
	KeyFile     string `mapstructure:"key_file" validate:"required_if=Enabled true"`
	Http2Enable bool   `mapstructure:"http2_enabled"`
}

type LoggingConfig struct {
	JSON    bool `mapstructure:"json"`
	Verbose bool `mapstructure:"verbose"`
	File    string `mapstructure:"file"`
}

type AcmeConfig struct {
	ChallengeDir string `mapstructure:"challenge_dir"`
}

type SecurityConfig struct {
	BlocklistFile string `mapstructure:"blocklist_file"`
	AllowlistFile string `mapstructure:"allowlist_file"`
	Seccomp       bool   `mapstructure:"seccomp"`
}

type NetworkConfig struct {
	Chain Chain `mapstructure:"chain" validate:"required,oneof=mainnet testnet signet regtest mixed"`
}

// RPCChainConfig is the shape of one [rpc.<chain>] section.
type RPCChainConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	CookieFile string        `mapstructure:"cookie_file"`
	DataDir    string        `mapstructure:"datadir"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Wallet     string        `mapstructure:"wallet"`
}

// Config is the fully decoded, validated INI file.
type Config struct {
	Buffer    BufferConfig              `mapstructure:"buffer"`
	Tiers     TiersConfig               `mapstructure:"tiers"`
	Server    ServerConfig              `mapstructure:"server"`
	Static    StaticConfig              `mapstructure:"static"`
	Slots     SlotsConfig               `mapstructure:"slots"`
	RateLimit RateLimitConfig           `mapstructure:"ratelimit"`
	TLS       TLSConfig                 `mapstructure:"tls"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Acme      AcmeConfig                `mapstructure:"acme"`
	Security  SecurityConfig            `mapstructure:"security"`
	Network   NetworkConfig             `mapstructure:"network"`
	RPC       map[Chain]RPCChainConfig  `mapstructure:"-"`
}

// EnabledChains returns the chains, in a fixed deterministic order, whose
// [rpc.<chain>] section has enabled=true.
func (c *Config) EnabledChains() []Chain {
	order := []Chain{ChainMainnet, ChainTestnet, ChainSignet, ChainRegtest}
	var out []Chain
	for _, ch := range order {
		if rc, ok := c.RPC[ch]; ok && rc.Enabled {
			out = append(out, ch)
		}
	}
	return out
}
