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

package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	ini "gopkg.in/ini.v1"
)

var validate = validator.New()

// Load reads path as an INI file into a validated Config. The fixed
// sections are decoded through Viper (mapstructure tags in model.go);
// the dynamic `[rpc.<chain>]` family is read directly with gopkg.in/ini.v1
// since section names carry a variable chain suffix Viper's generic INI
// reader does not expose as a nested map.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	rpcSections, err := loadRPCSections(path)
	if err != nil {
		return nil, err
	}
	cfg.RPC = rpcSections

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("buffer.initial_size", 4096)
	v.SetDefault("buffer.max_size", 16<<20)
	v.SetDefault("tiers.large_threshold", 64<<10)
	v.SetDefault("tiers.huge_threshold", 1<<20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_connections", 4096)
	v.SetDefault("server.read_timeout", "120s")
	v.SetDefault("static.cache_max_age", 3600)
	v.SetDefault("slots.normal_max", 2048)
	v.SetDefault("slots.large_max", 256)
	v.SetDefault("slots.huge_max", 32)
	v.SetDefault("ratelimit.rps", 10)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("tls.http2_enabled", true)
	v.SetDefault("logging.json", true)
}

// loadRPCSections scans path for any `[rpc.<chain>]` section using
// gopkg.in/ini.v1 directly, since those section names are dynamic.
func loadRPCSections(path string) (map[Chain]RPCChainConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("scanning rpc sections in %s: %w", path, err)
	}

	out := make(map[Chain]RPCChainConfig)
	for _, sec := range f.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, "rpc.") {
			continue
		}
		chain := Chain(strings.TrimPrefix(name, "rpc."))

		rc := RPCChainConfig{
			Enabled:    sec.Key("enabled").MustBool(false),
			Host:       sec.Key("host").String(),
			Port:       sec.Key("port").MustInt(8332),
			User:       sec.Key("user").String(),
			Password:   sec.Key("password").String(),
			CookieFile: sec.Key("cookie_file").String(),
			DataDir:    sec.Key("datadir").String(),
			Wallet:     sec.Key("wallet").String(),
		}
		if d, err := sec.Key("timeout").Duration(); err == nil {
			rc.Timeout = d
		}
		out[chain] = rc
	}
	return out, nil
}
