//go:build unix

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

package worker

import (
	"bufio"
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>home</html>"), 0o644))
	return &config.Config{
		Buffer: config.BufferConfig{MaxSize: 1 << 20},
		Tiers:  config.TiersConfig{LargeThreshold: 64 << 10, HugeThreshold: 1 << 20},
		Server: config.ServerConfig{Port: 0, MaxConnections: 100},
		Static: config.StaticConfig{Dir: dir},
		Slots:  config.SlotsConfig{NormalMax: 10, LargeMax: 5, HugeMax: 2},
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
		Acme:      config.AcmeConfig{ChallengeDir: dir},
	}
}

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	log, err := logging.New(logging.Config{}, 0)
	require.NoError(t, err)

	w, err := New(0, testConfig(t), log, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		w.plainLn.Close()
	})
	return w
}

func TestNewBindsPlainListener(t *testing.T) {
	w := newTestLoop(t)
	assert.NotNil(t, w.plainLn)
	assert.Nil(t, w.tlsLn)
}

func TestItoaHandlesNegativeAndZero(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "42", itoa(42))
	assert.Equal(t, "-7", itoa(-7))
}

func TestAddrPortFormatsHostPort(t *testing.T) {
	assert.Equal(t, net.JoinHostPort("::", "8080"), addrPort(8080))
}

func TestHostIPStripsPort(t *testing.T) {
	addr, err := net.ResolveTCPAddr("tcp", "192.0.2.1:12345")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", hostIP(addr).String())
}

func TestTLSVersionLabel(t *testing.T) {
	assert.Equal(t, "1.3", tlsVersionLabel(tls.VersionTLS13))
	assert.Equal(t, "1.2", tlsVersionLabel(tls.VersionTLS12))
	assert.Equal(t, "unknown", tlsVersionLabel(0))
}

func TestAcceptLoopStopsOnDrain(t *testing.T) {
	w := newTestLoop(t)
	go w.Serve()

	conn, err := net.Dial("tcp", w.plainLn.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "200")
	conn.Close()

	w.Drain()
	assert.Equal(t, int32(1), w.draining)
}
