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

package rpcclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawtxgw/sendrawtx/internal/config"
)

func newTestConfig(port int) *config.Config {
	return &config.Config{
		RPC: map[config.Chain]config.RPCChainConfig{
			config.ChainMainnet: {
				Enabled: true,
				Host:    "127.0.0.1",
				Port:    port,
				User:    "rpcuser",
				Password: "rpcpass",
				Timeout: 2 * time.Second,
			},
		},
	}
}

func TestBroadcastOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"abc123txid","error":null,"id":"sendrawtx"}`))
	}))
	defer srv.Close()

	cfg := newTestConfig(portFromURL(t, srv.URL))
	c := New(cfg)

	res := c.Broadcast(context.Background(), config.ChainMainnet, "deadbeef")
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "abc123txid", res.TxID)
}

func TestBroadcastNodeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":null,"error":{"code":-26,"message":"txn-mempool-conflict, rejecting"},"id":"sendrawtx"}`))
	}))
	defer srv.Close()

	cfg := newTestConfig(portFromURL(t, srv.URL))
	c := New(cfg)

	res := c.Broadcast(context.Background(), config.ChainMainnet, "deadbeef")
	assert.Equal(t, OutcomeNodeRejected, res.Outcome)
}

func TestBroadcastNoBackendConfigured(t *testing.T) {
	c := New(&config.Config{})
	res := c.Broadcast(context.Background(), config.ChainTestnet, "deadbeef")
	assert.Equal(t, OutcomeNoBackend, res.Outcome)
}

func TestCookieReauthOnce(t *testing.T) {
	dir := t.TempDir()
	cookiePath := filepath.Join(dir, "cookie")
	require.NoError(t, os.WriteFile(cookiePath, []byte("__cookie__:firstpass"), 0600))

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		auth := r.Header.Get("Authorization")
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("__cookie__:firstpass"))
		if attempts == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, want, auth)
		w.Write([]byte(`{"result":"retried-txid","error":null,"id":"sendrawtx"}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		RPC: map[config.Chain]config.RPCChainConfig{
			config.ChainMainnet: {
				Enabled:    true,
				Host:       "127.0.0.1",
				Port:       portFromURL(t, srv.URL),
				CookieFile: cookiePath,
				Timeout:    2 * time.Second,
			},
		},
	}
	c := New(cfg)
	res := c.Broadcast(context.Background(), config.ChainMainnet, "deadbeef")
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, 2, attempts)
}

func TestCancelAllStopsInFlight(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	cfg := newTestConfig(portFromURL(t, srv.URL))
	c := New(cfg)

	done := make(chan Result, 1)
	go func() {
		done <- c.Broadcast(context.Background(), config.ChainMainnet, "deadbeef")
	}()

	time.Sleep(50 * time.Millisecond)
	c.CancelAll()

	select {
	case res := <-done:
		assert.Equal(t, OutcomeTimeout, res.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not observe cancellation")
	}
}

func TestMixedRoutingSkipsFailedBackend(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"mixed-txid","error":null,"id":"sendrawtx"}`))
	}))
	defer up.Close()

	cfg := &config.Config{
		RPC: map[config.Chain]config.RPCChainConfig{
			config.ChainMainnet: {Enabled: true, Host: "127.0.0.1", Port: portFromURL(t, down.URL), User: "u", Password: "p", Timeout: time.Second},
			config.ChainTestnet: {Enabled: true, Host: "127.0.0.1", Port: portFromURL(t, up.URL), User: "u", Password: "p", Timeout: time.Second},
		},
	}
	c := New(cfg)
	res := c.Broadcast(context.Background(), config.ChainMixed, "deadbeef")
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "mixed-txid", res.TxID)
}

func portFromURL(t *testing.T, url string) int {
	t.Helper()
	var port int
	_, err := fmt.Sscanf(url, "http://127.0.0.1:%d", &port)
	require.NoError(t, err)
	return port
}
