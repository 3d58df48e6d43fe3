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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/errkind"
)

// maxResponseBytes caps how much of a backend's JSON-RPC response body
// sendrawtx ever reads, regardless of Content-Length. A compromised or
// misbehaving node does not get to hold a worker's goroutine hostage
// reading an unbounded stream.
const maxResponseBytes = 1 << 20

// backend is one chain's Bitcoin Core endpoint: a single *http.Client
// plus whatever credential source (static user/pass, or a cookie file
// re-read on demand) it was configured with.
type backend struct {
	chain  config.Chain
	url    string
	client *http.Client

	staticAuth string // pre-built "user:pass", empty when using a cookie file

	cookiePath string
	cookieMu   sync.RWMutex
	cookieVal  string
	cookieMod  time.Time

	reauth singleflight.Group
}

func newBackend(chain config.Chain, rc config.RPCChainConfig) *backend {
	timeout := rc.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	host := rc.Host
	if host == "" {
		host = "127.0.0.1"
	}
	// Resolve once, at construction, so calls dial an address rather than
	// a name; a name that does not resolve now is kept and looked up on dial.
	if addrs, err := net.LookupHost(host); err == nil && len(addrs) > 0 {
		host = addrs[0]
	}
	url := fmt.Sprintf("http://%s/", net.JoinHostPort(host, fmt.Sprint(rc.Port)))
	if rc.Wallet != "" {
		url += "wallet/" + rc.Wallet
	}

	b := &backend{
		chain: chain,
		url:   url,
		client: &http.Client{
			Timeout: timeout,
		},
	}

	if rc.CookieFile != "" {
		b.cookiePath = rc.CookieFile
	} else if rc.User != "" {
		b.staticAuth = base64.StdEncoding.EncodeToString([]byte(rc.User + ":" + rc.Password))
	}

	return b
}

// authHeader returns the current "Basic <...>" value, reading the cookie
// file on first use and caching it until forceRefresh or the file's
// mtime changes.
func (b *backend) authHeader(forceRefresh bool) (string, error) {
	if b.staticAuth != "" {
		return "Basic " + b.staticAuth, nil
	}
	if b.cookiePath == "" {
		return "", nil
	}

	if !forceRefresh {
		b.cookieMu.RLock()
		cur := b.cookieVal
		b.cookieMu.RUnlock()
		if cur != "" {
			if fi, err := os.Stat(b.cookiePath); err == nil && fi.ModTime().Equal(b.cookieMod) {
				return "Basic " + cur, nil
			}
		}
	}

	// Concurrent reauths on the same cookie file collapse into one read.
	v, err, _ := b.reauth.Do(b.cookiePath, func() (interface{}, error) {
		raw, err := os.ReadFile(b.cookiePath)
		if err != nil {
			return nil, errkind.RpcCookie.Errorf("reading cookie file %s: %v", b.cookiePath, err)
		}
		fi, statErr := os.Stat(b.cookiePath)

		enc := base64.StdEncoding.EncodeToString(bytes.TrimSpace(raw))

		b.cookieMu.Lock()
		b.cookieVal = enc
		if statErr == nil {
			b.cookieMod = fi.ModTime()
		}
		b.cookieMu.Unlock()

		return enc, nil
	})
	if err != nil {
		return "", err
	}
	return "Basic " + v.(string), nil
}

// call issues one JSON-RPC method against this backend, retrying exactly
// once with a forced cookie re-read if the first attempt comes back
// 401/403.
func (b *backend) call(ctx context.Context, method string, params []interface{}) (*jsonrpcResponse, error) {
	resp, status, err := b.doCall(ctx, method, params, false)
	if err != nil {
		return nil, err
	}
	if (status == http.StatusUnauthorized || status == http.StatusForbidden) && b.cookiePath != "" {
		resp, status, err = b.doCall(ctx, method, params, true)
		if err != nil {
			return nil, err
		}
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, errkind.RpcAuth.Errorf("backend %s: http %d after reauth", b.chain, status)
	}
	return resp, nil
}

func (b *backend) doCall(ctx context.Context, method string, params []interface{}, forceReauth bool) (*jsonrpcResponse, int, error) {
	body, err := json.Marshal(jsonrpcRequest{
		JSONRPC: "1.0",
		ID:      rpcID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, 0, errkind.RpcParse.Errorf("encoding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, errkind.RpcConnect.Errorf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "close")

	auth, err := b.authHeader(forceReauth)
	if err != nil {
		return nil, 0, err
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		// Expiry of b.client.Timeout (the per-op timeout) leaves ctx
		// untouched, so it is recognised through the error's Timeout().
		if te, ok := err.(interface{ Timeout() bool }); ctx.Err() != nil || (ok && te.Timeout()) {
			return nil, 0, errkind.RpcTimeout.Errorf("backend %s: %v", b.chain, err)
		}
		return nil, 0, errkind.RpcConnect.Errorf("backend %s: %v", b.chain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, resp.StatusCode, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, errkind.RpcParse.Errorf("reading body: %v", err)
	}

	var parsed jsonrpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, resp.StatusCode, errkind.RpcParse.Errorf("backend %s: malformed JSON-RPC body: %v", b.chain, err)
	}

	return &parsed, resp.StatusCode, nil
}

func isNodeRejection(e *jsonrpcError) bool {
	if e == nil {
		return false
	}
	// Core's verify-reject and already-in-chain codes; not exhaustive but
	// enough to distinguish "this node will never accept this tx" from a
	// transient plumbing failure worth trying the next backend for.
	return strings.Contains(strings.ToLower(e.Message), "rejecting") ||
		e.Code == -26 || e.Code == -27
}
