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

// Package endpoints implements the observability and static-page
// surface shared by both the HTTP/1.1 and HTTP/2 paths. Static pages
// are preloaded at startup; the only file read on a request path is an
// ACME challenge file (capped at 4KiB).
package endpoints

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/rawtxgw/sendrawtx/internal/buildinfo"
	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/metrics"
	"github.com/rawtxgw/sendrawtx/internal/rpcclient"
)

// TLSInfo is the subset of internal/tlsterm.Terminator /health needs.
type TLSInfo interface {
	Expiry() time.Time
}

// Deps are the collaborators Handlers needs; all are worker-owned, no
// cross-worker sharing.
type Deps struct {
	Config   *config.Config
	Metrics  *metrics.Registry
	TLS      TLSInfo
	Draining *int32
	RPC      *rpcclient.Client
}

// Result is the uniform (status, header, body) shape every handler
// returns, matching httpconn.Response/h2session's dispatch signature.
type Result struct {
	Status int
	Header map[string]string
	Body   []byte
}

// Handlers serves a fixed endpoint set plus preloaded static pages.
type Handlers struct {
	deps      Deps
	static    map[string][]byte
	startedAt time.Time
	pid       int32
}

// New preloads static/<name>.html for the known static routes and the
// broadcast/result/index pages, and returns ready-to-serve Handlers.
func New(deps Deps) *Handlers {
	h := &Handlers{
		deps:      deps,
		static:    make(map[string][]byte),
		startedAt: time.Now(),
		pid:       int32(os.Getpid()),
	}

	dir := deps.Config.Static.Dir
	for _, name := range []string{"index", "result", "broadcast", "docs", "status", "logos"} {
		path := filepath.Join(dir, name+".html")
		if b, err := os.ReadFile(path); err == nil {
			h.static[name] = b
		}
	}
	return h
}

func (h *Handlers) cacheControl() string {
	if h.deps.Config.Static.CacheMaxAge > 0 {
		return "max-age=" + strconv.Itoa(h.deps.Config.Static.CacheMaxAge)
	}
	return "no-store"
}

// Home serves index.html.
func (h *Handlers) Home() Result {
	return h.page("index")
}

// StaticPage serves the docs/status/logos page by name.
func (h *Handlers) StaticPage(name string) Result {
	return h.page(name)
}

// Result serves result.html for a /{64-hex} or /tx/{64-hex} lookup.
func (h *Handlers) Result() Result {
	return h.page("result")
}

// Broadcast serves broadcast.html; the actual RPC submission happens
// in the worker's dispatch before this is called for the confirmation
// page, or the worker returns a JSON error body instead of this page
// on RPC failure.
func (h *Handlers) Broadcast() Result {
	return h.page("broadcast")
}

func (h *Handlers) page(name string) Result {
	b, ok := h.static[name]
	if !ok {
		return Result{Status: 404, Header: map[string]string{"Cache-Control": "no-store"}}
	}
	return Result{
		Status: 200,
		Header: map[string]string{
			"Content-Type":  "text/html; charset=utf-8",
			"Cache-Control": h.cacheControl(),
		},
		Body: b,
	}
}

// Health reports process stats and TLS cert expiry as JSON, always
// no-store.
func (h *Handlers) Health() Result {
	type healthBody struct {
		Status      string    `json:"status"`
		UptimeS     float64   `json:"uptime_seconds"`
		RSSBytes    uint64    `json:"rss_bytes"`
		CPUPercent  float64   `json:"cpu_percent"`
		MemTotal    uint64    `json:"system_mem_total_bytes"`
		MemUsedPct  float64   `json:"system_mem_used_percent"`
		TLSExpiry   *string   `json:"tls_cert_expiry,omitempty"`
		Chains      []string  `json:"rpc_chains_up"`
	}

	body := healthBody{
		Status:  "ok",
		UptimeS: time.Since(h.startedAt).Seconds(),
	}

	if proc, err := process.NewProcess(h.pid); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
			body.RSSBytes = mi.RSS
		}
		if pct, err := proc.CPUPercent(); err == nil {
			body.CPUPercent = pct
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		body.MemTotal = vm.Total
		body.MemUsedPct = vm.UsedPercent
	}
	if h.deps.TLS != nil {
		exp := h.deps.TLS.Expiry().UTC().Format(time.RFC3339)
		body.TLSExpiry = &exp
	}
	for _, ch := range h.deps.RPC.Chains() {
		body.Chains = append(body.Chains, string(ch))
	}

	buf, _ := json.Marshal(body)
	return Result{
		Status: 200,
		Header: map[string]string{
			"Content-Type":  "application/json",
			"Cache-Control": "no-store",
		},
		Body: buf,
	}
}

// Ready returns 503 while the worker is draining, 200 otherwise.
func (h *Handlers) Ready() Result {
	status := 200
	if atomic.LoadInt32(h.deps.Draining) != 0 {
		status = 503
	}
	return Result{Status: status, Header: map[string]string{"Cache-Control": "no-store"}}
}

// Alive always returns 200 if the process can answer at all.
func (h *Handlers) Alive() Result {
	return Result{Status: 200, Header: map[string]string{"Cache-Control": "no-store"}}
}

// Version returns the build version as JSON.
func (h *Handlers) Version() Result {
	buf, _ := json.Marshal(buildinfo.Current())
	return Result{
		Status: 200,
		Header: map[string]string{
			"Content-Type":  "application/json",
			"Cache-Control": "no-store",
		},
		Body: buf,
	}
}

// Metrics serves the Prometheus text exposition of the worker's
// registry. The registry's Handler is a standard net/http.Handler (it
// comes straight from promhttp); since the raw connection FSMs never
// route through net/http themselves, an httptest.ResponseRecorder
// bridges the one call sendrawtx needs from it.
func (h *Handlers) Metrics() Result {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	h.deps.Metrics.Handler().ServeHTTP(rec, req)

	hdr := map[string]string{"Cache-Control": "no-store"}
	if ct := rec.Header().Get("Content-Type"); ct != "" {
		hdr["Content-Type"] = ct
	}
	return Result{Status: rec.Code, Header: hdr, Body: rec.Body.Bytes()}
}

const maxAcmeFileSize = 4 << 10

// AcmeChallenge serves <challenge_dir>/<token> after validating token is
// base64url with no path traversal, capped at 4KiB.
func (h *Handlers) AcmeChallenge(token string) Result {
	if !validAcmeToken(token) {
		return Result{Status: 404, Header: map[string]string{"Cache-Control": "no-store"}}
	}
	path := filepath.Join(h.deps.Config.Acme.ChallengeDir, token)
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxAcmeFileSize {
		return Result{Status: 404, Header: map[string]string{"Cache-Control": "no-store"}}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{Status: 404, Header: map[string]string{"Cache-Control": "no-store"}}
	}
	return Result{
		Status: 200,
		Header: map[string]string{
			"Content-Type":  "text/plain",
			"Cache-Control": "no-store",
		},
		Body: b,
	}
}

func validAcmeToken(token string) bool {
	if token == "" || strings.Contains(token, "..") || strings.ContainsAny(token, "/\\") {
		return false
	}
	for _, c := range token {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
