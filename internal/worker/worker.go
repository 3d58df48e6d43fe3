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

// Package worker is the per-process WorkerLoop: it
// binds the SO_REUSEPORT listeners, owns one generation's worth of
// shared-within-the-worker state (TierTable, TokenBucketMap, IPAcl,
// MetricsRegistry, TlsTerminator, RpcAsyncClient), and dispatches
// accepted connections to internal/httpconn or internal/h2session.
package worker

import (
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/rawtxgw/sendrawtx/internal/aclx"
	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/endpoints"
	"github.com/rawtxgw/sendrawtx/internal/h2session"
	"github.com/rawtxgw/sendrawtx/internal/httpconn"
	"github.com/rawtxgw/sendrawtx/internal/logging"
	"github.com/rawtxgw/sendrawtx/internal/metrics"
	"github.com/rawtxgw/sendrawtx/internal/ratelimit"
	"github.com/rawtxgw/sendrawtx/internal/reuseport"
	"github.com/rawtxgw/sendrawtx/internal/rpcclient"
	"github.com/rawtxgw/sendrawtx/internal/tier"
)

// Loop is one worker process's event loop. The accept loop hands each
// connection to its own goroutine, so the tier table and rate limiter
// it owns guard themselves internally (see internal/tier,
// internal/ratelimit); there is no cross-worker shared state at all,
// since every worker process has its own independent Loop.
type Loop struct {
	id       int
	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Registry
	tiers    *tier.Table
	limiter  *ratelimit.Map
	acl      *aclx.ACL
	rpc      *rpcclient.Client
	handlers *endpoints.Handlers

	plainLn net.Listener
	tlsLn   net.Listener
	tlsTerm tlsTerminator

	draining  int32
	active    int32
	stopEvict chan struct{}
}

// evictInterval is how often the rate limiter's stale entries are swept
// and the slot/rate-limiter gauges are refreshed, independent of any
// pressure-triggered sweep inside ratelimit.Map.Allow.
const evictInterval = 30 * time.Second

// tlsTerminator is the subset of internal/tlsterm.Terminator the worker
// needs, kept as an interface so tests can stub it.
type tlsTerminator interface {
	Config() *tls.Config
	Expiry() time.Time
}

// New builds a Loop and binds its listeners. id is this process's
// worker index, used for CPU affinity.
func New(id int, cfg *config.Config, log *logging.Logger, term tlsTerminator) (*Loop, error) {
	w := &Loop{
		id:        id,
		cfg:       cfg,
		log:       log,
		metrics:   metrics.New(),
		tiers:     tier.NewTable(cfg.Slots.NormalMax, cfg.Slots.LargeMax, cfg.Slots.HugeMax),
		limiter:   ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		acl:       aclx.New(),
		rpc:       rpcclient.New(cfg),
		tlsTerm:   term,
		stopEvict: make(chan struct{}),
	}

	if cfg.Security.BlocklistFile != "" {
		if err := w.acl.LoadBlockFile(cfg.Security.BlocklistFile); err != nil {
			return nil, err
		}
	}
	if cfg.Security.AllowlistFile != "" {
		if err := w.acl.LoadAllowFile(cfg.Security.AllowlistFile); err != nil {
			return nil, err
		}
	}

	w.handlers = endpoints.New(endpoints.Deps{
		Config:    cfg,
		Metrics:   w.metrics,
		TLS:       term,
		Draining:  &w.draining,
		RPC:       w.rpc,
	})

	ln, err := reuseport.Listen("tcp", addrPort(cfg.Server.Port))
	if err != nil {
		return nil, err
	}
	w.plainLn = ln

	if cfg.TLS.Enabled {
		tln, err := reuseport.Listen("tcp", addrPort(cfg.TLS.Port))
		if err != nil {
			return nil, err
		}
		w.tlsLn = tln
	}

	applyAffinity(id)

	return w, nil
}

func addrPort(port int) string {
	return net.JoinHostPort("::", itoa(port))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Serve runs the accept loop for both listeners until Drain is called
// and all active connections finish.
func (w *Loop) Serve() {
	go w.evictLoop()
	if w.tlsLn != nil {
		go w.acceptLoop(w.tlsLn, true)
	}
	w.acceptLoop(w.plainLn, false)
}

// evictLoop sweeps the rate limiter's stale entries every evictInterval,
// unconditionally, and refreshes the gauges that only change slowly:
// live rate-limiter entries and per-tier slot occupancy.
func (w *Loop) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.limiter.EvictStale()
			w.metrics.RateLimiterSize.Set(float64(w.limiter.EntryCount()))

			snap := w.tiers.Snapshot()
			for _, t := range []tier.Tier{tier.Normal, tier.Large, tier.Huge} {
				w.metrics.SlotUsed.WithLabelValues(t.String()).Set(float64(snap.Used[t]))
				w.metrics.SlotCap.WithLabelValues(t.String()).Set(float64(snap.Cap[t]))
			}
		case <-w.stopEvict:
			return
		}
	}
}

func (w *Loop) acceptLoop(ln net.Listener, isTLS bool) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&w.draining) != 0 {
				return
			}
			continue
		}
		if atomic.LoadInt32(&w.draining) != 0 {
			nc.Close()
			continue
		}
		go w.handleAccepted(nc, isTLS)
	}
}

// handleAccepted runs the admission pipeline: IP
// extract, ACL check, rate-limit check (skipped on Allow), tier
// acquire, then Connection construction.
func (w *Loop) handleAccepted(nc net.Conn, isTLS bool) {
	if tcp, ok := nc.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	ip := hostIP(nc.RemoteAddr())

	verdict := w.acl.Check(ip)
	if verdict == aclx.Block {
		writeCanned(nc, 403)
		nc.Close()
		w.metrics.AcceptsRejects.WithLabelValues("reject", "blocked").Inc()
		return
	}
	if verdict != aclx.Allow {
		if !w.limiter.Allow(ip) {
			writeCanned(nc, 429)
			nc.Close()
			w.metrics.AcceptsRejects.WithLabelValues("reject", "rate").Inc()
			return
		}
	}

	atomic.AddInt32(&w.active, 1)
	w.metrics.ActiveConns.Inc()
	defer func() {
		atomic.AddInt32(&w.active, -1)
		w.metrics.ActiveConns.Dec()
	}()

	if isTLS {
		tlsConn := tls.Server(nc, w.tlsTerm.Config())
		if err := tlsConn.Handshake(); err != nil {
			w.metrics.TLSErrors.Inc()
			tlsConn.Close()
			return
		}
		w.metrics.TLSHandshakes.WithLabelValues(tlsVersionLabel(tlsConn.ConnectionState().Version)).Inc()

		if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
			w.serveH2(tlsConn)
			return
		}
		w.serveHTTP1(tlsConn)
		return
	}

	w.serveHTTP1(nc)
}

func (w *Loop) serveHTTP1(nc net.Conn) {
	limits := httpconn.DefaultLimits(w.cfg.Buffer.MaxSize)
	limits.Thresholds = tier.Thresholds{
		Large: w.cfg.Tiers.LargeThreshold,
		Huge:  w.cfg.Tiers.HugeThreshold,
		Max:   w.cfg.Buffer.MaxSize,
	}
	c, err := httpconn.New(nc, w.tiers, limits, w.metrics, w.dispatchHTTP1)
	if err != nil {
		writeCanned(nc, 503)
		nc.Close()
		w.metrics.AcceptsRejects.WithLabelValues("reject", "slot").Inc()
		return
	}
	c.Serve()
}

func (w *Loop) serveH2(nc net.Conn) {
	settings := h2session.DefaultSettings(uint32(w.cfg.Buffer.MaxSize))
	settings.Thresholds = tier.Thresholds{
		Large: w.cfg.Tiers.LargeThreshold,
		Huge:  w.cfg.Tiers.HugeThreshold,
		Max:   w.cfg.Buffer.MaxSize,
	}
	sess, err := h2session.New(nc, w.tiers, settings, w.metrics, w.dispatchHTTP2)
	if err != nil {
		nc.Close()
		return
	}
	w.metrics.H2StreamsTotal.Inc()
	sess.Serve()
}

// Drain stops accepting new connections and waits for active ones to
// finish before returning, per the DRAIN signal handling.
func (w *Loop) Drain() {
	atomic.StoreInt32(&w.draining, 1)
	close(w.stopEvict)
	w.plainLn.Close()
	if w.tlsLn != nil {
		w.tlsLn.Close()
	}
	w.rpc.CancelAll()
	for atomic.LoadInt32(&w.active) > 0 {
		// Worker shutdown is bounded by the supervisor's 30s drain
		// deadline, not by this loop, so a short poll is enough here.
		time.Sleep(50 * time.Millisecond)
	}
}

func hostIP(addr net.Addr) net.IP {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func writeCanned(nc net.Conn, status int) {
	var line string
	switch status {
	case 403:
		line = "HTTP/1.1 403 Forbidden\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"
	case 429:
		line = "HTTP/1.1 429 Too Many Requests\r\nRetry-After: 1\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"
	case 503:
		line = "HTTP/1.1 503 Service Unavailable\r\nRetry-After: 5\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"
	default:
		line = "HTTP/1.1 500 Internal Server Error\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"
	}
	nc.Write([]byte(line))
}

func tlsVersionLabel(v uint16) string {
	switch v {
	case tls.VersionTLS13:
		return "1.3"
	case tls.VersionTLS12:
		return "1.2"
	default:
		return "unknown"
	}
}
