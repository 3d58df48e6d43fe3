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

// Package ratelimit implements a per-IP token bucket with TTL eviction,
// fail-safe under table pressure. One Map belongs to one worker, but
// that worker dispatches each accepted connection to its own goroutine
// (see internal/worker), so Allow/EvictStale/EntryCount are called
// concurrently across those goroutines and need real synchronization.
package ratelimit

import (
	"net"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an idle bucket may sit before evict_stale
	// reclaims it.
	DefaultTTL = 60 * time.Second
	// DefaultMaxEntries bounds table growth under a wide-fanout attacker.
	DefaultMaxEntries = 200_000
)

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	lastSeen   time.Time
}

// Map is the per-worker rate limiter keyed by a canonicalised,
// IPv4-mapped IPv6 address. A mutex guards entries since
// connection-handling goroutines call Allow concurrently.
type Map struct {
	mu      sync.Mutex
	entries map[[16]byte]*bucket

	rate  float64 // tokens per second
	burst float64 // bucket capacity

	ttl        time.Duration
	maxEntries int

	now func() time.Time
}

// New builds a Map for the given steady-state rate and burst capacity.
func New(rps, burst float64) *Map {
	return &Map{
		entries:    make(map[[16]byte]*bucket, 1024),
		rate:       rps,
		burst:      burst,
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
}

// Configure updates rate/burst in place for a hot config reload, without
// discarding existing buckets — an in-flight aggressor does not get a
// fresh burst just because the operator reloaded.
func (m *Map) Configure(rps, burst float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rps
	m.burst = burst
}

func key(ip net.IP) [16]byte {
	var k [16]byte
	v4 := ip.To4()
	if v4 != nil {
		copy(k[12:], v4)
		k[10] = 0xff
		k[11] = 0xff
		return k
	}
	v6 := ip.To16()
	copy(k[:], v6)
	return k
}

// Allow replenishes ip's bucket by elapsed time * rate, then deducts one
// token if available. New IPs start full (tokens = burst), so a first
// request from a never-seen IP is never itself rate limited.
func (m *Map) Allow(ip net.IP) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.now()
	k := key(ip)

	b, ok := m.entries[k]
	if !ok {
		if len(m.entries) >= m.maxEntries {
			m.evictStaleLocked(n)
			if len(m.entries) >= m.maxEntries {
				// fail-safe: deny rather than evict a possibly-trusted entry
				return false
			}
		}
		b = &bucket{tokens: m.burst, lastUpdate: n, lastSeen: n}
		m.entries[k] = b
	}

	elapsed := n.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * m.rate
		if b.tokens > m.burst {
			b.tokens = m.burst
		}
		b.lastUpdate = n
	}
	b.lastSeen = n

	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

func (m *Map) evictStaleLocked(n time.Time) {
	for k, b := range m.entries {
		if n.Sub(b.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
}

// EvictStale is the entry point for the 30-second periodic sweep as well
// as the pressure-triggered sweep inside Allow.
func (m *Map) EvictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictStaleLocked(m.now())
}

// EntryCount reports the live bucket count, exposed as the
// rate_limiter_entries metric.
func (m *Map) EntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
