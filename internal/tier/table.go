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

// Package tier implements the fixed-capacity slot admission policy. One
// Table is owned by exactly one worker, but that worker dispatches each
// accepted connection to its own goroutine (see internal/worker), so
// acquire/release/promote are called concurrently across those
// goroutines and need real synchronization.
package tier

import "sync"

// Tier is one of the three request-size classes.
type Tier int

const (
	Normal Tier = iota
	Large
	Huge
	numTiers
)

func (t Tier) String() string {
	switch t {
	case Normal:
		return "normal"
	case Large:
		return "large"
	case Huge:
		return "huge"
	default:
		return "unknown"
	}
}

// Thresholds are the byte-size boundaries used to classify a request by
// the amount of data read so far.
type Thresholds struct {
	Large uint64 // e.g. 64 KiB
	Huge  uint64 // e.g. 1 MiB
	Max   uint64 // e.g. 16 MiB, hard cap independent of tiering
}

// ClassifyBySize returns the tier implied by n bytes buffered so far.
func (th Thresholds) ClassifyBySize(n uint64) Tier {
	switch {
	case n >= th.Huge:
		return Huge
	case n >= th.Large:
		return Large
	default:
		return Normal
	}
}

// Snapshot is a point-in-time, allocation-free read of the table, used by
// /metrics and /health.
type Snapshot struct {
	Used [3]uint32
	Cap  [3]uint32
}

// Table holds three independent (used, cap) counters. Acquire/Release/
// Promote are the only mutators; all are O(1) and panic-free. A mutex
// guards the counters since connection-handling goroutines call these
// concurrently.
type Table struct {
	mu   sync.Mutex
	used [numTiers]uint32
	cap  [numTiers]uint32
}

// NewTable builds a Table with the given per-tier capacities.
func NewTable(normalCap, largeCap, hugeCap uint32) *Table {
	t := &Table{}
	t.cap[Normal] = normalCap
	t.cap[Large] = largeCap
	t.cap[Huge] = hugeCap
	return t
}

// Acquire increments used[tier] iff used < cap, returning whether it
// succeeded.
func (t *Table) Acquire(tier Tier) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquireLocked(tier)
}

func (t *Table) acquireLocked(tier Tier) bool {
	if t.used[tier] >= t.cap[tier] {
		return false
	}
	t.used[tier]++
	return true
}

// Release decrements used[tier], floored at zero.
func (t *Table) Release(tier Tier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(tier)
}

func (t *Table) releaseLocked(tier Tier) {
	if t.used[tier] > 0 {
		t.used[tier]--
	}
}

// Promote acquires the target tier first and only releases the source on
// success, so a failed promotion leaves state entirely unchanged. Both
// steps run under one lock hold so no other goroutine observes the
// target acquired and the source not yet released (or vice versa).
func (t *Table) Promote(from, to Tier) bool {
	if from == to {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.acquireLocked(to) {
		return false
	}
	t.releaseLocked(from)
	return true
}

// Used returns the current occupancy of tier.
func (t *Table) Used(tier Tier) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used[tier]
}

// Capacity returns the configured capacity of tier.
func (t *Table) Capacity(tier Tier) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cap[tier]
}

// Total returns the sum of used across all tiers; it must always equal
// the count of live slot-holding objects.
func (t *Table) Total() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum uint32
	for i := 0; i < int(numTiers); i++ {
		sum += t.used[i]
	}
	return sum
}

// Snapshot copies the current counters out for reporting.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	var s Snapshot
	for i := 0; i < int(numTiers); i++ {
		s.Used[i] = t.used[i]
		s.Cap[i] = t.cap[i]
	}
	return s
}
