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

// Package aclx implements the block/allow IP access-control list:
// exact-match sets plus CIDR lists, both stored in IPv4-mapped IPv6 form
// so a single comparison path handles both families.
package aclx

import (
	"bufio"
	"net"
	"os"
	"strings"
)

// Verdict is the result of checking one address against both lists.
type Verdict int

const (
	Neutral Verdict = iota
	Allow
	Block
)

type cidrEntry struct {
	addr   [16]byte
	prefix int
}

// ACL holds two independent lists (block, allow); Block always wins when
// both match.
type ACL struct {
	blockExact map[[16]byte]struct{}
	allowExact map[[16]byte]struct{}
	blockCIDR  []cidrEntry
	allowCIDR  []cidrEntry
}

// New returns an empty ACL (everything Neutral).
func New() *ACL {
	return &ACL{
		blockExact: make(map[[16]byte]struct{}),
		allowExact: make(map[[16]byte]struct{}),
	}
}

func mapped(ip net.IP) [16]byte {
	var k [16]byte
	if v4 := ip.To4(); v4 != nil {
		copy(k[12:], v4)
		k[10] = 0xff
		k[11] = 0xff
		return k
	}
	copy(k[:], ip.To16())
	return k
}

// AddBlockExact registers a single address on the blocklist.
func (a *ACL) AddBlockExact(ip net.IP) { a.blockExact[mapped(ip)] = struct{}{} }

// AddAllowExact registers a single address on the allowlist.
func (a *ACL) AddAllowExact(ip net.IP) { a.allowExact[mapped(ip)] = struct{}{} }

// AddBlockCIDR registers a CIDR range on the blocklist. IPv4 /N becomes
// IPv6 /(96+N).
func (a *ACL) AddBlockCIDR(n *net.IPNet) {
	a.blockCIDR = append(a.blockCIDR, toEntry(n))
}

// AddAllowCIDR registers a CIDR range on the allowlist.
func (a *ACL) AddAllowCIDR(n *net.IPNet) {
	a.allowCIDR = append(a.allowCIDR, toEntry(n))
}

func toEntry(n *net.IPNet) cidrEntry {
	ones, bits := n.Mask.Size()
	if bits == 32 {
		ones += 96
	}
	return cidrEntry{addr: mapped(n.IP), prefix: ones}
}

func matchCIDR(list []cidrEntry, k [16]byte) bool {
	for _, e := range list {
		fullBytes := e.prefix / 8
		remBits := e.prefix % 8

		ok := true
		for i := 0; i < fullBytes; i++ {
			if k[i] != e.addr[i] {
				ok = false
				break
			}
		}
		if ok && remBits > 0 && fullBytes < 16 {
			mask := byte(0xFF << (8 - remBits))
			if k[fullBytes]&mask != e.addr[fullBytes]&mask {
				ok = false
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Check reports whether ip is blocked, allowed, or neutral. Exact match
// is checked before CIDR scan in each list; Block always wins over
// Allow.
func (a *ACL) Check(ip net.IP) Verdict {
	k := mapped(ip)

	if _, ok := a.blockExact[k]; ok {
		return Block
	}
	if matchCIDR(a.blockCIDR, k) {
		return Block
	}
	if _, ok := a.allowExact[k]; ok {
		return Allow
	}
	if matchCIDR(a.allowCIDR, k) {
		return Allow
	}
	return Neutral
}

// LoadBlockFile parses one CIDR-or-exact address per line (as listed in
// the [security] blocklist_file / allowlist_file INI keys), skipping
// blank lines and #-comments.
func (a *ACL) LoadBlockFile(path string) error {
	return a.loadFile(path, a.AddBlockExact, a.AddBlockCIDR)
}

// LoadAllowFile is the allowlist counterpart of LoadBlockFile.
func (a *ACL) LoadAllowFile(path string) error {
	return a.loadFile(path, a.AddAllowExact, a.AddAllowCIDR)
}

func (a *ACL) loadFile(path string, addExact func(net.IP), addCIDR func(*net.IPNet)) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "/") {
			_, n, err := net.ParseCIDR(line)
			if err != nil {
				continue
			}
			addCIDR(n)
			continue
		}
		if ip := net.ParseIP(line); ip != nil {
			addExact(ip)
		}
	}
	return sc.Err()
}
