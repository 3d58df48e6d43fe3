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

package aclx

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDefaultsToNeutral(t *testing.T) {
	a := New()
	assert.Equal(t, Neutral, a.Check(net.ParseIP("198.51.100.1")))
}

func TestCheckExactMatch(t *testing.T) {
	a := New()
	a.AddBlockExact(net.ParseIP("198.51.100.1"))
	a.AddAllowExact(net.ParseIP("198.51.100.2"))

	assert.Equal(t, Block, a.Check(net.ParseIP("198.51.100.1")))
	assert.Equal(t, Allow, a.Check(net.ParseIP("198.51.100.2")))
	assert.Equal(t, Neutral, a.Check(net.ParseIP("198.51.100.3")))
}

func TestCheckBlockWinsOverAllow(t *testing.T) {
	a := New()
	ip := net.ParseIP("198.51.100.5")
	a.AddBlockExact(ip)
	a.AddAllowExact(ip)

	assert.Equal(t, Block, a.Check(ip))
}

func TestCheckCIDRMatch(t *testing.T) {
	a := New()
	_, n, err := net.ParseCIDR("203.0.113.0/24")
	require.NoError(t, err)
	a.AddBlockCIDR(n)

	assert.Equal(t, Block, a.Check(net.ParseIP("203.0.113.42")))
	assert.Equal(t, Neutral, a.Check(net.ParseIP("203.0.114.42")))
}

func TestCheckIPv6CIDRMatch(t *testing.T) {
	a := New()
	_, n, err := net.ParseCIDR("2001:db8::/32")
	require.NoError(t, err)
	a.AddAllowCIDR(n)

	assert.Equal(t, Allow, a.Check(net.ParseIP("2001:db8::1")))
	assert.Equal(t, Neutral, a.Check(net.ParseIP("2001:db9::1")))
}

func TestCheckIPv4AndMappedIPv6AreEquivalent(t *testing.T) {
	a := New()
	a.AddBlockExact(net.ParseIP("198.51.100.9"))

	assert.Equal(t, Block, a.Check(net.ParseIP("::ffff:198.51.100.9")))
}

func TestLoadBlockFileParsesExactAndCIDRLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.txt")
	content := "# comment\n\n198.51.100.1\n203.0.113.0/24\nnot-an-ip\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := New()
	require.NoError(t, a.LoadBlockFile(path))

	assert.Equal(t, Block, a.Check(net.ParseIP("198.51.100.1")))
	assert.Equal(t, Block, a.Check(net.ParseIP("203.0.113.50")))
	assert.Equal(t, Neutral, a.Check(net.ParseIP("198.51.100.2")))
}

func TestLoadBlockFileEmptyPathIsNoop(t *testing.T) {
	a := New()
	require.NoError(t, a.LoadBlockFile(""))
}

func TestLoadBlockFileMissingFileErrors(t *testing.T) {
	a := New()
	err := a.LoadBlockFile(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
