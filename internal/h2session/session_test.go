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

package h2session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawtxgw/sendrawtx/internal/metrics"
	"github.com/rawtxgw/sendrawtx/internal/tier"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings(16 << 20)
	assert.Equal(t, uint32(100), s.MaxConcurrentStreams)
	assert.Equal(t, uint32(1<<20), s.InitialWindowSize)
	assert.Equal(t, uint32(16<<20+4096), s.MaxHeaderListSize)
}

func TestNewRejectsBadPreface(t *testing.T) {
	srv, cli := net.Pipe()
	defer cli.Close()

	done := make(chan error, 1)
	go func() {
		_, err := New(srv, tier.NewTable(10, 10, 10), DefaultSettings(1<<20), metrics.New(), nil)
		done <- err
	}()

	cli.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := cli.Write([]byte("not a valid preface....."))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("New did not return on bad preface")
	}
}
