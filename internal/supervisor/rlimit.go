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

//go:build unix

package supervisor

import (
	"golang.org/x/sys/unix"

	"github.com/rawtxgw/sendrawtx/internal/errkind"
)

// preflightFDs checks the FD budget before any worker is forked: each worker
// needs roughly one descriptor per connection slot plus headroom for its
// listeners, RPC backend sockets, and the cert/blocklist files it opens,
// so the supervisor refuses to start rather than let workers fail admission
// randomly once the kernel's file table fills up.
func preflightFDs(numWorkers, slotsTotal int) error {
	needed := uint64(numWorkers*(slotsTotal+15) + 50)
	minimal := uint64(numWorkers*20 + 20)

	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return errkind.FatalInit.Errorf("reading RLIMIT_NOFILE: %v", err)
	}

	if rlim.Cur >= needed {
		return nil
	}

	want := rlim.Max
	if needed < want {
		want = needed
	}
	if want > rlim.Cur {
		raised := unix.Rlimit{Cur: want, Max: rlim.Max}
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &raised); err == nil {
			rlim = raised
		}
	}

	if rlim.Cur < minimal {
		return errkind.FatalInit.Errorf(
			"file descriptor limit too low: have %d, need at least %d for %d workers (ideally %d)",
			rlim.Cur, minimal, numWorkers, needed)
	}
	return nil
}
