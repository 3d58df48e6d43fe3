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

// Package reuseport binds SO_REUSEPORT listeners so every worker process
// can independently accept on the same port, letting the kernel balance
// connections across workers instead of sendrawtx doing it in userspace.
package reuseport

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/rawtxgw/sendrawtx/internal/errkind"
)

// Listen binds network/address with SO_REUSEPORT (and SO_REUSEADDR) set
// on the underlying socket before bind(2), so N worker processes can all
// call Listen on the same address.
func Listen(network, address string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: controlReusePort,
	}
	ln, err := lc.Listen(context.Background(), network, address)
	if err != nil {
		return nil, errkind.FatalInit.Errorf("binding %s %s: %v", network, address, err)
	}
	return ln, nil
}

func controlReusePort(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
