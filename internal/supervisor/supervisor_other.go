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

//go:build !unix

// Package supervisor on non-unix platforms has no multi-process model to
// run (SO_REUSEPORT and process signals are unix-specific); this stub
// only exists so `go build ./...` succeeds elsewhere.
package supervisor

import (
	"context"
	"errors"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/logging"
)

// DrainSignal has no non-unix equivalent.
const DrainSignal = 0

// Options configures one Supervisor instance.
type Options struct {
	BinaryPath string
	ConfigPath string
	NumWorkers int
	Foreground bool
}

// Supervisor is unimplemented outside unix.
type Supervisor struct {
	done chan struct{}
}

// New returns a Supervisor stub.
func New(opts Options, cfg *config.Config, log *logging.Logger) *Supervisor {
	return &Supervisor{done: make(chan struct{})}
}

// Run always fails outside unix.
func (s *Supervisor) Run(ctx context.Context) error {
	return errors.New("supervisor: multi-process worker model requires a unix host")
}

// Done is closed immediately on non-unix stubs.
func (s *Supervisor) Done() <-chan struct{} {
	close(s.done)
	return s.done
}
