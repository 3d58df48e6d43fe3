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
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/logging"
)

func TestPreflightFDsPassesWithHeadroom(t *testing.T) {
	// One worker, tiny slot table: the minimal floor (20+20=40) and the
	// ideal budget (1*(10+15)+50=75) should both be well under any sane
	// test-runner ulimit.
	err := preflightFDs(1, 10)
	require.NoError(t, err)
}

func TestSlotsTotal(t *testing.T) {
	cfg := &config.Config{}
	cfg.Slots.NormalMax = 100
	cfg.Slots.LargeMax = 20
	cfg.Slots.HugeMax = 5
	require.Equal(t, 125, slotsTotal(cfg))
}

// TestShutdownReapsExitedWorkersWithoutDeadlock guards against a
// regression where shutdown() waited on a workerProc's exited channel
// that only the (by then long-returned) Run() select loop ever closes:
// shutdown must reap its children itself.
func TestShutdownReapsExitedWorkersWithoutDeadlock(t *testing.T) {
	log, err := logging.New(logging.Config{}, -1)
	require.NoError(t, err)

	s := New(Options{NumWorkers: 2}, &config.Config{}, log)

	for id := 0; id < 2; id++ {
		cmd := exec.Command("sleep", "30")
		require.NoError(t, cmd.Start())
		s.workers[id] = &workerProc{
			id:     id,
			cmd:    cmd,
			exited: make(chan struct{}),
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.shutdown() }()

	// DrainSignal (SIGUSR1) has no handler in "sleep", so its default
	// disposition terminates the process immediately; shutdown should
	// observe that exit well within its 30s drain timeout.
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown deadlocked waiting on workers that already exited")
	}

	select {
	case <-s.Done():
	default:
		t.Fatal("shutdown did not close Done()")
	}
}
