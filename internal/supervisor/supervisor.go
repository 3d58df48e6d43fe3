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

// Package supervisor is the parent process: it preflights
// the FD budget, forks one OS process per worker (re-exec of the same
// binary under the "worker" subcommand), reaps and restarts crashed
// workers, and drives zero-downtime reload and bounded-drain shutdown.
//
// Each worker is modelled like a managed goroutine with a start function
// and a stop function the supervisor calls at the right time — except
// here "start" is forking an OS process (so a crash cannot take the
// supervisor down with it) and "stop" is a signal asking that process to
// drain itself.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/errkind"
	"github.com/rawtxgw/sendrawtx/internal/logging"
)

// DrainSignal is what the supervisor sends a worker to ask it to stop
// accepting new connections and exit once active connections finish.
// SIGTERM is reserved for the supervisor's own shutdown signal from its
// parent (systemd, a shell), so workers get SIGUSR1 instead.
const DrainSignal = syscall.SIGUSR1

// ShutdownDrainTimeout bounds how long the supervisor waits for a drained
// worker generation to exit before escalating to SIGKILL.
const ShutdownDrainTimeout = 30 * time.Second

// Options configures one Supervisor instance.
type Options struct {
	BinaryPath string
	ConfigPath string
	NumWorkers int
	Foreground bool
}

type workerProc struct {
	id         int
	generation uint64
	cmd        *exec.Cmd
	startedAt  time.Time
	draining   int32
	exited     chan struct{}
}

// Supervisor owns the current and (during reload) previous worker
// generations, and the signal-driven state machine that forks, reaps,
// drains, and reloads them.
type Supervisor struct {
	opts Options
	log  *logging.Logger
	cfg  *config.Config

	mu         sync.Mutex
	generation uint64
	workers    map[int]*workerProc // current generation, by id
	draining   []*workerProc       // generations being drained out

	termReq  int32
	hupReq   int32
	chldSeen int32

	done chan struct{}
}

// New builds a Supervisor for cfg, ready to Run.
func New(opts Options, cfg *config.Config, log *logging.Logger) *Supervisor {
	return &Supervisor{
		opts:    opts,
		log:     log,
		cfg:     cfg,
		workers: make(map[int]*workerProc),
		done:    make(chan struct{}),
	}
}

// Run preflights the FD budget, spawns the first worker generation,
// installs signal handlers, and blocks until a shutdown completes.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := preflightFDs(s.opts.NumWorkers, slotsTotal(s.cfg)); err != nil {
		return err
	}

	if err := s.spawnGeneration(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGCHLD, syscall.SIGPIPE)
	defer signal.Stop(sigCh)

	if stop, err := config.Watch(s.opts.ConfigPath, s.log); err != nil {
		s.log.Warnf("config file watch disabled: %v", err)
	} else {
		defer stop()
	}

	reapTicker := time.NewTicker(500 * time.Millisecond)
	defer reapTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				atomic.StoreInt32(&s.termReq, 1)
			case syscall.SIGHUP:
				atomic.StoreInt32(&s.hupReq, 1)
			case syscall.SIGCHLD:
				atomic.StoreInt32(&s.chldSeen, 1)
			case syscall.SIGPIPE:
				// Ignored: a worker's stdout/stderr pipe closing must
				// never take the supervisor down.
			}
		case <-reapTicker.C:
		case <-ctx.Done():
			atomic.StoreInt32(&s.termReq, 1)
		}

		if atomic.CompareAndSwapInt32(&s.termReq, 1, 0) {
			s.log.Infof("shutdown requested")
			return s.shutdown()
		}
		if atomic.CompareAndSwapInt32(&s.hupReq, 1, 0) {
			s.log.Infof("reload requested")
			if err := s.reload(); err != nil {
				s.log.Errorf("reload failed, keeping current generation: %v", err)
			}
		}
		atomic.StoreInt32(&s.chldSeen, 0)
		s.reap()
	}
}

// reap is a single non-blocking pass over exited children. It is safe to
// call on every tick in addition to on SIGCHLD, since wait4(..., WNOHANG)
// is a no-op when nothing has exited.
func (s *Supervisor) reap() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		s.onChildExit(pid, status)
	}
}

func (s *Supervisor) onChildExit(pid int, status syscall.WaitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.workers {
		if w.cmd.Process != nil && w.cmd.Process.Pid == pid {
			close(w.exited)
			delete(s.workers, id)
			if atomic.LoadInt32(&w.draining) == 0 {
				s.log.Warnf("worker %d (pid %d) exited unexpectedly, status %v, restarting", id, pid, status)
				if nw, err := s.spawnWorker(id, w.generation); err == nil {
					s.workers[id] = nw
				} else {
					s.log.Errorf("failed to respawn worker %d: %v", id, err)
				}
			} else {
				s.log.Infof("worker %d (pid %d) drained and exited, status %v", id, pid, status)
			}
			return
		}
	}

	for i, w := range s.draining {
		if w.cmd.Process != nil && w.cmd.Process.Pid == pid {
			close(w.exited)
			s.draining = append(s.draining[:i], s.draining[i+1:]...)
			s.log.Infof("drained generation %d worker %d (pid %d) exited", w.generation, w.id, pid)
			return
		}
	}
}

func (s *Supervisor) spawnGeneration() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	gen := s.generation
	for id := 0; id < s.opts.NumWorkers; id++ {
		w, err := s.spawnWorker(id, gen)
		if err != nil {
			return errkind.FatalInit.Errorf("spawning worker %d: %v", id, err)
		}
		s.workers[id] = w
	}
	return nil
}

func (s *Supervisor) spawnWorker(id int, generation uint64) (*workerProc, error) {
	cmd := exec.Command(s.opts.BinaryPath, "worker",
		"--config", s.opts.ConfigPath,
		"--id", fmt.Sprintf("%d", id),
		"--generation", fmt.Sprintf("%d", generation),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &workerProc{
		id:         id,
		generation: generation,
		cmd:        cmd,
		startedAt:  time.Now(),
		exited:     make(chan struct{}),
	}
	s.log.Infof("spawned worker %d (pid %d, generation %d)", id, cmd.Process.Pid, generation)
	return w, nil
}

// reload performs the zero-downtime swap: the current
// generation is marked draining and moved aside, a brand new generation
// is forked against the (possibly changed) config file, and the old
// generation's workers are signalled to drain. Both generations' workers
// bind with SO_REUSEPORT, so the kernel keeps balancing new connections
// across whichever processes are still listening.
func (s *Supervisor) reload() error {
	s.mu.Lock()
	old := s.workers
	s.workers = make(map[int]*workerProc)
	s.mu.Unlock()

	if err := s.spawnGeneration(); err != nil {
		s.mu.Lock()
		s.workers = old
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	for _, w := range old {
		atomic.StoreInt32(&w.draining, 1)
		s.draining = append(s.draining, w)
	}
	s.mu.Unlock()

	for _, w := range old {
		if w.cmd.Process != nil {
			_ = w.cmd.Process.Signal(DrainSignal)
		}
	}
	return nil
}

// shutdown drains every live worker (current and any still-draining
// generation), waits up to ShutdownDrainTimeout using an errgroup to fan
// in each worker's exit, then SIGKILLs stragglers.
//
// By the time Run calls this, its own select loop has already returned,
// so nothing is left calling reap/Wait4 on our children. shutdown
// therefore reaps each worker itself via cmd.Wait, rather than waiting
// on the w.exited channel that only onChildExit (called from Run's
// loop) ever closes — waiting on that channel here would block forever
// even for a worker that drains and exits cleanly.
func (s *Supervisor) shutdown() error {
	s.mu.Lock()
	all := make([]*workerProc, 0, len(s.workers)+len(s.draining))
	for _, w := range s.workers {
		atomic.StoreInt32(&w.draining, 1)
		all = append(all, w)
	}
	all = append(all, s.draining...)
	s.workers = make(map[int]*workerProc)
	s.draining = nil
	s.mu.Unlock()

	for _, w := range all {
		if w.cmd.Process != nil {
			_ = w.cmd.Process.Signal(DrainSignal)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownDrainTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(context.Background())
	for _, w := range all {
		w := w
		waited := make(chan struct{})
		go func() {
			_ = w.cmd.Wait()
			close(waited)
		}()
		g.Go(func() error {
			select {
			case <-waited:
				return nil
			case <-ctx.Done():
				s.log.Warnf("worker %d (pid %d) did not drain in time, killing", w.id, w.cmd.Process.Pid)
				_ = w.cmd.Process.Signal(syscall.SIGKILL)
				<-waited
				return nil
			}
		})
	}
	_ = g.Wait()

	close(s.done)
	s.log.Infof("shutdown complete")
	return nil
}

// Done is closed once shutdown has fully reaped every worker.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func slotsTotal(cfg *config.Config) int {
	return int(cfg.Slots.NormalMax) + int(cfg.Slots.LargeMax) + int(cfg.Slots.HugeMax)
}
