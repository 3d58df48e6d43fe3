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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/logging"
	"github.com/rawtxgw/sendrawtx/internal/tlsterm"
	"github.com/rawtxgw/sendrawtx/internal/worker"
)

// newWorkerCmd is the supervisor's re-exec target: one OS process per
// worker, bound to its own SO_REUSEPORT listeners. It is hidden from
// --help since an operator should never invoke it directly.
func newWorkerCmd(configPath *string) *cobra.Command {
	var id int
	var generation uint64

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Internal worker process entry point",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("worker %d: loading config: %w", id, err)
			}

			log, err := logging.New(logging.Config{
				JSON:     cfg.Logging.JSON,
				Verbose:  cfg.Logging.Verbose,
				FilePath: cfg.Logging.File,
			}, id)
			if err != nil {
				return fmt.Errorf("worker %d: initializing logging: %w", id, err)
			}

			var term *tlsterm.Terminator
			if cfg.TLS.Enabled {
				term, err = tlsterm.New(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Http2Enable)
				if err != nil {
					return fmt.Errorf("worker %d: loading TLS material: %w", id, err)
				}
				if stop, err := term.Watch(cfg.TLS.CertFile, cfg.TLS.KeyFile, log); err != nil {
					log.Warnf("certificate file watch disabled: %v", err)
				} else {
					defer stop()
				}
			}

			var loop *worker.Loop
			if term != nil {
				loop, err = worker.New(id, cfg, log, term)
			} else {
				loop, err = worker.New(id, cfg, log, nil)
			}
			if err != nil {
				return fmt.Errorf("worker %d: binding listeners: %w", id, err)
			}

			// Listeners are bound and RPC backend addresses are already
			// pre-resolved (internal/rpcclient resolves at construction
			// time, inside worker.New), so it is safe to drop further
			// syscall privilege now, before serving any connections.
			worker.ApplySeccomp(cfg.Security.Seccomp, log)

			sigCh := make(chan os.Signal, 4)
			signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGHUP)
			go func() {
				for sig := range sigCh {
					switch sig {
					case syscall.SIGUSR1:
						log.Infof("draining on supervisor request")
						loop.Drain()
						os.Exit(0)
					case syscall.SIGHUP:
						if term != nil {
							if err := term.Reload(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
								log.Errorf("certificate reload failed: %v", err)
							} else {
								log.Infof("certificate reloaded")
							}
						}
					}
				}
			}()

			log.Infof("worker %d serving (generation %d)", id, generation)
			loop.Serve()
			return nil
		},
	}

	cmd.Flags().IntVar(&id, "id", 0, "worker index, used for CPU affinity and the worker_id log field")
	cmd.Flags().Uint64Var(&generation, "generation", 0, "worker generation, assigned by the supervisor")
	return cmd
}
