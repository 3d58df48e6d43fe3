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
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rawtxgw/sendrawtx/internal/buildinfo"
	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/logging"
	"github.com/rawtxgw/sendrawtx/internal/supervisor"
)

func newRootCmd() *cobra.Command {
	var configPath string
	var numWorkers int
	var foreground bool

	root := &cobra.Command{
		Use:   "sendrawtx",
		Short: "Hardened front-end for broadcasting raw Bitcoin transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			log, err := logging.New(logging.Config{
				JSON:     cfg.Logging.JSON,
				Verbose:  cfg.Logging.Verbose,
				FilePath: cfg.Logging.File,
			}, -1)
			if err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}

			if numWorkers <= 0 {
				numWorkers = runtime.NumCPU()
			}

			printBanner(configPath, numWorkers)

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving own executable path: %w", err)
			}

			sup := supervisor.New(supervisor.Options{
				BinaryPath: exe,
				ConfigPath: configPath,
				NumWorkers: numWorkers,
				Foreground: foreground,
			}, cfg, log)

			return sup.Run(context.Background())
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/sendrawtx/sendrawtx.ini", "path to the INI configuration file")
	root.Flags().IntVar(&numWorkers, "workers", 0, "number of worker processes (default: number of CPUs)")
	root.Flags().BoolVar(&foreground, "foreground", false, "accepted for compatibility; has no effect, sendrawtx never daemonizes")

	root.AddCommand(newWorkerCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func printBanner(configPath string, numWorkers int) {
	bold := color.New(color.Bold).SprintFunc()
	info := buildinfo.Current()
	fmt.Fprintf(os.Stderr, "%s %s (%s)\n", bold("sendrawtx"), info.Version, info.GitCommit)
	fmt.Fprintf(os.Stderr, "  config:  %s\n", configPath)
	fmt.Fprintf(os.Stderr, "  workers: %d\n", numWorkers)
}
