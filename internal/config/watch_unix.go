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

package config

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rawtxgw/sendrawtx/internal/logging"
)

// watchDebounce absorbs editors that write a config file in several
// syscalls (truncate, write, rename-into-place): only the last event in
// a burst triggers a reload.
const watchDebounce = 250 * time.Millisecond

// Watch watches the directory containing path and, whenever path itself
// is written, created, or renamed into place, signals this process with
// SIGHUP after debouncing. That is the same trigger an operator's
// `kill -HUP` sends, so an edited config file and a manual HUP both
// drive the identical reload path in Supervisor.Run — this only adds a
// second way to reach it, it does not replace signal-driven reload. The
// directory (not the file) is watched because editors commonly replace
// a file via rename rather than writing it in place, which would
// otherwise drop the watch on the old inode. The returned stop function
// tears the watch down; safe to call once.
func Watch(path string, log *logging.Logger) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	name := filepath.Base(path)
	done := make(chan struct{})

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, func() {
					if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
						log.Errorf("config watch: signalling reload: %v", err)
					}
				})
			case watchErr, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Errorf("config watch error: %v", watchErr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = w.Close()
	}, nil
}
