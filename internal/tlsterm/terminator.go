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

// Package tlsterm implements the ALPN-selecting, hot-reloadable TLS
// server context. Reload swaps in a new *tls.Config atomically;
// connections already in progress keep using the context they
// negotiated with (crypto/tls itself is the one reading the *tls.Config
// per-handshake, via GetConfigForClient, so nothing needs to be torn
// down).
package tlsterm

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rawtxgw/sendrawtx/internal/errkind"
	"github.com/rawtxgw/sendrawtx/internal/logging"
)

// Terminator owns the live TLS server configuration and its hot-reload
// path.
type Terminator struct {
	http2Enabled bool
	cur          atomic.Value // holds *state
}

type state struct {
	cfg    *tls.Config
	expiry time.Time
}

// New builds a Terminator from a PEM cert chain and private key. The ALPN
// callback selects "h2" only when http2Enabled is true and the client
// offered it, falls back to "http/1.1", and acknowledges nothing if
// neither is offered.
func New(certFile, keyFile string, http2Enabled bool) (*Terminator, error) {
	t := &Terminator{http2Enabled: http2Enabled}
	if err := t.Reload(certFile, keyFile); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload loads a new cert/key pair, verifies they match, computes expiry,
// and atomically swaps the active *tls.Config. It is the ACME-renewal
// entry point triggered by the worker's SIGHUP handler.
func (t *Terminator) Reload(certFile, keyFile string) error {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return errkind.TlsHandshake.Errorf("reading cert file: %v", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return errkind.TlsHandshake.Errorf("reading key file: %v", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return errkind.TlsHandshake.Errorf("cert/key do not match: %v", err)
	}

	expiry, err := leafExpiry(certPEM)
	if err != nil {
		return errkind.TlsHandshake.Errorf("parsing cert expiry: %v", err)
	}

	base := &tls.Config{
		MinVersion:               tls.VersionTLS12,
		Certificates:             []tls.Certificate{cert},
		PreferServerCipherSuites: true, //nolint:staticcheck // kept explicit for clarity
		SessionTicketsDisabled:   false,
		NextProtos:               t.nextProtos(),
	}
	base.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		return t.configForHello(hello), nil
	}

	t.cur.Store(&state{cfg: base, expiry: expiry})
	return nil
}

func (t *Terminator) nextProtos() []string {
	if t.http2Enabled {
		return []string{"h2", "http/1.1"}
	}
	return []string{"http/1.1"}
}

// configForHello implements the ALPN selection policy: h2 iff enabled and
// offered, else http/1.1, else no ALPN ack at all.
func (t *Terminator) configForHello(hello *tls.ClientHelloInfo) *tls.Config {
	s := t.current()
	cfg := s.cfg.Clone()

	if !t.http2Enabled {
		cfg.NextProtos = []string{"http/1.1"}
		return cfg
	}

	offered := map[string]bool{}
	for _, p := range hello.SupportedProtos {
		offered[p] = true
	}
	switch {
	case offered["h2"]:
		cfg.NextProtos = []string{"h2"}
	case offered["http/1.1"] || len(hello.SupportedProtos) == 0:
		cfg.NextProtos = []string{"http/1.1"}
	default:
		cfg.NextProtos = nil
	}
	return cfg
}

func (t *Terminator) current() *state {
	return t.cur.Load().(*state)
}

// Config returns the live *tls.Config for crypto/tls.Listen / tls.Server.
func (t *Terminator) Config() *tls.Config {
	return t.current().cfg
}

// Expiry returns the currently-loaded leaf certificate's NotAfter,
// served by /health and /metrics.
func (t *Terminator) Expiry() time.Time {
	return t.current().expiry
}

// Watch watches the directories containing certFile and keyFile (ACME
// clients typically renew by writing a new file and renaming it into
// place, so the directory is watched rather than the file itself) and
// calls Reload, debounced, whenever either changes. This is the
// automatic counterpart to the worker's SIGHUP-triggered Reload call:
// an ACME renewal that drops new material on disk now reaches the live
// *tls.Config without an operator having to send a signal at all. A
// failed reload is logged and the previous config stays live. The
// returned stop function tears the watch down; safe to call once.
func (t *Terminator) Watch(certFile, keyFile string, log *logging.Logger) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := map[string]bool{filepath.Dir(certFile): true, filepath.Dir(keyFile): true}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	names := map[string]bool{filepath.Base(certFile): true, filepath.Base(keyFile): true}
	done := make(chan struct{})

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !names[filepath.Base(ev.Name)] {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					if err := t.Reload(certFile, keyFile); err != nil {
						log.Errorf("certificate watch: reload failed: %v", err)
					} else {
						log.Infof("certificate reloaded via file watch")
					}
				})
			case watchErr, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Errorf("certificate watch error: %v", watchErr)
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

func leafExpiry(certPEM []byte) (time.Time, error) {
	var der []byte
	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			der = block.Bytes
			break
		}
	}
	if der == nil {
		return time.Time{}, fmt.Errorf("no CERTIFICATE PEM block found")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}
