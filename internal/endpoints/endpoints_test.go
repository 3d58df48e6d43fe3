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

package endpoints

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/metrics"
	"github.com/rawtxgw/sendrawtx/internal/rpcclient"
)

type fakeTLS struct{ expiry time.Time }

func (f fakeTLS) Expiry() time.Time { return f.expiry }

func newTestHandlers(t *testing.T, draining *int32) *Handlers {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>home</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "result.html"), []byte("<html>result</html>"), 0o644))

	cfg := &config.Config{
		Static: config.StaticConfig{Dir: dir},
		Acme:   config.AcmeConfig{ChallengeDir: dir},
	}

	return New(Deps{
		Config:   cfg,
		Metrics:  metrics.New(),
		TLS:      fakeTLS{expiry: time.Now().Add(24 * time.Hour)},
		Draining: draining,
		RPC:      rpcclient.New(cfg),
	})
}

func TestHomeServesPreloadedPage(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	res := h.Home()
	assert.Equal(t, 200, res.Status)
	assert.Contains(t, string(res.Body), "home")
	assert.Equal(t, "no-store", res.Header["Cache-Control"])
}

func TestStaticPageMissingReturns404(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	res := h.StaticPage("docs")
	assert.Equal(t, 404, res.Status)
}

func TestReadyReflectsDrainingFlag(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	assert.Equal(t, 200, h.Ready().Status)

	atomic.StoreInt32(&draining, 1)
	assert.Equal(t, 503, h.Ready().Status)
}

func TestAliveAlwaysOK(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)
	assert.Equal(t, 200, h.Alive().Status)
}

func TestVersionReturnsJSON(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	res := h.Version()
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "application/json", res.Header["Content-Type"])
	assert.Contains(t, string(res.Body), "go_version")
}

func TestHealthReportsChainsAndExpiry(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	res := h.Health()
	assert.Equal(t, 200, res.Status)
	assert.Contains(t, string(res.Body), `"status":"ok"`)
	assert.Contains(t, string(res.Body), `"tls_cert_expiry"`)
	assert.Contains(t, string(res.Body), `"rpc_chains_up"`)
}

func TestMetricsServesPrometheusExposition(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	res := h.Metrics()
	assert.Equal(t, 200, res.Status)
	assert.NotEmpty(t, res.Header["Content-Type"])
}

func TestAcmeChallengeServesValidToken(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	dir := h.deps.Config.Acme.ChallengeDir
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc123"), []byte("challenge-response"), 0o644))

	res := h.AcmeChallenge("abc123")
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "challenge-response", string(res.Body))
}

func TestAcmeChallengeRejectsPathTraversal(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	res := h.AcmeChallenge("../../etc/passwd")
	assert.Equal(t, 404, res.Status)
}

func TestAcmeChallengeMissingFile(t *testing.T) {
	var draining int32
	h := newTestHandlers(t, &draining)

	res := h.AcmeChallenge("does-not-exist")
	assert.Equal(t, 404, res.Status)
}

func TestValidAcmeTokenRejectsSlashesAndBackslashes(t *testing.T) {
	assert.False(t, validAcmeToken("a/b"))
	assert.False(t, validAcmeToken(`a\b`))
	assert.False(t, validAcmeToken(""))
	assert.True(t, validAcmeToken("abc-123_XYZ"))
}
