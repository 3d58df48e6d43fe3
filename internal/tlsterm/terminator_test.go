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

package tlsterm

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSelfSignedCert(t *testing.T, dir string, notAfter time.Time) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sendrawtx-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}

func TestNewLoadsCertAndExposesExpiry(t *testing.T) {
	dir := t.TempDir()
	notAfter := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)
	certPath, keyPath := writeSelfSignedCert(t, dir, notAfter)

	term, err := New(certPath, keyPath, true)
	require.NoError(t, err)
	assert.WithinDuration(t, notAfter, term.Expiry(), time.Minute)
	assert.NotNil(t, term.Config())
}

func TestNewRejectsMissingCertFile(t *testing.T) {
	dir := t.TempDir()
	_, keyPath := writeSelfSignedCert(t, dir, time.Now().Add(time.Hour))

	_, err := New(filepath.Join(dir, "missing.pem"), keyPath, true)
	assert.Error(t, err)
}

func TestReloadSwapsActiveConfig(t *testing.T) {
	dir := t.TempDir()
	firstExpiry := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	certPath, keyPath := writeSelfSignedCert(t, dir, firstExpiry)

	term, err := New(certPath, keyPath, true)
	require.NoError(t, err)
	assert.WithinDuration(t, firstExpiry, term.Expiry(), time.Minute)

	secondExpiry := time.Now().Add(200 * 24 * time.Hour).Truncate(time.Second)
	certPath2, keyPath2 := writeSelfSignedCert(t, dir, secondExpiry)
	require.NoError(t, term.Reload(certPath2, keyPath2))

	assert.WithinDuration(t, secondExpiry, term.Expiry(), time.Minute)
}

func TestALPNSelectsH2WhenEnabledAndOffered(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, time.Now().Add(time.Hour))

	term, err := New(certPath, keyPath, true)
	require.NoError(t, err)

	cfg := term.configForHello(&tls.ClientHelloInfo{SupportedProtos: []string{"h2", "http/1.1"}})
	assert.Equal(t, []string{"h2"}, cfg.NextProtos)
}

func TestALPNFallsBackToHTTP1WhenH2NotOffered(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, time.Now().Add(time.Hour))

	term, err := New(certPath, keyPath, true)
	require.NoError(t, err)

	cfg := term.configForHello(&tls.ClientHelloInfo{SupportedProtos: []string{"http/1.1"}})
	assert.Equal(t, []string{"http/1.1"}, cfg.NextProtos)
}

func TestALPNDisabledAlwaysUsesHTTP1(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, time.Now().Add(time.Hour))

	term, err := New(certPath, keyPath, false)
	require.NoError(t, err)

	cfg := term.configForHello(&tls.ClientHelloInfo{SupportedProtos: []string{"h2"}})
	assert.Equal(t, []string{"http/1.1"}, cfg.NextProtos)
}
