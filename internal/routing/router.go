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

// Package routing classifies a request path into a closed set of Route
// tags using a 256-entry hex lookup table and a cheap, allocation-light
// path matcher — no net/http.ServeMux, because every candidate path
// must be classified before a body exists, for the slowloris-resistant
// early-path check in internal/httpconn.
package routing

// Route is the closed set of dispatch targets a path can resolve to.
type Route int

const (
	RouteError Route = iota
	RouteHome
	RouteHealth
	RouteReady
	RouteAlive
	RouteVersion
	RouteMetrics
	RouteDocs
	RouteStatus
	RouteLogos
	RouteAcmeChallenge
	RouteResult
	RouteBroadcast
)

func (r Route) String() string {
	switch r {
	case RouteHome:
		return "home"
	case RouteHealth:
		return "health"
	case RouteReady:
		return "ready"
	case RouteAlive:
		return "alive"
	case RouteVersion:
		return "version"
	case RouteMetrics:
		return "metrics"
	case RouteDocs:
		return "docs"
	case RouteStatus:
		return "status"
	case RouteLogos:
		return "logos"
	case RouteAcmeChallenge:
		return "acme_challenge"
	case RouteResult:
		return "result"
	case RouteBroadcast:
		return "broadcast"
	default:
		return "error"
	}
}

// MinBroadcastHexLen is the minimum even hex length (≥164)
// that classifies a path as a broadcast rather than a lookup.
const MinBroadcastHexLen = 164

// TxIDHexLen is the fixed hex length of a 32-byte transaction id.
const TxIDHexLen = 64

var hexLUT [256]bool

func init() {
	for c := '0'; c <= '9'; c++ {
		hexLUT[c] = true
	}
	for c := 'a'; c <= 'f'; c++ {
		hexLUT[c] = true
	}
	for c := 'A'; c <= 'F'; c++ {
		hexLUT[c] = true
	}
}

// IsAllHex reports whether every byte of buf is an ASCII hex digit,
// short-circuiting on the first miss.
func IsAllHex(buf []byte) bool {
	for _, b := range buf {
		if !hexLUT[b] {
			return false
		}
	}
	return true
}

// ClassifyPath maps a URL path to a Route. It does not know whether ACME
// challenge serving is configured (the token validity check itself
// lives in this package too, see ValidAcmeToken).
func ClassifyPath(path string) Route {
	switch path {
	case "/":
		return RouteHome
	case "/health":
		return RouteHealth
	case "/ready":
		return RouteReady
	case "/alive":
		return RouteAlive
	case "/version":
		return RouteVersion
	case "/metrics":
		return RouteMetrics
	case "/docs":
		return RouteDocs
	case "/status":
		return RouteStatus
	case "/logos":
		return RouteLogos
	}

	const acmePrefix = "/.well-known/acme-challenge/"
	if len(path) > len(acmePrefix) && path[:len(acmePrefix)] == acmePrefix {
		return RouteAcmeChallenge
	}

	body := path
	if len(body) > 0 && body[0] == '/' {
		body = body[1:]
	}
	const txPrefix = "tx/"
	if len(body) > len(txPrefix) && body[:len(txPrefix)] == txPrefix {
		body = body[len(txPrefix):]
	}

	if len(body) == 0 {
		return RouteError
	}
	if !IsAllHex([]byte(body)) {
		return RouteError
	}

	switch {
	case len(body) == TxIDHexLen:
		return RouteResult
	case len(body) >= MinBroadcastHexLen && len(body)%2 == 0:
		return RouteBroadcast
	default:
		return RouteError
	}
}

// ExtractHex returns the hex body of a /tx/<hex> or /<hex> path, already
// known (by ClassifyPath) to be RouteResult or RouteBroadcast.
func ExtractHex(path string) string {
	body := path
	if len(body) > 0 && body[0] == '/' {
		body = body[1:]
	}
	const txPrefix = "tx/"
	if len(body) > len(txPrefix) && body[:len(txPrefix)] == txPrefix {
		body = body[len(txPrefix):]
	}
	return body
}

// AcmeToken extracts and validates the token segment of an ACME
// challenge path. Tokens must be base64url characters only, with no
// "..", "/" or "\\" — defending against path traversal into acme_dir.
func AcmeToken(path string) (string, bool) {
	const acmePrefix = "/.well-known/acme-challenge/"
	if len(path) <= len(acmePrefix) {
		return "", false
	}
	token := path[len(acmePrefix):]
	if !ValidAcmeToken(token) {
		return "", false
	}
	return token, true
}

// ValidAcmeToken reports whether s is composed solely of base64url
// characters and contains no path-traversal sequences.
func ValidAcmeToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// EarlyPathNeedsHexCheck reports whether a path body long enough to
// exceed the cheap 64-character threshold must already pass the hex
// validator before the rest of the request is read — the
// slowloris-resistant early check.
func EarlyPathNeedsHexCheck(pathBody string) bool {
	return len(pathBody) > 64
}
