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

// Package httpconn drives one HTTP/1.1 connection through the
// READING_HEADERS/READING_BODY/PROCESSING/WRITING_RESPONSE/CLOSING FSM,
// sharing tier accounting and slowloris defense with the HTTP/2 path in
// internal/h2session.
package httpconn

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/rawtxgw/sendrawtx/internal/errkind"
	"github.com/rawtxgw/sendrawtx/internal/metrics"
	"github.com/rawtxgw/sendrawtx/internal/routing"
	"github.com/rawtxgw/sendrawtx/internal/tier"
)

type state int

const (
	readingHeaders state = iota
	readingBody
	processing
	writingResponse
	closing
)

// Limits bundles the tunables the FSM checks against on every ingest
// call; all come from [buffer]/[server] config keys.
type Limits struct {
	MaxBufferSize           uint64
	MaxRequestTime          time.Duration
	ThroughputCheckInterval time.Duration
	MinBytesPerCheck        uint64
	Thresholds              tier.Thresholds
}

// DefaultLimits mirrors the configured defaults. Callers set Thresholds
// afterward from [tiers] config, since size-tiering boundaries are
// independent of the buffer/timing tunables here.
func DefaultLimits(maxBufferSize uint64) Limits {
	return Limits{
		MaxBufferSize:           maxBufferSize,
		MaxRequestTime:          120 * time.Second,
		ThroughputCheckInterval: 5 * time.Second,
		MinBytesPerCheck:        100,
		Thresholds:              tier.Thresholds{Large: 64 << 10, Huge: 1 << 20, Max: maxBufferSize},
	}
}

// Request is the parsed result of one HTTP/1.1 request, handed to the
// shared dispatcher that also serves H2Streams.
type Request struct {
	Method      string
	Path        string
	Route       routing.Route
	Hex         string
	Body        []byte
	KeepAlive   bool
	RequestID   string
	Tier        tier.Tier
}

// Response is what the dispatcher hands back for the FSM to write.
type Response struct {
	Status      int
	Header      map[string]string
	Body        []byte
}

// Dispatch handles one parsed Request and returns the Response to write.
// Supplied by the worker; kept as a function value so httpconn has no
// import-cycle dependency on routing handlers, rpcclient, or endpoints.
type Dispatch func(req *Request) Response

// Conn drives one accepted HTTP/1.1 TCP (or TLS) connection.
type Conn struct {
	nc       net.Conn
	br       *bufio.Reader
	tiers    *tier.Table
	limits   Limits
	metrics  *metrics.Registry
	dispatch Dispatch

	st         state
	curTier    tier.Tier
	slotHeld   bool
	keepAlive  bool
	requestID  string

	start          time.Time
	lastCheck      time.Time
	bytesAtCheck   uint64
	totalRead      uint64

	headersScanned int
	headerBuf      []byte
	path           string
	method         string
	contentLength  int64
	bodyBuf        []byte
	connClose      bool
}

// New constructs a Conn with a NORMAL tier slot already acquired, per
// the "slot acquired before construction" lifecycle invariant.
func New(nc net.Conn, tiers *tier.Table, limits Limits, reg *metrics.Registry, dispatch Dispatch) (*Conn, error) {
	if !tiers.Acquire(tier.Normal) {
		return nil, errkind.Admission.Error()
	}
	now := time.Now()
	c := &Conn{
		nc:           nc,
		br:           bufio.NewReaderSize(nc, 4096),
		tiers:        tiers,
		limits:       limits,
		metrics:      reg,
		dispatch:     dispatch,
		st:           readingHeaders,
		curTier:      tier.Normal,
		slotHeld:     true,
		keepAlive:    true,
		start:        now,
		lastCheck:    now,
	}
	c.resetRequestID()
	return c, nil
}

func (c *Conn) resetRequestID() {
	if id, err := uuid.GenerateUUID(); err == nil {
		c.requestID = id
	} else {
		c.requestID = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
}

// Close releases the held tier slot, if any, and closes the socket.
func (c *Conn) Close() {
	if c.slotHeld {
		c.tiers.Release(c.curTier)
		c.slotHeld = false
	}
	c.nc.Close()
}

// Serve runs the FSM to completion: one request if keep-alive is false,
// otherwise until the peer closes, a protocol error occurs, or the
// connection is killed for slowloris.
func (c *Conn) Serve() {
	defer c.Close()

	for {
		c.nc.SetReadDeadline(time.Now().Add(c.limits.ThroughputCheckInterval))

		switch c.st {
		case readingHeaders:
			if !c.ingestHeaders() {
				return
			}
		case readingBody:
			if !c.ingestBody() {
				return
			}
		case processing:
			c.process()
		case writingResponse:
			if !c.flushAndMaybeReset() {
				return
			}
		case closing:
			return
		}
	}
}

// ingestHeaders reads until \r\n\r\n is found, applying early-path
// validation and slowloris checks on every call.
func (c *Conn) ingestHeaders() bool {
	for {
		if !c.checkSlowloris() {
			return false
		}

		if idx := indexHeadersEnd(c.headerBuf[c.headersScanned:]); idx >= 0 {
			end := c.headersScanned + idx + 4
			raw := c.headerBuf[:end]
			c.headerBuf = c.headerBuf[end:]
			return c.parseHeaders(raw)
		}
		c.headersScanned = maxInt(0, len(c.headerBuf)-3)

		if uint64(len(c.headerBuf)) > c.limits.MaxBufferSize {
			c.fail(413, true, nil)
			return false
		}

		buf := make([]byte, 4096)
		n, err := c.br.Read(buf)
		if n > 0 {
			c.headerBuf = append(c.headerBuf, buf[:n]...)
			c.noteProgress(uint64(n))

			if !c.earlyPathCheck() {
				return false
			}
			if !c.promoteForSize(uint64(len(c.headerBuf))) {
				return false
			}
		}
		if err != nil {
			return false
		}
	}
}

// earlyPathCheck runs as soon as a request line is visible: if the path
// body is longer than 64 characters it must already be all hex (with an
// optional tx/ prefix), so junk is rejected before gigabytes accumulate.
func (c *Conn) earlyPathCheck() bool {
	line := requestLine(c.headerBuf)
	if line == "" {
		return true
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return true
	}
	path := parts[1]
	if routing.EarlyPathNeedsHexCheck(strings.TrimPrefix(strings.TrimPrefix(path, "/"), "tx/")) {
		hex := routing.ExtractHex(path)
		if !routing.IsAllHex([]byte(hex)) {
			c.fail(400, true, nil)
			return false
		}
	}
	return true
}

func (c *Conn) promoteForSize(size uint64) bool {
	want := c.limits.Thresholds.ClassifyBySize(size)
	if want == c.curTier {
		return true
	}
	if !c.tiers.Promote(c.curTier, want) {
		if c.metrics != nil {
			c.metrics.SlotPromoFailure.Inc()
		}
		c.fail(503, true, map[string]string{"Retry-After": "5"})
		return false
	}
	c.curTier = want
	return true
}

func (c *Conn) parseHeaders(raw []byte) bool {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 {
		c.fail(400, true, nil)
		return false
	}
	reqLine := strings.Fields(lines[0])
	if len(reqLine) != 3 {
		c.fail(400, true, nil)
		return false
	}
	c.method = reqLine[0]
	c.path = reqLine[1]

	c.keepAlive = true
	c.contentLength = 0

	for _, ln := range lines[1:] {
		if ln == "" {
			continue
		}
		k, v, ok := strings.Cut(ln, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		switch k {
		case "content-length":
			if len(v) > 0 && (v[0] == '+' || v[0] == '-') {
				c.fail(400, true, nil)
				return false
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				c.fail(400, true, nil)
				return false
			}
			if uint64(n) > c.limits.MaxBufferSize {
				c.fail(413, true, nil)
				return false
			}
			c.contentLength = n
		case "connection":
			lv := strings.ToLower(v)
			if strings.Contains(lv, "close") {
				c.keepAlive = false
				c.connClose = true
			} else if strings.Contains(lv, "keep-alive") {
				c.keepAlive = true
			}
		}
	}

	route := routing.ClassifyPath(c.path)
	if route == routing.RouteError {
		c.fail(404, true, nil)
		return false
	}

	if c.contentLength > 0 {
		c.st = readingBody
		c.bodyBuf = make([]byte, 0, c.contentLength)
	} else {
		c.st = processing
	}
	return true
}

func (c *Conn) ingestBody() bool {
	if len(c.headerBuf) > 0 {
		take := int64(len(c.headerBuf))
		if take > c.contentLength {
			take = c.contentLength
		}
		c.bodyBuf = append(c.bodyBuf, c.headerBuf[:take]...)
		c.headerBuf = c.headerBuf[take:]
	}

	for int64(len(c.bodyBuf)) < c.contentLength {
		if !c.checkSlowloris() {
			return false
		}
		if !c.promoteForSize(uint64(len(c.bodyBuf)) + uint64(len(c.headerBuf))) {
			return false
		}

		buf := make([]byte, 4096)
		n, err := c.br.Read(buf)
		if n > 0 {
			remaining := c.contentLength - int64(len(c.bodyBuf))
			if int64(n) > remaining {
				n = int(remaining)
			}
			c.bodyBuf = append(c.bodyBuf, buf[:n]...)
			c.noteProgress(uint64(n))
		}
		if err != nil {
			return false
		}
	}
	c.st = processing
	return true
}

func (c *Conn) process() {
	// Post-ingest demotion: free a LARGE/HUGE slot while the response is
	// composed, since the body has already been fully read.
	if c.curTier != tier.Normal {
		if c.tiers.Promote(c.curTier, tier.Normal) {
			c.curTier = tier.Normal
		}
	}

	route := routing.ClassifyPath(c.path)
	hex := ""
	switch route {
	case routing.RouteResult, routing.RouteBroadcast:
		hex = routing.ExtractHex(c.path)
	case routing.RouteAcmeChallenge:
		hex, _ = routing.AcmeToken(c.path)
	}
	req := &Request{
		Method:    c.method,
		Path:      c.path,
		Route:     route,
		Hex:       hex,
		Body:      c.bodyBuf,
		KeepAlive: c.keepAlive,
		RequestID: c.requestID,
		Tier:      c.curTier,
	}

	resp := c.dispatch(req)
	c.writeResponse(resp)
	c.st = writingResponse
}

func (c *Conn) writeResponse(resp Response) {
	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(resp.Status))
	b.WriteString(" ")
	b.WriteString(statusText(resp.Status))
	b.WriteString("\r\n")

	b.WriteString("X-Request-ID: ")
	b.WriteString(c.requestID)
	b.WriteString("\r\n")

	conn := "keep-alive"
	if !c.keepAlive || c.connClose {
		conn = "close"
	}
	b.WriteString("Connection: ")
	b.WriteString(conn)
	b.WriteString("\r\n")

	for k, v := range resp.Header {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(resp.Body)))
	b.WriteString("\r\n\r\n")

	// One segment-coalesced write: headers and body travel in a single
	// TCP send where the kernel allows it, the Go equivalent of the
	// cork/uncork pairing calls for.
	out := make([]byte, 0, b.Len()+len(resp.Body))
	out = append(out, b.String()...)
	out = append(out, resp.Body...)
	c.nc.Write(out)
	if c.metrics != nil {
		c.metrics.ResponseBytes.Add(float64(len(out)))
	}
}

func (c *Conn) flushAndMaybeReset() bool {
	if !c.keepAlive || c.connClose {
		c.st = closing
		return false
	}

	// Keep-alive reset: free the path buffer, rewind the FSM, regenerate
	// the request id, reset timing, and reset to a NORMAL slot.
	c.headerBuf = nil
	c.bodyBuf = nil
	c.headersScanned = 0
	c.resetRequestID()
	c.start = time.Now()
	c.lastCheck = c.start
	c.bytesAtCheck = 0

	if c.curTier != tier.Normal {
		if !c.tiers.Promote(c.curTier, tier.Normal) {
			c.st = closing
			return false
		}
		c.curTier = tier.Normal
	}

	if c.metrics != nil {
		c.metrics.KeepAliveReuses.Inc()
	}
	c.st = readingHeaders
	return true
}

func (c *Conn) checkSlowloris() bool {
	now := time.Now()
	if now.Sub(c.start) > c.limits.MaxRequestTime {
		if c.metrics != nil {
			c.metrics.SlowlorisKills.Inc()
		}
		c.fail(0, true, nil)
		return false
	}
	if now.Sub(c.lastCheck) >= c.limits.ThroughputCheckInterval {
		if c.totalRead-c.bytesAtCheck < c.limits.MinBytesPerCheck {
			if c.metrics != nil {
				c.metrics.SlowlorisKills.Inc()
			}
			c.fail(0, true, nil)
			return false
		}
		c.lastCheck = now
		c.bytesAtCheck = c.totalRead
	}
	return true
}

func (c *Conn) noteProgress(n uint64) {
	c.totalRead += n
}

// fail writes status (when non-zero) and transitions straight to
// CLOSING; status == 0 means "close silently", used for timeouts where
// the peer is likely already gone.
func (c *Conn) fail(status int, forceClose bool, header map[string]string) {
	// keepAlive must flip before writeResponse so the Connection header
	// it emits matches the close decision, not the pre-failure default.
	if forceClose {
		c.keepAlive = false
	}
	if status != 0 {
		c.writeResponse(Response{Status: status, Header: header, Body: nil})
	}
	if c.metrics != nil {
		if kind := errKindForStatus(status); kind != "" {
			c.metrics.ErrorKinds.WithLabelValues(kind).Inc()
		}
	}
	c.st = closing
}

func errKindForStatus(status int) string {
	switch status {
	case 0:
		return "timeout"
	case 400, 404:
		return "parse"
	case 413:
		return "oversize"
	case 503:
		return "admission"
	default:
		return ""
	}
}

func indexHeadersEnd(buf []byte) int {
	return strings.Index(string(buf), "\r\n\r\n")
}

func requestLine(buf []byte) string {
	s := string(buf)
	if idx := strings.Index(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
