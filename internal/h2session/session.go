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

// Package h2session drives HTTP/2 at the frame level via
// golang.org/x/net/http2.Framer and hpack instead of http2.Server's
// http.Handler abstraction, because the admission-control model shares
// tier slot accounting with internal/httpconn per-stream and needs
// hooks (on_begin_headers, on_header, on_stream_close) the Handler
// interface does not expose.
package h2session

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/hashicorp/go-uuid"

	"github.com/rawtxgw/sendrawtx/internal/metrics"
	"github.com/rawtxgw/sendrawtx/internal/routing"
	"github.com/rawtxgw/sendrawtx/internal/tier"
)

const clientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Settings are the advertised session limits.
type Settings struct {
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxHeaderListSize    uint32
	ConnectionWindow     uint32
	Thresholds           tier.Thresholds
}

// DefaultSettings matches the hardened profile this package calls for. Callers
// set Thresholds afterward from [tiers] config, mirroring httpconn.Limits.
func DefaultSettings(maxBufferSize uint32) Settings {
	return Settings{
		MaxConcurrentStreams: 100,
		InitialWindowSize:    1 << 20,
		MaxHeaderListSize:    maxBufferSize + 4096,
		ConnectionWindow:     16 << 20,
		Thresholds:           tier.Thresholds{Large: 64 << 10, Huge: 1 << 20, Max: uint64(maxBufferSize)},
	}
}

// Hardening bounds mitigate rapid-reset (CVE-2023-44487) and frame
// floods.
const (
	rapidResetLimit  = 1000
	rapidResetWindow = 33 * time.Second
	settingsCap      = 32
	outboundAckCap   = 1000
)

// Stream holds one H2Stream's state, a child of exactly one Session.
type Stream struct {
	ID            uint32
	Tier          tier.Tier
	SlotHeld      bool
	RequestID     string
	Method        string
	Path          string
	Authority     string
	Scheme        string
	ContentLength int64
	BodyReceived  int64
	started       time.Time
}

// Dispatch handles one complete request, identical in shape to
// httpconn.Dispatch so both protocols share the same handler set.
type Dispatch func(s *Stream, route routing.Route, hex string, body []byte) (status int, header map[string]string, body2 []byte)

// Session drives one HTTP/2 connection's frames.
type Session struct {
	nc       net.Conn
	fr       *http2.Framer
	tiers    *tier.Table
	settings Settings
	metrics  *metrics.Registry
	dispatch Dispatch

	mu           sync.Mutex
	streams      map[uint32]*Stream
	bodies       map[uint32][]byte
	rstTimes     []time.Time
	ackCount     int
	settingsCnt  int
	lastStreamID uint32
}

// New negotiates the HTTP/2 preface on nc and builds a Session. Callers
// reach this path only after ALPN has selected "h2".
func New(nc net.Conn, tiers *tier.Table, settings Settings, reg *metrics.Registry, dispatch Dispatch) (*Session, error) {
	buf := make([]byte, len(clientPreface))
	if _, err := io.ReadFull(nc, buf); err != nil {
		return nil, err
	}
	if string(buf) != clientPreface {
		return nil, io.ErrUnexpectedEOF
	}

	fr := http2.NewFramer(nc, nc)
	fr.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	fr.MaxHeaderListSize = settings.MaxHeaderListSize
	fr.SetReuseFrames()

	s := &Session{
		nc:       nc,
		fr:       fr,
		tiers:    tiers,
		settings: settings,
		metrics:  reg,
		dispatch: dispatch,
		streams:  make(map[uint32]*Stream),
		bodies:   make(map[uint32][]byte),
	}

	if err := fr.WriteSettings(
		http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: settings.MaxConcurrentStreams},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: settings.InitialWindowSize},
		http2.Setting{ID: http2.SettingEnablePush, Val: 0},
		http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: settings.MaxHeaderListSize},
	); err != nil {
		return nil, err
	}
	if err := fr.WriteWindowUpdate(0, settings.ConnectionWindow); err != nil {
		return nil, err
	}

	return s, nil
}

// Serve runs the frame read loop until the connection closes or a fatal
// protocol violation occurs.
func (s *Session) Serve() {
	defer s.nc.Close()

	for {
		f, err := s.fr.ReadFrame()
		if err != nil {
			return
		}
		if !s.onFrame(f) {
			return
		}
	}
}

func (s *Session) onFrame(f http2.Frame) bool {
	switch fr := f.(type) {
	case *http2.SettingsFrame:
		return s.onSettings(fr)
	case *http2.MetaHeadersFrame:
		return s.onHeaders(fr)
	case *http2.DataFrame:
		return s.onData(fr)
	case *http2.RSTStreamFrame:
		return s.onRstStream(fr)
	case *http2.PingFrame:
		return s.onPing(fr)
	case *http2.WindowUpdateFrame:
		return true
	case *http2.GoAwayFrame:
		return false
	default:
		return true
	}
}

func (s *Session) onSettings(fr *http2.SettingsFrame) bool {
	if fr.IsAck() {
		return true
	}
	s.mu.Lock()
	s.settingsCnt += fr.NumSettings()
	over := s.settingsCnt > settingsCap
	s.mu.Unlock()
	if over {
		s.sendGoaway(http2.ErrCodeEnhanceYourCalm)
		return false
	}
	return s.fr.WriteSettingsAck() == nil
}

func (s *Session) onPing(fr *http2.PingFrame) bool {
	if fr.IsAck() {
		return true
	}
	s.mu.Lock()
	s.ackCount++
	over := s.ackCount > outboundAckCap
	s.mu.Unlock()
	if over {
		s.sendGoaway(http2.ErrCodeEnhanceYourCalm)
		return false
	}
	return s.fr.WritePing(true, fr.Data) == nil
}

// onHeaders is on_begin_headers + on_header fused into one call: the
// Framer already coalesced any CONTINUATION frames into this
// MetaHeadersFrame (and rejected an unbounded block via
// MaxHeaderListSize), so there is one place to acquire the slot,
// validate :path, and attempt promotion.
func (s *Session) onHeaders(fr *http2.MetaHeadersFrame) bool {
	if !s.tiers.Acquire(tier.Normal) {
		return s.resetStream(fr.StreamID, http2.ErrCodeRefusedStream)
	}

	s.mu.Lock()
	if fr.StreamID > s.lastStreamID {
		s.lastStreamID = fr.StreamID
	}
	s.mu.Unlock()

	id, _ := uuid.GenerateUUID()
	st := &Stream{
		ID:        fr.StreamID,
		Tier:      tier.Normal,
		SlotHeld:  true,
		RequestID: id,
		started:   time.Now(),
	}

	for _, hf := range fr.Fields {
		switch hf.Name {
		case ":method":
			st.Method = hf.Value
		case ":path":
			st.Path = hf.Value
		case ":authority":
			st.Authority = hf.Value
		case ":scheme":
			st.Scheme = hf.Value
		case "content-length":
			// Best-effort; a malformed value just leaves ContentLength 0.
			var n int64
			for _, c := range hf.Value {
				if c < '0' || c > '9' {
					n = 0
					break
				}
				n = n*10 + int64(c-'0')
			}
			st.ContentLength = n
		}
	}

	if routing.ClassifyPath(st.Path) == routing.RouteError {
		s.tiers.Release(tier.Normal)
		return s.resetStream(fr.StreamID, http2.ErrCodeRefusedStream)
	}

	// HTTP/2's win over HTTP/1.1: path length (and any declared
	// content-length) is known before any body arrives, so promote now
	// instead of waiting for ingest.
	want := s.settings.Thresholds.ClassifyBySize(uint64(len(st.Path)) + uint64(st.ContentLength))
	if want != tier.Normal {
		if !s.tiers.Promote(tier.Normal, want) {
			if s.metrics != nil {
				s.metrics.SlotPromoFailure.Inc()
			}
			s.tiers.Release(tier.Normal)
			return s.resetStream(fr.StreamID, http2.ErrCodeRefusedStream)
		}
		st.Tier = want
	}

	s.mu.Lock()
	s.streams[fr.StreamID] = st
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.H2StreamsActive.Inc()
	}

	if fr.StreamEnded() {
		return s.finishStream(st)
	}
	return true
}

func (s *Session) onData(fr *http2.DataFrame) bool {
	s.mu.Lock()
	st, ok := s.streams[fr.StreamID]
	s.mu.Unlock()
	if !ok {
		return true
	}

	data := fr.Data()
	st.BodyReceived += int64(len(data))

	s.mu.Lock()
	s.bodies[fr.StreamID] = append(s.bodies[fr.StreamID], data...)
	s.mu.Unlock()

	if fr.StreamEnded() {
		return s.finishStream(st)
	}
	return true
}

func (s *Session) finishStream(st *Stream) bool {
	s.mu.Lock()
	body := s.bodies[st.ID]
	delete(s.bodies, st.ID)
	s.mu.Unlock()

	route := routing.ClassifyPath(st.Path)
	hex := ""
	switch route {
	case routing.RouteResult, routing.RouteBroadcast:
		hex = routing.ExtractHex(st.Path)
	case routing.RouteAcmeChallenge:
		hex, _ = routing.AcmeToken(st.Path)
	}

	status, hdr, respBody := s.dispatch(st, route, hex, body)

	// Response body ownership: the frames are written from a
	// stream-owned copy, never from the handler's own buffer (which may
	// be a shared preloaded page).
	owned := make([]byte, len(respBody))
	copy(owned, respBody)

	if err := s.writeResponse(st.ID, status, hdr, owned); err != nil {
		s.closeStream(st)
		return false
	}

	// Post-dispatch demotion, mirroring the HTTP/1.1 path.
	if st.Tier != tier.Normal {
		if s.tiers.Promote(st.Tier, tier.Normal) {
			st.Tier = tier.Normal
		}
	}
	s.closeStream(st)
	return true
}

func (s *Session) writeResponse(streamID uint32, status int, hdr map[string]string, body []byte) error {
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	enc.WriteField(hpack.HeaderField{Name: ":status", Value: statusString(status)})
	for k, v := range hdr {
		enc.WriteField(hpack.HeaderField{Name: strings.ToLower(k), Value: v})
	}

	if err := s.fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: buf.Bytes(),
		EndStream:     len(body) == 0,
		EndHeaders:    true,
	}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ResponseBytes.Add(float64(buf.Len() + len(body)))
	}
	if len(body) == 0 {
		return nil
	}
	return s.fr.WriteData(streamID, true, body)
}

func (s *Session) resetStream(streamID uint32, code http2.ErrCode) bool {
	ok := s.fr.WriteRSTStream(streamID, code) == nil
	if s.metrics != nil {
		s.metrics.H2RstStream.Inc()
	}
	return ok
}

// sendGoaway tells the peer this session is closing for cause, per the
// rapid-reset/settings/ping flood hardening bounds above.
func (s *Session) sendGoaway(code http2.ErrCode) {
	s.mu.Lock()
	last := s.lastStreamID
	s.mu.Unlock()
	s.fr.WriteGoAway(last, code, nil)
	if s.metrics != nil {
		s.metrics.H2Goaway.Inc()
	}
}

func (s *Session) onRstStream(fr *http2.RSTStreamFrame) bool {
	now := time.Now()
	s.mu.Lock()
	cutoff := now.Add(-rapidResetWindow)
	kept := s.rstTimes[:0]
	for _, t := range s.rstTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.rstTimes = kept
	over := len(s.rstTimes) > rapidResetLimit
	st, ok := s.streams[fr.StreamID]
	s.mu.Unlock()

	if ok {
		s.closeStream(st)
	}
	if over {
		s.sendGoaway(http2.ErrCodeEnhanceYourCalm)
	}
	return !over
}

func (s *Session) closeStream(st *Stream) {
	s.mu.Lock()
	delete(s.streams, st.ID)
	delete(s.bodies, st.ID)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.H2StreamsActive.Dec()
	}
	if st.SlotHeld {
		s.tiers.Release(st.Tier)
		st.SlotHeld = false
	}
}

func statusString(code int) string {
	switch code {
	case 200:
		return "200"
	case 400:
		return "400"
	case 403:
		return "403"
	case 404:
		return "404"
	case 413:
		return "413"
	case 429:
		return "429"
	case 503:
		return "503"
	default:
		return "500"
	}
}
