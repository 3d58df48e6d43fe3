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

package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rawtxgw/sendrawtx/internal/endpoints"
	"github.com/rawtxgw/sendrawtx/internal/h2session"
	"github.com/rawtxgw/sendrawtx/internal/httpconn"
	"github.com/rawtxgw/sendrawtx/internal/routing"
	"github.com/rawtxgw/sendrawtx/internal/rpcclient"
)

// dispatchHTTP1 and dispatchHTTP2 are the single route table both
// protocol paths share, per the "unified HTTP paths" design:
// slowloris, slot, and rate checks happen in the protocol-specific FSM,
// but everything downstream of "here is a parsed request" is identical.
func (w *Loop) dispatchHTTP1(req *httpconn.Request) httpconn.Response {
	w.metrics.Requests.WithLabelValues(req.Method, req.Route.String()).Inc()
	start := time.Now()
	defer func() { w.metrics.Latency.Observe(float64(time.Since(start).Milliseconds())) }()

	res := w.route(req.Route, req.Hex, req.Body)
	w.countResponse(req.Route, res.Status)
	return httpconn.Response{Status: res.Status, Header: res.Header, Body: res.Body}
}

func (w *Loop) dispatchHTTP2(st *h2session.Stream, route routing.Route, hex string, body []byte) (int, map[string]string, []byte) {
	w.metrics.Requests.WithLabelValues(st.Method, route.String()).Inc()
	start := time.Now()
	defer func() { w.metrics.Latency.Observe(float64(time.Since(start).Milliseconds())) }()

	res := w.route(route, hex, body)
	w.countResponse(route, res.Status)
	return res.Status, res.Header, res.Body
}

func (w *Loop) countResponse(route routing.Route, status int) {
	w.metrics.EndpointHits.WithLabelValues(route.String()).Inc()
	w.metrics.StatusCodes.WithLabelValues(itoa(status)).Inc()
	w.metrics.StatusClasses.WithLabelValues(statusClass(status)).Inc()
}

func (w *Loop) route(route routing.Route, hex string, body []byte) endpoints.Result {
	switch route {
	case routing.RouteHome:
		return w.handlers.Home()
	case routing.RouteHealth:
		return w.handlers.Health()
	case routing.RouteReady:
		return w.handlers.Ready()
	case routing.RouteAlive:
		return w.handlers.Alive()
	case routing.RouteVersion:
		return w.handlers.Version()
	case routing.RouteMetrics:
		return w.handlers.Metrics()
	case routing.RouteDocs:
		return w.handlers.StaticPage("docs")
	case routing.RouteStatus:
		return w.handlers.StaticPage("status")
	case routing.RouteLogos:
		return w.handlers.StaticPage("logos")
	case routing.RouteAcmeChallenge:
		return w.handlers.AcmeChallenge(hex)
	case routing.RouteResult:
		return w.handlers.Result()
	case routing.RouteBroadcast:
		return w.handleBroadcast(hex)
	default:
		return endpoints.Result{Status: 404, Header: map[string]string{"Cache-Control": "no-store"}}
	}
}

func (w *Loop) handleBroadcast(hex string) endpoints.Result {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res := w.rpc.Broadcast(ctx, w.cfg.Network.Chain, hex)
	w.metrics.RpcTotal.WithLabelValues(res.Chain, res.Outcome.String()).Inc()
	if res.Chain != "" {
		up := 0.0
		if res.Outcome == rpcclient.OutcomeOK {
			up = 1.0
		}
		w.metrics.RpcUp.WithLabelValues(res.Chain).Set(up)
	}

	type broadcastBody struct {
		Status string `json:"status"`
		TxID   string `json:"txid,omitempty"`
		Error  string `json:"error,omitempty"`
	}

	switch res.Outcome {
	case rpcclient.OutcomeOK:
		buf, _ := json.Marshal(broadcastBody{Status: "ok", TxID: res.TxID})
		return endpoints.Result{
			Status: 200,
			Header: map[string]string{"Content-Type": "application/json", "Cache-Control": "no-store"},
			Body:   buf,
		}
	default:
		status := statusForOutcome(res.Outcome.String())
		buf, _ := json.Marshal(broadcastBody{Status: res.Outcome.String(), Error: res.RawErr})
		hdr := map[string]string{"Content-Type": "application/json", "Cache-Control": "no-store"}
		if status == 429 {
			hdr["Retry-After"] = "1"
		} else if status == 503 {
			hdr["Retry-After"] = "5"
		}
		return endpoints.Result{Status: status, Header: hdr, Body: buf}
	}
}

func statusForOutcome(outcome string) int {
	switch outcome {
	case "node_rejected":
		return 422
	case "auth_failed", "connect_failed", "no_backend":
		return 503
	case "timeout":
		return 504
	case "cancelled":
		return 503
	default:
		return 502
	}
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
