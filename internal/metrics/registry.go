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

// Package metrics is the per-worker metrics registry, built on
// prometheus/client_golang instead of a hand-rolled exposition writer —
// the registry's text-exposition format is exactly that library's job.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is one worker's isolated metrics set. Workers never share a
// registry — each owns its own prometheus.Registry and is scraped
// independently (or fanned-in by an external aggregator), matching the
// no-shared-state model each worker process follows.
type Registry struct {
	reg *prometheus.Registry

	Requests         *prometheus.CounterVec // by method, route
	AcceptsRejects   *prometheus.CounterVec // by decision and reason: rate, slot, blocked
	ActiveConns      prometheus.Gauge
	Latency          prometheus.Histogram
	StatusCodes      *prometheus.CounterVec // by exact code
	StatusClasses    *prometheus.CounterVec // by class: 2xx, 3xx, 4xx, 5xx
	ErrorKinds       *prometheus.CounterVec // timeout, parse, oversize, admission
	SlotUsed         *prometheus.GaugeVec   // by tier
	SlotCap          *prometheus.GaugeVec   // by tier
	SlotPromoFailure prometheus.Counter
	RateLimiterSize  prometheus.Gauge
	EndpointHits     *prometheus.CounterVec
	ResponseBytes    prometheus.Counter
	SlowlorisKills   prometheus.Counter
	KeepAliveReuses  prometheus.Counter
	TLSHandshakes    *prometheus.CounterVec // by tls version
	TLSErrors        prometheus.Counter
	H2StreamsTotal   prometheus.Counter
	H2StreamsActive  prometheus.Gauge
	H2RstStream      prometheus.Counter
	H2Goaway         prometheus.Counter
	RpcTotal         *prometheus.CounterVec // by chain, outcome
	RpcUp            *prometheus.GaugeVec   // by chain
}

// New builds a fresh, independently-registered Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_requests_total",
			Help: "Total requests received, by method and route.",
		}, []string{"method", "route"}),
		AcceptsRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_admission_total",
			Help: "Accept/reject decisions at accept time, by reason.",
		}, []string{"decision", "reason"}),
		ActiveConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sendrawtx_active_connections",
			Help: "Currently open connections on this worker.",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sendrawtx_request_duration_ms",
			Help:    "Request handling latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		StatusCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_responses_by_code_total",
			Help: "Responses by exact status code.",
		}, []string{"code"}),
		StatusClasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_responses_by_class_total",
			Help: "Responses by status class.",
		}, []string{"class"}),
		ErrorKinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_errors_total",
			Help: "Errors by kind: timeout, parse, oversize, admission.",
		}, []string{"kind"}),
		SlotUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendrawtx_slot_used",
			Help: "Currently used tier slots.",
		}, []string{"tier"}),
		SlotCap: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendrawtx_slot_capacity",
			Help: "Configured tier slot capacity.",
		}, []string{"tier"}),
		SlotPromoFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_slot_promotion_failures_total",
			Help: "Tier promotion attempts that found no free slot upstream.",
		}),
		RateLimiterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sendrawtx_rate_limiter_entries",
			Help: "Live entries in the per-IP token bucket table.",
		}),
		EndpointHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_endpoint_hits_total",
			Help: "Requests per named endpoint.",
		}, []string{"endpoint"}),
		ResponseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_response_bytes_total",
			Help: "Total response bytes written.",
		}),
		SlowlorisKills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_slowloris_kills_total",
			Help: "Connections closed for insufficient throughput.",
		}),
		KeepAliveReuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_keepalive_reuses_total",
			Help: "HTTP/1.1 connections that served more than one request.",
		}),
		TLSHandshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_tls_handshakes_total",
			Help: "Completed TLS handshakes by negotiated version.",
		}, []string{"version"}),
		TLSErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_tls_errors_total",
			Help: "Failed TLS handshakes.",
		}),
		H2StreamsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_h2_streams_total",
			Help: "Total HTTP/2 streams opened.",
		}),
		H2StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sendrawtx_h2_streams_active",
			Help: "Currently open HTTP/2 streams.",
		}),
		H2RstStream: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_h2_rst_stream_total",
			Help: "RST_STREAM frames sent.",
		}),
		H2Goaway: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendrawtx_h2_goaway_total",
			Help: "GOAWAY frames sent.",
		}),
		RpcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendrawtx_rpc_total",
			Help: "RPC calls by backend chain and outcome.",
		}, []string{"chain", "outcome"}),
		RpcUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendrawtx_rpc_up",
			Help: "1 if the last RPC call to this chain's backend succeeded.",
		}, []string{"chain"}),
	}

	reg.MustRegister(
		r.Requests, r.AcceptsRejects, r.ActiveConns, r.Latency, r.StatusCodes,
		r.StatusClasses, r.ErrorKinds, r.SlotUsed, r.SlotCap, r.SlotPromoFailure,
		r.RateLimiterSize, r.EndpointHits, r.ResponseBytes, r.SlowlorisKills,
		r.KeepAliveReuses, r.TLSHandshakes, r.TLSErrors, r.H2StreamsTotal,
		r.H2StreamsActive, r.H2RstStream, r.H2Goaway, r.RpcTotal, r.RpcUp,
	)

	return r
}

// Handler returns the Prometheus text-exposition v0.0.4 handler to mount
// at GET /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
