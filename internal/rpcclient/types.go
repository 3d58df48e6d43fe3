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

// Package rpcclient hands a raw transaction hex to one or more Bitcoin
// Core JSON-RPC backends and reports back an Outcome without blocking
// the caller's goroutine past ctx's deadline. "Async" here means "does
// not own the caller's goroutine" rather than a hand-rolled event loop:
// the idiomatic Go equivalent of a cooperative single-threaded reactor
// is a context-scoped *http.Client per chain plus the caller choosing
// whether to `go` the call, not a bespoke poller.
package rpcclient

import "time"

// Outcome classifies how a broadcast attempt ended, mirroring the
// RPC_* error kinds of errkind.Code.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNodeRejected
	OutcomeAuthFailed
	OutcomeTimeout
	OutcomeConnectFailed
	OutcomeParseFailed
	OutcomeCancelled
	OutcomeNoBackend
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNodeRejected:
		return "node_rejected"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeConnectFailed:
		return "connect_failed"
	case OutcomeParseFailed:
		return "parse_failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeNoBackend:
		return "no_backend"
	default:
		return "unknown"
	}
}

// Result is the final answer for one broadcast call.
type Result struct {
	Outcome Outcome
	Chain   string
	TxID    string
	RawErr  string
	Elapsed time.Duration
}

// jsonrpcRequest mirrors the wire shape Bitcoin Core expects, the same
// `{"jsonrpc":"1.0","id":...,"method":...,"params":[...]}` envelope used
// for getblockchaininfo/getblockheader calls against these nodes.
type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	Result interface{}   `json:"result"`
	Error  *jsonrpcError `json:"error"`
	ID     string        `json:"id"`
}

// rpcID is the fixed id sendrawtx stamps on every call it issues; nothing
// downstream correlates requests across connections so a constant is fine.
const rpcID = "sendrawtx"
