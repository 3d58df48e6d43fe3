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

// Package errkind gives every failure path in the gateway a stable numeric
// code and message, with optional parent chaining, instead of ad-hoc
// fmt.Errorf strings. One Error may wrap a sequence of parents so a
// low-level I/O failure can surface all the way to an HTTP response kind
// without losing the original cause.
package errkind

import (
	"fmt"
	"strconv"
)

// Code is a stable numeric identifier for a failure kind, analogous to an
// HTTP status code but scoped to the gateway's own taxonomy.
type Code uint16

const (
	Unknown Code = 0

	// TransientInput: not enough bytes yet, keep the connection alive.
	TransientInput Code = 1000
	// MalformedRequest: HTTP syntax violation, bad Content-Length, non-hex path.
	MalformedRequest Code = 1001
	// Oversize: headers or body exceed max_buffer_size.
	Oversize Code = 1002
	// Admission: no tier slot available, even after promotion attempt.
	Admission Code = 1003
	// RateLimited: token bucket empty for this IP.
	RateLimited Code = 1004
	// Blocked: IP ACL blocklist match.
	Blocked Code = 1005
	// Timeout: read/write deadline or max connection age exceeded.
	Timeout Code = 1006
	// Slowloris: throughput below the configured floor.
	Slowloris Code = 1007
	// TlsHandshake: TLS handshake failed.
	TlsHandshake Code = 1008
	// FatalInit: cannot bind a socket, load a cert, or raise FD limits at boot.
	FatalInit Code = 1009

	// RpcConnect: could not open or complete a TCP connect to the backend node.
	RpcConnect Code = 1100
	// RpcAuth: backend rejected credentials (401/403), including after one cookie retry.
	RpcAuth Code = 1101
	// RpcTimeout: per-op or overall RPC deadline exceeded.
	RpcTimeout Code = 1102
	// RpcParse: malformed HTTP or JSON-RPC response from the backend.
	RpcParse Code = 1103
	// RpcNode: backend returned a non-null JSON-RPC "error".
	RpcNode Code = 1104
	// RpcMemory: response exceeded RPC_MAX_RESPONSE before completion.
	RpcMemory Code = 1105
	// RpcCookie: cookie file could not be read or re-read.
	RpcCookie Code = 1106
	// RpcCancelled: the request was cancelled before its callback fired.
	RpcCancelled Code = 1107
)

var messages = map[Code]string{
	Unknown:          "unknown error",
	TransientInput:   "incomplete input, awaiting more bytes",
	MalformedRequest: "malformed request",
	Oversize:         "request exceeds configured maximum size",
	Admission:        "no tier slot available",
	RateLimited:      "rate limit exceeded",
	Blocked:          "source address is blocked",
	Timeout:          "operation timed out",
	Slowloris:        "insufficient throughput, connection terminated",
	TlsHandshake:     "TLS handshake failed",
	FatalInit:        "fatal initialization error",
	RpcConnect:       "could not connect to RPC backend",
	RpcAuth:          "RPC backend rejected credentials",
	RpcTimeout:       "RPC call timed out",
	RpcParse:         "could not parse RPC response",
	RpcNode:          "RPC backend returned an error",
	RpcMemory:        "RPC response exceeded size limit",
	RpcCookie:        "could not read RPC cookie file",
	RpcCancelled:     "RPC request was cancelled",
}

// Message returns the registered human-readable string for c, or a
// generic fallback if c was never registered.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "unregistered error code " + strconv.Itoa(int(c))
}

func (c Code) String() string {
	return strconv.Itoa(int(c))
}

// Error builds a new Error value from c, optionally chaining parents.
func (c Code) Error(parents ...error) *Error {
	return newError(c, c.Message(), parents...)
}

// Errorf builds a new Error value from c with a formatted message,
// replacing the registered message text (the code is preserved).
func (c Code) Errorf(format string, args ...interface{}) *Error {
	return newError(c, fmt.Sprintf(format, args...))
}
