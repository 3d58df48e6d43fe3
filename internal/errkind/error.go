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

package errkind

import "strings"

// Error is the gateway's error value: a stable Code, a message, and an
// optional chain of parent causes.
type Error struct {
	Code    Code
	Message string
	Parent  []error
}

func newError(code Code, message string, parents ...error) *Error {
	e := &Error{Code: code, Message: message}
	for _, p := range parents {
		if p != nil {
			e.Parent = append(e.Parent, p)
		}
	}
	return e
}

// New wraps an arbitrary message under an explicit code with no
// registered-message lookup, for call sites that already have context.
func New(code Code, message string, parents ...error) *Error {
	return newError(code, message, parents...)
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Parent) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Parent)+1)
	parts = append(parts, e.Message)
	for _, p := range e.Parent {
		parts = append(parts, p.Error())
	}
	return strings.Join(parts, ": ")
}

// HasParent reports whether this Error wraps at least one parent cause.
func (e *Error) HasParent() bool {
	return e != nil && len(e.Parent) > 0
}

// AddParentError appends a non-nil parent to the chain.
func (e *Error) AddParentError(p error) {
	if e == nil || p == nil {
		return
	}
	e.Parent = append(e.Parent, p)
}

// Is supports errors.Is by comparing Code values when target is also an
// *Error.
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Unwrap exposes the first parent for errors.Unwrap/errors.As chains.
func (e *Error) Unwrap() error {
	if e == nil || len(e.Parent) == 0 {
		return nil
	}
	return e.Parent[0]
}
