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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeErrorUsesRegisteredMessage(t *testing.T) {
	e := RpcTimeout.Error()
	assert.Equal(t, RpcTimeout, e.Code)
	assert.Equal(t, "RPC call timed out", e.Error())
	assert.False(t, e.HasParent())
}

func TestCodeErrorfOverridesMessage(t *testing.T) {
	e := RpcNode.Errorf("backend rejected tx: %s", "bad-txid")
	assert.Equal(t, RpcNode, e.Code)
	assert.Equal(t, "backend rejected tx: bad-txid", e.Error())
}

func TestMessageFallsBackForUnregisteredCode(t *testing.T) {
	assert.Equal(t, "unregistered error code 9999", Code(9999).Message())
}

func TestErrorJoinsParentChain(t *testing.T) {
	root := errors.New("connection reset")
	e := RpcConnect.Error(root)

	assert.True(t, e.HasParent())
	assert.Equal(t, "could not connect to RPC backend: connection reset", e.Error())
}

func TestAddParentErrorAppendsAndIgnoresNil(t *testing.T) {
	e := RpcConnect.Error()
	e.AddParentError(nil)
	assert.False(t, e.HasParent())

	e.AddParentError(errors.New("dial timeout"))
	assert.True(t, e.HasParent())
	assert.Equal(t, "could not connect to RPC backend: dial timeout", e.Error())
}

func TestIsComparesByCode(t *testing.T) {
	a := RpcTimeout.Error()
	b := RpcTimeout.Errorf("different message")
	c := RpcConnect.Error()

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
	assert.False(t, a.Is(errors.New("plain error")))
}

func TestUnwrapReturnsFirstParent(t *testing.T) {
	root := errors.New("root cause")
	e := RpcConnect.Error(root)
	assert.Equal(t, root, errors.Unwrap(e))

	leaf := RpcConnect.Error()
	assert.Nil(t, errors.Unwrap(leaf))
}

func TestNilErrorMethodsAreSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, "", e.Error())
	assert.False(t, e.HasParent())
	assert.Nil(t, e.Unwrap())
	assert.True(t, e.Is(nil))
}
