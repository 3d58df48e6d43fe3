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

package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	l, err := New(Config{}, 0)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.base.Level)
}

func TestNewVerboseSetsDebugLevel(t *testing.T) {
	l, err := New(Config{Verbose: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.base.Level)
}

func TestNewJSONFormatter(t *testing.T) {
	l, err := New(Config{JSON: true}, 0)
	require.NoError(t, err)
	_, ok := l.base.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNewWritesToFilePathInAdditionToStderr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	l, err := New(Config{FilePath: path}, 0)
	require.NoError(t, err)

	l.Infof("hello %s", "world")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
}

func TestNewInvalidFilePathErrors(t *testing.T) {
	_, err := New(Config{FilePath: filepath.Join(t.TempDir(), "nope", "worker.log")}, 0)
	assert.Error(t, err)
}

func TestEntryTagsWorkerIDOrSupervisor(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{JSON: true}, 3)
	require.NoError(t, err)
	l.base.SetOutput(&buf)
	l.Infof("tick")
	assert.Contains(t, buf.String(), `"worker_id":3`)

	var buf2 bytes.Buffer
	sup, err := New(Config{JSON: true}, -1)
	require.NoError(t, err)
	sup.base.SetOutput(&buf2)
	sup.Infof("tick")
	assert.Contains(t, buf2.String(), `"role":"supervisor"`)
}

func TestLogErrorCtxSkipsNilError(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{}, 0)
	require.NoError(t, err)
	l.base.SetOutput(&buf)

	l.LogErrorCtx("req-1", "broadcast", nil)
	assert.Empty(t, buf.String())
}

func TestLogErrorCtxIncludesRequestIDAndContext(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{JSON: true}, 0)
	require.NoError(t, err)
	l.base.SetOutput(&buf)

	l.LogErrorCtx("req-42", "rpc call failed", errors.New("connection reset"))
	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Contains(t, out, "rpc call failed: connection reset")
}

func TestSetLevelAdjustsFloor(t *testing.T) {
	l, err := New(Config{}, 0)
	require.NoError(t, err)

	l.SetLevel(DebugLevel)
	assert.Equal(t, logrus.DebugLevel, l.base.Level)

	l.SetLevel(WarnLevel)
	assert.Equal(t, logrus.WarnLevel, l.base.Level)
}
