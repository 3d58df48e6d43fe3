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

// Package logging wraps logrus with worker-scoped conventions: logging
// identity is never a process global, it is owned by one worker (or the
// supervisor) and passed down explicitly.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus' severity levels; Logger.SetLevel takes one to
// adjust the floor at runtime.
type Level uint32

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

func (l Level) toLogrus() logrus.Level {
	switch l {
	case PanicLevel:
		return logrus.PanicLevel
	case FatalLevel:
		return logrus.FatalLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Config selects the sinks and the floor level for one Logger instance.
type Config struct {
	JSON     bool
	Verbose  bool
	FilePath string // optional second sink, as in original_source/include/log.h
}

// Logger is a single worker's (or the supervisor's) logging identity.
type Logger struct {
	base     *logrus.Logger
	workerID int
}

// New builds a Logger for one worker id (-1 for the supervisor) per cfg.
func New(cfg Config, workerID int) (*Logger, error) {
	base := logrus.New()
	base.SetOutput(os.Stderr)

	if cfg.JSON {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Verbose {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}

	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		base.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	return &Logger{base: base, workerID: workerID}, nil
}

func (l *Logger) entry() *logrus.Entry {
	if l.workerID < 0 {
		return logrus.NewEntry(l.base).WithField("role", "supervisor")
	}
	return logrus.NewEntry(l.base).WithField("worker_id", l.workerID)
}

// With returns an entry carrying one extra structured field, typically
// request_id.
func (l *Logger) With(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry().Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry().Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry().Errorf(format, args...) }

// LogErrorCtx logs err (if non-nil) at Error level tagged with a request
// id, so a failure can be traced back to the request that caused it.
func (l *Logger) LogErrorCtx(requestID string, context string, err error) {
	if err == nil {
		return
	}
	l.entry().WithField("request_id", requestID).Errorf("%s: %v", context, err)
}

// SetLevel adjusts the floor at runtime. A reload does not call it: new
// worker generations pick up [logging] verbose through New.
func (l *Logger) SetLevel(lvl Level) {
	l.base.SetLevel(lvl.toLogrus())
}
