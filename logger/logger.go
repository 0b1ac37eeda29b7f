// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/kit/log"
)

// Logger specifies logging API used across every gateway component.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(string)
	// Info logs a message at info level.
	Info(string)
	// Warn logs a message at warning level.
	Warn(string)
	// Error logs a message at error level.
	Error(string)
	// Fatal logs a message at error level and terminates the process.
	Fatal(string)
}

var _ Logger = (*logger)(nil)

type logger struct {
	kitLogger log.Logger
	level     Level
}

// New returns a JSON logger that writes to out, filtering out messages
// below the named level ("debug", "info", "warn", "error").
func New(out io.Writer, levelText string) (Logger, error) {
	level, err := levelFromString(levelText)
	if err != nil {
		return nil, err
	}
	l := log.NewJSONLogger(log.NewSyncWriter(out))
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	return &logger{kitLogger: l, level: level}, nil
}

func (l *logger) Debug(msg string) {
	l.log(Debug, msg)
}

func (l *logger) Info(msg string) {
	l.log(Info, msg)
}

func (l *logger) Warn(msg string) {
	l.log(Warn, msg)
}

func (l *logger) Error(msg string) {
	l.log(Error, msg)
}

func (l *logger) Fatal(msg string) {
	l.log(Error, msg)
	os.Exit(1)
}

func (l *logger) log(lvl Level, msg string) {
	if lvl > l.level {
		return
	}
	if err := l.kitLogger.Log("level", lvl.String(), "message", msg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to log message: %s\n", err)
	}
}
