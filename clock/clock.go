// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package clock provides a Clock abstraction so the session, throttler
// and transport-reconnect loops can be tested without real sleeps, per
// the "Global mutable state" design note: the source's process-wide
// clock is passed explicitly into constructors here rather than read
// from a package global.
package clock

import "time"

// Clock abstracts time so timers and deadlines can be faked in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker so it can be faked.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by the standard library.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time  { return time.After(d) }
func (realClock) NewTicker(d time.Duration) Ticker        { return &realTicker{t: time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
