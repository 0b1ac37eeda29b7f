// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package throttle implements the Throttler (§4.F): a response-driven
// retry queue (ESME_RTHROTTLED / ESME_RMSGQFUL) and a TPS-driven admission
// gate, sharing one "throttled" latch that also pauses the external bus
// consumer while active.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/clock"
	"github.com/areski/vumi/internal/metrics"
	"github.com/areski/vumi/logger"
)

// Config configures one transport's Throttler (§6).
type Config struct {
	// MTTPS is the maximum submit_sm emissions permitted per 1-second
	// window. Zero means unlimited.
	MTTPS int
	// ThrottleDelay is the probe interval after a throttled response.
	ThrottleDelay time.Duration
}

// Throttler implements §4.F's two gates over a shared latch.
type Throttler struct {
	cfg       Config
	clock     clock.Clock
	logger    logger.Logger
	connector bus.Connector

	mu          sync.Mutex
	throttled   bool
	queue       []func(context.Context) error
	kick        chan struct{}
	windowStart time.Time
	windowCount int

	metrics *metrics.Metrics
}

// New returns a Throttler. connector may be nil in tests that do not care
// about pause/resume side effects.
func New(cfg Config, clk clock.Clock, lg logger.Logger, connector bus.Connector) *Throttler {
	return &Throttler{
		cfg:       cfg,
		clock:     clk,
		logger:    lg,
		connector: connector,
		kick:      make(chan struct{}, 1),
	}
}

// SetMetrics wires the ambient throttle-transition counter. A nil metrics
// is a no-op.
func (t *Throttler) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
}

func (t *Throttler) countTransition(transition string) {
	if t.metrics == nil {
		return
	}
	t.metrics.ThrottleEvents.With("transition", transition).Add(1)
}

// Run drives the response-driven probe loop. It must be running for Retry
// to ever drain its queue; it returns when ctx is cancelled.
func (t *Throttler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.kick:
			t.drain(ctx)
		}
	}
}

// Acquire blocks until the TPS-driven gate admits one more emission
// (§4.F). A zero MTTPS means unlimited: Acquire never blocks.
func (t *Throttler) Acquire(ctx context.Context) error {
	if t.cfg.MTTPS <= 0 {
		return nil
	}
	for {
		wait, admitted := t.tryAdmit()
		if admitted {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.clock.After(wait):
		}
	}
}

func (t *Throttler) tryAdmit() (wait time.Duration, admitted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.windowStart.IsZero() || now.Sub(t.windowStart) >= time.Second {
		t.windowStart = now
		t.windowCount = 0
	}
	if t.windowCount < t.cfg.MTTPS {
		t.windowCount++
		return 0, true
	}

	if !t.throttled {
		t.throttled = true
		t.pause()
		t.countTransition("set")
	}
	return time.Second - now.Sub(t.windowStart), false
}

// Retry places fn at the head of the response-driven retry queue, sets the
// throttle latch, and wakes the probe loop (§4.F).
func (t *Throttler) Retry(fn func(context.Context) error) {
	t.mu.Lock()
	t.queue = append([]func(context.Context) error{fn}, t.queue...)
	wasThrottled := t.throttled
	t.throttled = true
	t.mu.Unlock()

	if !wasThrottled {
		t.pause()
		t.countTransition("set")
	}
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Throttled reports whether the shared latch is currently set.
func (t *Throttler) Throttled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.throttled
}

func (t *Throttler) popHead() (func(context.Context) error, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, false
	}
	fn := t.queue[0]
	t.queue = t.queue[1:]
	return fn, true
}

// drain runs probe cycles: wait throttle_delay, then dispatch the head of
// the queue plus anything else already queued behind it (§4.F "drain the
// queue"). A dispatch here does not mean the SMSC has accepted the
// segment — submit_sm_resp is async (§4.E) — so a segment throttled again
// re-enters the queue later via HandleSubmitSMResp calling Retry, which
// re-kicks this loop. When a whole cycle passes with nothing queued, the
// latch lifts.
func (t *Throttler) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(t.cfg.ThrottleDelay):
		}

		fn, ok := t.popHead()
		if !ok {
			t.liftLatch()
			return
		}
		_ = fn(ctx)
		for {
			fn, ok := t.popHead()
			if !ok {
				break
			}
			_ = fn(ctx)
		}
	}
}

func (t *Throttler) liftLatch() {
	t.mu.Lock()
	t.throttled = false
	t.mu.Unlock()
	t.resume()
	t.countTransition("lift")
	t.logger.Info("No longer throttling outbound")
}

func (t *Throttler) pause() {
	if t.connector != nil {
		t.connector.Pause()
	}
}

func (t *Throttler) resume() {
	if t.connector != nil {
		t.connector.Resume()
	}
}
