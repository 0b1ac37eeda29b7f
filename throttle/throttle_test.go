// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package throttle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/clock"
	"github.com/areski/vumi/logger"
	"github.com/areski/vumi/throttle"
)

type fakeConnector struct {
	mu     sync.Mutex
	paused bool
}

func (c *fakeConnector) Pause()       { c.mu.Lock(); c.paused = true; c.mu.Unlock() }
func (c *fakeConnector) Resume()      { c.mu.Lock(); c.paused = false; c.mu.Unlock() }
func (c *fakeConnector) Paused() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.paused }

func TestRetryDrainsAfterThrottleDelayAndLiftsLatch(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	lg := logger.NewMock()
	conn := &fakeConnector{}
	th := throttle.New(throttle.Config{ThrottleDelay: time.Second}, clk, lg, conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go th.Run(ctx)

	var ran int32
	var mu sync.Mutex
	th.Retry(func(context.Context) error {
		mu.Lock()
		ran++
		mu.Unlock()
		return nil
	})

	assert.True(t, th.Throttled())
	assert.True(t, conn.Paused())

	clk.Advance(time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran == 1
	}, time.Second, time.Millisecond)

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return !th.Throttled() }, time.Second, time.Millisecond)
	assert.False(t, conn.Paused())
	assert.Contains(t, lg.Infos(), "No longer throttling outbound")
}

func TestAcquireBlocksBeyondTPSWindow(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	lg := logger.NewMock()
	th := throttle.New(throttle.Config{MTTPS: 1, ThrottleDelay: time.Second}, clk, lg, nil)

	require.NoError(t, th.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- th.Acquire(context.Background()) }()

	select {
	case <-done:
		t.Fatal("second Acquire should have blocked within the same window")
	case <-time.After(50 * time.Millisecond):
	}

	clk.Advance(time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after window rollover")
	}
}
