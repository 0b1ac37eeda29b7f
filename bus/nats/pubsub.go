// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package nats implements the bus.PubSub contract over a NATS core
// connection, adapted from the teacher's messaging/nats package: same
// Publish/Subscribe shape, one outbound subscription held in a single
// field, JSON payloads instead of protobuf since this gateway has no
// generated wire type to reuse.
package nats

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	broker "github.com/nats-io/nats.go"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/logger"
)

const (
	subjectUserMessages = "smpp.user_message"
	subjectEvents       = "smpp.event"
	subjectFailures     = "smpp.failure"
	subjectOutbound     = "smpp.outbound"

	pollInterval = 50 * time.Millisecond
	pollTimeout  = 200 * time.Millisecond
)

var _ bus.PubSub = (*pubsub)(nil)

type pubsub struct {
	conn   *broker.Conn
	logger logger.Logger
	sub    *broker.Subscription
	paused atomic.Bool
	stop   chan struct{}
}

// NewPubSub connects to the given NATS URL and returns a bus.PubSub.
func NewPubSub(url string, logger logger.Logger) (bus.PubSub, error) {
	conn, err := broker.Connect(url)
	if err != nil {
		return nil, err
	}
	return &pubsub{conn: conn, logger: logger, stop: make(chan struct{})}, nil
}

func (ps *pubsub) PublishUserMessage(m bus.UserMessage) error {
	return ps.publish(subjectUserMessages, m)
}

func (ps *pubsub) PublishEvent(e bus.Event) error {
	return ps.publish(subjectEvents, e)
}

func (ps *pubsub) PublishFailure(f bus.Failure) error {
	return ps.publish(subjectFailures, f)
}

func (ps *pubsub) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ps.conn.Publish(subject, data)
}

// ConsumeOutbound pulls outbound records synchronously so Pause can take
// effect immediately: a paused consumer simply stops calling NextMsg,
// which is how the Throttler (§4.F) and Transport Service (§4.G) gate
// bus consumption without owning any in-process queue.
func (ps *pubsub) ConsumeOutbound(handler bus.OutboundHandler) error {
	sub, err := ps.conn.SubscribeSync(subjectOutbound)
	if err != nil {
		return err
	}
	ps.sub = sub

	go func() {
		for {
			select {
			case <-ps.stop:
				return
			default:
			}
			if ps.Paused() {
				time.Sleep(pollInterval)
				continue
			}
			msg, err := sub.NextMsg(pollTimeout)
			if err != nil {
				if err != broker.ErrTimeout {
					ps.logger.Warn(fmt.Sprintf("outbound consume error: %s", err))
				}
				continue
			}
			var out bus.OutboundMessage
			if err := json.Unmarshal(msg.Data, &out); err != nil {
				ps.logger.Warn(fmt.Sprintf("failed to unmarshal outbound message: %s", err))
				continue
			}
			if err := handler(out); err != nil {
				ps.logger.Warn(fmt.Sprintf("outbound handler error: %s", err))
			}
		}
	}()
	return nil
}

func (ps *pubsub) Pause()        { ps.paused.Store(true) }
func (ps *pubsub) Resume()       { ps.paused.Store(false) }
func (ps *pubsub) Paused() bool  { return ps.paused.Load() }

func (ps *pubsub) Close() error {
	close(ps.stop)
	if ps.sub != nil {
		_ = ps.sub.Unsubscribe()
	}
	ps.conn.Close()
	return nil
}
