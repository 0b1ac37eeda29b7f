// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bus pins the external collaborator this gateway bridges to: the
// internal message bus. Per §1/§6 of the specification the bus itself
// (queuing, delivery guarantees, worker supervision) is out of scope; this
// package only fixes the interface the Transport Service (§4.G) is built
// against, plus one concrete NATS-backed implementation in bus/nats,
// grounded on the teacher's messaging.PubSub contract.
package bus

// OutboundMessage is a logical user message the bus hands to the MT
// Processor (§3).
type OutboundMessage struct {
	MessageID     string `json:"message_id"`
	ToAddr        string `json:"to_addr"`
	FromAddr      string `json:"from_addr"`
	Content       string `json:"content"`
	TransportType string `json:"transport_type"`
	SessionEvent  string `json:"session_event,omitempty"`
}

// UserMessage is an inbound MO record published to the bus (§6).
type UserMessage struct {
	Content       string `json:"content"`
	FromAddr      string `json:"from_addr"`
	ToAddr        string `json:"to_addr"`
	TransportType string `json:"transport_type"`
	TransportName string `json:"transport_name"`
	SessionEvent  string `json:"session_event,omitempty"`
}

// EventType enumerates the three event kinds published to the bus: ack and
// nack from the MT Processor, delivery_report from the MO Processor.
type EventType string

// Event kinds, per §3 and §8 invariants.
const (
	EventAck             EventType = "ack"
	EventNack            EventType = "nack"
	EventDeliveryReport  EventType = "delivery_report"
)

// Event reports the outcome of an outbound submission or an inbound
// delivery report (§4.E, §4.D).
type Event struct {
	EventType      EventType `json:"event_type"`
	TransportName  string    `json:"transport_name"`
	UserMessageID  string    `json:"user_message_id"`
	SentMessageID  string    `json:"sent_message_id,omitempty"`
	NackReason     string    `json:"nack_reason,omitempty"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
}

// Failure carries the original payload of a terminally failed submission
// (§4.E, §7).
type Failure struct {
	TransportName string          `json:"transport_name"`
	Reason        string          `json:"reason"`
	Message       OutboundMessage `json:"message"`
}

// Connector is the pause/resume contract the Throttler (§4.F) and the
// Transport Service (§4.G) manipulate. The engine requires that a paused
// consumer yields no messages and that Resume is idempotent.
type Connector interface {
	Pause()
	Resume()
	Paused() bool
}

// OutboundHandler processes one OutboundMessage pulled off the bus.
type OutboundHandler func(OutboundMessage) error

// Publisher is the downstream publish side of the bus (§6).
type Publisher interface {
	PublishUserMessage(UserMessage) error
	PublishEvent(Event) error
	PublishFailure(Failure) error
}

// Subscriber is the upstream consume side of the bus, gated by Connector.
type Subscriber interface {
	Connector
	// ConsumeOutbound registers handler for every outbound record.
	// Handler is not invoked while the consumer is paused.
	ConsumeOutbound(handler OutboundHandler) error
	Close() error
}

// PubSub aggregates both directions of the bus connection.
type PubSub interface {
	Publisher
	Subscriber
}
