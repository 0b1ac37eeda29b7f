// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mt implements the MT Processor (§4.E): validates and encodes an
// outbound message, segments it per the configured strategy, emits it
// through the Throttler and the Protocol Engine, and aggregates the
// resulting submit_sm_resp PDUs back into one ack/nack/failure record.
package mt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/internal/metrics"
	"github.com/areski/vumi/logger"
	"github.com/areski/vumi/stash"
)

// SMPP status codes §4.E and §4.F care about directly; every other
// non-zero status is a terminal submit failure.
const (
	statusOK           = 0
	statusMsgQueueFull = 0x00000014
	statusThrottled    = 0x00000058
)

// Sender is the slice of smpp.Session the MT Processor needs: allocate a
// sequence number and write a PDU to the wire. submit_sm_resp correlation
// does not go through Sender — it is dispatched to HandleSubmitSMResp via
// smpp.Session.SetSubmitSMRespHandler and resolved through the Stash, so
// that it survives a session restart (§3, §9 design note on global state).
type Sender interface {
	NextSeq() uint32
	Send(p pdu.Body) error
}

// Gate is the slice of throttle.Throttler the MT Processor drives: the
// TPS-driven admission check, and the response-driven retry queue (§4.F).
type Gate interface {
	Acquire(ctx context.Context) error
	Retry(fn func(ctx context.Context) error)
}

type pendingMessage struct {
	outbound      bus.OutboundMessage
	remaining     int
	failed        bool
	failureReason string
	remoteIDs     []string
}

type inFlightSegment struct {
	messageID string
	pdu       pdu.Body
}

// Processor is bound to one transport's MT configuration.
type Processor struct {
	transportName string
	cfg           Config
	sender        Sender
	gate          Gate
	stash         stash.Stash
	bus           bus.Publisher
	logger        logger.Logger

	mu       sync.Mutex
	pending  map[string]*pendingMessage
	inFlight map[uint32]inFlightSegment

	metrics *metrics.Metrics
}

// NewProcessor returns a Processor bound to one transport, sender and gate.
func NewProcessor(transportName string, cfg Config, sender Sender, gate Gate, st stash.Stash, pub bus.Publisher, lg logger.Logger) *Processor {
	return &Processor{
		transportName: transportName,
		cfg:           cfg,
		sender:        sender,
		gate:          gate,
		stash:         st,
		bus:           pub,
		logger:        lg,
		pending:       make(map[string]*pendingMessage),
		inFlight:      make(map[uint32]inFlightSegment),
	}
}

// SetMetrics wires the ambient submit-outcome counter. A nil metrics is a
// no-op.
func (pr *Processor) SetMetrics(m *metrics.Metrics) {
	pr.metrics = m
}

func (pr *Processor) countSubmit(outcome string) {
	if pr.metrics == nil {
		return
	}
	pr.metrics.Submits.With("outcome", outcome).Add(1)
}

// Submit validates, encodes, segments and begins emission of one outbound
// message. Segments are dispatched in order on the calling goroutine, so
// Submit returns once every segment has passed the gate and been handed
// to the sender; response aggregation proceeds asynchronously via
// HandleSubmitSMResp.
func (pr *Processor) Submit(ctx context.Context, msg bus.OutboundMessage) error {
	if reason := validateAddresses(msg.ToAddr, msg.FromAddr); reason != "" {
		return pr.nack(msg.MessageID, reason)
	}

	encoded, err := Encode(pr.cfg.SubmitSMEncoding, msg.Content)
	if err != nil {
		return pr.nack(msg.MessageID, err.Error())
	}

	pdus, err := buildSubmitSMs(pr.cfg, msg.ToAddr, msg.FromAddr, encoded)
	if err != nil {
		return pr.nack(msg.MessageID, err.Error())
	}
	if pr.cfg.TransportType == "ussd" {
		for _, p := range pdus {
			applyUSSD(p, msg.SessionEvent)
		}
	}

	if err := pr.stash.CacheMessage(ctx, msg); err != nil {
		pr.logger.Error(fmt.Sprintf("failed to cache outbound message %s: %s", msg.MessageID, err))
	}

	pr.mu.Lock()
	pr.pending[msg.MessageID] = &pendingMessage{outbound: msg, remaining: len(pdus)}
	pr.mu.Unlock()

	for _, p := range pdus {
		_ = pr.dispatchSegment(ctx, msg.MessageID, p)
	}
	return nil
}

// dispatchSegment is the single emission path for one segment, used both
// for first-attempt sends and for response-driven retries (§4.E, §4.F).
// Every call allocates a fresh sequence number: a retried segment always
// carries a strictly greater seq than its predecessor (§8 scenario 3).
func (pr *Processor) dispatchSegment(ctx context.Context, messageID string, p pdu.Body) error {
	if err := pr.gate.Acquire(ctx); err != nil {
		return err
	}

	seq := pr.sender.NextSeq()
	p.Header().Seq = seq

	pr.mu.Lock()
	pr.inFlight[seq] = inFlightSegment{messageID: messageID, pdu: p}
	pr.mu.Unlock()

	// The Stash entry for this seq exists before the PDU reaches the
	// wire (§3, §8 invariant).
	if err := pr.stash.SetSequenceNumberMessageID(ctx, seq, messageID); err != nil {
		pr.logger.Error(fmt.Sprintf("failed to stash seq %d for message %s: %s", seq, messageID, err))
	}

	if err := pr.sender.Send(p); err != nil {
		pr.failSegment(ctx, messageID, err.Error())
	}
	return nil
}

// HandleSubmitSMResp is registered via smpp.Session.SetSubmitSMRespHandler
// and implements §4.E's response-aggregation rules.
func (pr *Processor) HandleSubmitSMResp(ctx context.Context, resp pdu.Body) {
	seq := resp.Header().Seq

	messageID, ok, err := pr.stash.GetSequenceNumberMessageID(ctx, seq)
	if err != nil {
		pr.logger.Error(fmt.Sprintf("stash lookup failed for submit_sm_resp seq %d: %s", seq, err))
		return
	}

	pr.mu.Lock()
	segment, hasSegment := pr.inFlight[seq]
	delete(pr.inFlight, seq)
	pr.mu.Unlock()

	if !ok {
		pr.logger.Warn(fmt.Sprintf(
			"Failed to retrieve message id for deliver_sm_resp. ack/nack from %s discarded.",
			pr.transportName,
		))
		return
	}

	status := uint32(resp.Header().Status)

	if status == statusThrottled || status == statusMsgQueueFull {
		if !hasSegment {
			pr.logger.Error(fmt.Sprintf("cannot retry segment for message %s: original pdu no longer tracked", messageID))
			return
		}
		pr.gate.Retry(func(retryCtx context.Context) error {
			return pr.dispatchSegment(retryCtx, messageID, segment.pdu)
		})
		return
	}

	if status == statusOK {
		remoteID := fieldString(resp.Fields(), pdufield.MessageID)
		if err := pr.stash.SetRemoteMessageID(ctx, messageID, remoteID); err != nil {
			pr.logger.Error(fmt.Sprintf("failed to stash remote id %s for message %s: %s", remoteID, messageID, err))
		}
		pr.resolveSegment(ctx, messageID, remoteID, "")
		return
	}

	reason := fmt.Sprintf("SMSC status %d", status)
	pr.resolveSegment(ctx, messageID, "", reason)
}

func (pr *Processor) resolveSegment(ctx context.Context, messageID, remoteID, failureReason string) {
	pr.mu.Lock()
	pm, exists := pr.pending[messageID]
	if !exists {
		pr.mu.Unlock()
		return
	}
	if failureReason != "" {
		pm.failed = true
		pm.failureReason = failureReason
	} else {
		pm.remoteIDs = append(pm.remoteIDs, remoteID)
	}
	pm.remaining--
	done := pm.remaining <= 0
	if done {
		delete(pr.pending, messageID)
	}
	pr.mu.Unlock()

	if done {
		pr.finalize(pm)
	}
}

// failSegment handles a local send failure (e.g. the session closed
// before the PDU reached the wire) the same as a terminal SMSC failure:
// the segment resolves, but with no remote_id.
func (pr *Processor) failSegment(ctx context.Context, messageID, reason string) {
	pr.resolveSegment(ctx, messageID, "", reason)
}

func (pr *Processor) finalize(pm *pendingMessage) {
	if pm.failed {
		pr.countSubmit("nack")
		_ = pr.bus.PublishEvent(bus.Event{
			EventType:     bus.EventNack,
			TransportName: pr.transportName,
			UserMessageID: pm.outbound.MessageID,
			NackReason:    pm.failureReason,
		})
		_ = pr.bus.PublishFailure(bus.Failure{
			TransportName: pr.transportName,
			Reason:        pm.failureReason,
			Message:       pm.outbound,
		})
		return
	}
	pr.countSubmit("ack")
	_ = pr.bus.PublishEvent(bus.Event{
		EventType:     bus.EventAck,
		TransportName: pr.transportName,
		UserMessageID: pm.outbound.MessageID,
		SentMessageID: strings.Join(pm.remoteIDs, ","),
	})
}

func (pr *Processor) nack(messageID, reason string) error {
	pr.countSubmit("nack")
	return pr.bus.PublishEvent(bus.Event{
		EventType:     bus.EventNack,
		TransportName: pr.transportName,
		UserMessageID: messageID,
		NackReason:    reason,
	})
}

func fieldString(f pdufield.Map, name pdufield.Name) string {
	d, ok := f[name]
	if !ok {
		return ""
	}
	return d.String()
}
