// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package smpp implements the SMPP Protocol Engine (§4.C): the bind
// lifecycle, per-session sequence-number allocation, request/response
// correlation, enquire_link keepalive and the inbound dispatch loop that
// hands deliver_sm PDUs to the MO pipeline. The wire codec itself —
// PDU framing, field layout, serialization — is the external
// github.com/fiorix/go-smpp/smpp/pdu package; this engine never
// reimplements it.
package smpp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"

	"github.com/areski/vumi/clock"
	"github.com/areski/vumi/errors"
	"github.com/areski/vumi/internal/metrics"
	"github.com/areski/vumi/logger"
)

// State is one of the session states enumerated in §3.
type State int

// Session states. Only BoundTX/BoundRX/BoundTRX permit data PDUs.
const (
	StateDisconnected State = iota
	StateConnected
	StateBoundTX
	StateBoundRX
	StateBoundTRX
	StateUnbinding
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateBoundTX:
		return "bound_tx"
	case StateBoundRX:
		return "bound_rx"
	case StateBoundTRX:
		return "bound_trx"
	case StateUnbinding:
		return "unbinding"
	default:
		return "unknown"
	}
}

// BindMode selects which bind PDU is sent and, transitively, which PDUs
// are legal on the session (§3).
type BindMode int

// Bind modes.
const (
	BindTransmitter BindMode = iota
	BindReceiver
	BindTransceiver
)

// ESME_ROK, the only non-error command_status (§3).
const StatusOK = 0

// Sentinel errors surfaced to callers, per §7.
var (
	ErrBindRejected     = errors.New("bind rejected by peer")
	ErrSessionClosed    = errors.New("session closed")
	ErrRequestTimeout   = errors.New("request timed out")
	ErrEnquireLinkTimeout = errors.New("enquire_link timed out")
)

// DeliverSMHandler processes one inbound deliver_sm PDU and returns the
// command_status to reply with. Per §4.C the reply is emitted
// unconditionally; dispatch failures are logged by the handler, not
// surfaced as a nack at the SMPP layer.
type DeliverSMHandler func(ctx context.Context, p pdu.Body) uint32

// SubmitSMRespHandler receives every inbound submit_sm_resp. Unlike bind/
// unbind/enquire_link responses, submit_sm_resp correlation is owned by
// the Stash (§3, §4.E), not by SendRequest's in-memory pending map, so
// that it survives a session restart; this handler is the dispatch hook
// the MT Processor registers to consume it.
type SubmitSMRespHandler func(ctx context.Context, resp pdu.Body)

// Config configures one SMPP session (§4.C, §6).
type Config struct {
	SystemID            string
	Password            string
	SystemType          string
	InterfaceVersion    string
	AddressRange        string
	BindMode            BindMode
	EnquireLinkInterval time.Duration
	ResponseWindow      time.Duration
	BindTimeout         time.Duration
	UnbindTimeout       time.Duration
}

// DefaultConfig returns the §4.C defaults: system_type="", interface_
// version="34", address_range="".
func DefaultConfig() Config {
	return Config{
		InterfaceVersion:    "34",
		EnquireLinkInterval: 30 * time.Second,
		ResponseWindow:      5 * time.Second,
		BindTimeout:         10 * time.Second,
		UnbindTimeout:       5 * time.Second,
	}
}

type pendingRequest struct {
	respCh chan pdu.Body
}

// Session is one TCP connection to one SMSC (§3).
type Session struct {
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	cfg    Config
	clock  clock.Clock
	logger logger.Logger

	onDeliverSM    DeliverSMHandler
	onSubmitSMResp SubmitSMRespHandler
	metrics        *metrics.Metrics

	stateMu sync.RWMutex
	state   State

	nextSeq uint32

	pendingMu sync.Mutex
	pending   map[uint32]*pendingRequest

	writeMu sync.Mutex

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New wraps an already-connected TCP socket in a Session. Bind must be
// called before Run to reach a BOUND_* state.
func New(conn net.Conn, cfg Config, clk clock.Clock, lg logger.Logger, onDeliverSM DeliverSMHandler) *Session {
	return &Session{
		conn:        conn,
		r:           bufio.NewReader(conn),
		w:           bufio.NewWriter(conn),
		cfg:         cfg,
		clock:       clk,
		logger:      lg,
		onDeliverSM: onDeliverSM,
		state:       StateConnected,
		pending:     make(map[uint32]*pendingRequest),
		closeCh:     make(chan struct{}),
	}
}

// SetSubmitSMRespHandler registers the callback invoked for every inbound
// submit_sm_resp, bypassing the SendRequest correlation path (§4.E). Must
// be called before Run.
func (s *Session) SetSubmitSMRespHandler(h SubmitSMRespHandler) {
	s.onSubmitSMResp = h
}

// SetMetrics wires the ambient bind-outcome counter. A nil metrics is a
// no-op, so tests that do not care about it can leave it unset.
func (s *Session) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// State returns the current session state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// NextSeq allocates the next sequence number for an outbound request.
// Sequence numbers are monotonically increasing per session starting at
// 1, wrapping past 2^31-1 back to 1; zero is reserved (§3, §4.C).
func (s *Session) NextSeq() uint32 {
	for {
		n := atomic.AddUint32(&s.nextSeq, 1)
		if n > 0x7FFFFFFF {
			// Reset and retry: the field wraps to 1, never to 0.
			if atomic.CompareAndSwapUint32(&s.nextSeq, n, 1) {
				return 1
			}
			continue
		}
		return n
	}
}

// Send writes p to the wire without expecting a correlated response.
// Used for response PDUs we emit (e.g. deliver_sm_resp, enquire_link_resp)
// and for submit_sm, whose response reaches the SubmitSMRespHandler.
func (s *Session) Send(p pdu.Body) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := p.SerializeTo(s.w); err != nil {
		return err
	}
	return s.w.Flush()
}

// SendRequest allocates (if seq is unset) a sequence number, writes p,
// and blocks until a response with the same seq arrives or ctx/timeout
// expires. The caller is responsible for setting p.Header().Seq before
// calling SendRequest if a specific value is required.
func (s *Session) SendRequest(ctx context.Context, p pdu.Body, timeout time.Duration) (pdu.Body, error) {
	seq := p.Header().Seq
	if seq == 0 {
		seq = s.NextSeq()
		p.Header().Seq = seq
	}

	pend := &pendingRequest{respCh: make(chan pdu.Body, 1)}
	s.pendingMu.Lock()
	s.pending[seq] = pend
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, seq)
		s.pendingMu.Unlock()
	}()

	if err := s.Send(p); err != nil {
		return nil, err
	}

	select {
	case resp := <-pend.respCh:
		return resp, nil
	case <-s.clock.After(timeout):
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closeCh:
		return nil, ErrSessionClosed
	}
}

// resolve dispatches an inbound response PDU to its pending request, if
// any. Responses may arrive out of order; this makes that safe (§4.C,
// §5 ordering guarantees, §8 response-order independence).
func (s *Session) resolve(seq uint32, resp pdu.Body) bool {
	s.pendingMu.Lock()
	pend, ok := s.pending[seq]
	s.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case pend.respCh <- resp:
	default:
	}
	return true
}

// Close tears down the TCP connection. Every SendRequest blocked
// waiting on a pending correlation observes closeCh and returns
// ErrSessionClosed, per §4.C and §5 cancellation semantics. Safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

// Run drives the inbound read loop until the connection fails or Close
// is called. It is the "reader task" of §5's concurrency model; writes
// happen inline from SendRequest/Send, reflecting that every suspension
// point (wire I/O) is independently cancellable via Close.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closeCh:
			return ErrSessionClosed
		default:
		}

		p, err := pdu.Decode(s.r)
		if err != nil {
			s.setState(StateDisconnected)
			return err
		}
		s.dispatch(ctx, p)
	}
}

func (s *Session) dispatch(ctx context.Context, p pdu.Body) {
	id := p.Header().ID
	seq := p.Header().Seq

	if id == pdu.SubmitSMRespID && s.onSubmitSMResp != nil {
		s.onSubmitSMResp(ctx, p)
		return
	}

	// generic_nack is a legal response to any request (§3), including a
	// fire-and-forget submit_sm, which SendRequest never tracks in
	// s.pending. Try the pending-map correlation first, since generic_nack
	// can also answer a blocking bind/unbind/enquire_link; only fall back
	// to the submit_sm_resp handler when no pending request claims the
	// seq, letting it decide (via its own stash lookup) whether the seq
	// belongs to an in-flight MT segment.
	if id == pdu.GenericNACKID {
		if s.resolve(seq, p) {
			return
		}
		if s.onSubmitSMResp != nil {
			s.onSubmitSMResp(ctx, p)
			return
		}
		s.logger.Warn(fmt.Sprintf("received generic_nack for unknown seq %d", seq))
		return
	}

	if isResponseID(id) {
		if !s.resolve(seq, p) {
			s.logger.Warn(fmt.Sprintf("received response for unknown seq %d (command %v)", seq, id))
		}
		return
	}

	switch id {
	case deliverSMID:
		status := s.onDeliverSM(ctx, p)
		resp := newDeliverSMResp(seq, status)
		if err := s.Send(resp); err != nil {
			s.logger.Warn(fmt.Sprintf("failed to send deliver_sm_resp: %s", err))
		}
	case enquireLinkID:
		resp := newEnquireLinkResp(seq)
		if err := s.Send(resp); err != nil {
			s.logger.Warn(fmt.Sprintf("failed to send enquire_link_resp: %s", err))
		}
	case unbindID:
		resp := newUnbindResp(seq)
		_ = s.Send(resp)
		s.setState(StateUnbinding)
		_ = s.Close()
	default:
		s.logger.Warn(fmt.Sprintf("unhandled inbound PDU command %v seq %d", id, seq))
	}
}
