// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"fmt"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
)

const (
	deliverSMID   = pdu.DeliverSMID
	enquireLinkID = pdu.EnquireLinkID
	unbindID      = pdu.UnbindID
)

var responseIDs = map[pdu.ID]bool{
	pdu.BindTransmitterRespID: true,
	pdu.BindReceiverRespID:    true,
	pdu.BindTransceiverRespID: true,
	pdu.UnbindRespID:          true,
	pdu.EnquireLinkRespID:     true,
	pdu.SubmitSMRespID:        true,
	pdu.DeliverSMRespID:       true,
	pdu.GenericNACKID:         true,
}

func isResponseID(id pdu.ID) bool {
	return responseIDs[id]
}

// Bind sends the bind PDU selected by cfg.BindMode immediately after TCP
// connect, per §4.C, and transitions the session to the matching
// BOUND_* state on a matching BindResp with status ESME_ROK. On any
// other status, or on timeout, it returns an error and leaves the
// session for the caller to close (the Transport Service will
// reconnect, §4.G). Bind runs before the reader loop (Run) is started, so
// it reads the bind response directly off the connection, bounded by
// cfg.BindTimeout and by ctx.
func (s *Session) Bind(ctx context.Context) error {
	req := s.newBindRequest()
	req.Header().Seq = s.NextSeq()
	if err := s.Send(req); err != nil {
		s.countBind("error")
		return err
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.BindTimeout))
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	resp, err := pdu.Decode(s.r)
	stop()
	_ = s.conn.SetReadDeadline(time.Time{})
	if err != nil {
		s.countBind("error")
		return err
	}
	if resp.Header().Status != StatusOK {
		s.countBind("rejected")
		return fmt.Errorf("%w: status %v", ErrBindRejected, resp.Header().Status)
	}

	switch s.cfg.BindMode {
	case BindTransmitter:
		s.setState(StateBoundTX)
	case BindReceiver:
		s.setState(StateBoundRX)
	case BindTransceiver:
		s.setState(StateBoundTRX)
	}
	s.countBind("ok")
	return nil
}

func (s *Session) countBind(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Binds.With("outcome", outcome).Add(1)
}

func (s *Session) newBindRequest() pdu.Body {
	var p pdu.Body
	switch s.cfg.BindMode {
	case BindTransmitter:
		p = pdu.NewBindTransmitter(nil)
	case BindReceiver:
		p = pdu.NewBindReceiver(nil)
	default:
		p = pdu.NewBindTransceiver(nil)
	}

	f := p.Fields()
	_ = f.Set(pdufield.SystemID, s.cfg.SystemID)
	_ = f.Set(pdufield.Password, s.cfg.Password)
	_ = f.Set(pdufield.SystemType, s.cfg.SystemType)
	_ = f.Set(pdufield.InterfaceVersion, s.cfg.InterfaceVersion)
	_ = f.Set(pdufield.AddressRange, s.cfg.AddressRange)
	_ = f.Set(pdufield.AddrTON, uint8(0))
	_ = f.Set(pdufield.AddrNPI, uint8(0))
	return p
}

// Unbind sends Unbind and awaits the response with a bounded timeout,
// then closes the connection regardless of whether a response arrived
// (§4.C).
func (s *Session) Unbind(ctx context.Context) error {
	s.setState(StateUnbinding)
	p := pdu.NewUnbind()
	_, err := s.SendRequest(ctx, p, s.cfg.UnbindTimeout)
	closeErr := s.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func newDeliverSMResp(seq uint32, status uint32) pdu.Body {
	p := pdu.NewDeliverSMResp()
	p.Header().Seq = seq
	p.Header().Status = pdu.Status(status)
	return p
}

func newEnquireLinkResp(seq uint32) pdu.Body {
	p := pdu.NewEnquireLinkResp()
	p.Header().Seq = seq
	return p
}

func newUnbindResp(seq uint32) pdu.Body {
	p := pdu.NewUnbindResp()
	p.Header().Seq = seq
	return p
}
