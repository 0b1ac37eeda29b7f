// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mo

import (
	"context"
	"fmt"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutlv"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/internal/metrics"
	"github.com/areski/vumi/logger"
	"github.com/areski/vumi/stash"
)

// statusOK is ESME_ROK. The Protocol Engine always replies with this
// status regardless of processing outcome (§4.C): a decode failure or
// an unresolvable delivery report is a local bookkeeping problem, not a
// protocol-level nack.
const statusOK = 0

// Processor implements the MO pipeline (§4.D): classification, delivery
// report resolution, character-set decoding and multipart reassembly.
type Processor struct {
	transportName string
	stash         stash.Stash
	bus           bus.Publisher
	logger        logger.Logger
	overrides     Overrides
	metrics       *metrics.Metrics
}

// NewProcessor returns a Processor bound to one transport.
func NewProcessor(transportName string, st stash.Stash, pub bus.Publisher, lg logger.Logger, overrides Overrides) *Processor {
	return &Processor{
		transportName: transportName,
		stash:         st,
		bus:           pub,
		logger:        lg,
		overrides:     overrides,
	}
}

// SetMetrics wires the ambient deliver_sm classification counter. A nil
// metrics is a no-op.
func (pr *Processor) SetMetrics(m *metrics.Metrics) {
	pr.metrics = m
}

func (pr *Processor) countDeliver(kind string) {
	if pr.metrics == nil {
		return
	}
	pr.metrics.Delivers.With("kind", kind).Add(1)
}

// Handle implements smpp.DeliverSMHandler. It always returns statusOK;
// every failure mode is logged and the PDU silently dropped, per §4.D
// and §7.
func (pr *Processor) Handle(ctx context.Context, p pdu.Body) uint32 {
	f := p.Fields()
	tlvs := p.TLVFields()

	sourceAddr := fieldString(f, pdufield.SourceAddr)
	destAddr := fieldString(f, pdufield.DestinationAddr)
	dataCoding := fieldByte(f, pdufield.DataCoding)
	body := fieldBytes(f, pdufield.ShortMessage)

	messageStateBytes, hasMessageState := tlvBytes(tlvs, pdutlv.TagMessageState)
	receiptedIDBytes, hasReceiptedID := tlvBytes(tlvs, pdutlv.TagReceiptedMessageID)

	if hasMessageState || hasReceiptedID {
		pr.countDeliver("delivery_report")
		pr.handleDeliveryReportTLV(ctx, hasMessageState, messageStateBytes, hasReceiptedID, receiptedIDBytes)
		return statusOK
	}

	if receipt, ok := ParseReceiptFromText(string(body)); ok {
		pr.countDeliver("delivery_report")
		pr.emitDeliveryReport(ctx, receipt.RemoteID, receipt.Status)
		return statusOK
	}

	if payload, ok := tlvBytes(tlvs, pdutlv.TagMessagePayload); ok {
		text, err := Decode(dataCoding, pr.overrides, payload)
		if err != nil {
			pr.countDeliver("decode_error")
			pr.logger.Error(fmt.Sprintf("failed to decode message_payload: %s", err))
			return statusOK
		}
		pr.countDeliver("user_message")
		pr.emitUserMessage(text, sourceAddr, destAddr)
		return statusOK
	}

	if ref, total, seq, ok := sarInfo(tlvs); ok {
		pr.countDeliver("multipart_segment")
		pr.handleSegment(ctx, ref, total, seq, sourceAddr, destAddr, dataCoding, body)
		return statusOK
	}

	if info, rest, ok := ParseUDH(body); ok {
		pr.countDeliver("multipart_segment")
		pr.handleSegment(ctx, info.RefNum, info.Total, info.Seq, sourceAddr, destAddr, dataCoding, rest)
		return statusOK
	}

	text, err := Decode(dataCoding, pr.overrides, body)
	if err != nil {
		pr.countDeliver("decode_error")
		pr.logger.Error(fmt.Sprintf("failed to decode short_message: %s", err))
		return statusOK
	}
	pr.countDeliver("user_message")
	pr.emitUserMessage(text, sourceAddr, destAddr)
	return statusOK
}

func (pr *Processor) handleSegment(ctx context.Context, ref uint16, total, seq int, sourceAddr, destAddr string, dataCoding uint8, rawSegment []byte) {
	text, err := Decode(dataCoding, pr.overrides, rawSegment)
	if err != nil {
		pr.logger.Error(fmt.Sprintf("failed to decode multipart segment %d/%d: %s", seq, total, err))
		return
	}

	key := stash.MultipartKey{RefNum: ref, From: sourceAddr, To: destAddr}
	segments, complete, err := pr.stash.AddMultipartSegment(ctx, key, stash.MultipartSegment{Index: seq, Text: text}, total)
	if err != nil {
		pr.logger.Error(fmt.Sprintf("failed to stash multipart segment: %s", err))
		return
	}
	if !complete {
		return
	}

	full := ""
	for _, s := range segments {
		full += s.Text
	}
	pr.emitUserMessage(full, sourceAddr, destAddr)
}

func (pr *Processor) emitUserMessage(content, sourceAddr, destAddr string) {
	msg := bus.UserMessage{
		Content:       content,
		FromAddr:      sourceAddr,
		ToAddr:        destAddr,
		TransportType: "sms",
		TransportName: pr.transportName,
	}
	if err := pr.bus.PublishUserMessage(msg); err != nil {
		pr.logger.Error(fmt.Sprintf("failed to publish user_message: %s", err))
	}
}

func (pr *Processor) handleDeliveryReportTLV(ctx context.Context, hasState bool, stateBytes []byte, hasReceiptedID bool, receiptedIDBytes []byte) {
	remoteID := string(receiptedIDBytes)
	var status DeliveryStatus
	if hasState && len(stateBytes) > 0 {
		status = MapDeliveryStatusCode(stateBytes[0])
	} else {
		status = StatusPending
	}
	pr.emitDeliveryReport(ctx, remoteID, status)
}

func (pr *Processor) emitDeliveryReport(ctx context.Context, remoteID string, status DeliveryStatus) {
	internalID, ok, err := pr.stash.GetInternalMessageID(ctx, remoteID)
	if err != nil {
		pr.logger.Error(fmt.Sprintf("stash lookup failed for delivery report %s: %s", remoteID, err))
		return
	}
	if !ok {
		pr.logger.Warn(fmt.Sprintf(
			"Failed to retrieve message id for delivery report. Delivery report from %s discarded.",
			pr.transportName,
		))
		return
	}

	event := bus.Event{
		EventType:      bus.EventDeliveryReport,
		TransportName:  pr.transportName,
		UserMessageID:  internalID,
		DeliveryStatus: string(status),
	}
	if err := pr.bus.PublishEvent(event); err != nil {
		pr.logger.Error(fmt.Sprintf("failed to publish delivery_report event: %s", err))
	}
}

func sarInfo(tlvs pdutlv.Fields) (ref uint16, total, seq int, ok bool) {
	refBytes, hasRef := tlvBytes(tlvs, pdutlv.TagSarMsgRefNum)
	totalBytes, hasTotal := tlvBytes(tlvs, pdutlv.TagSarTotalSegments)
	seqBytes, hasSeq := tlvBytes(tlvs, pdutlv.TagSarSegmentSeqnum)
	if !hasRef || !hasTotal || !hasSeq {
		return 0, 0, 0, false
	}
	if len(refBytes) < 2 || len(totalBytes) < 1 || len(seqBytes) < 1 {
		return 0, 0, 0, false
	}
	ref = uint16(refBytes[0])<<8 | uint16(refBytes[1])
	return ref, int(totalBytes[0]), int(seqBytes[0]), true
}

func fieldString(f pdufield.Map, name pdufield.Name) string {
	d, ok := f[name]
	if !ok {
		return ""
	}
	return d.String()
}

func fieldBytes(f pdufield.Map, name pdufield.Name) []byte {
	d, ok := f[name]
	if !ok {
		return nil
	}
	return d.Bytes()
}

func fieldByte(f pdufield.Map, name pdufield.Name) uint8 {
	b := fieldBytes(f, name)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func tlvBytes(tlvs pdutlv.Fields, tag pdutlv.Tag) ([]byte, bool) {
	v, ok := tlvs[tag]
	if !ok {
		return nil, false
	}
	return v.Bytes(), true
}
