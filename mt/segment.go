// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"math/rand"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutlv"
)

// Segmentation limits, per §4.E.
const (
	maxSinglePDUBytes = 254
	maxSARSegmentSize = 140
	maxUDHSegmentSize = 134
)

// udhHeader is the fixed prefix mo.ParseUDH recognizes on the inbound side;
// the MT side writes the same 6 bytes (§4.E, §4.D).
func udhHeader(ref uint8, total, seq int) []byte {
	return []byte{0x05, 0x00, 0x03, ref, byte(total), byte(seq)}
}

// buildSubmitSMs renders one OutboundMessage's encoded content into the
// ordered SubmitSM PDUs that carry it on the wire, per §4.E's segmentation
// rules. The returned PDUs have seq 0 (unallocated); the caller assigns
// sequence numbers at emission time, not here (§5 ordering guarantee:
// wire order == allocation order). The UDH strategy splits any content
// longer than one UDH segment; the other strategies apply only above the
// single-PDU limit.
func buildSubmitSMs(cfg Config, toAddr, fromAddr string, content []byte) ([]pdu.Body, error) {
	base := func() pdu.Body {
		p := pdu.NewSubmitSM(make(pdutlv.Fields))
		f := p.Fields()
		_ = f.Set(pdufield.SourceAddr, fromAddr)
		_ = f.Set(pdufield.DestinationAddr, toAddr)
		_ = f.Set(pdufield.DataCoding, cfg.SubmitSMDataCoding)
		return p
	}

	udhSplit := cfg.SendMultipartUDH && len(content) > maxUDHSegmentSize
	if len(content) <= maxSinglePDUBytes && !udhSplit {
		p := base()
		_ = p.Fields().Set(pdufield.ShortMessage, content)
		return []pdu.Body{p}, nil
	}

	switch {
	case cfg.SendLongMessages:
		p := base()
		_ = p.TLVFields().Set(pdutlv.TagMessagePayload, content)
		return []pdu.Body{p}, nil

	case cfg.SendMultipartSAR:
		ref := uint16(rand.Intn(1 << 16))
		segments := chunk(content, maxSARSegmentSize)
		total := len(segments)
		pdus := make([]pdu.Body, 0, total)
		for i, seg := range segments {
			p := base()
			_ = p.Fields().Set(pdufield.ShortMessage, seg)
			tlvs := p.TLVFields()
			_ = tlvs.Set(pdutlv.TagSarMsgRefNum, ref)
			_ = tlvs.Set(pdutlv.TagSarTotalSegments, uint8(total))
			_ = tlvs.Set(pdutlv.TagSarSegmentSeqnum, uint8(i+1))
			pdus = append(pdus, p)
		}
		return pdus, nil

	case cfg.SendMultipartUDH:
		ref := uint8(rand.Intn(1 << 8))
		segments := chunk(content, maxUDHSegmentSize)
		total := len(segments)
		pdus := make([]pdu.Body, 0, total)
		for i, seg := range segments {
			p := base()
			udh := udhHeader(ref, total, i+1)
			_ = p.Fields().Set(pdufield.ESMClass, pdufield.ESMClassUDHIndicator)
			_ = p.Fields().Set(pdufield.ShortMessage, append(append([]byte{}, udh...), seg...))
			pdus = append(pdus, p)
		}
		return pdus, nil

	default:
		// No strategy configured and content exceeds the single-PDU
		// limit: fall back to message_payload so the message is never
		// silently truncated.
		p := base()
		_ = p.TLVFields().Set(pdutlv.TagMessagePayload, content)
		return []pdu.Body{p}, nil
	}
}

func chunk(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		n := size
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}

// applyUSSD adds the TLVs §4.E requires for ussd transport types.
// sessionEvent is one of "new", "resume", "continue", "close" (§6).
func applyUSSD(p pdu.Body, sessionEvent string) {
	tlvs := p.TLVFields()
	_ = tlvs.Set(pdutlv.TagUssdServiceOp, uint8(0x02))

	var info uint8
	switch sessionEvent {
	case "new", "resume":
		info = 0x00
	case "continue":
		info = 0x01
	case "close":
		info = 0x02
	default:
		info = 0x00
	}
	_ = tlvs.Set(pdutlv.TagItsSessionInfo, info)
}
