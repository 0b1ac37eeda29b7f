// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mo

import "regexp"

// deliveryReceiptRE matches the classic SMPP delivery-receipt body, per
// §4.D.1.
var deliveryReceiptRE = regexp.MustCompile(
	`id:(\S+) sub:\S+ dlvrd:\S+ submit date:\d+ done date:\d+ stat:(\w+) err:\S+ text:.*`,
)

// DeliveryStatus is the internal, transport-agnostic status a raw SMSC
// status string is mapped to (§6).
type DeliveryStatus string

// Delivery statuses.
const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusPending   DeliveryStatus = "pending"
)

// deliveryStatusByName and deliveryStatusByCode map the SMSC-reported
// status (the stat: field of a regex-parsed receipt, or the message_state
// TLV's numeric code respectively) to the internal DeliveryStatus (§6).
var deliveryStatusByName = map[string]DeliveryStatus{
	"DELIVRD": StatusDelivered,
	"ACCEPTD": StatusPending,
	"EXPIRED": StatusFailed,
	"DELETED": StatusFailed,
	"UNDELIV": StatusFailed,
	"REJECTD": StatusFailed,
}

var deliveryStatusByCode = map[uint8]DeliveryStatus{
	2: StatusDelivered,
	6: StatusPending,
	3: StatusFailed,
	4: StatusFailed,
	5: StatusFailed,
	8: StatusFailed,
}

// MapDeliveryStatusName maps a textual stat: value to the internal
// status. Unknown values map to "pending" (§6).
func MapDeliveryStatusName(stat string) DeliveryStatus {
	if s, ok := deliveryStatusByName[stat]; ok {
		return s
	}
	return StatusPending
}

// MapDeliveryStatusCode maps a message_state TLV numeric code to the
// internal status. Unknown codes map to "pending" (§6).
func MapDeliveryStatusCode(code uint8) DeliveryStatus {
	if s, ok := deliveryStatusByCode[code]; ok {
		return s
	}
	return StatusPending
}

// ParsedReceipt is a delivery report extracted from a deliver_sm body or
// TLVs, before remote-id lookup.
type ParsedReceipt struct {
	RemoteID string
	Status   DeliveryStatus
}

// ParseReceiptFromText matches the classic delivery-receipt body regex
// and maps its stat: field. ok is false if the body does not match.
func ParseReceiptFromText(body string) (ParsedReceipt, bool) {
	m := deliveryReceiptRE.FindStringSubmatch(body)
	if m == nil {
		return ParsedReceipt{}, false
	}
	return ParsedReceipt{RemoteID: m[1], Status: MapDeliveryStatusName(m[2])}, true
}
