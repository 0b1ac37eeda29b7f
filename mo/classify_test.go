// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/mo"
)

func TestParseReceiptFromText(t *testing.T) {
	body := "id:foo sub:001 dlvrd:001 submit date:2501010000 done date:2501010001 stat:DELIVRD err:000 text:hi"

	receipt, ok := mo.ParseReceiptFromText(body)
	require.True(t, ok)
	assert.Equal(t, "foo", receipt.RemoteID)
	assert.Equal(t, mo.StatusDelivered, receipt.Status)
}

func TestParseReceiptFromTextNoMatch(t *testing.T) {
	_, ok := mo.ParseReceiptFromText("just a regular text message")
	assert.False(t, ok)
}

func TestMapDeliveryStatusName(t *testing.T) {
	cases := map[string]mo.DeliveryStatus{
		"DELIVRD": mo.StatusDelivered,
		"ACCEPTD": mo.StatusPending,
		"EXPIRED": mo.StatusFailed,
		"DELETED": mo.StatusFailed,
		"UNDELIV": mo.StatusFailed,
		"REJECTD": mo.StatusFailed,
		"UNKNOWN": mo.StatusPending,
	}
	for raw, want := range cases {
		assert.Equal(t, want, mo.MapDeliveryStatusName(raw), raw)
	}
}

func TestMapDeliveryStatusCode(t *testing.T) {
	cases := map[uint8]mo.DeliveryStatus{
		2:  mo.StatusDelivered,
		6:  mo.StatusPending,
		3:  mo.StatusFailed,
		4:  mo.StatusFailed,
		5:  mo.StatusFailed,
		8:  mo.StatusFailed,
		99: mo.StatusPending,
	}
	for code, want := range cases {
		assert.Equal(t, want, mo.MapDeliveryStatusCode(code))
	}
}
