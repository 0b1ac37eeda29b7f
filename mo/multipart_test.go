// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/mo"
	"github.com/areski/vumi/stash"
)

type recordingBus struct {
	userMessages []bus.UserMessage
	events       []bus.Event
}

func (b *recordingBus) PublishUserMessage(m bus.UserMessage) error {
	b.userMessages = append(b.userMessages, m)
	return nil
}
func (b *recordingBus) PublishEvent(e bus.Event) error {
	b.events = append(b.events, e)
	return nil
}
func (b *recordingBus) PublishFailure(bus.Failure) error { return nil }

func TestParseUDHOutOfOrderReassembly(t *testing.T) {
	ctx := context.Background()
	st := stash.NewMemory()

	segments := []string{
		"\x05\x00\x03\xff\x03\x01back",
		"\x05\x00\x03\xff\x03\x03 you",
		"\x05\x00\x03\xff\x03\x02 at",
	}

	for _, raw := range segments {
		info, rest, ok := mo.ParseUDH([]byte(raw))
		require.True(t, ok)
		text, err := mo.Decode(1, nil, rest)
		require.NoError(t, err)
		parts, complete, err := st.AddMultipartSegment(ctx, stash.MultipartKey{RefNum: info.RefNum, From: "123", To: "456"}, stash.MultipartSegment{Index: info.Seq, Text: text}, info.Total)
		require.NoError(t, err)
		if complete {
			full := ""
			for _, p := range parts {
				full += p.Text
			}
			require.Equal(t, "back at you", full)
			return
		}
	}
	t.Fatal("expected reassembly to complete on the third segment")
}
