// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stash_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/stash"
)

func TestSequenceLookupConsumes(t *testing.T) {
	s := stash.NewMemory()
	ctx := context.Background()

	require.NoError(t, s.SetSequenceNumberMessageID(ctx, 7, "msg-1"))

	id, ok, err := s.GetSequenceNumberMessageID(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "msg-1", id)

	_, ok, err = s.GetSequenceNumberMessageID(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok, "a consuming lookup must not return the same entry twice")
}

func TestAbsentLookupIsNotAnError(t *testing.T) {
	s := stash.NewMemory()
	ctx := context.Background()

	_, ok, err := s.GetInternalMessageID(ctx, "unknown-remote")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheAndDeleteMessageIsIdempotent(t *testing.T) {
	s := stash.NewMemory()
	ctx := context.Background()
	msg := bus.OutboundMessage{MessageID: "msg-1", ToAddr: "123", Content: "hi"}

	require.NoError(t, s.CacheMessage(ctx, msg))
	got, ok, err := s.GetCachedMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msg, got)

	require.NoError(t, s.DeleteCachedMessage(ctx, "msg-1"))
	require.NoError(t, s.DeleteCachedMessage(ctx, "msg-1"), "delete of a missing key must be a no-op, not an error")

	_, ok, err = s.GetCachedMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMultipartSegmentsOutOfOrderReassembleInIndexOrder(t *testing.T) {
	s := stash.NewMemory()
	ctx := context.Background()
	key := stash.MultipartKey{RefNum: 0xff, From: "123", To: "456"}

	_, complete, err := s.AddMultipartSegment(ctx, key, stash.MultipartSegment{Index: 1, Text: "back"}, 3)
	require.NoError(t, err)
	assert.False(t, complete)

	_, complete, err = s.AddMultipartSegment(ctx, key, stash.MultipartSegment{Index: 3, Text: " you"}, 3)
	require.NoError(t, err)
	assert.False(t, complete)

	segments, complete, err := s.AddMultipartSegment(ctx, key, stash.MultipartSegment{Index: 2, Text: " at"}, 3)
	require.NoError(t, err)
	require.True(t, complete)

	require.Len(t, segments, 3)
	assert.Equal(t, 1, segments[0].Index)
	assert.Equal(t, 2, segments[1].Index)
	assert.Equal(t, 3, segments[2].Index)
}
