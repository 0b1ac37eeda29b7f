// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package stash implements the Message Stash (§4.B): the durable,
// TTL-disciplined correlation store that lets sequence numbers, remote
// message ids and multipart fragments survive process restarts. All
// operations are asynchronous (context-bound) and idempotent; a miss is
// reported as (zero value, false, nil), never as an error. Backing-store
// failures are returned as a transient errors.Error the caller may retry.
package stash

import (
	"context"
	"time"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/errors"
)

// ErrBackend is a transient failure of the backing store (§4.B, §7).
var ErrBackend = errors.New("stash backend unavailable")

// MultipartKey identifies one in-flight reassembly (§3, §4.D).
type MultipartKey struct {
	RefNum uint16
	From   string
	To     string
}

// MultipartSegment is one fragment of a multipart short message.
type MultipartSegment struct {
	Index int
	Text  string
}

// TTLs configures the TTL discipline of §3's stash entry table. TTLs
// must be chosen so that stale entries cannot be confused with current
// traffic after a full submit/response cycle (§3 invariant).
type TTLs struct {
	SubmitSMExpiry     time.Duration
	ThirdPartyIDExpiry time.Duration
	MultipartExpiry    time.Duration
}

// Stash is the Message Stash API exposed to the Protocol Engine, MO and
// MT processors (§4.B).
type Stash interface {
	// CacheMessage persists an OutboundMessage under msg:<id>, once per
	// message_id, with TTL SubmitSMExpiry.
	CacheMessage(ctx context.Context, msg bus.OutboundMessage) error
	// GetCachedMessage returns the stored OutboundMessage, or
	// (zero, false, nil) if absent.
	GetCachedMessage(ctx context.Context, id string) (bus.OutboundMessage, bool, error)
	// DeleteCachedMessage is a no-op if the key is already absent.
	DeleteCachedMessage(ctx context.Context, id string) error

	// SetSequenceNumberMessageID records seq:<seq_no> -> id before the
	// corresponding PDU is written to the wire (§3 invariant).
	SetSequenceNumberMessageID(ctx context.Context, seq uint32, id string) error
	// GetSequenceNumberMessageID is a consuming lookup: the seq:<n> key
	// is deleted atomically with the read.
	GetSequenceNumberMessageID(ctx context.Context, seq uint32) (string, bool, error)

	// SetRemoteMessageID records remote:<remote_id> -> internal id,
	// created only after a successful SubmitSMResp (§3 invariant).
	SetRemoteMessageID(ctx context.Context, internalID, remoteID string) error
	// GetInternalMessageID looks up remote:<remote_id>.
	GetInternalMessageID(ctx context.Context, remoteID string) (string, bool, error)

	// AddMultipartSegment records one reassembly fragment and reports
	// the full set once every segment 1..total has been seen. On
	// completion the stash drops the partial state (§4.D).
	AddMultipartSegment(ctx context.Context, key MultipartKey, seg MultipartSegment, total int) (segments []MultipartSegment, complete bool, err error)
}
