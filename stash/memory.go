// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stash

import (
	"context"
	"sort"
	"sync"

	"github.com/areski/vumi/bus"
)

var _ Stash = (*Memory)(nil)

// Memory is an in-process Stash used by component tests that exercise
// the Protocol Engine, MO/MT processors and Throttler without a real
// Redis instance. It does not enforce TTLs: entries stay until they are
// consumed or deleted.
type Memory struct {
	mu         sync.Mutex
	seq        map[uint32]string
	msg        map[string]bus.OutboundMessage
	remote     map[string]string
	multipart  map[MultipartKey]map[int]string
}

// NewMemory returns an empty in-memory Stash.
func NewMemory() *Memory {
	return &Memory{
		seq:       make(map[uint32]string),
		msg:       make(map[string]bus.OutboundMessage),
		remote:    make(map[string]string),
		multipart: make(map[MultipartKey]map[int]string),
	}
}

func (m *Memory) CacheMessage(_ context.Context, msg bus.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msg[msg.MessageID] = msg
	return nil
}

func (m *Memory) GetCachedMessage(_ context.Context, id string) (bus.OutboundMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msg[id]
	return msg, ok, nil
}

func (m *Memory) DeleteCachedMessage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.msg, id)
	return nil
}

func (m *Memory) SetSequenceNumberMessageID(_ context.Context, seq uint32, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[seq] = id
	return nil
}

func (m *Memory) GetSequenceNumberMessageID(_ context.Context, seq uint32) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.seq[seq]
	if ok {
		delete(m.seq, seq)
	}
	return id, ok, nil
}

func (m *Memory) SetRemoteMessageID(_ context.Context, internalID, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remote[remoteID] = internalID
	return nil
}

func (m *Memory) GetInternalMessageID(_ context.Context, remoteID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.remote[remoteID]
	return id, ok, nil
}

func (m *Memory) AddMultipartSegment(_ context.Context, key MultipartKey, seg MultipartSegment, total int) ([]MultipartSegment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.multipart[key]
	if !ok {
		set = make(map[int]string)
		m.multipart[key] = set
	}
	set[seg.Index] = seg.Text

	if len(set) < total {
		return nil, false, nil
	}

	segments := make([]MultipartSegment, 0, len(set))
	for idx, text := range set {
		segments = append(segments, MultipartSegment{Index: idx, Text: text})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })
	delete(m.multipart, key)
	return segments, true, nil
}
