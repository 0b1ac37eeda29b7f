// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/logger"
	"github.com/areski/vumi/mt"
	"github.com/areski/vumi/stash"
)

type fakeSender struct {
	mu   sync.Mutex
	seq  uint32
	sent []pdu.Body
	wg   *sync.WaitGroup
}

func (f *fakeSender) NextSeq() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

func (f *fakeSender) Send(p pdu.Body) error {
	f.mu.Lock()
	f.sent = append(f.sent, p)
	f.mu.Unlock()
	if f.wg != nil {
		f.wg.Done()
	}
	return nil
}

func (f *fakeSender) snapshot() []pdu.Body {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pdu.Body, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeGate runs every send immediately; retries run at once on their own
// goroutine, so a retried segment always gets the next seq from the same
// fakeSender.
type fakeGate struct{}

func (fakeGate) Acquire(context.Context) error { return nil }
func (fakeGate) Retry(fn func(context.Context) error) {
	go func() { _ = fn(context.Background()) }()
}

type recordingBus struct {
	mu       sync.Mutex
	events   []bus.Event
	failures []bus.Failure
}

func (b *recordingBus) PublishUserMessage(bus.UserMessage) error { return nil }
func (b *recordingBus) PublishEvent(e bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}
func (b *recordingBus) PublishFailure(f bus.Failure) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, f)
	return nil
}

func (b *recordingBus) snapshotEvents() []bus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bus.Event, len(b.events))
	copy(out, b.events)
	return out
}

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sends")
	}
}

func newSubmitSMResp(seq uint32, status uint32, messageID string) pdu.Body {
	r := pdu.NewSubmitSMResp()
	r.Header().Seq = seq
	r.Header().Status = pdu.Status(status)
	_ = r.Fields().Set(pdufield.MessageID, messageID)
	return r
}

func TestSubmitRejectsNonASCIIAddress(t *testing.T) {
	rb := &recordingBus{}
	pr := mt.NewProcessor("smpp_transport", mt.DefaultConfig(), &fakeSender{}, fakeGate{}, stash.NewMemory(), rb, logger.NewMock())

	err := pr.Submit(context.Background(), bus.OutboundMessage{
		MessageID: "m1", ToAddr: "héllo", FromAddr: "123", Content: "hi",
	})
	require.NoError(t, err)

	events := rb.snapshotEvents()
	require.Len(t, events, 1)
	assert.Equal(t, bus.EventNack, events[0].EventType)
	assert.Equal(t, "Invalid to_addr: héllo", events[0].NackReason)
}

func TestSubmitThrottledThenRecovered(t *testing.T) {
	ctx := context.Background()
	st := stash.NewMemory()
	rb := &recordingBus{}
	var wg sync.WaitGroup
	wg.Add(1)
	sender := &fakeSender{wg: &wg}
	pr := mt.NewProcessor("smpp_transport", mt.DefaultConfig(), sender, fakeGate{}, st, rb, logger.NewMock())

	require.NoError(t, pr.Submit(ctx, bus.OutboundMessage{MessageID: "m1", ToAddr: "123", FromAddr: "456", Content: "hello world"}))
	waitFor(t, &wg)

	firstSeq := sender.snapshot()[0].Header().Seq

	wg.Add(1)
	pr.HandleSubmitSMResp(ctx, newSubmitSMResp(firstSeq, 0x00000058, ""))
	waitFor(t, &wg)

	sent := sender.snapshot()
	require.Len(t, sent, 2)
	secondSeq := sent[1].Header().Seq
	assert.Greater(t, secondSeq, firstSeq)

	pr.HandleSubmitSMResp(ctx, newSubmitSMResp(secondSeq, 0, "bar"))

	events := rb.snapshotEvents()
	require.Len(t, events, 1)
	assert.Equal(t, bus.EventAck, events[0].EventType)
	assert.Equal(t, "bar", events[0].SentMessageID)
}

func TestSubmitAggregatesOutOfOrderResponses(t *testing.T) {
	ctx := context.Background()
	st := stash.NewMemory()
	rb := &recordingBus{}
	var wg sync.WaitGroup
	wg.Add(2)
	sender := &fakeSender{wg: &wg}
	pr := mt.NewProcessor("smpp_transport", mt.DefaultConfig(), sender, fakeGate{}, st, rb, logger.NewMock())

	require.NoError(t, pr.Submit(ctx, bus.OutboundMessage{MessageID: "444", ToAddr: "123", FromAddr: "456", Content: "msg 1"}))
	require.NoError(t, pr.Submit(ctx, bus.OutboundMessage{MessageID: "445", ToAddr: "123", FromAddr: "456", Content: "msg 2"}))
	waitFor(t, &wg)

	sent := sender.snapshot()
	require.Len(t, sent, 2)
	seq1, seq2 := sent[0].Header().Seq, sent[1].Header().Seq
	require.Less(t, seq1, seq2)

	pr.HandleSubmitSMResp(ctx, newSubmitSMResp(seq2, 0, "3rd_party_id_2"))
	pr.HandleSubmitSMResp(ctx, newSubmitSMResp(seq1, 0, "3rd_party_id_1"))

	events := rb.snapshotEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "445", events[0].UserMessageID)
	assert.Equal(t, "3rd_party_id_2", events[0].SentMessageID)
	assert.Equal(t, "444", events[1].UserMessageID)
	assert.Equal(t, "3rd_party_id_1", events[1].SentMessageID)
}

func TestSubmitMultipartUDH(t *testing.T) {
	ctx := context.Background()
	st := stash.NewMemory()
	rb := &recordingBus{}
	var wg sync.WaitGroup
	wg.Add(2)
	sender := &fakeSender{wg: &wg}

	cfg := mt.DefaultConfig()
	cfg.SendMultipartUDH = true
	pr := mt.NewProcessor("smpp_transport", cfg, sender, fakeGate{}, st, rb, logger.NewMock())

	content := make([]byte, 161)
	for i := range content {
		content[i] = 'a'
	}
	require.NoError(t, pr.Submit(ctx, bus.OutboundMessage{MessageID: "m1", ToAddr: "123", FromAddr: "456", Content: string(content)}))
	waitFor(t, &wg)

	sent := sender.snapshot()
	require.Len(t, sent, 2)

	first := sent[0].Fields()[pdufield.ShortMessage].Bytes()
	second := sent[1].Fields()[pdufield.ShortMessage].Bytes()
	require.GreaterOrEqual(t, len(first), 6)
	require.GreaterOrEqual(t, len(second), 6)

	assert.Equal(t, []byte{0x05, 0x00, 0x03}, first[:3])
	assert.Equal(t, uint8(2), first[4])
	assert.Equal(t, uint8(1), first[5])
	assert.Equal(t, first[3], second[3])
	assert.Equal(t, uint8(2), second[5])
}
