// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/clock"
	"github.com/areski/vumi/logger"
	"github.com/areski/vumi/smpp"
)

func TestBindTransceiverReachesBoundTRX(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()

	cfg := smpp.DefaultConfig()
	cfg.BindMode = smpp.BindTransceiver
	cfg.SystemID = "user"
	cfg.Password = "pass"

	lg := logger.NewMock()
	sess := smpp.New(client, cfg, clock.Real(), lg, func(ctx context.Context, p pdu.Body) uint32 { return 0 })

	done := make(chan error, 1)
	go func() {
		done <- sess.Bind(context.Background())
	}()

	req, err := pdu.Decode(peer)
	require.NoError(t, err)
	require.Equal(t, pdu.BindTransceiverID, req.Header().ID)

	resp := pdu.NewBindTransceiverResp()
	resp.Header().Seq = req.Header().Seq
	require.NoError(t, resp.SerializeTo(peer))

	require.NoError(t, <-done)
	require.Equal(t, smpp.StateBoundTRX, sess.State())
}

func TestBindRejectedReturnsError(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()

	cfg := smpp.DefaultConfig()
	cfg.BindMode = smpp.BindTransmitter

	lg := logger.NewMock()
	sess := smpp.New(client, cfg, clock.Real(), lg, func(ctx context.Context, p pdu.Body) uint32 { return 0 })

	done := make(chan error, 1)
	go func() {
		done <- sess.Bind(context.Background())
	}()

	req, err := pdu.Decode(peer)
	require.NoError(t, err)

	resp := pdu.NewBindTransmitterResp()
	resp.Header().Seq = req.Header().Seq
	resp.Header().Status = pdu.Status(0x0000000E) // ESME_RINVPASWD
	require.NoError(t, resp.SerializeTo(peer))

	err = <-done
	require.ErrorIs(t, err, smpp.ErrBindRejected)
}

func TestDeliverSMIsAckedAndSubmitSMRespRoutesToHandler(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()

	cfg := smpp.DefaultConfig()
	cfg.BindMode = smpp.BindTransceiver

	lg := logger.NewMock()
	delivered := make(chan pdu.Body, 1)
	sess := smpp.New(client, cfg, clock.Real(), lg, func(ctx context.Context, p pdu.Body) uint32 {
		delivered <- p
		return smpp.StatusOK
	})

	var submitResp pdu.Body
	gotResp := make(chan struct{})
	sess.SetSubmitSMRespHandler(func(ctx context.Context, resp pdu.Body) {
		submitResp = resp
		close(gotResp)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	deliver := pdu.NewDeliverSM()
	deliver.Header().Seq = 42
	require.NoError(t, deliver.SerializeTo(peer))

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("deliver_sm handler was never invoked")
	}

	ackResp, err := pdu.Decode(peer)
	require.NoError(t, err)
	require.Equal(t, pdu.DeliverSMRespID, ackResp.Header().ID)
	require.Equal(t, uint32(42), ackResp.Header().Seq)

	sr := pdu.NewSubmitSMResp()
	sr.Header().Seq = 7
	require.NoError(t, sr.SerializeTo(peer))

	select {
	case <-gotResp:
	case <-time.After(time.Second):
		t.Fatal("submit_sm_resp was never routed to its handler")
	}
	require.Equal(t, uint32(7), submitResp.Header().Seq)
}

func TestGenericNACKRoutesToSubmitSMRespHandlerWhenNotPending(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()

	cfg := smpp.DefaultConfig()
	cfg.BindMode = smpp.BindTransceiver

	lg := logger.NewMock()
	sess := smpp.New(client, cfg, clock.Real(), lg, func(ctx context.Context, p pdu.Body) uint32 { return smpp.StatusOK })

	var nackResp pdu.Body
	gotResp := make(chan struct{})
	sess.SetSubmitSMRespHandler(func(ctx context.Context, resp pdu.Body) {
		nackResp = resp
		close(gotResp)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	// Seq 9 was never registered via SendRequest (submit_sm is sent
	// fire-and-forget), so this generic_nack must fall through to the
	// submit_sm_resp handler rather than being logged as unresolvable.
	nack := pdu.NewGenericNACK()
	nack.Header().Seq = 9
	nack.Header().Status = pdu.Status(0x00000008) // ESME_RSYSERR
	require.NoError(t, nack.SerializeTo(peer))

	select {
	case <-gotResp:
	case <-time.After(time.Second):
		t.Fatal("generic_nack was never routed to the submit_sm_resp handler")
	}
	require.Equal(t, uint32(9), nackResp.Header().Seq)
	require.Equal(t, pdu.GenericNACKID, nackResp.Header().ID)
}

func TestGenericNACKResolvesPendingEnquireLink(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()

	cfg := smpp.DefaultConfig()
	cfg.BindMode = smpp.BindTransceiver

	lg := logger.NewMock()
	sess := smpp.New(client, cfg, clock.Real(), lg, func(ctx context.Context, p pdu.Body) uint32 { return smpp.StatusOK })

	req := pdu.NewEnquireLink()
	done := make(chan error, 1)
	go func() {
		_, err := sess.SendRequest(context.Background(), req, time.Second)
		done <- err
	}()

	sent, err := pdu.Decode(peer)
	require.NoError(t, err)
	require.Equal(t, pdu.EnquireLinkID, sent.Header().ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	nack := pdu.NewGenericNACK()
	nack.Header().Seq = sent.Header().Seq
	require.NoError(t, nack.SerializeTo(peer))

	require.NoError(t, <-done)
}
