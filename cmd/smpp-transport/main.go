// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main starts the SMPP Transport Service: it loads configuration,
// wires the Stash (Redis) and the external bus (NATS), and drives the
// connect/bind/run/disconnect lifecycle until terminated (§4.G).
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/areski/vumi/bus/nats"
	"github.com/areski/vumi/clock"
	"github.com/areski/vumi/config"
	"github.com/areski/vumi/internal/metrics"
	"github.com/areski/vumi/logger"
	"github.com/areski/vumi/mt"
	"github.com/areski/vumi/smpp"
	"github.com/areski/vumi/stash"
	"github.com/areski/vumi/throttle"
	"github.com/areski/vumi/transport"
)

const svcName = "smpp-transport"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load %s configuration: %s", svcName, err)
	}

	lg, err := logger.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %s", err)
	}

	var exitCode int
	defer logger.ExitWithError(&exitCode)

	redisClient, err := stash.Connect(cfg.RedisURL)
	if err != nil {
		lg.Error(fmt.Sprintf("failed to connect to redis: %s", err))
		exitCode = 1
		return
	}
	defer redisClient.Close()

	st := stash.NewRedis(redisClient, stash.TTLs{
		SubmitSMExpiry:     cfg.SubmitSMExpiry,
		ThirdPartyIDExpiry: cfg.ThirdPartyIDExpiry,
		MultipartExpiry:    cfg.MultipartExpiry,
	})

	pubSub, err := nats.NewPubSub(cfg.NATSURL, lg)
	if err != nil {
		lg.Error(fmt.Sprintf("failed to connect to message bus: %s", err))
		exitCode = 1
		return
	}
	defer pubSub.Close()

	moOverrides, err := cfg.DeliverShortMessageProcessorConfig.Overrides()
	if err != nil {
		lg.Error(fmt.Sprintf("invalid data_coding_overrides: %s", err))
		exitCode = 1
		return
	}

	smppCfg := smpp.DefaultConfig()
	smppCfg.SystemID = cfg.SystemID
	smppCfg.Password = cfg.Password
	smppCfg.SystemType = cfg.SystemType
	smppCfg.InterfaceVersion = cfg.InterfaceVersion
	smppCfg.AddressRange = cfg.AddressRange
	smppCfg.BindMode = bindModeFromString(cfg.BindMode)
	smppCfg.EnquireLinkInterval = cfg.EnquireLinkInterval
	smppCfg.ResponseWindow = cfg.ResponseWindow

	mtCfg := mt.DefaultConfig()
	mtCfg.TransportType = cfg.TransportType
	mtCfg.SubmitSMEncoding = cfg.SubmitShortMessageProcessorConfig.SubmitSMEncoding
	mtCfg.SubmitSMDataCoding = cfg.SubmitShortMessageProcessorConfig.SubmitSMDataCoding
	mtCfg.SendLongMessages = cfg.SubmitShortMessageProcessorConfig.SendLongMessages
	mtCfg.SendMultipartSAR = cfg.SubmitShortMessageProcessorConfig.SendMultipartSAR
	mtCfg.SendMultipartUDH = cfg.SubmitShortMessageProcessorConfig.SendMultipartUDH
	if err := mtCfg.Validate(); err != nil {
		lg.Error(fmt.Sprintf("config conflict: %s", err))
		exitCode = 1
		return
	}

	m := metrics.New("smpp", cfg.TransportName)

	svc := transport.New(transport.Config{
		TransportName: cfg.TransportName,
		Host:          cfg.Host,
		Port:          cfg.Port,
		SMPP:          smppCfg,
		MT:            mtCfg,
		Throttle:      throttle.Config{MTTPS: cfg.MTTPS, ThrottleDelay: cfg.ThrottleDelay},
		MOOverrides:   moOverrides,
	}, dialTCP, clock.Real(), lg, pubSub, st, m)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	g.Go(func() error {
		return stopSignalHandler(ctx, cancel)
	})

	if err := g.Wait(); err != nil {
		lg.Error(fmt.Sprintf("%s terminated: %s", svcName, err))
	}
}

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func bindModeFromString(s string) smpp.BindMode {
	switch s {
	case "transmitter":
		return smpp.BindTransmitter
	case "receiver":
		return smpp.BindReceiver
	default:
		return smpp.BindTransceiver
	}
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		cancel()
		return fmt.Errorf("received signal %s", sig)
	}
}
