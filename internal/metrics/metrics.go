// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics wires the ambient prometheus counters/gauges
// carried even though the spec's Non-goals exclude a metrics/campaign
// product surface (SPEC_FULL.md DOMAIN STACK): binds, submits, delivers
// and throttle events. Grounded on the teacher's internal.MakeMetrics,
// generalized from one counter+summary pair to the small fixed set this
// gateway needs.
package metrics

import (
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// Metrics is the fixed set of counters/gauges the Transport Service, MO
// and MT processors and the Throttler report into.
type Metrics struct {
	Binds          *kitprometheus.Counter
	Submits        *kitprometheus.Counter
	Delivers       *kitprometheus.Counter
	ThrottleEvents *kitprometheus.Counter
	SessionState   *kitprometheus.Gauge
}

// New returns a Metrics instance registered under namespace/subsystem,
// the same two-level naming the teacher's MakeMetrics uses.
func New(namespace, subsystem string) *Metrics {
	return &Metrics{
		Binds: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "binds_total",
			Help:      "Number of bind attempts, by outcome.",
		}, []string{"outcome"}),
		Submits: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "submits_total",
			Help:      "Number of submit_sm segments emitted, by outcome.",
		}, []string{"outcome"}),
		Delivers: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivers_total",
			Help:      "Number of deliver_sm PDUs processed, by classification.",
		}, []string{"kind"}),
		ThrottleEvents: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "throttle_events_total",
			Help:      "Number of times the throttle latch was set or lifted.",
		}, []string{"transition"}),
		SessionState: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_state",
			Help:      "Current smpp.State as reported by Service.Health().",
		}, []string{"transport_name"}),
	}
}
