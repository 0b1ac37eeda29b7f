// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"fmt"
	"time"

	"github.com/areski/vumi/errors"
)

// ErrConfigConflict is raised when more than one segmentation strategy is
// enabled (§7, startup validation).
var ErrConfigConflict = errors.New("mutually exclusive segmentation strategies enabled")

// Config configures one transport's MT path (§4.E, §6).
type Config struct {
	TransportType string // "sms" or "ussd"

	SubmitSMEncoding   string // default "utf-8"
	SubmitSMDataCoding uint8  // default 1

	// At most one of these three may be true; Validate enforces it.
	SendLongMessages bool
	SendMultipartSAR bool
	SendMultipartUDH bool

	ResponseTimeout time.Duration
}

// DefaultConfig returns §4.E's defaults: submit_sm_encoding=utf-8,
// submit_sm_data_coding=1, no segmentation strategy enabled.
func DefaultConfig() Config {
	return Config{
		TransportType:      "sms",
		SubmitSMEncoding:   "utf-8",
		SubmitSMDataCoding: 1,
		ResponseTimeout:    5 * time.Second,
	}
}

// Validate enforces §7's first error-handling row: the three segmentation
// strategies are mutually exclusive, and a conflict fails startup with the
// offending keys named.
func (c Config) Validate() error {
	enabled := make([]string, 0, 3)
	if c.SendLongMessages {
		enabled = append(enabled, "send_long_messages")
	}
	if c.SendMultipartSAR {
		enabled = append(enabled, "send_multipart_sar")
	}
	if c.SendMultipartUDH {
		enabled = append(enabled, "send_multipart_udh")
	}
	if len(enabled) > 1 {
		return errors.Wrap(ErrConfigConflict, errors.New(fmt.Sprintf("conflicting keys: %v", enabled)))
	}
	return nil
}
