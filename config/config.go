// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads the Transport Service's configuration via
// caarlos0/env struct tags, the way every cmd/*/main.go in the teacher
// does, and implements §9's dual-config-shape migration: an older flat
// layout is reshaped into the nested form before validation runs, so no
// downstream code ever branches on which shape was supplied.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/areski/vumi/errors"
	"github.com/areski/vumi/mo"
)

// ErrConfigConflict matches §7's "Config conflict" row: startup fails
// with the offending keys named.
var ErrConfigConflict = errors.New("config conflict")

// ProcessorConfig is the nested `*_processor_config` shape of §6.
type ProcessorConfig struct {
	DataCodingOverrides string `env:"DATA_CODING_OVERRIDES" envDefault:""`
	SubmitSMEncoding    string `env:"SUBMIT_SM_ENCODING" envDefault:"utf-8"`
	SubmitSMDataCoding  uint8  `env:"SUBMIT_SM_DATA_CODING" envDefault:"1"`
	SendLongMessages    bool   `env:"SEND_LONG_MESSAGES" envDefault:"false"`
	SendMultipartSAR    bool   `env:"SEND_MULTIPART_SAR" envDefault:"false"`
	SendMultipartUDH    bool   `env:"SEND_MULTIPART_UDH" envDefault:"false"`
}

// Overrides parses "dataCoding:codec,dataCoding:codec" into mo.Overrides.
// "utf8" is accepted as a synonym for "utf-8" (SUPPLEMENTED FEATURES).
func (p ProcessorConfig) Overrides() (mo.Overrides, error) {
	out := mo.Overrides{}
	if p.DataCodingOverrides == "" {
		return out, nil
	}
	for _, pair := range strings.Split(p.DataCodingOverrides, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid data_coding_overrides entry %q", pair)
		}
		n, err := strconv.ParseUint(kv[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid data_coding_overrides key %q: %w", kv[0], err)
		}
		codec := kv[1]
		if codec == "utf8" {
			codec = "utf-8"
		}
		out[uint8(n)] = codec
	}
	return out, nil
}

// validate enforces §7's mutual-exclusivity rule for one processor config,
// naming offending keys (prefixed so the error identifies which of the
// three processor configs conflicted).
func (p ProcessorConfig) validate(prefix string) error {
	var offending []string
	if p.SendLongMessages {
		offending = append(offending, prefix+".send_long_messages")
	}
	if p.SendMultipartSAR {
		offending = append(offending, prefix+".send_multipart_sar")
	}
	if p.SendMultipartUDH {
		offending = append(offending, prefix+".send_multipart_udh")
	}
	if len(offending) > 1 {
		return errors.Wrap(ErrConfigConflict, errors.New(fmt.Sprintf("%v", offending)))
	}
	return nil
}

// Config is the nested, fully-resolved Transport Service configuration.
type Config struct {
	TransportName string `env:"VUMI_SMPP_TRANSPORT_NAME" envDefault:"smpp_transport"`
	TransportType string `env:"VUMI_SMPP_TRANSPORT_TYPE" envDefault:"sms"`

	Host string `env:"VUMI_SMPP_HOST" envDefault:"localhost"`
	Port int    `env:"VUMI_SMPP_PORT" envDefault:"2775"`

	SystemID         string `env:"VUMI_SMPP_SYSTEM_ID" envDefault:""`
	Password         string `env:"VUMI_SMPP_PASSWORD" envDefault:""`
	SystemType       string `env:"VUMI_SMPP_SYSTEM_TYPE" envDefault:""`
	InterfaceVersion string `env:"VUMI_SMPP_INTERFACE_VERSION" envDefault:"34"`
	AddressRange     string `env:"VUMI_SMPP_ADDRESS_RANGE" envDefault:""`
	BindMode         string `env:"VUMI_SMPP_BIND_MODE" envDefault:"transceiver"`

	MTTPS                     int           `env:"VUMI_SMPP_MT_TPS" envDefault:"0"`
	ThrottleDelay             time.Duration `env:"VUMI_SMPP_THROTTLE_DELAY" envDefault:"30s"`
	SubmitSMExpiry            time.Duration `env:"VUMI_SMPP_SUBMIT_SM_EXPIRY" envDefault:"24h"`
	ThirdPartyIDExpiry        time.Duration `env:"VUMI_SMPP_THIRD_PARTY_ID_EXPIRY" envDefault:"24h"`
	MultipartExpiry           time.Duration `env:"VUMI_SMPP_MULTIPART_EXPIRY" envDefault:"1h"`
	EnquireLinkInterval       time.Duration `env:"VUMI_SMPP_ENQUIRE_LINK_INTERVAL" envDefault:"30s"`
	ResponseWindow            time.Duration `env:"VUMI_SMPP_RESPONSE_WINDOW" envDefault:"5s"`

	DeliveryReportProcessorConfig      ProcessorConfig `envPrefix:"VUMI_SMPP_DELIVERY_REPORT_PROCESSOR_CONFIG_"`
	DeliverShortMessageProcessorConfig ProcessorConfig `envPrefix:"VUMI_SMPP_DELIVER_SHORT_MESSAGE_PROCESSOR_CONFIG_"`
	SubmitShortMessageProcessorConfig  ProcessorConfig `envPrefix:"VUMI_SMPP_SUBMIT_SHORT_MESSAGE_PROCESSOR_CONFIG_"`

	NATSURL  string `env:"VUMI_NATS_URL" envDefault:"nats://localhost:4222"`
	RedisURL string `env:"VUMI_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	LogLevel string `env:"VUMI_LOG_LEVEL" envDefault:"info"`
}

// Validate enforces §7's startup config-conflict row across all three
// processor configs.
func (c Config) Validate() error {
	if err := c.DeliveryReportProcessorConfig.validate("delivery_report_processor_config"); err != nil {
		return err
	}
	if err := c.DeliverShortMessageProcessorConfig.validate("deliver_short_message_processor_config"); err != nil {
		return err
	}
	if err := c.SubmitShortMessageProcessorConfig.validate("submit_short_message_processor_config"); err != nil {
		return err
	}
	return nil
}

// Load parses the nested configuration, then applies the legacy flat
// overlay (§9 "Dual config shapes"): a legacy top-level key that is set
// fills the corresponding nested field wherever that field is still at
// its default (see Reshape), so old deployments keep working without the
// rest of the program ever seeing the legacy shape.
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse configuration: %w", err)
	}

	legacy := LegacyConfig{}
	if err := env.Parse(&legacy); err != nil {
		return Config{}, fmt.Errorf("failed to parse legacy configuration: %w", err)
	}
	Reshape(&cfg, legacy)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
