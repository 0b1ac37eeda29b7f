// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

// LegacyConfig mirrors the older flat shape of §6/§9: all processor
// options at the top level instead of nested under a `*_processor_config`
// key. A legacy field is a pointer so Load can tell "unset" (nil) apart
// from "explicitly set to the zero value".
type LegacyConfig struct {
	DataCodingOverrides *string `env:"VUMI_SMPP_DATA_CODING_OVERRIDES"`
	SubmitSMEncoding    *string `env:"VUMI_SMPP_SUBMIT_SM_ENCODING"`
	SubmitSMDataCoding  *uint8  `env:"VUMI_SMPP_SUBMIT_SM_DATA_CODING"`
	SendLongMessages    *bool   `env:"VUMI_SMPP_SEND_LONG_MESSAGES"`
	SendMultipartSAR    *bool   `env:"VUMI_SMPP_SEND_MULTIPART_SAR"`
	SendMultipartUDH    *bool   `env:"VUMI_SMPP_SEND_MULTIPART_UDH"`
}

// Reshape applies the legacy flat overlay onto all three nested processor
// configs (the legacy shape predates per-processor-kind configuration, so
// one flat set applies identically to all three, §6). A legacy value only
// fills in a field still at its nested default; an explicitly-configured
// nested value always wins. This precedence is an implementer's choice
// where the source is silent (§9 open questions).
func Reshape(cfg *Config, legacy LegacyConfig) {
	applyLegacy(&cfg.DeliveryReportProcessorConfig, legacy)
	applyLegacy(&cfg.DeliverShortMessageProcessorConfig, legacy)
	applyLegacy(&cfg.SubmitShortMessageProcessorConfig, legacy)
}

// processorConfigDefault mirrors ProcessorConfig's envDefault tags: the
// baseline a legacy value is allowed to override.
var processorConfigDefault = ProcessorConfig{
	SubmitSMEncoding:   "utf-8",
	SubmitSMDataCoding: 1,
}

func applyLegacy(p *ProcessorConfig, legacy LegacyConfig) {
	def := processorConfigDefault

	if legacy.DataCodingOverrides != nil && p.DataCodingOverrides == def.DataCodingOverrides {
		p.DataCodingOverrides = *legacy.DataCodingOverrides
	}
	if legacy.SubmitSMEncoding != nil && p.SubmitSMEncoding == def.SubmitSMEncoding {
		p.SubmitSMEncoding = *legacy.SubmitSMEncoding
	}
	if legacy.SubmitSMDataCoding != nil && p.SubmitSMDataCoding == def.SubmitSMDataCoding {
		p.SubmitSMDataCoding = *legacy.SubmitSMDataCoding
	}
	if legacy.SendLongMessages != nil && !p.SendLongMessages {
		p.SendLongMessages = *legacy.SendLongMessages
	}
	if legacy.SendMultipartSAR != nil && !p.SendMultipartSAR {
		p.SendMultipartSAR = *legacy.SendMultipartSAR
	}
	if legacy.SendMultipartUDH != nil && !p.SendMultipartUDH {
		p.SendMultipartUDH = *legacy.SendMultipartUDH
	}
}
