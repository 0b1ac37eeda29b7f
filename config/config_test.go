// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/config"
)

func TestValidateRejectsConflictingSegmentationStrategies(t *testing.T) {
	cfg := config.Config{
		SubmitShortMessageProcessorConfig: config.ProcessorConfig{
			SendMultipartSAR: true,
			SendMultipartUDH: true,
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestReshapeFillsUnsetNestedFieldsFromLegacy(t *testing.T) {
	cfg := config.Config{
		SubmitShortMessageProcessorConfig: config.ProcessorConfig{
			SubmitSMEncoding:   "utf-8",
			SubmitSMDataCoding: 1,
		},
	}
	truth := true
	legacy := config.LegacyConfig{SendMultipartUDH: &truth}

	config.Reshape(&cfg, legacy)

	assert.True(t, cfg.SubmitShortMessageProcessorConfig.SendMultipartUDH)
	assert.True(t, cfg.DeliverShortMessageProcessorConfig.SendMultipartUDH)
	assert.True(t, cfg.DeliveryReportProcessorConfig.SendMultipartUDH)
}

func TestOverridesParsesDataCodingTableWithUTF8Synonym(t *testing.T) {
	p := config.ProcessorConfig{DataCodingOverrides: "0:utf8,3:latin-1"}
	overrides, err := p.Overrides()
	require.NoError(t, err)
	assert.Equal(t, "utf-8", overrides[0])
	assert.Equal(t, "latin-1", overrides[3])
}
