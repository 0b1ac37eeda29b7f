// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areski/vumi/mo"
)

func TestDecodeASCII(t *testing.T) {
	text, err := mo.Decode(1, nil, []byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, "foo", text)
}

func TestDecodeASCIIRejectsNonASCII(t *testing.T) {
	_, err := mo.Decode(1, nil, []byte{0xff})
	assert.ErrorIs(t, err, mo.ErrDecode)
}

func TestDecodeOverrideTakesPrecedence(t *testing.T) {
	text, err := mo.Decode(0, mo.Overrides{0: "utf-8"}, []byte("héllo"))
	require.NoError(t, err)
	assert.Equal(t, "héllo", text)
}

func TestDecodeUnknownDataCodingWithoutOverride(t *testing.T) {
	_, err := mo.Decode(200, nil, []byte("x"))
	assert.ErrorIs(t, err, mo.ErrUnsupportedCharset)
}

func TestDecodeUTF16BE(t *testing.T) {
	// "hi" in UTF-16BE.
	body := []byte{0x00, 'h', 0x00, 'i'}
	text, err := mo.Decode(8, nil, body)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}
