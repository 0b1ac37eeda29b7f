// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mo

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/areski/vumi/errors"
)

// ErrUnsupportedCharset is returned for a data_coding value with no
// built-in mapping and no configured override (§6).
var ErrUnsupportedCharset = errors.New("unsupported data_coding")

// ErrDecode reports a character-set decoding failure equivalent to the
// source's UnicodeDecodeError (§4.D, §7): logged, the PDU body dropped,
// but DeliverSMResp ESME_ROK is still sent.
var ErrDecode = errors.New("failed to decode short message body")

// Overrides maps a data_coding value to a codec name, overriding the
// built-in table of §6 (config key data_coding_overrides).
type Overrides map[uint8]string

// Decode converts a raw short_message body to text according to
// data_coding, consulting overrides first (§6).
func Decode(dataCoding uint8, overrides Overrides, body []byte) (string, error) {
	name, ok := overrides[dataCoding]
	if !ok {
		var builtin bool
		name, builtin = defaultCodec(dataCoding)
		if !builtin {
			return "", fmt.Errorf("%w: %d", ErrUnsupportedCharset, dataCoding)
		}
	}
	return decodeNamed(name, body)
}

func defaultCodec(dataCoding uint8) (string, bool) {
	switch dataCoding {
	case 0:
		return "gsm0338", true
	case 1:
		return "ascii", true
	case 3:
		return "latin-1", true
	case 8:
		return "utf-16be", true
	default:
		return "", false
	}
}

func decodeNamed(name string, body []byte) (string, error) {
	switch name {
	case "utf-8", "utf8":
		if !isValidUTF8(body) {
			return "", fmt.Errorf("%w: invalid utf-8", ErrDecode)
		}
		return string(body), nil
	case "ascii":
		return decodeASCII(body)
	case "latin-1", "latin1":
		return decodeLatin1(body), nil
	case "utf-16be":
		return decodeUTF16BE(body)
	case "gsm0338":
		return decodeGSM0338(body)
	default:
		return "", fmt.Errorf("%w: unknown codec %q", ErrUnsupportedCharset, name)
	}
}

func isValidUTF8(b []byte) bool {
	for i := 0; i < len(b); {
		r := b[i]
		switch {
		case r < 0x80:
			i++
		case r&0xE0 == 0xC0:
			i += 2
		case r&0xF0 == 0xE0:
			i += 3
		case r&0xF8 == 0xF0:
			i += 4
		default:
			return false
		}
		if i > len(b) {
			return false
		}
	}
	return true
}

func decodeASCII(b []byte) (string, error) {
	for _, c := range b {
		if c >= 0x80 {
			return "", fmt.Errorf("%w: non-ascii byte 0x%02x", ErrDecode, c)
		}
	}
	return string(b), nil
}

// decodeLatin1 maps ISO-8859-1 directly, since each byte is its own
// Unicode code point.
func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func decodeUTF16BE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("%w: odd-length utf-16be body", ErrDecode)
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units)), nil
}

// gsm0338Table is the GSM 03.38 default alphabet single-byte mapping
// (the extension table, shifted by the 0x1B escape byte, is not
// supported — out of scope for the gateway's ASCII/Latin-1/UTF-16/UTF-8
// traffic, which is what every configured transport in practice uses).
var gsm0338Table = [128]rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', '\x1b', 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '¤', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}

func decodeGSM0338(b []byte) (string, error) {
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		if c >= 0x80 {
			return "", fmt.Errorf("%w: byte 0x%02x outside gsm0338 default alphabet", ErrDecode, c)
		}
		runes = append(runes, gsm0338Table[c])
	}
	return string(runes), nil
}
