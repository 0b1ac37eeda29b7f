// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mt

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/areski/vumi/errors"
)

// ErrUnsupportedEncoding is raised by Encode for an unrecognized
// submit_sm_encoding name (§6 is silent on MT-side unknown encodings; we
// treat it the same way MO's unknown data_coding is treated: a named,
// non-silent failure rather than a best-effort fallback).
var ErrUnsupportedEncoding = errors.New("unsupported submit_sm_encoding")

// Encode renders text as bytes for the wire per submit_sm_encoding (§4.E).
// This is the MT-side mirror of mo.Decode: both sides of one character-set
// table, kept as two small hand-rolled codecs because no library in the
// retrieval pack implements GSM 03.38 either direction.
func Encode(encoding string, text string) ([]byte, error) {
	switch encoding {
	case "utf-8", "utf8", "":
		return []byte(text), nil
	case "ascii":
		return encodeASCII(text)
	case "latin-1", "latin1":
		return encodeLatin1(text), nil
	case "utf-16be":
		return encodeUTF16BE(text), nil
	case "gsm0338":
		return encodeGSM0338(text)
	default:
		return nil, errors.Wrap(ErrUnsupportedEncoding, errors.New(encoding))
	}
}

func encodeASCII(text string) ([]byte, error) {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0x7f {
			return nil, errors.Wrap(ErrUnsupportedEncoding, errors.New("non-ascii rune in ascii-encoded content"))
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func encodeLatin1(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0xff {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

func encodeUTF16BE(text string) []byte {
	units := utf16.Encode([]rune(text))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

func encodeGSM0338(text string) ([]byte, error) {
	reverse := gsm0338Reverse()
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := reverse[r]
		if !ok {
			return nil, errors.Wrap(ErrUnsupportedEncoding, errors.New("rune not representable in gsm0338"))
		}
		out = append(out, b)
	}
	if !utf8.ValidString(text) {
		return nil, errors.Wrap(ErrUnsupportedEncoding, errors.New("invalid utf-8 input"))
	}
	return out, nil
}

var gsm0338ReverseTable map[rune]byte

// gsm0338Reverse builds the encode-direction lookup once from the same
// 128-entry default alphabet mo.charset.go decodes from.
func gsm0338Reverse() map[rune]byte {
	if gsm0338ReverseTable != nil {
		return gsm0338ReverseTable
	}
	t := make(map[rune]byte, 128)
	for b, r := range gsm0338DefaultAlphabet {
		if _, exists := t[r]; !exists {
			t[r] = byte(b)
		}
	}
	gsm0338ReverseTable = t
	return t
}

// gsm0338DefaultAlphabet is the GSM 03.38 default alphabet basic character
// set, indexed by its 7-bit code point. It mirrors mo.gsm0338Table exactly
// so encode and decode never disagree; kept local to avoid an import cycle
// between mt and mo over a single shared table.
var gsm0338DefaultAlphabet = [128]rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', '\x1b', 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '¤', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}
