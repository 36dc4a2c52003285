// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package encode

import (
	"encoding/hex"
	"unicode/utf8"

	"github.com/pingcap/stmtkit/pkg/charset"
)

// escapeMap maps a byte to the letter that follows '\' in its escape
// sequence, or 0 if the byte is written as is.
var escapeMap [256]byte

func init() {
	escapeMap[0] = '0'
	escapeMap['\n'] = 'n'
	escapeMap['\r'] = 'r'
	escapeMap['\\'] = '\\'
	escapeMap['\''] = '\''
	escapeMap['"'] = '"'
	escapeMap['\x1a'] = 'Z'
}

// EscapeTo appends src escaped for a quoted literal, without the quotes.
// Text is UTF-8 and binary is raw bytes. With backslash escapes disabled only
// single quotes are doubled. Escaped text still needs Transcode.
func (e *Encoder) EscapeTo(dst, src []byte, binary bool) []byte {
	if !e.cfg.BackslashEscapes {
		for _, c := range src {
			if c == '\'' {
				dst = append(dst, '\'')
			}
			dst = append(dst, c)
		}
		return dst
	}
	lookalikes := !binary && e.cfg.MultibyteEscaping
	for i := 0; i < len(src); {
		c := src[i]
		if lookalikes && c >= utf8.RuneSelf {
			r, size := utf8.DecodeRune(src[i:])
			if isLookalike(r) {
				dst = append(dst, '\\')
			}
			dst = append(dst, src[i:i+size]...)
			i += size
			continue
		}
		if esc := escapeMap[c]; esc != 0 && !(c == '"' && e.cfg.AnsiQuotes) {
			dst = append(dst, '\\', esc)
		} else {
			dst = append(dst, c)
		}
		i++
	}
	return dst
}

func isLookalike(r rune) bool {
	for _, l := range charset.Lookalikes {
		if r == l {
			return true
		}
	}
	return false
}

// AppendString appends s as a quoted string literal in the connection encoding.
func (e *Encoder) AppendString(dst []byte, s string) ([]byte, error) {
	lit := make([]byte, 0, len(s)+8)
	lit = append(lit, '\'')
	lit = e.EscapeTo(lit, []byte(s), false)
	lit = append(lit, '\'')
	enc, err := e.Transcode(lit)
	if err != nil {
		return nil, err
	}
	return append(dst, enc...), nil
}

// HexBinary reports whether binary values are written as x'..' literals.
func (e *Encoder) HexBinary() bool {
	return !e.cfg.BackslashEscapes || e.cfg.MultibyteEscaping
}

// AppendBinary appends b as a binary literal. It is never transcoded.
func (e *Encoder) AppendBinary(dst, b []byte) []byte {
	if e.HexBinary() {
		dst = append(dst, "x'"...)
		dst = hex.AppendEncode(dst, b)
		return append(dst, '\'')
	}
	if e.cfg.BinaryIntroducer {
		dst = append(dst, "_binary"...)
	}
	dst = append(dst, '\'')
	dst = e.EscapeTo(dst, b, true)
	return append(dst, '\'')
}

// Transcode converts UTF-8 text to the connection encoding.
func (e *Encoder) Transcode(b []byte) ([]byte, error) {
	return charset.Encode(e.cfg.Encoding, b)
}
