// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// LookalikeEncoding is UTF-8 except that ¥ and ₩ encode to '\', like the
// multibyte Asian encodings that reuse 0x5C for currency signs.
var LookalikeEncoding encoding.Encoding = lookalikeEncoding{}

type lookalikeEncoding struct{}

func (lookalikeEncoding) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: lookalikeTransformer{}}
}

func (lookalikeEncoding) NewDecoder() *encoding.Decoder {
	return encoding.Nop.NewDecoder()
}

type lookalikeTransformer struct {
	transform.NopResetter
}

func (lookalikeTransformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		out := src[nSrc : nSrc+size]
		if r == '¥' || r == '₩' {
			out = []byte{'\\'}
		}
		if nDst+len(out) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], out)
		nSrc += size
	}
	return nDst, nSrc, nil
}
