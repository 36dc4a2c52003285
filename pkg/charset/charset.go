// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package charset maps MySQL connection character sets to text encodings.
package charset

import (
	"strings"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

var ErrUnknownCharset = errors.New("unknown character set")

// Charset is a connection character set.
type Charset struct {
	Name string
	// Encoding converts UTF-8 text to the bytes the server expects. nil means
	// the text is sent as is.
	Encoding encoding.Encoding
	// MaxLen is the maximum number of bytes of one character.
	MaxLen int
	// MultibyteEscaping is true when ¥ or ₩ encode to a backslash byte.
	MultibyteEscaping bool
}

type entry struct {
	enc    encoding.Encoding
	maxLen int
}

var charsets = map[string]entry{
	"utf8":    {nil, 3},
	"utf8mb3": {nil, 3},
	"utf8mb4": {nil, 4},
	"binary":  {nil, 1},
	"ascii":   {charmap.Windows1252, 1},
	"latin1":  {charmap.Windows1252, 1},
	"latin2":  {charmap.ISO8859_2, 1},
	"latin5":  {charmap.ISO8859_9, 1},
	"latin7":  {charmap.ISO8859_13, 1},
	"greek":   {charmap.ISO8859_7, 1},
	"hebrew":  {charmap.ISO8859_8, 1},
	"cp1250":  {charmap.Windows1250, 1},
	"cp1251":  {charmap.Windows1251, 1},
	"cp1256":  {charmap.Windows1256, 1},
	"cp1257":  {charmap.Windows1257, 1},
	"cp850":   {charmap.CodePage850, 1},
	"cp852":   {charmap.CodePage852, 1},
	"cp866":   {charmap.CodePage866, 1},
	"koi8r":   {charmap.KOI8R, 1},
	"koi8u":   {charmap.KOI8U, 1},
	"tis620":  {charmap.Windows874, 1},
	"gbk":     {simplifiedchinese.GBK, 2},
	"gb2312":  {simplifiedchinese.GBK, 2},
	"gb18030": {simplifiedchinese.GB18030, 4},
	"big5":    {traditionalchinese.Big5, 2},
	"sjis":    {japanese.ShiftJIS, 2},
	"cp932":   {japanese.ShiftJIS, 2},
	"ujis":    {japanese.EUCJP, 3},
	"eucjpms": {japanese.EUCJP, 3},
	"euckr":   {korean.EUCKR, 2},
}

// Lookup finds a charset by its MySQL name, case-insensitively.
func Lookup(name string) (*Charset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	e, ok := charsets[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCharset, "%s", name)
	}
	return New(name, e.enc, e.maxLen), nil
}

// New builds a charset from an arbitrary encoding.
func New(name string, enc encoding.Encoding, maxLen int) *Charset {
	return &Charset{
		Name:              name,
		Encoding:          enc,
		MaxLen:            maxLen,
		MultibyteEscaping: RequiresMultibyteEscaping(enc),
	}
}

// Lookalikes are the code points that some multibyte encodings render as '\'.
var Lookalikes = []rune{'¥', '₩'}

// RequiresMultibyteEscaping reports whether enc turns ¥ or ₩ into a single
// backslash byte. Such characters must be escaped like a backslash.
func RequiresMultibyteEscaping(enc encoding.Encoding) bool {
	if enc == nil {
		return false
	}
	for _, r := range Lookalikes {
		if IsBackslashLookalike(enc, r) {
			return true
		}
	}
	return false
}

// IsBackslashLookalike reports whether enc encodes r to exactly "\".
func IsBackslashLookalike(enc encoding.Encoding, r rune) bool {
	if enc == nil {
		return false
	}
	b, err := enc.NewEncoder().Bytes([]byte(string(r)))
	return err == nil && len(b) == 1 && b[0] == '\\'
}

// Encode converts UTF-8 text to enc. Characters enc can not represent become
// the replacement byte of enc. A nil enc returns b unchanged.
func Encode(enc encoding.Encoding, b []byte) ([]byte, error) {
	if enc == nil {
		return b, nil
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes(b)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

// Decode converts bytes in enc back to UTF-8.
func Decode(enc encoding.Encoding, b []byte) ([]byte, error) {
	if enc == nil {
		return b, nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}
