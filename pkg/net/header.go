// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package net

// MaxPayloadLen is the max packet payload length.
const MaxPayloadLen = 1<<24 - 1

// Header is the first byte of a response packet.
type Header byte

const (
	OKHeader          Header = 0x00
	ErrHeader         Header = 0xff
	EOFHeader         Header = 0xfe
	LocalInFileHeader Header = 0xfb
)

var headerStrings = map[Header]string{
	OKHeader:          "OK",
	ErrHeader:         "ERR",
	EOFHeader:         "EOF",
	LocalInFileHeader: "LOCAL_IN_FILE",
}

func (f Header) Byte() byte {
	return byte(f)
}

func (f Header) String() string {
	return headerStrings[f]
}
