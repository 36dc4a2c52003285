// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"encoding/binary"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/siddontang/go/hack"
)

// ParseOKPacket transforms an OK packet into a Result object.
func ParseOKPacket(data []byte) (*gomysql.Result, error) {
	pos := 1
	r := new(gomysql.Result)
	var n int
	r.AffectedRows, _, n = ParseLengthEncodedInt(data[pos:])
	if n == 0 {
		return nil, errors.Wrapf(ErrMalformedPacket, "OK packet: affected rows")
	}
	pos += n
	r.InsertId, _, n = ParseLengthEncodedInt(data[pos:])
	if n == 0 {
		return nil, errors.Wrapf(ErrMalformedPacket, "OK packet: insert id")
	}
	pos += n
	// ClientProtocol41 is always negotiated.
	if len(data) >= pos+2 {
		r.Status = binary.LittleEndian.Uint16(data[pos:])
		pos += 2
	}
	if len(data) >= pos+2 {
		r.Warnings = binary.LittleEndian.Uint16(data[pos:])
	}
	return r, nil
}

// ParseErrorPacket transforms an error packet into a MyError object.
func ParseErrorPacket(data []byte) error {
	e := new(gomysql.MyError)
	if len(data) < 3 {
		return errors.Wrapf(ErrMalformedPacket, "ERR packet too short")
	}
	pos := 1
	e.Code = binary.LittleEndian.Uint16(data[pos:])
	pos += 2
	if len(data) >= pos+6 && data[pos] == '#' {
		pos++
		e.State = string(data[pos : pos+5])
		pos += 5
	} else {
		e.State = gomysql.DEFAULT_MYSQL_STATE
	}
	e.Message = string(data[pos:])
	return e
}

// ParseEOFPacket returns the server status carried by an EOF packet.
func ParseEOFPacket(data []byte) uint16 {
	if len(data) < 5 {
		return 0
	}
	return binary.LittleEndian.Uint16(data[3:])
}

func IsOKPacket(data []byte) bool {
	return len(data) > 0 && data[0] == OKHeader.Byte()
}

// IsEOFPacket returns true if it's an EOF packet.
func IsEOFPacket(data []byte) bool {
	return len(data) > 0 && data[0] == EOFHeader.Byte() && len(data) <= 5
}

// IsResultSetOKPacket returns true if it's an OK packet after the result set when CLIENT_DEPRECATE_EOF is enabled.
// A row packet may also begin with 0xfe, so we need to judge it with the packet length.
// See https://mariadb.com/kb/en/result-set-packets/
func IsResultSetOKPacket(data []byte) bool {
	// With CLIENT_PROTOCOL_41 enabled, the least length is 7.
	return len(data) >= 7 && data[0] == EOFHeader.Byte() && len(data) < 0xFFFFFF
}

func IsErrorPacket(data []byte) bool {
	return len(data) > 0 && data[0] == ErrHeader.Byte()
}

// MakeQuery builds a COM_QUERY packet without copying the statement twice.
func MakeQuery(sql []byte) []byte {
	data := make([]byte, 0, len(sql)+1)
	data = append(data, ComQuery.Byte())
	return append(data, sql...)
}

// MakeSetOption builds a COM_SET_OPTION packet.
func MakeSetOption(option uint16) []byte {
	data := make([]byte, 0, 3)
	data = append(data, ComSetOption.Byte())
	return DumpUint16(data, option)
}

// ParseQuery returns the statement of a COM_QUERY packet.
func ParseQuery(data []byte) string {
	if len(data) == 0 || data[0] != ComQuery.Byte() {
		return ""
	}
	return hack.String(data[1:])
}
