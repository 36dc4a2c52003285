// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package net

import (
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/tidb/pkg/parser/mysql"
)

// The writers below play the server side. The transport never sends them; they
// back the fake servers in tests.

// WriteErrPacket writes an Error packet.
func (p *PacketIO) WriteErrPacket(merr *gomysql.MyError) error {
	state := merr.State
	if len(state) != 5 {
		state = gomysql.DEFAULT_MYSQL_STATE
	}
	data := make([]byte, 0, 9+len(merr.Message))
	data = append(data, ErrHeader.Byte())
	data = DumpUint16(data, merr.Code)
	data = append(data, '#')
	data = append(data, state...)
	data = append(data, merr.Message...)
	return p.WritePacket(data, true)
}

// WriteOKPacket writes an OK packet. header is EOFHeader for the OK packet that
// ends a result set when CLIENT_DEPRECATE_EOF is negotiated.
func (p *PacketIO) WriteOKPacket(result *gomysql.Result, header Header) error {
	data := make([]byte, 0, 16)
	data = append(data, header.Byte())
	data = DumpLengthEncodedInt(data, result.AffectedRows)
	data = DumpLengthEncodedInt(data, result.InsertId)
	// ClientProtocol41 must be enabled.
	data = DumpUint16(data, result.Status)
	data = DumpUint16(data, result.Warnings)
	return p.WritePacket(data, true)
}

// WriteEOFPacket writes an EOF packet.
func (p *PacketIO) WriteEOFPacket(status uint16) error {
	data := make([]byte, 0, 5)
	data = append(data, EOFHeader.Byte())
	data = append(data, 0, 0)
	data = DumpUint16(data, status)
	return p.WritePacket(data, true)
}

// WriteResultSet writes a text result set with VARCHAR columns. A nil cell is
// written as NULL.
func (p *PacketIO) WriteResultSet(names []string, rows [][][]byte, status uint16, capability Capability) error {
	deprecateEOF := capability&ClientDeprecateEOF != 0
	if err := p.WritePacket(DumpLengthEncodedInt(nil, uint64(len(names))), false); err != nil {
		return err
	}
	for _, name := range names {
		field := &gomysql.Field{
			Schema:       []byte{},
			Table:        []byte{},
			OrgTable:     []byte{},
			Name:         []byte(name),
			OrgName:      []byte(name),
			Charset:      uint16(mysql.DefaultCollationID),
			ColumnLength: 255,
			Type:         mysql.TypeVarString,
		}
		if err := p.WritePacket(field.Dump(), false); err != nil {
			return err
		}
	}
	if !deprecateEOF {
		if err := p.WritePacket([]byte{EOFHeader.Byte(), 0, 0, 0, 0}, false); err != nil {
			return err
		}
	}
	for _, row := range rows {
		var data []byte
		for _, cell := range row {
			if cell == nil {
				data = append(data, 0xfb)
				continue
			}
			data = DumpLengthEncodedString(data, cell)
		}
		if err := p.WritePacket(data, false); err != nil {
			return err
		}
	}
	if deprecateEOF {
		return p.WriteOKPacket(&gomysql.Result{Status: status}, EOFHeader)
	}
	return p.WriteEOFPacket(status)
}
