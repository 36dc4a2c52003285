// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/util/errors"
	pnet "github.com/pingcap/stmtkit/pkg/net"
	"github.com/siddontang/go/hack"
)

// readResult reads the reply of one statement.
func (c *Conn) readResult() (*gomysql.Result, error) {
	data, err := c.pkt.ReadPacket()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrMalformedResult, "empty packet")
	}
	switch pnet.Header(data[0]) {
	case pnet.OKHeader:
		return pnet.ParseOKPacket(data)
	case pnet.ErrHeader:
		return nil, pnet.ParseErrorPacket(data)
	case pnet.LocalInFileHeader:
		return nil, c.declineLocalInfile()
	}
	return c.readResultSet(data)
}

// declineLocalInfile answers a file request with an empty file and drains the
// final reply. Statements must not rely on client-side files.
func (c *Conn) declineLocalInfile() error {
	if err := c.pkt.WritePacket(nil, true); err != nil {
		return err
	}
	data, err := c.pkt.ReadPacket()
	if err != nil {
		return err
	}
	if pnet.IsErrorPacket(data) {
		return errors.Collect(ErrLocalInfile, pnet.ParseErrorPacket(data))
	}
	return errors.WithStack(ErrLocalInfile)
}

func (c *Conn) readResultSet(data []byte) (*gomysql.Result, error) {
	columnCount, _, n := pnet.ParseLengthEncodedInt(data)
	if n == 0 || n != len(data) {
		return nil, errors.Wrapf(ErrMalformedResult, "invalid column count")
	}
	result := &gomysql.Result{
		Resultset: gomysql.NewResultset(int(columnCount)),
	}
	if err := c.readResultColumns(result); err != nil {
		return nil, err
	}
	if err := c.readResultRows(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Conn) readResultColumns(result *gomysql.Result) error {
	for i := range result.Fields {
		data, err := c.pkt.ReadPacket()
		if err != nil {
			return err
		}
		field := &gomysql.Field{}
		if err := field.Parse(data); err != nil {
			return errors.Wrap(ErrMalformedResult, err)
		}
		result.Fields[i] = field
		result.FieldNames[string(field.Name)] = i
	}
	if c.capability&pnet.ClientDeprecateEOF != 0 {
		return nil
	}
	data, err := c.pkt.ReadPacket()
	if err != nil {
		return err
	}
	if !pnet.IsEOFPacket(data) {
		return errors.Wrapf(ErrMalformedResult, "expect EOF after columns")
	}
	result.Status = pnet.ParseEOFPacket(data)
	return nil
}

func (c *Conn) readResultRows(result *gomysql.Result) error {
	for {
		data, err := c.pkt.ReadPacket()
		if err != nil {
			return err
		}
		if c.capability&pnet.ClientDeprecateEOF == 0 {
			if pnet.IsEOFPacket(data) {
				result.Status = pnet.ParseEOFPacket(data)
				break
			}
		} else if pnet.IsResultSetOKPacket(data) {
			ok, err := pnet.ParseOKPacket(data)
			if err != nil {
				return err
			}
			result.Status = ok.Status
			break
		}
		// An error may occur when the server writes rows.
		if pnet.IsErrorPacket(data) {
			return pnet.ParseErrorPacket(data)
		}
		result.RowDatas = append(result.RowDatas, data)
	}

	result.Values = make([][]gomysql.FieldValue, len(result.RowDatas))
	for i := range result.Values {
		values, err := result.RowDatas[i].Parse(result.Fields, false, nil)
		if err != nil {
			return errors.Wrap(ErrMalformedResult, err)
		}
		result.Values[i] = values
	}
	return nil
}

// Column returns the value of the named column in the row, nil when absent.
// String columns come back as strings.
func Column(result *gomysql.Result, row int, name string) any {
	if result == nil || result.Resultset == nil || row >= len(result.Values) {
		return nil
	}
	idx, ok := result.FieldNames[name]
	if !ok {
		return nil
	}
	return Value(result.Values[row][idx])
}

// Value converts a field value to a plain Go value.
func Value(v gomysql.FieldValue) any {
	switch val := v.Value().(type) {
	case []byte:
		return hack.String(val)
	default:
		return val
	}
}
