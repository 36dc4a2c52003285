// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// The MySQL protocol splits payloads into packets of at most 16MB. Each packet
// carries a 3-byte length, a 1-byte sequence and the payload:
//
//	| length (3) | sequence (1) | payload (length) |
//
// A payload of exactly MaxPayloadLen bytes is followed by another packet, which
// may be empty. The sequence is reset at the start of every command.

package net

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"go.uber.org/zap"
)

const (
	defaultWriterSize = 16 * 1024
	defaultReaderSize = 16 * 1024
)

// rdbufConn buffers both directions and counts the bytes.
type rdbufConn struct {
	net.Conn
	*bufio.ReadWriter
	inBytes  uint64
	outBytes uint64
}

func newRdbufConn(conn net.Conn) *rdbufConn {
	return &rdbufConn{
		Conn:       conn,
		ReadWriter: bufio.NewReadWriter(bufio.NewReaderSize(conn, defaultReaderSize), bufio.NewWriterSize(conn, defaultWriterSize)),
	}
}

func (f *rdbufConn) Read(b []byte) (n int, err error) {
	n, err = f.ReadWriter.Read(b)
	f.inBytes += uint64(n)
	return n, err
}

func (f *rdbufConn) Write(p []byte) (n int, err error) {
	n, err = f.ReadWriter.Write(p)
	f.outBytes += uint64(n)
	return n, err
}

// PacketIO is a helper to read and write sql and packet.
type PacketIO struct {
	readWriter *rdbufConn
	logger     *zap.Logger
	sequence   uint8
}

func NewPacketIO(conn net.Conn, lg *zap.Logger) *PacketIO {
	return &PacketIO{
		readWriter: newRdbufConn(conn),
		logger:     lg,
	}
}

func (p *PacketIO) LocalAddr() net.Addr {
	return p.readWriter.LocalAddr()
}

func (p *PacketIO) RemoteAddr() net.Addr {
	return p.readWriter.RemoteAddr()
}

func (p *PacketIO) ResetSequence() {
	p.sequence = 0
}

func (p *PacketIO) GetSequence() uint8 {
	return p.sequence
}

// SetDeadline bounds the following reads and writes. The zero time clears it.
func (p *PacketIO) SetDeadline(t time.Time) error {
	return errors.WithStack(p.readWriter.SetDeadline(t))
}

func (p *PacketIO) readOnePacket() ([]byte, bool, error) {
	var header [4]byte
	if _, err := io.ReadFull(p.readWriter, header[:]); err != nil {
		return nil, false, errors.Wrap(ErrReadConn, err)
	}
	sequence := header[3]
	if sequence != p.sequence {
		return nil, false, errors.Wrapf(ErrInvalidSequence, "expected %d, actual %d", p.sequence, sequence)
	}
	p.sequence++

	length := int(uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16)
	data := make([]byte, length)
	if _, err := io.ReadFull(p.readWriter, data); err != nil {
		return nil, false, errors.Wrap(ErrReadConn, err)
	}
	return data, length == MaxPayloadLen, nil
}

// ReadPacket reads data and removes the header
func (p *PacketIO) ReadPacket() (data []byte, err error) {
	for more := true; more; {
		var buf []byte
		buf, more, err = p.readOnePacket()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if data == nil {
			data = buf
		} else {
			data = append(data, buf...)
		}
	}
	return data, nil
}

func (p *PacketIO) writeOnePacket(data []byte) (int, bool, error) {
	more := false
	length := len(data)
	if length >= MaxPayloadLen {
		// we need another packet, this is true even if
		// the current packet is of len(MaxPayloadLen) exactly
		length = MaxPayloadLen
		more = true
	}

	var header [4]byte
	header[0] = byte(length)
	header[1] = byte(length >> 8)
	header[2] = byte(length >> 16)
	header[3] = p.sequence
	p.sequence++

	if _, err := p.readWriter.Write(header[:]); err != nil {
		return 0, more, errors.Wrap(ErrWriteConn, err)
	}
	if _, err := p.readWriter.Write(data[:length]); err != nil {
		return 0, more, errors.Wrap(ErrWriteConn, err)
	}
	return length, more, nil
}

// WritePacket writes data without a header
func (p *PacketIO) WritePacket(data []byte, flush bool) (err error) {
	for more := true; more; {
		var n int
		n, more, err = p.writeOnePacket(data)
		if err != nil {
			return errors.WithStack(err)
		}
		data = data[n:]
	}
	if flush {
		return p.Flush()
	}
	return nil
}

func (p *PacketIO) InBytes() uint64 {
	return p.readWriter.inBytes
}

func (p *PacketIO) OutBytes() uint64 {
	return p.readWriter.outBytes
}

func (p *PacketIO) Flush() error {
	if err := p.readWriter.Flush(); err != nil {
		return errors.WithStack(errors.Wrap(ErrFlushConn, err))
	}
	return nil
}

// Close closes the underlying connection. Buffered writes are dropped.
func (p *PacketIO) Close() error {
	if err := p.readWriter.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		p.logger.Debug("close connection failed", zap.Error(err))
		return errors.WithStack(errors.Wrap(ErrCloseConn, err))
	}
	return nil
}
