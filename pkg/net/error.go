// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/pingcap/stmtkit/lib/util/errors"
)

var (
	ErrReadConn        = errors.New("failed to read the connection")
	ErrWriteConn       = errors.New("failed to write the connection")
	ErrFlushConn       = errors.New("failed to flush the connection")
	ErrCloseConn       = errors.New("failed to close the connection")
	ErrInvalidSequence = errors.New("invalid sequence")
	ErrMalformedPacket = errors.New("malformed packet")
)

// IsDisconnectError reports whether the error means the peer is gone.
func IsDisconnectError(err error) bool {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
