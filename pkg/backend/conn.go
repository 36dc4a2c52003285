// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"net"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/metrics"
	pnet "github.com/pingcap/stmtkit/pkg/net"
	"go.uber.org/zap"
)

var (
	ErrConnBroken      = errors.New("backend connection is broken")
	ErrMalformedResult = errors.New("malformed result")
	ErrLocalInfile     = errors.New("LOAD DATA LOCAL INFILE is not supported")
)

// Conn sends text-protocol commands over an authenticated connection. It
// returns results as go-mysql types. A Conn is not safe for concurrent use.
//
// An I/O failure or a cancelled context in the middle of a command leaves the
// protocol state unknown, so the Conn refuses further commands afterwards.
type Conn struct {
	pkt             *pnet.PacketIO
	logger          *zap.Logger
	capability      pnet.Capability
	multiStatements bool
	broken          error
}

// NewConn wraps a connection whose handshake is already done with the given
// capability.
func NewConn(conn net.Conn, capability pnet.Capability, lg *zap.Logger) *Conn {
	return &Conn{
		pkt:             pnet.NewPacketIO(conn, lg),
		logger:          lg,
		capability:      capability,
		multiStatements: capability&pnet.ClientMultiStatements != 0,
	}
}

func (c *Conn) Capability() pnet.Capability {
	return c.capability
}

func (c *Conn) RemoteAddr() string {
	if addr := c.pkt.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// MultiStatements reports whether the server currently splits a query on ';'.
func (c *Conn) MultiStatements() bool {
	return c.multiStatements
}

// SetMultiStatements switches multi-statement support with COM_SET_OPTION.
func (c *Conn) SetMultiStatements(ctx context.Context, on bool) (err error) {
	if on == c.multiStatements {
		return nil
	}
	option := pnet.OptionMultiStatementsOff
	if on {
		option = pnet.OptionMultiStatementsOn
	}
	err = c.command(ctx, pnet.MakeSetOption(option), func() error {
		data, err := c.pkt.ReadPacket()
		if err != nil {
			return err
		}
		switch {
		case pnet.IsErrorPacket(data):
			return pnet.ParseErrorPacket(data)
		case pnet.IsEOFPacket(data), pnet.IsOKPacket(data):
			return nil
		}
		return errors.Wrapf(ErrMalformedResult, "unexpected %s reply to COM_SET_OPTION", pnet.Header(data[0]).String())
	})
	if err != nil {
		return err
	}
	c.multiStatements = on
	c.logger.Debug("switched multi-statements", zap.Bool("on", on))
	return nil
}

// Query sends a COM_QUERY and reads one result per statement. When a statement
// fails, the results of the statements before it are returned with the error.
func (c *Conn) Query(ctx context.Context, sql []byte) (results []*gomysql.Result, err error) {
	err = c.command(ctx, pnet.MakeQuery(sql), func() error {
		for {
			result, err := c.readResult()
			if err != nil {
				return err
			}
			results = append(results, result)
			if result.Status&gomysql.SERVER_MORE_RESULTS_EXISTS == 0 {
				return nil
			}
		}
	})
	return results, err
}

// Ping sends a COM_PING.
func (c *Conn) Ping(ctx context.Context) error {
	return c.command(ctx, []byte{pnet.ComPing.Byte()}, func() error {
		_, err := c.readResult()
		return err
	})
}

// command writes the request and runs read under the context's deadline.
// Errors sent by the server leave the connection usable.
func (c *Conn) command(ctx context.Context, request []byte, read func() error) error {
	if c.broken != nil {
		return errors.Wrap(ErrConnBroken, c.broken)
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if err := c.pkt.SetDeadline(deadline); err != nil {
			return c.markBroken(ctx, err)
		}
	}
	// Interrupt the blocking I/O when the context is cancelled.
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.pkt.SetDeadline(time.Unix(1, 0))
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
			hasDeadline = true
		}
		if hasDeadline && c.broken == nil {
			_ = c.pkt.SetDeadline(time.Time{})
		}
	}()

	startTime := time.Now()
	c.pkt.ResetSequence()
	if err := c.pkt.WritePacket(request, true); err != nil {
		return c.markBroken(ctx, err)
	}
	err := read()
	res := metrics.ResOK
	if err != nil {
		res = metrics.ResError
	}
	metrics.QueryDurationHistogram.WithLabelValues(res).Observe(time.Since(startTime).Seconds())
	var merr *gomysql.MyError
	if err == nil || errors.As(err, &merr) || errors.Is(err, ErrLocalInfile) {
		return err
	}
	return c.markBroken(ctx, err)
}

func (c *Conn) markBroken(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Collect(ErrConnBroken, ctxErr, err)
	} else {
		err = errors.Wrap(ErrConnBroken, err)
	}
	c.broken = err
	c.logger.Warn("backend connection is broken", zap.String("addr", c.RemoteAddr()), zap.Error(err))
	return err
}

// Close sends COM_QUIT when the connection is still healthy and closes it.
func (c *Conn) Close() error {
	if c.broken == nil {
		c.pkt.ResetSequence()
		if err := c.pkt.WritePacket([]byte{pnet.ComQuit.Byte()}, true); err != nil {
			c.logger.Debug("send COM_QUIT failed", zap.Error(err))
		}
		c.broken = net.ErrClosed
	}
	return c.pkt.Close()
}
