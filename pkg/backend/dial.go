// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"

	"github.com/go-mysql-org/go-mysql/client"
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/config"
	"github.com/pingcap/stmtkit/lib/util/errors"
	pnet "github.com/pingcap/stmtkit/pkg/net"
	"go.uber.org/zap"
)

var ErrDial = errors.New("failed to connect to the server")

// Dial connects and authenticates to cfg.Addr. The handshake is done by the
// go-mysql client, then its connection is taken over.
func Dial(ctx context.Context, cfg *config.Session, user, password string, lg *zap.Logger) (*Conn, error) {
	capability := pnet.ClientProtocol41 | pnet.ClientMultiResults | pnet.ClientTransactions
	if cfg.MultiStatements {
		capability |= pnet.ClientMultiStatements
	}
	cc, err := client.Connect(cfg.Addr, user, password, cfg.Database, func(c *client.Conn) error {
		c.SetCapability(gomysql.CLIENT_MULTI_RESULTS)
		if cfg.MultiStatements {
			c.SetCapability(gomysql.CLIENT_MULTI_STATEMENTS)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrDial, err)
	}
	conn := NewConn(cc.Conn.Conn, capability, lg.With(zap.String("addr", cfg.Addr)))
	if cfg.Charset != "" {
		if _, err := conn.Query(ctx, fmt.Appendf(nil, "SET NAMES %s", cfg.Charset)); err != nil {
			return nil, errors.Collect(ErrDial, err, conn.Close())
		}
	}
	lg.Info("connected", zap.String("addr", cfg.Addr), zap.Stringer("capability", capability))
	return conn, nil
}
