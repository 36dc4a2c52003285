// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"errors"
	"net"
	"testing"

	"github.com/pingcap/stmtkit/lib/util/waitgroup"
	"github.com/stretchr/testify/require"
)

// closeConn runs deferred, so a failed assertion on one side still closes its
// end and the peer stops waiting instead of running into the test timeout.
func closeConn(t *testing.T, c net.Conn) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Errorf("close %s: %v", c.LocalAddr(), err)
	}
}

// TestPipeConn runs a as the client and b as the server over net.Pipe, loop
// times.
func TestPipeConn(t *testing.T, a, b func(*testing.T, net.Conn), loop int) {
	for i := 0; i < loop; i++ {
		var wg waitgroup.WaitGroup
		cli, srv := net.Pipe()
		if ddl, ok := t.Deadline(); ok {
			require.NoError(t, cli.SetDeadline(ddl))
			require.NoError(t, srv.SetDeadline(ddl))
		}
		wg.Run(func() {
			defer closeConn(t, cli)
			a(t, cli)
		})
		wg.Run(func() {
			defer closeConn(t, srv)
			b(t, srv)
		})
		wg.Wait()
	}
}

// TestTCPConn is TestPipeConn over a loopback TCP connection.
func TestTCPConn(t *testing.T, a, b func(*testing.T, net.Conn), loop int) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, listener.Close())
	}()
	for i := 0; i < loop; i++ {
		var wg waitgroup.WaitGroup
		wg.Run(func() {
			cli, err := net.Dial("tcp", listener.Addr().String())
			if err != nil {
				// unblock Accept
				_ = listener.Close()
				require.NoError(t, err)
			}
			defer closeConn(t, cli)
			if ddl, ok := t.Deadline(); ok {
				require.NoError(t, cli.SetDeadline(ddl))
			}
			a(t, cli)
		})
		wg.Run(func() {
			srv, err := listener.Accept()
			require.NoError(t, err)
			defer closeConn(t, srv)
			if ddl, ok := t.Deadline(); ok {
				require.NoError(t, srv.SetDeadline(ddl))
			}
			b(t, srv)
		})
		wg.Wait()
	}
}
