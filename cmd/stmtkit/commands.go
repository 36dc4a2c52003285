// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/stmtkit/lib/config"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/backend"
	"github.com/pingcap/stmtkit/pkg/metadata"
	"github.com/pingcap/stmtkit/pkg/metrics"
	"github.com/pingcap/stmtkit/pkg/session"
	"github.com/pingcap/stmtkit/pkg/stmt/cache"
	"github.com/pingcap/stmtkit/pkg/stmt/callable"
	"github.com/pingcap/stmtkit/pkg/util/lex"
	"github.com/pingcap/tidb/pkg/parser"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dryRunTransport prints statements instead of sending them.
type dryRunTransport struct {
	out   io.Writer
	multi bool
}

func (t *dryRunTransport) Query(_ context.Context, sql []byte) ([]*gomysql.Result, error) {
	_, err := fmt.Fprintf(t.out, "%s\n", sql)
	return nil, errors.WithStack(err)
}

func (t *dryRunTransport) MultiStatements() bool {
	return t.multi
}

func (t *dryRunTransport) SetMultiStatements(_ context.Context, on bool) error {
	t.multi = on
	state := "off"
	if on {
		state = "on"
	}
	_, err := fmt.Fprintf(t.out, "-- multi-statements %s\n", state)
	return errors.WithStack(err)
}

// offlineSession builds a session that never talks to a server.
func offlineSession(cfg *config.Config, out io.Writer, lg *zap.Logger) (*session.Session, func(), error) {
	registry := cache.NewRegistry(cfg.Cache)
	sess, err := session.New(cfg, &dryRunTransport{out: out, multi: cfg.Session.MultiStatements}, nil, registry, lg)
	if err != nil {
		registry.Close()
		return nil, nil, err
	}
	return sess, registry.Close, nil
}

func newTokenizeCmd(opts *rootOptions) *cobra.Command {
	var check bool
	tokenizeCmd := &cobra.Command{
		Use:   "tokenize SQL",
		Short: "show the placeholders and rewrite properties of a statement",
		Args:  cobra.ExactArgs(1),
	}
	tokenizeCmd.Flags().BoolVar(&check, "check", false, "also check the syntax with the TiDB parser")
	tokenizeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, lg, closeLog, err := opts.setup()
		if err != nil {
			return err
		}
		defer closeLog()
		sess, closeSess, err := offlineSession(cfg, cmd.OutOrStdout(), lg)
		if err != nil {
			return err
		}
		defer closeSess()

		tpl, err := sess.Tokenize(args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "placeholders:\t%d\n", tpl.NumParams())
		fmt.Fprintf(w, "first char:\t%c\n", tpl.FirstChar)
		fmt.Fprintf(w, "bulk load:\t%t\n", tpl.BulkLoad)
		fmt.Fprintf(w, "rewrite eligible:\t%t\n", tpl.RewriteEligible)
		if tpl.ValuesClause != "" {
			fmt.Fprintf(w, "values clause:\t%s\n", tpl.ValuesClause)
		}
		if tpl.HasODKU() {
			fmt.Fprintf(w, "on duplicate key update at:\t%d\n", tpl.ODKUOffset)
		}
		for i, frag := range tpl.Fragments {
			fmt.Fprintf(w, "fragment %d:\t%q\n", i, frag)
		}
		if err := w.Flush(); err != nil {
			return errors.WithStack(err)
		}
		if check {
			// placeholders are checked as NULL literals
			stmt, err := sess.Prepare(args[0])
			if err != nil {
				return err
			}
			for i := 1; i <= stmt.NumParams(); i++ {
				if err := stmt.SetNull(i, gomysql.MYSQL_TYPE_NULL); err != nil {
					return err
				}
			}
			sql, err := stmt.Statement()
			if err != nil {
				return err
			}
			if _, err := parser.New().ParseOneStmt(string(sql), cfg.Session.Charset, ""); err != nil {
				return errors.Wrapf(errors.WithStack(err), "syntax check")
			}
			cmd.Println("syntax: ok")
		}
		return nil
	}
	return tokenizeCmd
}

func newBindCmd(opts *rootOptions) *cobra.Command {
	bindCmd := &cobra.Command{
		Use:   "bind SQL [VALUE...]",
		Short: "substitute values into the placeholders of a statement",
		Args:  cobra.MinimumNArgs(1),
	}
	bindCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, lg, closeLog, err := opts.setup()
		if err != nil {
			return err
		}
		defer closeLog()
		sess, closeSess, err := offlineSession(cfg, cmd.OutOrStdout(), lg)
		if err != nil {
			return err
		}
		defer closeSess()

		stmt, err := sess.Prepare(args[0])
		if err != nil {
			return err
		}
		if err := setValues(stmt, parseValues(args[1:])); err != nil {
			return err
		}
		sql, err := stmt.Statement()
		if err != nil {
			return err
		}
		cmd.Printf("%s\n", sql)
		return nil
	}
	return bindCmd
}

func newRewriteCmd(opts *rootOptions) *cobra.Command {
	var (
		rows            []string
		rewrite         bool
		multiStatements bool
	)
	rewriteCmd := &cobra.Command{
		Use:   "rewrite SQL --row VALUES...",
		Short: "show how a batch of rows is sent",
		Args:  cobra.ExactArgs(1),
	}
	rewriteCmd.Flags().StringArrayVar(&rows, "row", nil, "comma separated values of one batch entry, repeatable")
	rewriteCmd.Flags().BoolVar(&rewrite, "rewrite", true, "rewrite the batch into multi-row or multi-statement form")
	rewriteCmd.Flags().BoolVar(&multiStatements, "multi-statements", false, "start with multi-statements enabled on the connection")
	rewriteCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, lg, closeLog, err := opts.setup()
		if err != nil {
			return err
		}
		defer closeLog()
		if lex.ReturnsResultSet(args[0]) {
			return errors.Errorf("statements returning rows can not be batched: %q", args[0])
		}
		cfg.Batch.RewriteBatchedStatements = rewrite
		cfg.Session.MultiStatements = cfg.Session.MultiStatements || multiStatements
		sess, closeSess, err := offlineSession(cfg, cmd.OutOrStdout(), lg)
		if err != nil {
			return err
		}
		defer closeSess()

		stmt, err := sess.Prepare(args[0])
		if err != nil {
			return err
		}
		for _, row := range rows {
			values, err := parseRow(row)
			if err != nil {
				return err
			}
			stmt.ClearParameters()
			if err := setValues(stmt, values); err != nil {
				return err
			}
			stmt.AddBatch()
		}
		plan, err := stmt.Plan()
		if err != nil {
			return err
		}
		cmd.Printf("-- strategy %s, %d rows in %d chunks\n", plan.Strategy, stmt.BatchSize(), len(plan.Chunks))
		_, err = stmt.ExecuteBatch(cmd.Context())
		return err
	}
	return rewriteCmd
}

func newExecCmd(opts *rootOptions) *cobra.Command {
	var (
		call        bool
		outputs     []int
		dumpMetrics bool
	)
	execCmd := &cobra.Command{
		Use:   "exec SQL [VALUE...]",
		Short: "bind values and run a statement on the server given by --dsn",
		Args:  cobra.MinimumNArgs(1),
	}
	execCmd.Flags().BoolVar(&call, "call", false, "the statement calls a stored routine, implied by a leading CALL")
	execCmd.Flags().IntSliceVar(&outputs, "out", nil, "placeholder positions of output parameters to read")
	execCmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "print the metrics afterwards")
	execCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if opts.dsn == "" {
			return errors.New("exec requires --dsn")
		}
		mc, err := mysql.ParseDSN(opts.dsn)
		if err != nil {
			return errors.WithStack(err)
		}
		cfg, lg, closeLog, err := opts.setup()
		if err != nil {
			return err
		}
		defer closeLog()
		ctx := cmd.Context()
		call = call || lex.IsCall(args[0])

		conn, err := backend.Dial(ctx, &cfg.Session, mc.User, mc.Passwd, lg)
		if err != nil {
			return err
		}
		defer func() {
			if err := conn.Close(); err != nil {
				lg.Warn("close connection failed", zap.Error(err))
			}
		}()
		var meta session.ProcedureMetadata
		if call {
			provider, err := metadata.Open(opts.dsn, lg)
			if err != nil {
				return err
			}
			defer provider.Close()
			meta = provider
		}
		registry := cache.NewRegistry(cfg.Cache)
		defer registry.Close()
		sess, err := session.New(cfg, conn, meta, registry, lg)
		if err != nil {
			return err
		}
		if err := sess.SyncServerVars(ctx); err != nil {
			return err
		}

		values := parseValues(args[1:])
		var results []*gomysql.Result
		if call {
			results, err = execCall(ctx, cmd, sess, args[0], values, outputs)
		} else {
			results, err = execStatement(ctx, sess, args[0], values)
		}
		if perr := printResults(cmd.OutOrStdout(), results); perr != nil && err == nil {
			err = perr
		}
		if err != nil {
			return err
		}
		if dumpMetrics {
			if err := metrics.Register(nil); err != nil {
				return err
			}
			return metrics.WriteText(cmd.OutOrStdout(), prometheus.DefaultGatherer)
		}
		return nil
	}
	return execCmd
}

func execStatement(ctx context.Context, sess *session.Session, sql string, values []argValue) ([]*gomysql.Result, error) {
	stmt, err := sess.Prepare(sql)
	if err != nil {
		return nil, err
	}
	if err := setValues(stmt, values); err != nil {
		return nil, err
	}
	return stmt.Execute(ctx)
}

// execCall binds values to the input placeholders in order. Values given for
// OUT placeholders are ignored.
func execCall(ctx context.Context, cmd *cobra.Command, sess *session.Session, sql string, values []argValue, outputs []int) ([]*gomysql.Result, error) {
	stmt, err := sess.PrepareCall(ctx, sql)
	if err != nil {
		return nil, err
	}
	resolver := stmt.Resolver()
	for i, v := range values {
		pos := i + 1
		p, err := resolver.Param(pos)
		if err != nil {
			return nil, err
		}
		if p.Direction == callable.Out {
			continue
		}
		if v.null {
			err = stmt.SetNull(pos, v.tp)
		} else {
			err = stmt.Set(pos, v.value, v.tp)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, pos := range outputs {
		if err := stmt.RegisterOut(pos, gomysql.MYSQL_TYPE_VAR_STRING); err != nil {
			return nil, err
		}
	}
	results, err := stmt.Execute(ctx)
	if err != nil {
		return results, err
	}
	if resolver.CallSite().Function {
		v, err := stmt.ReturnValue()
		if err != nil {
			return results, err
		}
		cmd.Printf("return: %v\n", v)
	}
	for _, pos := range outputs {
		v, err := stmt.Output(pos)
		if err != nil {
			return results, err
		}
		cmd.Printf("out %d: %v\n", pos, v)
	}
	return results, nil
}

func printResults(out io.Writer, results []*gomysql.Result) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, result := range results {
		if result == nil {
			continue
		}
		if result.Resultset == nil {
			fmt.Fprintf(w, "OK, %d rows affected\n", result.AffectedRows)
			continue
		}
		for i, field := range result.Fields {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprintf(w, "%s", field.Name)
		}
		fmt.Fprintln(w)
		for _, row := range result.Values {
			for i, v := range row {
				if i > 0 {
					fmt.Fprint(w, "\t")
				}
				if val := backend.Value(v); val == nil {
					fmt.Fprint(w, "NULL")
				} else {
					fmt.Fprint(w, val)
				}
			}
			fmt.Fprintln(w)
		}
	}
	return errors.WithStack(w.Flush())
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	var info string
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if info != "" {
				out, err := config.ConfigInfo(info)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			b, err := cfg.ToBytes()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return errors.WithStack(err)
		},
	}
	configCmd.Flags().StringVar(&info, "info", "", "list all config items in the given format (json) and exit")
	return configCmd
}
