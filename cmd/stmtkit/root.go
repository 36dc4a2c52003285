// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/pingcap/stmtkit/lib/config"
	"github.com/pingcap/stmtkit/lib/util/cmd"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configFile string
	dsn        string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "stmtkit",
		Short:         "compile MySQL client statements",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "go-sql-driver DSN whose parameters override the config, e.g. root@tcp(127.0.0.1:4000)/test?charset=gbk")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides the config")

	rootCmd.AddCommand(
		newTokenizeCmd(opts),
		newBindCmd(opts),
		newRewriteCmd(opts),
		newExecCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

func (opts *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(opts.configFile); err != nil {
			return nil, err
		}
	}
	if opts.dsn != "" {
		if err := cfg.ApplyDSN(opts.dsn); err != nil {
			return nil, err
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the config and builds the logger. The returned func flushes and
// closes the log output.
func (opts *rootOptions) setup() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	lg, syncer, _, err := cmd.BuildLogger(&cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, lg, func() {
		_ = lg.Sync()
		_ = syncer.Close()
	}, nil
}

// argValue is a value given on the command line. NULL binds SQL NULL,
// integers bind as BIGINT and everything else as VARCHAR.
type argValue struct {
	value any
	tp    byte
	null  bool
}

func parseValue(s string) argValue {
	if strings.EqualFold(s, "NULL") {
		return argValue{tp: mysql.TypeNull, null: true}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return argValue{value: i, tp: mysql.TypeLonglong}
	}
	return argValue{value: s, tp: mysql.TypeVarchar}
}

func parseValues(args []string) []argValue {
	values := make([]argValue, 0, len(args))
	for _, arg := range args {
		values = append(values, parseValue(arg))
	}
	return values
}

// parseRow splits a CSV row, so values may contain quoted commas.
func parseRow(row string) ([]argValue, error) {
	r := csv.NewReader(strings.NewReader(row))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	fields, err := r.Read()
	if err != nil {
		return nil, errors.Wrapf(errors.WithStack(err), "row %q", row)
	}
	return parseValues(fields), nil
}

type valueSetter interface {
	Set(pos int, v any, tp byte) error
	SetNull(pos int, tp byte) error
}

func setValues(stmt valueSetter, values []argValue) error {
	for i, v := range values {
		var err error
		if v.null {
			err = stmt.SetNull(i+1, v.tp)
		} else {
			err = stmt.Set(i+1, v.value, v.tp)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
