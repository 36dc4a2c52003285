// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/backend"
	"github.com/pingcap/stmtkit/pkg/metrics"
	"github.com/pingcap/stmtkit/pkg/stmt/bind"
	"github.com/pingcap/stmtkit/pkg/stmt/callable"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"go.uber.org/zap"
)

// CallableStmt calls a stored routine. Positions are the 1-based placeholder
// positions of the call; parameters passed as literals have none.
type CallableStmt struct {
	sess     *Session
	tpl      *parse.Template
	resolver *callable.Resolver
	params   *bind.Params
}

func newCallableStmt(sess *Session, tpl *parse.Template, resolver *callable.Resolver) *CallableStmt {
	return &CallableStmt{
		sess:     sess,
		tpl:      tpl,
		resolver: resolver,
		params:   bind.NewParams(tpl.NumParams(), sess.encoder),
	}
}

func (cs *CallableStmt) Resolver() *callable.Resolver {
	return cs.resolver
}

// Set binds an IN or INOUT value.
func (cs *CallableStmt) Set(pos int, v any, tp byte) error {
	if err := cs.resolver.Bind(pos); err != nil {
		return err
	}
	return cs.params.Set(pos-1, v, tp)
}

func (cs *CallableStmt) SetNull(pos int, tp byte) error {
	if err := cs.resolver.Bind(pos); err != nil {
		return err
	}
	return cs.params.SetNull(pos-1, tp)
}

func (cs *CallableStmt) SetByName(name string, v any, tp byte) error {
	pos, err := cs.resolver.Position(name)
	if err != nil {
		return err
	}
	return cs.Set(pos, v, tp)
}

// RegisterOut marks an OUT or INOUT parameter to be read after execution.
func (cs *CallableStmt) RegisterOut(pos int, tp byte) error {
	return cs.resolver.RegisterOutput(pos, tp)
}

func (cs *CallableStmt) RegisterOutByName(name string, tp byte) error {
	pos, err := cs.resolver.Position(name)
	if err != nil {
		return err
	}
	return cs.RegisterOut(pos, tp)
}

func (cs *CallableStmt) ClearParameters() {
	cs.params.Clear()
}

// Execute sends the SET statements of INOUT values, the call, and the query
// reading the output parameters. The results of the call are returned.
func (cs *CallableStmt) Execute(ctx context.Context) ([]*gomysql.Result, error) {
	opts := cs.sess.BindOptions()
	exec, err := cs.resolver.PrepareExecution(cs.params.Slots(), opts)
	if err != nil {
		return nil, err
	}
	for _, set := range exec.SetStatements {
		if _, err := cs.sess.transport.Query(ctx, set); err != nil {
			return nil, err
		}
	}
	sql, err := bind.Bind(cs.tpl, exec.Slots, opts)
	if err != nil {
		return nil, err
	}
	results, err := cs.sess.transport.Query(ctx, sql)
	if err != nil {
		return results, err
	}
	cs.resolver.MarkExecuted()

	site := cs.resolver.CallSite()
	if site.Function {
		if len(results) == 0 || results[0].Resultset == nil || len(results[0].Values) == 0 || len(results[0].Values[0]) == 0 {
			return results, errors.Wrapf(ErrNoResult, "function %s", site.Name)
		}
		if err := cs.resolver.SetReturnValue(backend.Value(results[0].Values[0][0])); err != nil {
			return results, err
		}
	}
	if cs.resolver.HasOutputParams() {
		if err := cs.readOutputs(ctx); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (cs *CallableStmt) readOutputs(ctx context.Context) (err error) {
	defer func() {
		res := metrics.ResOK
		if err != nil {
			res = metrics.ResError
			cs.sess.logger.Warn("read output parameters failed", zap.String("routine", cs.resolver.CallSite().Name), zap.Error(err))
		}
		metrics.OutParamRoundTripCounter.WithLabelValues(res).Inc()
	}()
	query, err := cs.resolver.OutputQuery()
	if err != nil {
		return err
	}
	stmt, err := cs.sess.encoder.Transcode([]byte(query))
	if err != nil {
		return err
	}
	results, err := cs.sess.transport.Query(ctx, stmt)
	if err != nil {
		return err
	}
	if len(results) == 0 || results[0].Resultset == nil || len(results[0].Values) == 0 {
		return errors.Wrapf(ErrNoResult, "%s", query)
	}
	fields := results[0].Values[0]
	row := make([]any, len(fields))
	for i := range fields {
		row[i] = backend.Value(fields[i])
	}
	return cs.resolver.SetOutputs(row)
}

// Output returns the value of the output parameter at pos from the last
// execution.
func (cs *CallableStmt) Output(pos int) (any, error) {
	return cs.resolver.Output(pos)
}

func (cs *CallableStmt) OutputByName(name string) (any, error) {
	return cs.resolver.OutputByName(name)
}

// ReturnValue returns the result of a function call.
func (cs *CallableStmt) ReturnValue() (any, error) {
	return cs.resolver.ReturnValue()
}
