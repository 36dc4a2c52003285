// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"io"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/google/uuid"
	"github.com/pingcap/stmtkit/pkg/stmt/batch"
	"github.com/pingcap/stmtkit/pkg/stmt/bind"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"go.uber.org/zap"
)

// PreparedStmt is a tokenized statement with live parameters and a pending
// batch. Parameter positions are 1-based.
type PreparedStmt struct {
	sess     *Session
	tpl      *parse.Template
	params   *bind.Params
	entries  []batch.Entry
	executor *batch.Executor
}

func newPreparedStmt(sess *Session, tpl *parse.Template) *PreparedStmt {
	return &PreparedStmt{
		sess:     sess,
		tpl:      tpl,
		params:   bind.NewParams(tpl.NumParams(), sess.encoder),
		executor: batch.NewExecutor(sess.transport),
	}
}

func (ps *PreparedStmt) Template() *parse.Template {
	return ps.tpl
}

func (ps *PreparedStmt) NumParams() int {
	return ps.params.Len()
}

func (ps *PreparedStmt) Set(pos int, v any, tp byte) error {
	return ps.params.Set(pos-1, v, tp)
}

func (ps *PreparedStmt) SetNull(pos int, tp byte) error {
	return ps.params.SetNull(pos-1, tp)
}

// SetStream binds a reader that is consumed when the statement is sent.
// length < 0 reads to EOF.
func (ps *PreparedStmt) SetStream(pos int, r io.Reader, length int64, binary bool) error {
	return ps.params.SetStream(pos-1, r, length, binary)
}

func (ps *PreparedStmt) ClearParameters() {
	ps.params.Clear()
}

// Statement binds the current parameters without sending.
func (ps *PreparedStmt) Statement() ([]byte, error) {
	return ps.params.Bind(ps.tpl, ps.sess.BindOptions())
}

// Execute binds the current parameters and sends the statement.
func (ps *PreparedStmt) Execute(ctx context.Context) ([]*gomysql.Result, error) {
	sql, err := ps.Statement()
	if err != nil {
		return nil, err
	}
	return ps.sess.transport.Query(ctx, sql)
}

// AddBatch copies the current parameters into the batch.
func (ps *PreparedStmt) AddBatch() {
	ps.entries = append(ps.entries, batch.ParamsEntry(ps.params.Snapshot()))
}

// AddBatchText adds a complete statement to the batch. Such batches are never
// rewritten.
func (ps *PreparedStmt) AddBatchText(sql string) {
	ps.entries = append(ps.entries, batch.TextEntry(sql))
}

func (ps *PreparedStmt) BatchSize() int {
	return len(ps.entries)
}

func (ps *PreparedStmt) ClearBatch() {
	ps.entries = nil
}

// Plan returns how the pending batch would be sent.
func (ps *PreparedStmt) Plan() (*batch.Plan, error) {
	return batch.NewPlan(ps.tpl, ps.entries, ps.sess.BatchOptions())
}

// ExecuteBatch sends the pending batch and returns one count per entry. The
// batch is cleared whatever the outcome. A *batch.UpdateError reports the
// counts of partially executed batches.
func (ps *PreparedStmt) ExecuteBatch(ctx context.Context) ([]int64, error) {
	entries := ps.entries
	ps.entries = nil
	plan, err := batch.NewPlan(ps.tpl, entries, ps.sess.BatchOptions())
	if err != nil {
		return nil, err
	}
	lg := ps.sess.logger.With(zap.Stringer("batch_id", uuid.New()))
	lg.Debug("execute batch",
		zap.Stringer("strategy", plan.Strategy),
		zap.Int("rows", len(entries)),
		zap.Int("chunks", len(plan.Chunks)),
		zap.Int("chunk_size", plan.ChunkSize))
	startTime := time.Now()
	counts, err := ps.executor.Execute(ctx, plan, entries)
	if err != nil {
		lg.Warn("batch failed",
			zap.Int("attempted", len(counts)),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))
		return counts, err
	}
	lg.Debug("batch done", zap.Duration("duration", time.Since(startTime)))
	return counts, nil
}

// Cancel stops a running ExecuteBatch before its next chunk. It may be called
// from another goroutine.
func (ps *PreparedStmt) Cancel() {
	ps.executor.Cancel()
}
