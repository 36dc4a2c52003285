// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/metrics"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"go.uber.org/atomic"
)

// Per-row results besides update counts.
const (
	// SuccessNoInfo marks a row that succeeded in a multi-row chunk, whose
	// count is not known per row.
	SuccessNoInfo int64 = -2
	// ExecuteFailed marks a row of a failed chunk.
	ExecuteFailed int64 = -3
)

var (
	ErrBatchFailed = errors.New("batch execution failed")
	ErrCancelled   = errors.New("batch cancelled")
)

// Transport sends a query and returns one result per statement. On error the
// results of the statements that succeeded before the failing one are still
// returned.
type Transport interface {
	Query(ctx context.Context, sql []byte) ([]*gomysql.Result, error)
	MultiStatements() bool
	SetMultiStatements(ctx context.Context, on bool) error
}

// UpdateError is returned when some rows of a batch fail or the batch is
// cancelled. Counts has an element for every row that was attempted.
type UpdateError struct {
	Counts []int64
	err    error
}

func (e *UpdateError) Error() string {
	return e.err.Error()
}

func (e *UpdateError) Unwrap() error {
	return e.err
}

// Executor runs batch plans. Cancel may be called from another goroutine. It
// stops the running batch, or the next one if none is running, before its next
// chunk.
type Executor struct {
	transport Transport
	cancelled atomic.Bool
}

func NewExecutor(transport Transport) *Executor {
	return &Executor{transport: transport}
}

func (e *Executor) Cancel() {
	e.cancelled.Store(true)
}

// Execute sends the chunks of plan in order and returns the per-row counts.
func (e *Executor) Execute(ctx context.Context, plan *Plan, entries []Entry) (counts []int64, err error) {
	defer e.cancelled.Store(false)
	counts = make([]int64, 0, len(entries))
	if len(entries) == 0 {
		return counts, nil
	}

	if plan.Strategy == MultiStatement && !e.transport.MultiStatements() {
		if err := e.transport.SetMultiStatements(ctx, true); err != nil {
			plan = plan.serial()
		} else {
			defer func() {
				rerr := e.transport.SetMultiStatements(context.WithoutCancel(ctx), false)
				if rerr == nil {
					return
				}
				var uerr *UpdateError
				if errors.As(err, &uerr) {
					uerr.err = errors.Collect(ErrBatchFailed, uerr.err, rerr)
				} else {
					err = newUpdateError(counts, ErrBatchFailed, rerr)
				}
			}()
		}
	}
	metrics.BatchStrategyCounter.WithLabelValues(plan.Strategy.String()).Inc()
	metrics.BatchRowsHistogram.Observe(float64(len(entries)))

	var errs []error
	for _, c := range plan.Chunks {
		if e.cancelled.Load() {
			return counts, newUpdateError(counts, ErrCancelled, errs...)
		}
		if cerr := ctx.Err(); cerr != nil {
			return counts, newUpdateError(counts, ErrCancelled, append(errs, cerr)...)
		}
		var chunkErr error
		counts, chunkErr = e.executeChunk(ctx, plan, c, entries, counts)
		if chunkErr != nil {
			errs = append(errs, chunkErr)
			if !plan.opts.ContinueOnError {
				break
			}
		}
	}
	if len(errs) > 0 {
		return counts, newUpdateError(counts, ErrBatchFailed, errs...)
	}
	return counts, nil
}

func newUpdateError(counts []int64, cerr error, errs ...error) *UpdateError {
	err := errors.Collect(cerr, errs...)
	if err == nil {
		err = errors.WithStack(cerr)
	}
	return &UpdateError{Counts: counts, err: err}
}

func (e *Executor) executeChunk(ctx context.Context, plan *Plan, c Chunk, entries []Entry, counts []int64) ([]int64, error) {
	startTime := time.Now()
	results, err := e.query(ctx, plan, c, entries)
	metrics.BatchChunkDurationHistogram.WithLabelValues(plan.Strategy.String()).Observe(time.Since(startTime).Seconds())
	res := metrics.ResOK
	if err != nil {
		res = metrics.ResError
		err = errors.Wrapf(err, "rows [%d, %d)", c.Start, c.End)
	}
	metrics.BatchChunkCounter.WithLabelValues(plan.Strategy.String(), res).Inc()

	rows := c.Rows()
	switch {
	case plan.Strategy == MultiValueInsert && rows > 1:
		count := SuccessNoInfo
		if err != nil {
			count = ExecuteFailed
		}
		for i := 0; i < rows; i++ {
			counts = append(counts, count)
		}
	default:
		// one result per statement; rows after the failing statement did not run
		for i := 0; i < rows; i++ {
			switch {
			case i < len(results) && results[i] != nil:
				counts = append(counts, int64(results[i].AffectedRows))
			case err != nil:
				counts = append(counts, ExecuteFailed)
			default:
				counts = append(counts, SuccessNoInfo)
			}
		}
	}
	return counts, err
}

func (e *Executor) query(ctx context.Context, plan *Plan, c Chunk, entries []Entry) ([]*gomysql.Result, error) {
	sql, err := plan.Statement(c, entries)
	if err != nil {
		return nil, err
	}
	return e.transport.Query(ctx, sql)
}

// serial returns a copy of p that sends one entry per statement.
func (p *Plan) serial() *Plan {
	sp := &Plan{
		Strategy:  Serial,
		ChunkSize: 1,
		tpl:       p.tpl,
		opts:      p.opts,
		derived:   make(map[int]*parse.Template),
	}
	n := 0
	if len(p.Chunks) > 0 {
		n = p.Chunks[len(p.Chunks)-1].End
	}
	for i := 0; i < n; i++ {
		sp.Chunks = append(sp.Chunks, Chunk{Start: i, End: i + 1})
	}
	return sp
}
