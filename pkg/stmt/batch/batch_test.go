// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"strings"
	"testing"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/stmt/bind"
	"github.com/pingcap/stmtkit/pkg/stmt/encode"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"github.com/pingcap/stmtkit/pkg/util/lex"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	queries []string
	multi   bool
	toggles []bool
	// statements containing fail return a duplicate key error
	fail      string
	toggleErr error
	onQuery   func(n int)
}

func (m *mockTransport) Query(_ context.Context, sql []byte) ([]*gomysql.Result, error) {
	m.queries = append(m.queries, string(sql))
	if m.onQuery != nil {
		m.onQuery(len(m.queries))
	}
	var results []*gomysql.Result
	for _, stmt := range strings.Split(string(sql), ";") {
		if m.fail != "" && strings.Contains(stmt, m.fail) {
			return results, &gomysql.MyError{Code: mysql.ErrDupEntry, Message: "Duplicate entry", State: "23000"}
		}
		results = append(results, &gomysql.Result{AffectedRows: 1})
	}
	return results, nil
}

func (m *mockTransport) MultiStatements() bool {
	return m.multi
}

func (m *mockTransport) SetMultiStatements(_ context.Context, on bool) error {
	if m.toggleErr != nil {
		return m.toggleErr
	}
	m.toggles = append(m.toggles, on)
	m.multi = on
	return nil
}

func tokenize(t *testing.T, sql string) *parse.Template {
	tpl, err := parse.Tokenize(sql, parse.Options{IdentQuote: lex.DefaultIdentQuote, BackslashEscapes: true})
	require.NoError(t, err)
	return tpl
}

// rows builds one entry per row of values.
func rows(t *testing.T, values ...[]any) []Entry {
	enc := encode.NewEncoder(encode.Config{BackslashEscapes: true})
	entries := make([]Entry, 0, len(values))
	for _, row := range values {
		params := bind.NewParams(len(row), enc)
		for i, v := range row {
			tp := mysql.TypeLonglong
			if _, ok := v.(string); ok {
				tp = mysql.TypeVarString
			}
			require.NoError(t, params.Set(i, v, tp))
		}
		entries = append(entries, ParamsEntry(params.Snapshot()))
	}
	return entries
}

func ints(n int) [][]any {
	values := make([][]any, 0, n)
	for i := 1; i <= n; i++ {
		values = append(values, []any{i})
	}
	return values
}

func defaultOptions() Options {
	return Options{MaxPacket: 1 << 20, Rewrite: true}
}

func requireParses(t *testing.T, sql string) {
	_, _, err := parser.New().ParseSQL(sql)
	require.NoError(t, err, sql)
}

func TestStrategy(t *testing.T) {
	tests := []struct {
		sql      string
		rows     int
		text     bool
		opts     func(*Options)
		strategy Strategy
	}{
		{sql: "INSERT INTO t (a) VALUES (?)", rows: 3, strategy: MultiValueInsert},
		{sql: "INSERT INTO t (a) VALUES (?)", rows: 1, strategy: Serial},
		{sql: "REPLACE INTO t VALUES (?)", rows: 2, strategy: MultiValueInsert},
		{sql: "INSERT INTO t (a) VALUES (?)", rows: 3, opts: func(o *Options) { o.Rewrite = false }, strategy: Serial},
		{sql: "INSERT INTO t (a) VALUES (?)", rows: 3, text: true, strategy: Serial},
		{sql: "INSERT INTO t (a) SELECT ?", rows: 5, strategy: Serial},
		{sql: "INSERT INTO t (a) SELECT ?", rows: 5, opts: func(o *Options) { o.MultiStatements = true }, strategy: MultiStatement},
		{sql: "INSERT INTO t (a) VALUES (?) ON DUPLICATE KEY UPDATE a = ?", rows: 5, opts: func(o *Options) { o.MultiStatements = true }, strategy: MultiStatement},
		{sql: "INSERT INTO t (a) VALUES (?) ON DUPLICATE KEY UPDATE a = ?", rows: 5, strategy: Serial},
		{sql: "UPDATE t SET a = ?", rows: 4, opts: func(o *Options) { o.MultiStatements = true }, strategy: MultiStatement},
		{sql: "UPDATE t SET a = ?", rows: 3, opts: func(o *Options) { o.MultiStatements = true }, strategy: Serial},
		{sql: "UPDATE t SET a = ?", rows: 10, strategy: Serial},
		{sql: "LOAD DATA LOCAL INFILE ? INTO TABLE t", rows: 10, opts: func(o *Options) { o.MultiStatements = true }, strategy: Serial},
	}
	for i, test := range tests {
		tpl := tokenize(t, test.sql)
		opts := defaultOptions()
		if test.opts != nil {
			test.opts(&opts)
		}
		values := make([][]any, 0, test.rows)
		for j := 0; j < test.rows; j++ {
			row := make([]any, tpl.NumParams())
			for k := range row {
				row[k] = j
			}
			values = append(values, row)
		}
		entries := rows(t, values...)
		if test.text {
			entries[1] = TextEntry("INSERT INTO t (a) VALUES (100)")
		}
		plan, err := NewPlan(tpl, entries, opts)
		require.NoError(t, err, "case %d", i)
		require.Equal(t, test.strategy, plan.Strategy, "case %d", i)
	}
}

func TestParameterCountMismatch(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a, b) VALUES (?, ?)")
	_, err := NewPlan(tpl, rows(t, []any{1, 2}, []any{1}), defaultOptions())
	require.ErrorIs(t, err, bind.ErrParameterCountMismatch)
}

func TestMultiValueInsert(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a) VALUES (?)")
	entries := rows(t, ints(3)...)
	plan, err := NewPlan(tpl, entries, defaultOptions())
	require.NoError(t, err)
	require.Equal(t, []Chunk{{Start: 0, End: 3}}, plan.Chunks)

	transport := &mockTransport{}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Equal(t, []string{"INSERT INTO t (a) VALUES (1),(2),(3)"}, transport.queries)
	require.Equal(t, []int64{SuccessNoInfo, SuccessNoInfo, SuccessNoInfo}, counts)
	requireParses(t, transport.queries[0])
}

func TestOnDuplicateKeyUpdateOnce(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a, b) VALUES (?, ?) ON DUPLICATE KEY UPDATE b = VALUES(b)")
	entries := rows(t, []any{1, "x"}, []any{2, "y"})
	plan, err := NewPlan(tpl, entries, defaultOptions())
	require.NoError(t, err)
	require.Equal(t, MultiValueInsert, plan.Strategy)

	transport := &mockTransport{}
	_, err = NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Equal(t, []string{"INSERT INTO t (a, b) VALUES (1, 'x'),(2, 'y') ON DUPLICATE KEY UPDATE b = VALUES(b)"}, transport.queries)
	require.Equal(t, 1, strings.Count(transport.queries[0], "ON DUPLICATE KEY UPDATE"))
	requireParses(t, transport.queries[0])

	tpl = tokenize(t, "INSERT INTO t (a) VALUES (?) ON DUPLICATE KEY UPDATE a=a+1")
	entries = rows(t, ints(3)...)
	plan, err = NewPlan(tpl, entries, defaultOptions())
	require.NoError(t, err)
	transport = &mockTransport{}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Equal(t, []string{"INSERT INTO t (a) VALUES (1),(2),(3) ON DUPLICATE KEY UPDATE a=a+1"}, transport.queries)
	require.Equal(t, []int64{SuccessNoInfo, SuccessNoInfo, SuccessNoInfo}, counts)
	requireParses(t, transport.queries[0])
}

func TestChunking(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a) VALUES (?)")
	entries := rows(t, ints(5)...)
	opts := defaultOptions()
	// exactly two rows fit
	opts.MaxPacket = len("INSERT INTO t (a) VALUES (1),(2)")
	plan, err := NewPlan(tpl, entries, opts)
	require.NoError(t, err)
	require.Equal(t, 2, plan.ChunkSize)
	require.Equal(t, []Chunk{{0, 2}, {2, 4}, {4, 5}}, plan.Chunks)

	transport := &mockTransport{}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Equal(t, []string{
		"INSERT INTO t (a) VALUES (1),(2)",
		"INSERT INTO t (a) VALUES (3),(4)",
		"INSERT INTO t (a) VALUES (5)",
	}, transport.queries)
	// the single-row remainder reports its real count
	require.Equal(t, []int64{SuccessNoInfo, SuccessNoInfo, SuccessNoInfo, SuccessNoInfo, 1}, counts)
	for _, q := range transport.queries {
		require.LessOrEqual(t, len(q), opts.MaxPacket)
	}
}

func TestChunkSizeBound(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a, b) VALUES (?, ?)")
	values := make([][]any, 0, 50)
	for i := 0; i < 50; i++ {
		values = append(values, []any{i * 1000, strings.Repeat("v", i%7)})
	}
	entries := rows(t, values...)
	prev := 0
	for packet := 16; packet < 4096; packet += 7 {
		opts := defaultOptions()
		opts.MaxPacket = packet
		plan, err := NewPlan(tpl, entries, opts)
		require.NoError(t, err)
		require.GreaterOrEqual(t, plan.ChunkSize, 1)
		require.LessOrEqual(t, plan.ChunkSize, len(entries))
		require.GreaterOrEqual(t, plan.ChunkSize, prev, "packet %d", packet)
		prev = plan.ChunkSize

		total := 0
		for _, c := range plan.Chunks {
			total += c.Rows()
			sql, err := plan.Statement(c, entries)
			require.NoError(t, err)
			if c.Rows() > 1 {
				require.LessOrEqual(t, len(sql), packet)
			}
		}
		require.Equal(t, len(entries), total)
	}
}

func TestChunkSize(t *testing.T) {
	entries := rows(t, []any{"abc"}, []any{"a"})
	tests := []struct {
		maxPacket, overhead, perRow int
		expect                      int
	}{
		{100, 10, 5, 2},
		{20, 10, 5, 1},
		{10, 10, 5, 1},
		{5, 10, 5, 1},
		{30, 10, 5, 2},
		{29, 10, 5, 1},
	}
	for i, test := range tests {
		require.Equal(t, test.expect, ChunkSize(test.maxPacket, test.overhead, test.perRow, entries), "case %d", i)
	}
	require.Equal(t, 1, ChunkSize(100, 0, 1, nil))
}

func TestMultiStatement(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET b = ? WHERE a = ?")
	entries := rows(t, []any{"x", 1}, []any{"y", 2}, []any{"z", 3}, []any{"w", 4})
	opts := defaultOptions()
	opts.MultiStatements = true
	plan, err := NewPlan(tpl, entries, opts)
	require.NoError(t, err)
	require.Equal(t, MultiStatement, plan.Strategy)

	transport := &mockTransport{}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Equal(t, []string{"UPDATE t SET b = 'x' WHERE a = 1;UPDATE t SET b = 'y' WHERE a = 2;UPDATE t SET b = 'z' WHERE a = 3;UPDATE t SET b = 'w' WHERE a = 4"}, transport.queries)
	require.Equal(t, []int64{1, 1, 1, 1}, counts)
	// enabled for the batch and restored
	require.Equal(t, []bool{true, false}, transport.toggles)
	requireParses(t, transport.queries[0])

	// already enabled, left alone
	transport = &mockTransport{multi: true}
	_, err = NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Empty(t, transport.toggles)
}

func TestMultiStatementPartialFailure(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET b = ? WHERE a = ?")
	entries := rows(t, []any{"x", 1}, []any{"dup", 2}, []any{"z", 3}, []any{"w", 4})
	opts := defaultOptions()
	opts.MultiStatements = true
	plan, err := NewPlan(tpl, entries, opts)
	require.NoError(t, err)

	transport := &mockTransport{multi: true, fail: "dup"}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.ErrorIs(t, err, ErrBatchFailed)
	var uerr *UpdateError
	require.True(t, errors.As(err, &uerr))
	require.Equal(t, []int64{1, ExecuteFailed, ExecuteFailed, ExecuteFailed}, uerr.Counts)
	require.Equal(t, uerr.Counts, counts)
}

func TestMultiStatementFallback(t *testing.T) {
	tpl := tokenize(t, "DELETE FROM t WHERE a = ?")
	entries := rows(t, ints(4)...)
	opts := defaultOptions()
	opts.MultiStatements = true
	plan, err := NewPlan(tpl, entries, opts)
	require.NoError(t, err)

	transport := &mockTransport{toggleErr: errors.New("no permission")}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Len(t, transport.queries, 4)
	require.Equal(t, "DELETE FROM t WHERE a = 1", transport.queries[0])
	require.Equal(t, []int64{1, 1, 1, 1}, counts)
}

func TestSerialFailure(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET b = ?")
	entries := rows(t, []any{"a"}, []any{"dup"}, []any{"c"})

	for _, continueOnError := range []bool{false, true} {
		opts := defaultOptions()
		opts.ContinueOnError = continueOnError
		plan, err := NewPlan(tpl, entries, opts)
		require.NoError(t, err)
		require.Equal(t, Serial, plan.Strategy)

		transport := &mockTransport{fail: "dup"}
		counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
		require.ErrorIs(t, err, ErrBatchFailed)
		var myErr *gomysql.MyError
		require.True(t, errors.As(err, &myErr))
		require.EqualValues(t, mysql.ErrDupEntry, myErr.Code)
		if continueOnError {
			require.Equal(t, []int64{1, ExecuteFailed, 1}, counts)
			require.Len(t, transport.queries, 3)
		} else {
			require.Equal(t, []int64{1, ExecuteFailed}, counts)
			require.Len(t, transport.queries, 2)
		}
	}
}

func TestMultiValueInsertChunkFailure(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a) VALUES (?)")
	entries := rows(t, []any{"a"}, []any{"b"}, []any{"z"}, []any{"d"})
	opts := defaultOptions()
	opts.MaxPacket = len("INSERT INTO t (a) VALUES ('a'),('b')")
	opts.ContinueOnError = true
	plan, err := NewPlan(tpl, entries, opts)
	require.NoError(t, err)
	require.Equal(t, 2, plan.ChunkSize)

	transport := &mockTransport{fail: "'z'"}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.ErrorIs(t, err, ErrBatchFailed)
	require.Equal(t, []int64{SuccessNoInfo, SuccessNoInfo, ExecuteFailed, ExecuteFailed}, counts)
}

func TestTextEntries(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a) VALUES (?)")
	entries := rows(t, ints(2)...)
	entries = append(entries, TextEntry("DELETE FROM t WHERE a = 1"))
	plan, err := NewPlan(tpl, entries, defaultOptions())
	require.NoError(t, err)
	require.Equal(t, Serial, plan.Strategy)

	transport := &mockTransport{}
	counts, err := NewExecutor(transport).Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Equal(t, []string{
		"INSERT INTO t (a) VALUES (1)",
		"INSERT INTO t (a) VALUES (2)",
		"DELETE FROM t WHERE a = 1",
	}, transport.queries)
	require.Equal(t, []int64{1, 1, 1}, counts)
}

func TestCancel(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET a = ?")
	entries := rows(t, ints(3)...)
	plan, err := NewPlan(tpl, entries, defaultOptions())
	require.NoError(t, err)

	transport := &mockTransport{}
	executor := NewExecutor(transport)
	transport.onQuery = func(n int) {
		if n == 2 {
			executor.Cancel()
		}
	}
	counts, err := executor.Execute(context.Background(), plan, entries)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, []int64{1, 1}, counts)

	// the flag is cleared after the batch
	transport.onQuery = nil
	counts, err = executor.Execute(context.Background(), plan, entries)
	require.NoError(t, err)
	require.Len(t, counts, 3)
}

func TestContextCancel(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET a = ?")
	entries := rows(t, ints(2)...)
	plan, err := NewPlan(tpl, entries, defaultOptions())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	counts, err := NewExecutor(&mockTransport{}).Execute(ctx, plan, entries)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, counts)
}

func TestEmptyBatch(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET a = ?")
	plan, err := NewPlan(tpl, nil, defaultOptions())
	require.NoError(t, err)
	require.Empty(t, plan.Chunks)
	counts, err := NewExecutor(&mockTransport{}).Execute(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestStatementComment(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t (a) VALUES (?)")
	entries := rows(t, ints(2)...)
	opts := defaultOptions()
	opts.Bind.Comment = "batch"
	plan, err := NewPlan(tpl, entries, opts)
	require.NoError(t, err)
	sql, err := plan.Statement(plan.Chunks[0], entries)
	require.NoError(t, err)
	require.Equal(t, "/* batch */ INSERT INTO t (a) VALUES (1),(2)", string(sql))
	requireParses(t, string(sql))

	// free-text entries carry the comment, too
	entries = append(rows(t, ints(1)...), TextEntry("DELETE FROM t"))
	plan, err = NewPlan(tpl, entries, opts)
	require.NoError(t, err)
	require.Equal(t, Serial, plan.Strategy)
	sql, err = plan.Statement(plan.Chunks[1], entries)
	require.NoError(t, err)
	require.Equal(t, "/* batch */ DELETE FROM t", string(sql))
	requireParses(t, string(sql))
}

func TestStrategyString(t *testing.T) {
	require.Equal(t, "serial", Serial.String())
	require.Equal(t, "multi_value_insert", MultiValueInsert.String())
	require.Equal(t, "multi_statement", MultiStatement.String())
	require.Equal(t, "unknown", Strategy(9).String())
}
