// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/pingcap/stmtkit/pkg/stmt/encode"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"github.com/pingcap/stmtkit/pkg/testkit"
	"github.com/pingcap/stmtkit/pkg/util/lex"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/stretchr/testify/require"
)

func tokenize(t *testing.T, sql string) *parse.Template {
	tpl, err := parse.Tokenize(sql, parse.Options{IdentQuote: lex.DefaultIdentQuote, BackslashEscapes: true})
	require.NoError(t, err)
	return tpl
}

func defaultEncoder() *encode.Encoder {
	return encode.NewEncoder(encode.Config{BackslashEscapes: true, BinaryIntroducer: true, FractionalSeconds: true})
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestBindValues(t *testing.T) {
	tpl := tokenize(t, "SELECT * FROM t WHERE a = ? AND b = ? AND c <=> ? /* ? */")
	params := NewParams(tpl.NumParams(), defaultEncoder())
	require.NoError(t, params.Set(0, int64(42), mysql.TypeLonglong))
	require.NoError(t, params.Set(1, "it's", mysql.TypeVarString))
	require.NoError(t, params.SetNull(2, mysql.TypeLong))

	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM t WHERE a = 42 AND b = 'it\'s' AND c <=> NULL /* ? */`, string(sql))
	_, err = parser.New().ParseOneStmt(string(sql), "", "")
	require.NoError(t, err)
}

func TestBindNilValue(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET a = ?")
	params := NewParams(1, defaultEncoder())
	require.NoError(t, params.Set(0, []byte(nil), mysql.TypeBlob))
	slot, err := params.Slot(0)
	require.NoError(t, err)
	require.True(t, slot.IsNull())
	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, "UPDATE t SET a = NULL", string(sql))
}

func TestBindNullType(t *testing.T) {
	tpl := tokenize(t, "UPDATE t SET a = ?, b = ?")
	params := NewParams(2, defaultEncoder())
	require.NoError(t, params.Set(0, int64(5), mysql.TypeNull))
	require.NoError(t, params.Set(1, "x", mysql.TypeNull))
	for i := 0; i < 2; i++ {
		slot, err := params.Slot(i)
		require.NoError(t, err)
		require.True(t, slot.IsNull())
		require.Equal(t, mysql.TypeNull, slot.Type)
	}
	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, "UPDATE t SET a = NULL, b = NULL", string(sql))
}

func TestBindErrors(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?, ?)")
	params := NewParams(2, defaultEncoder())
	require.NoError(t, params.Set(0, 1, mysql.TypeLong))

	_, err := params.Bind(tpl, Options{})
	require.ErrorIs(t, err, ErrMissingParameter)
	require.Contains(t, err.Error(), "parameter 1")

	_, err = Bind(tpl, params.Slots()[:1], Options{Encoder: defaultEncoder()})
	require.ErrorIs(t, err, ErrParameterCountMismatch)

	require.ErrorIs(t, params.Set(2, 1, mysql.TypeLong), ErrInvalidIndex)
	require.ErrorIs(t, params.SetNull(-1, mysql.TypeLong), ErrInvalidIndex)
	_, err = params.Slot(5)
	require.ErrorIs(t, err, ErrInvalidIndex)

	require.ErrorIs(t, params.Set(1, struct{}{}, mysql.TypeLong), encode.ErrUnsupportedType)
	slot, err := params.Slot(1)
	require.NoError(t, err)
	require.Equal(t, Unset, slot.State)
}

func TestClear(t *testing.T) {
	tpl := tokenize(t, "SELECT ?")
	params := NewParams(1, defaultEncoder())
	require.NoError(t, params.Set(0, 1, mysql.TypeLong))
	params.Clear()
	_, err := params.Bind(tpl, Options{})
	require.ErrorIs(t, err, ErrMissingParameter)
}

func TestComment(t *testing.T) {
	tpl := tokenize(t, "SELECT ?")
	params := NewParams(1, defaultEncoder())
	require.NoError(t, params.Set(0, "x", mysql.TypeVarString))
	sql, err := params.Bind(tpl, Options{Comment: "app=orders"})
	require.NoError(t, err)
	require.Equal(t, "/* app=orders */ SELECT 'x'", string(sql))
}

func TestRawValue(t *testing.T) {
	tpl := tokenize(t, "CALL p(?, ?)")
	params := NewParams(2, defaultEncoder())
	require.NoError(t, params.Set(0, 1, mysql.TypeLong))
	require.NoError(t, params.SetRaw(1, []byte("@out1"), mysql.TypeLong))
	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, "CALL p(1, @out1)", string(sql))
}

func TestSeekableStream(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	params := NewParams(1, defaultEncoder())
	require.NoError(t, params.SetStream(0, strings.NewReader("a'b\nc"), -1, false))
	for i := 0; i < 2; i++ {
		sql, err := params.Bind(tpl, Options{})
		require.NoError(t, err)
		require.Equal(t, `INSERT INTO t VALUES ('a\'b\nc')`, string(sql))
	}
}

func TestStreamLength(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	params := NewParams(1, defaultEncoder())
	require.NoError(t, params.SetStream(0, strings.NewReader("abcdef"), 3, false))
	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO t VALUES ('abc')", string(sql))
}

func TestNonSeekableStream(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	params := NewParams(1, defaultEncoder())
	require.NoError(t, params.SetStream(0, struct{ io.Reader }{strings.NewReader("abc")}, -1, false))
	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO t VALUES ('abc')", string(sql))
	_, err = params.Bind(tpl, Options{})
	require.ErrorIs(t, err, ErrStreamAlreadyConsumed)
}

func TestAutoCloseStream(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	for _, autoClose := range []bool{false, true} {
		r := &closeRecorder{Reader: strings.NewReader("abc")}
		params := NewParams(1, defaultEncoder())
		require.NoError(t, params.SetStream(0, r, -1, false))
		_, err := params.Bind(tpl, Options{AutoCloseStreams: autoClose})
		require.NoError(t, err)
		require.Equal(t, autoClose, r.closed)
	}
}

func TestNilStream(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	params := NewParams(1, defaultEncoder())
	require.NoError(t, params.SetStream(0, nil, -1, true))
	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO t VALUES (NULL)", string(sql))
}

func TestBinaryStream(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	data := []byte{0, 1, '\'', 0xff}
	tests := []struct {
		cfg    encode.Config
		expect string
	}{
		{
			cfg:    encode.Config{BackslashEscapes: true, BinaryIntroducer: true},
			expect: "INSERT INTO t VALUES (_binary'\\0\x01\\'\xff')",
		},
		{
			cfg:    encode.Config{BackslashEscapes: true},
			expect: "INSERT INTO t VALUES ('\\0\x01\\'\xff')",
		},
		{
			cfg:    encode.Config{},
			expect: "INSERT INTO t VALUES (x'000127ff')",
		},
		{
			cfg:    encode.Config{BackslashEscapes: true, MultibyteEscaping: true},
			expect: "INSERT INTO t VALUES (x'000127ff')",
		},
	}
	for i, test := range tests {
		params := NewParams(1, encode.NewEncoder(test.cfg))
		require.NoError(t, params.SetStream(0, bytes.NewReader(data), -1, true), "case %d", i)
		sql, err := params.Bind(tpl, Options{})
		require.NoError(t, err, "case %d", i)
		require.Equal(t, test.expect, string(sql), "case %d", i)
	}
}

func TestLargeBinaryStreamMatchesValue(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	enc := defaultEncoder()
	data := bytes.Repeat([]byte{'\\', 'x', 0, '"'}, 3*streamBufferSize)

	streamed := NewParams(1, enc)
	require.NoError(t, streamed.SetStream(0, bytes.NewReader(data), -1, true))
	got, err := streamed.Bind(tpl, Options{})
	require.NoError(t, err)

	valued := NewParams(1, enc)
	require.NoError(t, valued.Set(0, data, mysql.TypeBlob))
	expect, err := valued.Bind(tpl, Options{})
	require.NoError(t, err)
	require.Equal(t, expect, got)
}

func TestTextStreamRuneAcrossChunks(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?)")
	enc := encode.NewEncoder(encode.Config{
		BackslashEscapes:  true,
		MultibyteEscaping: true,
		Encoding:          testkit.LookalikeEncoding,
	})
	// ¥ starts one byte before the end of the first read
	text := strings.Repeat("a", streamBufferSize-1) + "¥'"
	params := NewParams(1, enc)
	require.NoError(t, params.SetStream(0, struct{ io.Reader }{strings.NewReader(text)}, -1, false))
	sql, err := params.Bind(tpl, Options{})
	require.NoError(t, err)
	expect := "INSERT INTO t VALUES ('" + strings.Repeat("a", streamBufferSize-1) + `\\\'')`
	require.Equal(t, expect, string(sql))
}

func TestRuneBoundary(t *testing.T) {
	yen := []byte("¥")
	tests := []struct {
		b      []byte
		expect int
	}{
		{[]byte("abc"), 3},
		{nil, 0},
		{append([]byte("ab"), yen...), 4},
		{append([]byte("ab"), yen[0]), 2},
		{[]byte("ab\xe2\x82"), 2},
		{[]byte("\xff"), 1},
	}
	for i, test := range tests {
		require.Equal(t, test.expect, runeBoundary(test.b), "case %d", i)
	}
}

func TestSnapshot(t *testing.T) {
	tpl := tokenize(t, "INSERT INTO t VALUES (?, ?)")
	params := NewParams(2, defaultEncoder())
	require.NoError(t, params.Set(0, 1, mysql.TypeLong))
	require.NoError(t, params.Set(1, "abc", mysql.TypeVarString))
	snap := params.Snapshot()

	require.NoError(t, params.Set(0, 2, mysql.TypeLong))
	params.Clear()

	require.Equal(t, 2, snap.Len())
	sql, err := Bind(tpl, snap.Slots(), Options{Encoder: defaultEncoder()})
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO t VALUES (1, 'abc')", string(sql))
	require.EqualValues(t, len("1")+len("'abc'"), snap.EstimatedSize())
}

func TestEstimatedSize(t *testing.T) {
	params := NewParams(4, defaultEncoder())
	require.NoError(t, params.SetNull(0, mysql.TypeLong))
	require.NoError(t, params.Set(1, "ab", mysql.TypeVarString))
	require.NoError(t, params.SetStream(2, bytes.NewReader(make([]byte, 10)), -1, true))
	require.NoError(t, params.SetStream(3, strings.NewReader("abc"), 2, false))
	snap := params.Snapshot()
	require.EqualValues(t, 4+4+(20+7+3)+(4+7+3), snap.EstimatedSize())

	unknown := NewParams(1, defaultEncoder())
	require.NoError(t, unknown.SetStream(0, struct{ io.Reader }{strings.NewReader("abc")}, -1, false))
	require.EqualValues(t, unknownStreamSize, unknown.Snapshot().EstimatedSize())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "unset", Unset.String())
	require.Equal(t, "stream", Stream.String())
	require.Equal(t, "unknown", State(9).String())
}
