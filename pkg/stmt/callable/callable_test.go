// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package callable

import (
	"testing"

	"github.com/pingcap/stmtkit/pkg/stmt/bind"
	"github.com/pingcap/stmtkit/pkg/stmt/encode"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"github.com/pingcap/stmtkit/pkg/util/lex"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/stretchr/testify/require"
)

var lexOpts = lex.Options{IdentQuote: lex.DefaultIdentQuote, BackslashEscapes: true}

func TestParseCallSite(t *testing.T) {
	tests := []struct {
		sql      string
		catalog  string
		name     string
		function bool
		args     []string
	}{
		{sql: "CALL p(?, ?)", name: "p", args: []string{"?", "?"}},
		{sql: "call db.p()", catalog: "db", name: "p"},
		{sql: "CALL p", name: "p"},
		{sql: "CALL p;", name: "p"},
		{sql: "CALL `my db`.`my``proc` (1, ?, 'a,?', f(2, ?))", catalog: "my db", name: "my`proc", args: []string{"1", "?", "'a,?'", "f(2, ?)"}},
		{sql: "/* c */ CALL p(? /* ? */, @x)", name: "p", args: []string{"? /* ? */", "@x"}},
		{sql: "SELECT f(?)", name: "f", function: true, args: []string{"?"}},
		{sql: "select db.f( ? , 3 )", catalog: "db", name: "f", function: true, args: []string{"?", "3"}},
	}
	for i, test := range tests {
		site, err := ParseCallSite(test.sql, lexOpts)
		require.NoError(t, err, "case %d", i)
		require.Equal(t, test.catalog, site.Catalog, "case %d", i)
		require.Equal(t, test.name, site.Name, "case %d", i)
		require.Equal(t, test.function, site.Function, "case %d", i)
		args := make([]string, 0, len(site.Args))
		for _, arg := range site.Args {
			args = append(args, arg.Text)
		}
		require.Equal(t, len(test.args), len(args), "case %d", i)
		if len(test.args) > 0 {
			require.Equal(t, test.args, args, "case %d", i)
		}
	}
}

func TestParseCallSitePlaceholders(t *testing.T) {
	site, err := ParseCallSite("CALL p(1, ?, '?', ?)", lexOpts)
	require.NoError(t, err)
	require.Equal(t, 2, site.Placeholders())
	require.False(t, site.Args[0].Placeholder)
	require.True(t, site.Args[1].Placeholder)
	require.False(t, site.Args[2].Placeholder)

	site, err = ParseCallSite("CALL p(?,\n\t? ,  ABS(?))", lexOpts)
	require.NoError(t, err)
	require.Equal(t, 2, site.Placeholders())
	require.True(t, site.Args[0].Placeholder)
	require.True(t, site.Args[1].Placeholder)
	require.False(t, site.Args[2].Placeholder)
}

func TestParseCallSiteErrors(t *testing.T) {
	for i, sql := range []string{
		"",
		"UPDATE t SET a = 1",
		"CALL p(?",
		"CALL 'p",
		"SELECT f",
		"CALL .p()",
		"CALL `p()",
	} {
		_, err := ParseCallSite(sql, lexOpts)
		require.ErrorIs(t, err, ErrNotACall, "case %d", i)
	}
}

func TestParseDirection(t *testing.T) {
	for mode, dir := range map[string]Direction{"IN": In, "out": Out, " INOUT ": InOut, "": Return} {
		got, err := ParseDirection(mode)
		require.NoError(t, err)
		require.Equal(t, dir, got)
	}
	_, err := ParseDirection("BOTH")
	require.Error(t, err)
	require.Equal(t, "INOUT", InOut.String())
	require.True(t, InOut.IsInput())
	require.True(t, InOut.IsOutput())
	require.False(t, Return.IsOutput())
}

func procParams(dirs ...Direction) []Param {
	params := make([]Param, 0, len(dirs))
	names := []string{"ret", "x", "y", "z", "w"}
	for i, dir := range dirs {
		name := names[i]
		if dir != Return && dirs[0] != Return {
			name = names[i+1]
		}
		params = append(params, Param{Index: i, Name: name, Direction: dir, Type: mysql.TypeLong})
	}
	return params
}

func mustResolve(t *testing.T, sql string, params []Param) *Resolver {
	site, err := ParseCallSite(sql, lexOpts)
	require.NoError(t, err)
	r, err := Resolve(params, site)
	require.NoError(t, err)
	return r
}

func TestIndexMap(t *testing.T) {
	r := mustResolve(t, "CALL p(?, ?)", procParams(In, Out))
	require.Nil(t, r.IndexMap())

	r = mustResolve(t, "CALL p(1, ?, ?)", procParams(In, Out, InOut))
	require.Equal(t, IndexMap{1, 2}, r.IndexMap())
	p, err := r.Param(1)
	require.NoError(t, err)
	require.Equal(t, "y", p.Name)

	// the return value never takes a placeholder
	r = mustResolve(t, "SELECT f(?, 2)", procParams(Return, In, In))
	require.Equal(t, IndexMap{1}, r.IndexMap())
	p, err = r.Param(1)
	require.NoError(t, err)
	require.Equal(t, "x", p.Name)

	_, err = r.Param(2)
	require.ErrorIs(t, err, ErrUnknownParameter)
	_, err = r.Param(0)
	require.ErrorIs(t, err, ErrUnknownParameter)
}

func TestResolveErrors(t *testing.T) {
	site, err := ParseCallSite("CALL p(?, ?)", lexOpts)
	require.NoError(t, err)
	_, err = Resolve(procParams(In), site)
	require.ErrorIs(t, err, ErrParameterCountMismatch)
	_, err = Resolve(procParams(In, In, In), site)
	require.ErrorIs(t, err, ErrParameterCountMismatch)

	dup := []Param{{Index: 0, Name: "a"}, {Index: 1, Name: "A"}}
	_, err = Resolve(dup, site)
	require.ErrorIs(t, err, ErrUnknownParameter)

	gap := []Param{{Index: 0, Name: "a"}, {Index: 2, Name: "b"}}
	_, err = Resolve(gap, site)
	require.ErrorIs(t, err, ErrUnknownParameter)

	_, err = Resolve(nil, nil)
	require.ErrorIs(t, err, ErrNotACall)
}

func TestPosition(t *testing.T) {
	r := mustResolve(t, "CALL p(1, ?, ?)", procParams(In, Out, InOut))
	pos, err := r.Position("Z")
	require.NoError(t, err)
	require.Equal(t, 2, pos)
	pos, err = r.Position("@y")
	require.NoError(t, err)
	require.Equal(t, 1, pos)
	_, err = r.Position("x")
	require.ErrorIs(t, err, ErrUnknownParameter)
	_, err = r.Position("nope")
	require.ErrorIs(t, err, ErrUnknownParameter)
}

func TestMangledName(t *testing.T) {
	require.Equal(t, "@stmtkit_outparam_y", MangledName("y"))
	require.Equal(t, "@stmtkit_outparam_y", MangledName("@y"))
	require.Equal(t, "@`stmtkit_outparam_my name`", MangledName("my name"))
	require.Equal(t, "@`stmtkit_outparam_a``b`", MangledName("a`b"))
	require.Equal(t, "@stmtkit_outparam_数", MangledName("数"))
}

func newEncoder() *encode.Encoder {
	return encode.NewEncoder(encode.Config{BackslashEscapes: true})
}

func bindCall(t *testing.T, r *Resolver, sql string, exec *Execution) string {
	tpl, err := parse.Tokenize(sql, parse.Options{IdentQuote: lex.DefaultIdentQuote, BackslashEscapes: true})
	require.NoError(t, err)
	out, err := bind.Bind(tpl, exec.Slots, bind.Options{Encoder: newEncoder()})
	require.NoError(t, err)
	_, err = parser.New().ParseOneStmt(string(out), "", "")
	require.NoError(t, err)
	return string(out)
}

func TestOutParamRoundTrip(t *testing.T) {
	sql := "CALL p(?, ?)"
	r := mustResolve(t, sql, procParams(In, Out))
	require.Equal(t, Resolved, r.State())
	require.True(t, r.HasOutputParams())

	params := bind.NewParams(2, newEncoder())
	require.NoError(t, r.Bind(1))
	require.NoError(t, params.Set(0, 5, mysql.TypeLong))
	require.NoError(t, r.RegisterOutput(2, mysql.TypeLong))
	require.Equal(t, Bound, r.State())

	exec, err := r.PrepareExecution(params.Slots(), bind.Options{Encoder: newEncoder()})
	require.NoError(t, err)
	require.Empty(t, exec.SetStatements)
	require.Equal(t, "CALL p(5, @stmtkit_outparam_y)", bindCall(t, r, sql, exec))

	_, err = r.Output(2)
	require.ErrorIs(t, err, ErrOutputsNotAvailable)

	r.MarkExecuted()
	query, err := r.OutputQuery()
	require.NoError(t, err)
	require.Equal(t, "SELECT @stmtkit_outparam_y", query)
	require.NoError(t, r.SetOutputs([]any{int64(10)}))
	require.Equal(t, OutputsReady, r.State())

	v, err := r.Output(2)
	require.NoError(t, err)
	require.Equal(t, int64(10), v)
	v, err = r.OutputByName("y")
	require.NoError(t, err)
	require.Equal(t, int64(10), v)

	_, err = r.Output(1)
	require.ErrorIs(t, err, ErrNotAnOutputParameter)
	require.ErrorIs(t, r.RegisterOutput(1, mysql.TypeLong), ErrNotAnOutputParameter)
}

func TestInOutParams(t *testing.T) {
	sql := "CALL p(?, 7, ?)"
	r := mustResolve(t, sql, procParams(InOut, In, Out))
	params := bind.NewParams(2, newEncoder())
	require.NoError(t, params.Set(0, "it's", mysql.TypeVarString))

	exec, err := r.PrepareExecution(params.Slots(), bind.Options{Encoder: newEncoder(), Comment: "ignored"})
	require.NoError(t, err)
	require.Equal(t, 1, len(exec.SetStatements))
	require.Equal(t, `SET @stmtkit_outparam_x='it\'s'`, string(exec.SetStatements[0]))
	_, err = parser.New().ParseOneStmt(string(exec.SetStatements[0]), "", "")
	require.NoError(t, err)
	require.Equal(t, "CALL p(@stmtkit_outparam_x, 7, @stmtkit_outparam_z)", bindCall(t, r, sql, exec))

	r.MarkExecuted()
	query, err := r.OutputQuery()
	require.NoError(t, err)
	require.Equal(t, "SELECT @stmtkit_outparam_x,@stmtkit_outparam_z", query)
	require.ErrorIs(t, r.SetOutputs([]any{1}), ErrParameterCountMismatch)
	require.NoError(t, r.SetOutputs([]any{"x", nil}))
	v, err := r.Output(1)
	require.NoError(t, err)
	require.Equal(t, "x", v)
	v, err = r.Output(2)
	require.NoError(t, err)
	require.Nil(t, v)

	// a new execution invalidates the outputs
	_, err = r.PrepareExecution(params.Slots(), bind.Options{Encoder: newEncoder()})
	require.NoError(t, err)
	_, err = r.Output(1)
	require.ErrorIs(t, err, ErrOutputsNotAvailable)
}

func TestUnsetInOut(t *testing.T) {
	r := mustResolve(t, "CALL p(?)", procParams(InOut))
	params := bind.NewParams(1, newEncoder())
	_, err := r.PrepareExecution(params.Slots(), bind.Options{Encoder: newEncoder()})
	require.ErrorIs(t, err, bind.ErrMissingParameter)

	require.NoError(t, r.RegisterOutput(1, mysql.TypeLong))
	exec, err := r.PrepareExecution(params.Slots(), bind.Options{Encoder: newEncoder()})
	require.NoError(t, err)
	require.Equal(t, "SET @stmtkit_outparam_x=NULL", string(exec.SetStatements[0]))

	_, err = r.PrepareExecution(nil, bind.Options{})
	require.ErrorIs(t, err, ErrParameterCountMismatch)
}

func TestNoOutputParams(t *testing.T) {
	r := mustResolve(t, "CALL p(?)", procParams(In))
	require.False(t, r.HasOutputParams())
	_, err := r.OutputQuery()
	require.ErrorIs(t, err, ErrNoOutputParameters)
	_, err = r.Output(1)
	require.ErrorIs(t, err, ErrNoOutputParameters)
	_, err = r.ReturnValue()
	require.ErrorIs(t, err, ErrNotAnOutputParameter)
	require.ErrorIs(t, r.SetReturnValue(1), ErrNotAnOutputParameter)
}

func TestFunctionReturnValue(t *testing.T) {
	sql := "SELECT f(?)"
	r := mustResolve(t, sql, procParams(Return, In))
	require.False(t, r.HasOutputParams())
	params := bind.NewParams(1, newEncoder())
	require.NoError(t, params.Set(0, 3, mysql.TypeLong))
	exec, err := r.PrepareExecution(params.Slots(), bind.Options{Encoder: newEncoder()})
	require.NoError(t, err)
	require.Equal(t, "SELECT f(3)", bindCall(t, r, sql, exec))

	_, err = r.ReturnValue()
	require.ErrorIs(t, err, ErrOutputsNotAvailable)
	r.MarkExecuted()
	require.NoError(t, r.SetReturnValue(int64(9)))
	v, err := r.ReturnValue()
	require.NoError(t, err)
	require.Equal(t, int64(9), v)
}

func TestPermissive(t *testing.T) {
	sql := "CALL p(?, 1, ?)"
	site, err := ParseCallSite(sql, lexOpts)
	require.NoError(t, err)
	r := Permissive(site)
	require.True(t, r.Permissive())
	require.Nil(t, r.IndexMap())
	p, err := r.Param(2)
	require.NoError(t, err)
	require.Equal(t, "arg2", p.Name)
	require.Equal(t, InOut, p.Direction)
	require.False(t, r.HasOutputParams())

	// only registered parameters are read back
	require.NoError(t, r.RegisterOutput(2, mysql.TypeLong))
	require.True(t, r.HasOutputParams())
	params := bind.NewParams(2, newEncoder())
	require.NoError(t, params.Set(0, 1, mysql.TypeLong))
	exec, err := r.PrepareExecution(params.Slots(), bind.Options{Encoder: newEncoder()})
	require.NoError(t, err)
	require.Equal(t, []string{"SET @stmtkit_outparam_arg2=NULL"}, []string{string(exec.SetStatements[0])})
	require.Equal(t, "CALL p(1, 1, @stmtkit_outparam_arg2)", bindCall(t, r, sql, exec))

	r.MarkExecuted()
	query, err := r.OutputQuery()
	require.NoError(t, err)
	require.Equal(t, "SELECT @stmtkit_outparam_arg2", query)
	require.NoError(t, r.SetOutputs([]any{"v"}))
	v, err := r.OutputByName("arg2")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	_, err = r.Output(1)
	require.ErrorIs(t, err, ErrNotAnOutputParameter)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "outputs_ready", OutputsReady.String())
	require.Equal(t, "unknown", State(10).String())
}
