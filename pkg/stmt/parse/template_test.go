// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package parse

import (
	"strings"
	"testing"

	"github.com/pingcap/stmtkit/pkg/testkit"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func fragmentStrings(frags [][]byte) []string {
	strs := make([]string, 0, len(frags))
	for _, f := range frags {
		strs = append(strs, string(f))
	}
	return strs
}

func TestTokenizeFragments(t *testing.T) {
	tests := []struct {
		sql       string
		opts      Options
		fragments []string
		firstChar byte
	}{
		{
			sql:       `SELECT '?' , ?`,
			fragments: []string{`SELECT '?' , `, ``},
			firstChar: 'S',
		},
		{
			sql:       "select `a?b`, \"?\", ? /* ? */ from t where x = ? -- ?\n and y=?# ?",
			fragments: []string{"select `a?b`, \"?\", ", " /* ? */ from t where x = ", " -- ?\n and y=", "# ?"},
			firstChar: 'S',
		},
		{
			sql:       `update t set a='it''s ?', b=?`,
			fragments: []string{`update t set a='it''s ?', b=`, ``},
			firstChar: 'U',
		},
		{
			sql:       `select 'a\'?', ?`,
			opts:      Options{BackslashEscapes: true},
			fragments: []string{`select 'a\'?', `, ``},
			firstChar: 'S',
		},
		{
			// without backslash escapes the quote after '\' closes the string
			sql:       `select 'a\', ?`,
			fragments: []string{`select 'a\', `, ``},
			firstChar: 'S',
		},
		{
			sql:       `select "a?b", ?`,
			opts:      Options{IdentQuote: '"'},
			fragments: []string{`select "a?b", `, ``},
			firstChar: 'S',
		},
		{
			sql:       `  /* lead */ (select ?)`,
			fragments: []string{`  /* lead */ (select `, `)`},
			firstChar: 'S',
		},
		{
			sql:       `select 1--?`,
			fragments: []string{`select 1--`, ``},
			firstChar: 'S',
		},
		{
			sql:       `??`,
			fragments: []string{``, ``, ``},
		},
	}
	for _, test := range tests {
		tpl, err := Tokenize(test.sql, test.opts)
		require.NoError(t, err, test.sql)
		require.Equal(t, test.fragments, fragmentStrings(tpl.Fragments), test.sql)
		require.Equal(t, len(test.fragments)-1, tpl.NumParams(), test.sql)
		require.Equal(t, test.firstChar, tpl.FirstChar, test.sql)
	}
}

func TestFragmentInvariant(t *testing.T) {
	sqls := []string{
		`SELECT ?, ?, '?', "?", ` + "`?`" + `, ? /* ? */ # ?`,
		`INSERT INTO t (a, b) VALUES (?, ?) ON DUPLICATE KEY UPDATE b = 1`,
		`CALL p(?, 'x', ?)`,
		`SELECT 1`,
		`?`,
		"update `t?` set a = ? -- ?\nwhere b = ?",
	}
	for _, sql := range sqls {
		tpl, err := Tokenize(sql, Options{BackslashEscapes: true})
		require.NoError(t, err, sql)
		require.Equal(t, tpl.NumParams()+1, len(tpl.Fragments), sql)
		for _, filler := range []string{"?", "x", "long filler"} {
			var sb strings.Builder
			for i, f := range tpl.Fragments {
				if i > 0 {
					sb.WriteString(filler)
				}
				sb.Write(f)
			}
			require.Equal(t, len(sql)+tpl.NumParams()*(len(filler)-1), sb.Len(), sql)
			if filler == "?" {
				require.Equal(t, sql, sb.String())
			}
		}
	}
}

func TestTokenizeMalformed(t *testing.T) {
	sqls := []string{
		``,
		"  \n ",
		`select 'abc`,
		`select "abc`,
		"select `abc",
		`select /* abc`,
	}
	for _, sql := range sqls {
		_, err := Tokenize(sql, Options{})
		require.ErrorIs(t, err, ErrMalformedStatement, sql)
	}
}

func TestStatementShape(t *testing.T) {
	tests := []struct {
		sql          string
		bulkLoad     bool
		odku         bool
		paramsInODKU bool
		eligible     bool
		values       string
		canRepeat    bool
	}{
		{
			sql:       `INSERT INTO t (a) VALUES (?)`,
			eligible:  true,
			values:    `(?)`,
			canRepeat: true,
		},
		{
			sql:       `insert into t(a,b) values(?, now()) on duplicate key update a=a+1`,
			odku:      true,
			eligible:  true,
			values:    `(?, now())`,
			canRepeat: true,
		},
		{
			sql:       `REPLACE INTO t VALUE (?, ?)`,
			eligible:  true,
			values:    `(?, ?)`,
			canRepeat: true,
		},
		{
			sql:       "INSERT INTO `t`VALUES(?)",
			eligible:  true,
			values:    `(?)`,
			canRepeat: true,
		},
		{
			sql:          `INSERT INTO t VALUES (?) ON DUPLICATE KEY UPDATE x=LAST_INSERT_ID(?)`,
			odku:         true,
			paramsInODKU: true,
		},
		{
			sql:  `INSERT INTO t VALUES (1) ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id)`,
			odku: true,
		},
		{
			sql:          `INSERT INTO t VALUES (?) ON DUPLICATE KEY UPDATE a=?`,
			odku:         true,
			paramsInODKU: true,
		},
		{
			sql: `INSERT INTO t (a) SELECT ? FROM dual`,
		},
		{
			sql:       `INSERT INTO t (a) VALUES ('select ?'), (?)`,
			eligible:  true,
			values:    `('select ?'), (?)`,
			canRepeat: true,
		},
		{
			// the VALUES function in the update clause is not the row tuple
			sql:       `INSERT INTO t (a) VALUES (?) ON DUPLICATE KEY UPDATE a=VALUES(a)`,
			odku:      true,
			eligible:  true,
			values:    `(?)`,
			canRepeat: true,
		},
		{
			sql:      `INSERT INTO t.values SET a = ?`,
			eligible: true,
		},
		{
			sql:      `INSERT INTO t PARTITION (p?) VALUES (?)`,
			eligible: true,
			values:   `(?)`,
		},
		{
			sql: `UPDATE t SET a = ? ON DUPLICATE KEY UPDATE`,
		},
		{
			sql:      `LOAD DATA LOCAL INFILE ? INTO TABLE t`,
			bulkLoad: true,
		},
		{
			sql: `SELECT * FROM t WHERE a IN (?, ?)`,
		},
	}
	for _, test := range tests {
		tpl, err := Tokenize(test.sql, Options{})
		require.NoError(t, err, test.sql)
		require.Equal(t, test.bulkLoad, tpl.BulkLoad, test.sql)
		require.Equal(t, test.odku, tpl.HasODKU(), test.sql)
		require.Equal(t, test.paramsInODKU, tpl.ParamsInODKU, test.sql)
		require.Equal(t, test.eligible, tpl.RewriteEligible, test.sql)
		require.Equal(t, test.values, tpl.ValuesClause, test.sql)
		require.Equal(t, test.canRepeat, tpl.CanRepeat(), test.sql)
		if test.odku {
			require.True(t, strings.HasPrefix(strings.ToUpper(test.sql[tpl.ODKUOffset:]), "ON DUPLICATE KEY UPDATE"), test.sql)
		}
	}
}

func TestTokenizeEncoding(t *testing.T) {
	sql := `SELECT 'é', ? FROM t`
	tpl, err := Tokenize(sql, Options{Encoding: charmap.Windows1252})
	require.NoError(t, err)
	require.Equal(t, []byte{'S', 'E', 'L', 'E', 'C', 'T', ' ', '\'', 0xe9, '\'', ',', ' '}, tpl.Fragments[0])

	// bulk load fragments are not converted
	sql = `LOAD DATA INFILE 'é' INTO TABLE t`
	tpl, err = Tokenize(sql, Options{Encoding: charmap.Windows1252})
	require.NoError(t, err)
	require.Equal(t, sql, string(tpl.Fragments[0]))

	// rewrite parts are converted, too
	sql = `INSERT INTO t VALUES ('¥', ?)`
	tpl, err = Tokenize(sql, Options{Encoding: testkit.LookalikeEncoding})
	require.NoError(t, err)
	rep, err := tpl.Repeat(2)
	require.NoError(t, err)
	require.Equal(t, []string{`INSERT INTO t VALUES ('\', `, `),('\', `, `)`}, fragmentStrings(rep.Fragments))
}
