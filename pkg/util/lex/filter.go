// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package lex

// StartsWithKeyword reports whether the leading words of sql match one of the
// keyword sequences. Quotes and comments are skipped with default options.
func StartsWithKeyword(sql string, keywords [][]string) bool {
	lexer := NewLexer(sql, Options{BackslashEscapes: true})
	tokens := make([]string, 0, 2)
	for _, kw := range keywords {
		match := true
		for i, t := range kw {
			if len(tokens) <= i {
				tok, _ := lexer.NextToken()
				tokens = append(tokens, tok.Text)
			}
			if tokens[i] != t {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Statements that return a result set can not be part of a batch.
var resultSetKeywords = [][]string{
	{"SELECT"},
	{"SHOW"},
	{"WITH"},
	{"DESC"},
	{"DESCRIBE"},
	{"EXPLAIN"},
	{"TABLE"},
	{"VALUES"},
}

// ReturnsResultSet reports statements that always produce rows.
func ReturnsResultSet(sql string) bool {
	return StartsWithKeyword(sql, resultSetKeywords)
}

var callKeywords = [][]string{
	{"CALL"},
}

func IsCall(sql string) bool {
	return StartsWithKeyword(sql, callKeywords)
}
