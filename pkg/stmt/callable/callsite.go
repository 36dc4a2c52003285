// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package callable

import (
	"strings"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/util/lex"
)

var (
	ErrNotACall = errors.New("statement is not a routine call")
)

// Arg is one argument at the call site.
type Arg struct {
	// Text is the trimmed argument text, "?" for placeholders.
	Text        string
	Placeholder bool
}

// CallSite is the routine call in a CALL or SELECT statement.
type CallSite struct {
	// Catalog is the database qualifier, "" if absent.
	Catalog string
	Name    string
	// Function is true for SELECT f(...), false for CALL p(...).
	Function bool
	Args     []Arg
}

// Placeholders returns the number of placeholder arguments.
func (cs *CallSite) Placeholders() int {
	n := 0
	for _, arg := range cs.Args {
		if arg.Placeholder {
			n++
		}
	}
	return n
}

// ParseCallSite extracts the routine and its arguments from `CALL name(...)`
// or `SELECT name(...)`. Only the first call of the statement is read.
func ParseCallSite(sql string, opts lex.Options) (*CallSite, error) {
	lexer := lex.NewLexer(sql, opts)
	kw, ok := lexer.NextToken()
	if !ok {
		if err := lexer.Err(); err != nil {
			return nil, errors.Wrap(ErrNotACall, err)
		}
		return nil, errors.Wrapf(ErrNotACall, "empty statement")
	}
	site := &CallSite{}
	switch kw.Text {
	case "CALL":
	case "SELECT":
		site.Function = true
	default:
		return nil, errors.Wrapf(ErrNotACall, "statement starts with %s", kw.Text)
	}

	// The name ends at the first '(' or at the end of the statement.
	nameEnd := len(sql)
	var open lex.Token
	for {
		tok, ok := lexer.Next()
		if !ok {
			break
		}
		if tok.Is(lex.Symbol, "(") {
			open = tok
			nameEnd = tok.Start
			break
		}
		if tok.Is(lex.Symbol, ";") {
			nameEnd = tok.Start
			break
		}
	}
	if err := lexer.Err(); err != nil {
		return nil, errors.Wrap(ErrNotACall, err)
	}
	catalog, name, err := splitQualifiedName(strings.TrimSpace(sql[kw.End:nameEnd]), opts)
	if err != nil {
		return nil, err
	}
	site.Catalog, site.Name = catalog, name
	if open.Text == "" {
		if site.Function {
			return nil, errors.Wrapf(ErrNotACall, "function %s has no argument list", name)
		}
		return site, nil
	}

	argStart := open.End
	// An argument is a placeholder if '?' is its only token.
	argTokens, argQuestion := 0, false
	for {
		tok, ok := lexer.Next()
		if !ok {
			if err := lexer.Err(); err != nil {
				return nil, errors.Wrap(ErrNotACall, err)
			}
			return nil, errors.Wrapf(ErrNotACall, "unclosed argument list of %s", name)
		}
		closing := tok.Depth == open.Depth && tok.Is(lex.Symbol, ")")
		if !closing && !(tok.Depth == open.Depth+1 && tok.Is(lex.Symbol, ",")) {
			argTokens++
			argQuestion = tok.Is(lex.Symbol, "?")
			continue
		}
		text := strings.TrimSpace(sql[argStart:tok.Start])
		if !closing || len(site.Args) > 0 || text != "" {
			site.Args = append(site.Args, Arg{Text: text, Placeholder: argTokens == 1 && argQuestion})
		}
		if closing {
			return site, nil
		}
		argStart = tok.End
		argTokens, argQuestion = 0, false
	}
}

// splitQualifiedName splits `db`.`name` and unquotes both parts.
func splitQualifiedName(s string, opts lex.Options) (catalog, name string, err error) {
	quote := opts.IdentQuote
	if quote == 0 {
		quote = lex.DefaultIdentQuote
	}
	var parts []string
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			for i++; i < len(s); i++ {
				if s[i] == quote {
					if i+1 < len(s) && s[i+1] == quote {
						sb.WriteByte(quote)
						i++
						continue
					}
					break
				}
				sb.WriteByte(s[i])
			}
			if i >= len(s) {
				return "", "", errors.Wrapf(ErrNotACall, "unterminated identifier in %q", s)
			}
		case c == '.':
			parts = append(parts, sb.String())
			sb.Reset()
		case isSpace(c):
		default:
			sb.WriteByte(c)
		}
	}
	parts = append(parts, sb.String())
	switch {
	case len(parts) == 1 && parts[0] != "":
		return "", parts[0], nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	}
	return "", "", errors.Wrapf(ErrNotACall, "invalid routine name %q", s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
