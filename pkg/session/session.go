// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session compiles statements for one connection: it tokenizes
// through the template cache, binds values, plans batches and resolves
// routine calls, and sends the results through a Transport.
package session

import (
	"context"
	"strconv"
	"strings"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/stmtkit/lib/config"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/backend"
	"github.com/pingcap/stmtkit/pkg/charset"
	"github.com/pingcap/stmtkit/pkg/stmt/batch"
	"github.com/pingcap/stmtkit/pkg/stmt/bind"
	"github.com/pingcap/stmtkit/pkg/stmt/cache"
	"github.com/pingcap/stmtkit/pkg/stmt/callable"
	"github.com/pingcap/stmtkit/pkg/stmt/encode"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"github.com/pingcap/stmtkit/pkg/util/lex"
	"github.com/pingcap/stmtkit/pkg/util/versioninfo"
	"go.uber.org/zap"
)

var (
	ErrNoResult = errors.New("statement returned no result set")
)

// Transport sends text-protocol queries. On error it returns the results of
// the statements that succeeded before the failing one.
type Transport interface {
	Query(ctx context.Context, sql []byte) ([]*gomysql.Result, error)
	MultiStatements() bool
	SetMultiStatements(ctx context.Context, on bool) error
}

// ProcedureMetadata describes stored routines. Sessions without it treat every
// call placeholder as an INOUT parameter.
type ProcedureMetadata interface {
	LookupProcedureParameters(ctx context.Context, catalog, name string) ([]callable.Param, error)
}

// Session holds the per-connection compilation settings. It is not safe for
// concurrent use, but statements of different sessions may share a cache.
type Session struct {
	cfg       config.Session
	batchCfg  config.Batch
	transport Transport
	metadata  ProcedureMetadata
	registry  *cache.Registry
	cache     *cache.Cache
	charset   *charset.Charset
	encoder   *encode.Encoder
	// serverVersion is empty until SyncServerVars.
	serverVersion string
	logger        *zap.Logger
}

// New creates a session. metadata may be nil.
func New(cfg *config.Config, transport Transport, metadata ProcedureMetadata, registry *cache.Registry, lg *zap.Logger) (*Session, error) {
	cs, err := charset.Lookup(cfg.Session.Charset)
	if err != nil {
		return nil, err
	}
	c, err := registry.Get(cfg.Session.Addr)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:       cfg.Session,
		batchCfg:  cfg.Batch,
		transport: transport,
		metadata:  metadata,
		registry:  registry,
		cache:     c,
		charset:   cs,
		logger:    lg.With(zap.String("addr", cfg.Session.Addr)),
	}
	s.rebuildEncoder()
	return s, nil
}

func (s *Session) rebuildEncoder() {
	s.encoder = encode.NewEncoder(encode.Config{
		AnsiQuotes:        s.cfg.AnsiQuotes,
		BackslashEscapes:  !s.cfg.NoBackslashEscapes,
		MultibyteEscaping: s.charset.MultibyteEscaping,
		FractionalSeconds: s.cfg.FractionalSeconds,
		BinaryIntroducer:  s.cfg.BinaryIntroducer,
		Location:          s.cfg.Loc(),
		Encoding:          s.charset.Encoding,
	})
}

func (s *Session) Config() config.Session {
	return s.cfg
}

func (s *Session) Encoder() *encode.Encoder {
	return s.encoder
}

func (s *Session) identQuote() byte {
	if s.cfg.AnsiQuotes {
		return '"'
	}
	return lex.DefaultIdentQuote
}

// ParseOptions returns how statements of this session are tokenized.
func (s *Session) ParseOptions() parse.Options {
	return parse.Options{
		IdentQuote:       s.identQuote(),
		BackslashEscapes: !s.cfg.NoBackslashEscapes,
		Encoding:         s.charset.Encoding,
	}
}

func (s *Session) lexOptions() lex.Options {
	return lex.Options{IdentQuote: s.identQuote(), BackslashEscapes: !s.cfg.NoBackslashEscapes}
}

// BindOptions returns how values are rendered into statements.
func (s *Session) BindOptions() bind.Options {
	return bind.Options{
		Encoder:          s.encoder,
		Comment:          s.cfg.StatementComment,
		AutoCloseStreams: s.cfg.AutoCloseStreams,
	}
}

// BatchOptions returns the batch planning options.
func (s *Session) BatchOptions() batch.Options {
	return batch.Options{
		MaxPacket:       s.cfg.MaxAllowedPacket,
		Rewrite:         s.batchCfg.RewriteBatchedStatements,
		ContinueOnError: s.batchCfg.ContinueOnError,
		// toggled per batch when the connection did not negotiate it
		MultiStatements: true,
		Bind:            s.BindOptions(),
	}
}

// Tokenize returns the template of sql, from the cache when possible.
func (s *Session) Tokenize(sql string) (*parse.Template, error) {
	return s.cache.Tokenize(sql, s.ParseOptions(), s.charset.Name)
}

// Prepare tokenizes sql for repeated execution.
func (s *Session) Prepare(sql string) (*PreparedStmt, error) {
	tpl, err := s.Tokenize(sql)
	if err != nil {
		return nil, err
	}
	return newPreparedStmt(s, tpl), nil
}

// PrepareCall resolves the routine called by sql, which is CALL p(...) or
// SELECT f(...).
func (s *Session) PrepareCall(ctx context.Context, sql string) (*CallableStmt, error) {
	site, err := callable.ParseCallSite(sql, s.lexOptions())
	if err != nil {
		return nil, err
	}
	tpl, err := s.Tokenize(sql)
	if err != nil {
		return nil, err
	}
	// placeholders nested in an argument expression have no parameter
	if tpl.NumParams() != site.Placeholders() {
		return nil, errors.Wrapf(callable.ErrParameterCountMismatch, "%d placeholders in the statement but %d are arguments of %s",
			tpl.NumParams(), site.Placeholders(), site.Name)
	}
	var resolver *callable.Resolver
	if !s.hasParameterMetadata() {
		resolver = callable.Permissive(site)
	} else {
		params, err := s.metadata.LookupProcedureParameters(ctx, site.Catalog, site.Name)
		if err != nil {
			return nil, err
		}
		if resolver, err = callable.Resolve(params, site); err != nil {
			return nil, err
		}
	}
	return newCallableStmt(s, tpl, resolver), nil
}

func (s *Session) hasParameterMetadata() bool {
	return s.metadata != nil && versioninfo.HasParameterMetadata(s.serverVersion)
}

// ServerVersion returns the version read by SyncServerVars.
func (s *Session) ServerVersion() string {
	return s.serverVersion
}

// Exec sends sql as is, prefixed with the statement comment.
func (s *Session) Exec(ctx context.Context, sql string) ([]*gomysql.Result, error) {
	tpl, err := s.Tokenize(sql)
	if err != nil {
		return nil, err
	}
	stmt, err := bind.Bind(tpl, nil, s.BindOptions())
	if err != nil {
		return nil, err
	}
	return s.transport.Query(ctx, stmt)
}

// SyncServerVars reads sql_mode, max_allowed_packet and the version from the
// server and updates the quoting, escaping and packet settings. Templates cached under the
// old settings stay keyed by them.
func (s *Session) SyncServerVars(ctx context.Context) error {
	results, err := s.transport.Query(ctx, []byte("SELECT @@sql_mode, @@max_allowed_packet, @@version"))
	if err != nil {
		return err
	}
	if len(results) == 0 || results[0].Resultset == nil || len(results[0].Values) == 0 || len(results[0].Values[0]) < 3 {
		return errors.Wrapf(ErrNoResult, "read server variables")
	}
	row := results[0].Values[0]
	sqlMode := strings.ToUpper(toString(backend.Value(row[0])))
	modes := make(map[string]struct{})
	for _, mode := range strings.Split(sqlMode, ",") {
		modes[strings.TrimSpace(mode)] = struct{}{}
	}
	_, ansi := modes["ANSI"]
	_, ansiQuotes := modes["ANSI_QUOTES"]
	_, noBackslash := modes["NO_BACKSLASH_ESCAPES"]
	s.cfg.AnsiQuotes = ansi || ansiQuotes
	s.cfg.NoBackslashEscapes = noBackslash
	if packet, err := strconv.Atoi(toString(backend.Value(row[1]))); err == nil && packet > 0 {
		s.cfg.MaxAllowedPacket = packet
	}
	s.serverVersion = toString(backend.Value(row[2]))
	s.rebuildEncoder()
	s.logger.Info("synced server variables",
		zap.String("version", s.serverVersion),
		zap.String("sql_mode", sqlMode),
		zap.Int("max_allowed_packet", s.cfg.MaxAllowedPacket))
	return nil
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

// EvictCache drops the templates cached for this server, e.g. after a schema
// change.
func (s *Session) EvictCache() error {
	s.registry.Evict(s.cfg.Addr)
	c, err := s.registry.Get(s.cfg.Addr)
	if err != nil {
		return err
	}
	s.cache = c
	return nil
}
