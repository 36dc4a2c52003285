// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metadata looks up stored routine parameters in
// INFORMATION_SCHEMA through database/sql.
package metadata

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/stmt/callable"
	"github.com/pingcap/stmtkit/pkg/stmt/encode"
	"go.uber.org/zap"
)

const (
	// An empty schema means the current database of the pooled connection.
	parametersQuery = "SELECT ORDINAL_POSITION, PARAMETER_MODE, PARAMETER_NAME, DATA_TYPE, " +
		"COALESCE(NUMERIC_PRECISION, CHARACTER_MAXIMUM_LENGTH, 0), COALESCE(NUMERIC_SCALE, 0), ROUTINE_TYPE " +
		"FROM INFORMATION_SCHEMA.PARAMETERS " +
		"WHERE SPECIFIC_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE()) AND SPECIFIC_NAME = ? " +
		"ORDER BY ORDINAL_POSITION"
	routineQuery = "SELECT ROUTINE_TYPE FROM INFORMATION_SCHEMA.ROUTINES " +
		"WHERE ROUTINE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE()) AND ROUTINE_NAME = ?"

	defaultCacheSize = 128
	defaultCacheTTL  = time.Minute
)

var ErrInvalidMetadata = errors.New("invalid routine metadata")

type cacheKey struct {
	catalog string
	name    string
}

// Provider answers parameter lookups and keeps recent answers for a while, so
// repeated calls of a routine do not query INFORMATION_SCHEMA every time.
type Provider struct {
	db     *sql.DB
	cache  *expirable.LRU[cacheKey, []callable.Param]
	logger *zap.Logger
}

func NewProvider(db *sql.DB, lg *zap.Logger) *Provider {
	return &Provider{
		db:     db,
		cache:  expirable.NewLRU[cacheKey, []callable.Param](defaultCacheSize, nil, defaultCacheTTL),
		logger: lg,
	}
}

// Open connects with a go-sql-driver DSN.
func Open(dsn string, lg *zap.Logger) (*Provider, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewProvider(sql.OpenDB(connector), lg), nil
}

// LookupProcedureParameters returns the parameters of a procedure or function
// ordered by index. A function's return value comes first with index 0.
func (p *Provider) LookupProcedureParameters(ctx context.Context, catalog, name string) ([]callable.Param, error) {
	key := cacheKey{catalog: strings.ToLower(catalog), name: strings.ToLower(name)}
	if params, ok := p.cache.Get(key); ok {
		return slices.Clone(params), nil
	}
	params, err := p.queryParameters(ctx, catalog, name)
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		// Routines without parameters have no rows in PARAMETERS.
		if err := p.checkRoutine(ctx, catalog, name); err != nil {
			return nil, err
		}
	}
	p.cache.Add(key, params)
	p.logger.Debug("loaded routine parameters", zap.String("catalog", catalog), zap.String("name", name), zap.Int("params", len(params)))
	return slices.Clone(params), nil
}

func (p *Provider) queryParameters(ctx context.Context, catalog, name string) ([]callable.Param, error) {
	rows, err := p.db.QueryContext(ctx, parametersQuery, catalog, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var params []callable.Param
	for rows.Next() {
		var (
			ordinal          int
			mode, paramName  sql.NullString
			dataType         string
			precision, scale int64
			routineType      string
		)
		if err := rows.Scan(&ordinal, &mode, &paramName, &dataType, &precision, &scale, &routineType); err != nil {
			return nil, errors.WithStack(err)
		}
		param, err := newParam(ordinal, mode, paramName, dataType, precision, scale, routineType)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", catalog, name)
		}
		params = append(params, param)
	}
	return params, errors.WithStack(rows.Err())
}

func newParam(ordinal int, mode, name sql.NullString, dataType string, precision, scale int64, routineType string) (callable.Param, error) {
	dir, err := callable.ParseDirection(mode.String)
	if err != nil {
		return callable.Param{}, errors.Wrap(ErrInvalidMetadata, err)
	}
	index := ordinal
	if !strings.EqualFold(routineType, "FUNCTION") {
		// procedure positions start at 1
		index--
	} else if ordinal > 0 {
		// function arguments are always IN
		dir = callable.In
	}
	if index < 0 {
		return callable.Param{}, errors.Wrapf(ErrInvalidMetadata, "position %d", ordinal)
	}
	tp, ok := encode.TypeByName(dataType)
	if !ok {
		return callable.Param{}, errors.Wrapf(ErrInvalidMetadata, "unknown data type %s", dataType)
	}
	return callable.Param{
		Index:     index,
		Name:      name.String,
		Direction: dir,
		Type:      tp,
		Precision: int(precision),
		Scale:     int(scale),
		Nullable:  true,
	}, nil
}

func (p *Provider) checkRoutine(ctx context.Context, catalog, name string) error {
	var routineType string
	err := p.db.QueryRowContext(ctx, routineQuery, catalog, name).Scan(&routineType)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(callable.ErrProcedureNotFound, "%s.%s", catalog, name)
	}
	return errors.WithStack(err)
}

// Invalidate drops the cached parameters, e.g. after the routine is altered.
func (p *Provider) Invalidate(catalog, name string) {
	p.cache.Remove(cacheKey{catalog: strings.ToLower(catalog), name: strings.ToLower(name)})
}

func (p *Provider) Close() error {
	p.cache.Purge()
	return errors.WithStack(p.db.Close())
}
