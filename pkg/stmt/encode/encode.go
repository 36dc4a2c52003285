// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package encode renders Go values as SQL literals.
package encode

import (
	"database/sql/driver"
	"math"
	"strconv"
	"time"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
)

var (
	ErrUnsupportedType = errors.New("unsupported type")
	ErrInvalidValue    = errors.New("invalid value")
)

var nullLiteral = []byte("NULL")

// Config holds the session properties that affect literals.
type Config struct {
	// AnsiQuotes stops escaping '"', which quotes identifiers in this mode.
	AnsiQuotes       bool
	BackslashEscapes bool
	// MultibyteEscaping escapes ¥ and ₩, which Encoding turns into '\'.
	MultibyteEscaping bool
	// FractionalSeconds writes microseconds of temporal values.
	FractionalSeconds bool
	// BinaryIntroducer prefixes escaped binary literals with _binary.
	BinaryIntroducer bool
	// Location is the session time zone. nil keeps the zone of each value.
	Location *time.Location
	// Encoding is the connection encoding. nil means UTF-8.
	Encoding encoding.Encoding
}

// Encoder renders values for one session configuration. It is safe for
// concurrent use.
type Encoder struct {
	cfg Config
}

func NewEncoder(cfg Config) *Encoder {
	return &Encoder{cfg: cfg}
}

func (e *Encoder) Config() Config {
	return e.cfg
}

// IsNull reports whether v encodes to NULL.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if d, ok := v.(*decimal.Decimal); ok {
		return d == nil
	}
	if b, ok := v.([]byte); ok {
		return b == nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		inner, err := valuer.Value()
		return err == nil && inner == nil
	}
	return false
}

// Encode renders v as a literal for a parameter declared with the MySQL type
// tp, e.g. mysql.TypeLonglong. The result is in the connection encoding.
func (e *Encoder) Encode(v any, tp byte) ([]byte, error) {
	return e.Append(make([]byte, 0, 16), v, tp)
}

// Append is Encode appending to dst.
func (e *Encoder) Append(dst []byte, v any, tp byte) ([]byte, error) {
	if !supportedType(tp) {
		return nil, errors.Wrapf(ErrUnsupportedType, "type %s", TypeName(tp))
	}
	// Decimals implement driver.Valuer as strings, so they go first.
	switch val := v.(type) {
	case decimal.Decimal:
		return append(dst, val.String()...), nil
	case *decimal.Decimal:
		if val == nil {
			return append(dst, nullLiteral...), nil
		}
		return append(dst, val.String()...), nil
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return nil, errors.Wrap(ErrInvalidValue, err)
		}
		v = inner
	}
	if v == nil || tp == mysql.TypeNull {
		return append(dst, nullLiteral...), nil
	}

	switch val := v.(type) {
	case bool:
		if val {
			return append(dst, '1'), nil
		}
		return append(dst, '0'), nil
	case int:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int8:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int16:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int32:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(dst, val, 10), nil
	case uint:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint8:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint16:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint32:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint64:
		return strconv.AppendUint(dst, val, 10), nil
	case float32:
		return appendFloat(dst, float64(val), 32)
	case float64:
		return appendFloat(dst, val, 64)
	case string:
		return e.appendText(dst, val, tp)
	case []byte:
		if val == nil {
			return append(dst, nullLiteral...), nil
		}
		if tp == mysql.TypeJSON {
			return e.AppendString(dst, string(val))
		}
		return e.AppendBinary(dst, val), nil
	case time.Time:
		return e.appendTime(dst, val, tp)
	case time.Duration:
		return e.appendDuration(dst, val, tp)
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%T as %s", v, TypeName(tp))
	}
}

func appendFloat(dst []byte, f float64, bitSize int) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.Wrapf(ErrInvalidValue, "%v can not be stored", f)
	}
	// Shortest form; exponents are written as e+21 / e-07, which the server
	// parses as a float literal.
	return strconv.AppendFloat(dst, f, 'g', -1, bitSize), nil
}

// appendText writes strings. Numeric types keep validated decimals unquoted.
func (e *Encoder) appendText(dst []byte, s string, tp byte) ([]byte, error) {
	switch tp {
	case mysql.TypeNewDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "%q is not a decimal", s)
		}
		return append(dst, d.String()...), nil
	}
	return e.AppendString(dst, s)
}
