// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package encode

import (
	"strconv"
	"time"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/tidb/pkg/parser/mysql"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
	timeLayout     = "15:04:05"
)

func (e *Encoder) appendTime(dst []byte, t time.Time, tp byte) ([]byte, error) {
	if e.cfg.Location != nil {
		t = t.In(e.cfg.Location)
	}
	switch tp {
	case mysql.TypeYear:
		return strconv.AppendInt(dst, int64(t.Year()), 10), nil
	case mysql.TypeDate:
		dst = append(dst, '\'')
		dst = t.AppendFormat(dst, dateLayout)
		return append(dst, '\''), nil
	case mysql.TypeDuration:
		dst = append(dst, '\'')
		dst = t.AppendFormat(dst, timeLayout)
		dst = e.appendFraction(dst, t.Nanosecond())
		return append(dst, '\''), nil
	case mysql.TypeDatetime, mysql.TypeTimestamp,
		mysql.TypeVarchar, mysql.TypeVarString, mysql.TypeString:
		dst = append(dst, '\'')
		dst = t.AppendFormat(dst, datetimeLayout)
		dst = e.appendFraction(dst, t.Nanosecond())
		return append(dst, '\''), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "time.Time as %s", TypeName(tp))
}

// appendDuration writes a TIME value: [-]HH:MM:SS[.ffffff], hours may exceed 24.
func (e *Encoder) appendDuration(dst []byte, d time.Duration, tp byte) ([]byte, error) {
	switch tp {
	case mysql.TypeDuration, mysql.TypeVarchar, mysql.TypeVarString, mysql.TypeString:
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "time.Duration as %s", TypeName(tp))
	}
	dst = append(dst, '\'')
	if d < 0 {
		dst = append(dst, '-')
		d = -d
	}
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := int64(d / time.Second)
	d -= time.Duration(seconds) * time.Second

	dst = appendTwoDigits(dst, hours)
	dst = append(dst, ':')
	dst = appendTwoDigits(dst, minutes)
	dst = append(dst, ':')
	dst = appendTwoDigits(dst, seconds)
	dst = e.appendFraction(dst, int(d))
	return append(dst, '\''), nil
}

func appendTwoDigits(dst []byte, n int64) []byte {
	if n < 10 {
		dst = append(dst, '0')
	}
	return strconv.AppendInt(dst, n, 10)
}

// appendFraction writes .ffffff with trailing zeros trimmed, only when the
// session supports fractional seconds and there are microseconds to write.
func (e *Encoder) appendFraction(dst []byte, nanos int) []byte {
	micros := nanos / 1000
	if !e.cfg.FractionalSeconds || micros == 0 {
		return dst
	}
	digits := 6
	for micros%10 == 0 {
		micros /= 10
		digits--
	}
	dst = append(dst, '.')
	s := strconv.Itoa(micros)
	for i := len(s); i < digits; i++ {
		dst = append(dst, '0')
	}
	return append(dst, s...)
}
