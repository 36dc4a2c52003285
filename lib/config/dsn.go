// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"reflect"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/stmtkit/lib/util/errors"
)

const defaultDriverMaxPacket = 64 << 20

// ApplyDSN imports the session, batch and cache options carried by a
// go-sql-driver DSN, e.g. "user:pass@tcp(127.0.0.1:4000)/test?charset=gbk&rewriteBatchedStatements=true".
// Fields are matched by their `dsn` tag. Unknown DSN parameters are ignored.
func (cfg *Config) ApplyDSN(dsn string) error {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return errors.Wrap(ErrInvalidConfigValue, err)
	}
	if mc.Addr != "" {
		cfg.Session.Addr = mc.Addr
	}
	values := make(map[string]string, len(mc.Params)+4)
	for k, v := range mc.Params {
		values[k] = v
	}
	if mc.DBName != "" {
		values["dbname"] = mc.DBName
	}
	// The driver consumes these keys itself and fills defaults, so only
	// non-default values are taken.
	if mc.Loc != nil && mc.Loc != time.UTC {
		values["loc"] = mc.Loc.String()
	}
	if mc.MaxAllowedPacket > 0 && mc.MaxAllowedPacket != defaultDriverMaxPacket {
		values["maxAllowedPacket"] = strconv.Itoa(mc.MaxAllowedPacket)
	}
	if mc.MultiStatements {
		values["multiStatements"] = "true"
	}

	for _, section := range []any{&cfg.Session, &cfg.Batch, &cfg.Cache} {
		if err := applyDSNValues(reflect.ValueOf(section).Elem(), values); err != nil {
			return err
		}
	}
	return nil
}

func applyDSNValues(v reflect.Value, values map[string]string) error {
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("dsn")
		if key == "" {
			continue
		}
		str, ok := values[key]
		if !ok {
			continue
		}
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Bool:
			b, err := strconv.ParseBool(str)
			if err != nil {
				return errors.Wrapf(ErrInvalidConfigValue, "%s=%s is not a boolean", key, str)
			}
			f.SetBool(b)
		case reflect.Int:
			n, err := strconv.Atoi(str)
			if err != nil {
				return errors.Wrapf(ErrInvalidConfigValue, "%s=%s is not an integer", key, str)
			}
			f.SetInt(int64(n))
		case reflect.String:
			f.SetString(str)
		default:
			return errors.Errorf("unsupported dsn field kind %s", f.Kind().String())
		}
	}
	return nil
}
