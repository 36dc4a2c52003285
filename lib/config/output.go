// Copyright 2025 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pingcap/stmtkit/lib/util/errors"
)

type output struct {
	Component  string
	Version    string
	Parameters []field
}

type field struct {
	Name          string `json:"key"`
	Type          string `json:"type"`
	DefaultValue  any    `json:"default_value"`
	HotReloadable bool   `json:"hot_reloadable"`
	DSNKey        string `json:"dsn_key,omitempty"`
}

// ConfigInfo lists every config item with its default value and DSN key.
func ConfigInfo(format string) (string, error) {
	if !strings.EqualFold(format, "json") {
		return "", errors.New("only support json format")
	}
	fields, err := formatValue(reflect.ValueOf(*NewConfig()), "", false, "")
	if err != nil {
		return "", err
	}
	op := output{
		Component:  "stmtkit",
		Parameters: fields,
	}
	bytes, err := json.MarshalIndent(op, "", "    ")
	return string(bytes), errors.WithStack(err)
}

func formatValue(v reflect.Value, name string, reloadable bool, dsnKey string) ([]field, error) {
	if !v.IsValid() {
		return nil, errors.New("invalid value")
	}
	f := field{Name: name, HotReloadable: reloadable, DSNKey: dsnKey}
	switch v.Kind() {
	case reflect.Bool:
		f.Type, f.DefaultValue = "bool", v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.Type, f.DefaultValue = "int", v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.Type, f.DefaultValue = "int", v.Uint()
	case reflect.String:
		f.Type, f.DefaultValue = "string", v.String()
	case reflect.Struct:
		return formatStruct(v, name)
	default:
		return nil, errors.Errorf("unsupported type %s", v.Kind().String())
	}
	return []field{f}, nil
}

func formatStruct(v reflect.Value, name string) ([]field, error) {
	typ := v.Type()
	fields := make([]field, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		jsonName := strings.Split(f.Tag.Get("json"), ",")[0]
		switch jsonName {
		case "-":
			continue
		case "":
			jsonName = name
		default:
			if name != "" {
				jsonName = name + "." + jsonName
			}
		}
		res, err := formatValue(v.Field(i), jsonName, f.Tag.Get("reloadable") == "true", f.Tag.Get("dsn"))
		if err != nil {
			return nil, err
		}
		fields = append(fields, res...)
	}
	return fields, nil
}
