// Copyright 2022 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"time"

	"github.com/pingcap/stmtkit/lib/config"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/lib/util/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logTimeFormat = "2006/01/02 15:04:05.000 -07:00"

var ErrInvalidLogConfig = errors.New("invalid log config")

func buildEncoder(cfg *config.Log) (zapcore.Encoder, error) {
	encfg := zap.NewProductionEncoderConfig()
	encfg.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(t.Format(logTimeFormat))
	}
	encfg.EncodeLevel = func(l zapcore.Level, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(l.CapitalString())
	}
	switch cfg.Encoder {
	case "json":
		return zapcore.NewJSONEncoder(encfg), nil
	case "console", "":
		return zapcore.NewConsoleEncoder(encfg), nil
	default:
		return nil, errors.Wrapf(ErrInvalidLogConfig, "unsupported encoder %s", cfg.Encoder)
	}
}

func buildLevel(cfg *config.Log) (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return level, errors.Wrap(ErrInvalidLogConfig, err)
	}
	return level, nil
}

// BuildLogger returns the logger, its output (to be closed by the caller) and
// the level, which can be changed while running.
func BuildLogger(cfg *config.Log) (*zap.Logger, *logger.AtomicWriteSyncer, zap.AtomicLevel, error) {
	level, err := buildLevel(cfg)
	if err != nil {
		return nil, nil, level, err
	}
	encoder, err := buildEncoder(cfg)
	if err != nil {
		return nil, nil, level, err
	}
	syncer, err := logger.NewAtomicWriteSyncer(&cfg.LogOnline)
	if err != nil {
		return nil, nil, level, err
	}
	return zap.New(zapcore.NewCore(encoder, syncer, level), zap.ErrorOutput(syncer), zap.AddStacktrace(zapcore.FatalLevel), zap.AddCaller()), syncer, level, nil
}
