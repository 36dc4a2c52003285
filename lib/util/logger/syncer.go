// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"os"
	"sync"

	"github.com/pingcap/stmtkit/lib/config"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogMaxSize = 300 // MB
)

var ErrInvalidLogFile = errors.New("invalid log file")

var _ closableSyncer = (*rotateLogger)(nil)
var _ closableSyncer = (*stdoutLogger)(nil)
var _ zapcore.WriteSyncer = (*AtomicWriteSyncer)(nil)

// lumberjack.Logger must be closed, so every output is a closableSyncer.
type closableSyncer interface {
	zapcore.WriteSyncer
	Close() error
}

type rotateLogger struct {
	*lumberjack.Logger
}

func (lg *rotateLogger) Sync() error {
	return nil
}

type stdoutLogger struct {
	zapcore.WriteSyncer
}

func (lg *stdoutLogger) Close() error {
	return nil
}

// AtomicWriteSyncer is a WriteSyncer whose output can be swapped while logging.
type AtomicWriteSyncer struct {
	sync.RWMutex
	output closableSyncer
}

// NewAtomicWriteSyncer builds the output described by cfg.
func NewAtomicWriteSyncer(cfg *config.LogOnline) (*AtomicWriteSyncer, error) {
	ws := &AtomicWriteSyncer{}
	if err := ws.Rebuild(cfg); err != nil {
		return nil, err
	}
	return ws, nil
}

// Rebuild creates a new output and closes the current one. An empty file name
// means stdout.
func (ws *AtomicWriteSyncer) Rebuild(cfg *config.LogOnline) error {
	var output closableSyncer
	if len(cfg.LogFile.Filename) > 0 {
		fileLogger, err := initFileLog(&cfg.LogFile)
		if err != nil {
			return err
		}
		output = &rotateLogger{fileLogger}
	} else {
		stdLogger, _, err := zap.Open("stdout")
		if err != nil {
			return errors.WithStack(err)
		}
		output = &stdoutLogger{stdLogger}
	}
	return ws.setOutput(output)
}

func (ws *AtomicWriteSyncer) Write(p []byte) (n int, err error) {
	ws.RLock()
	if ws.output != nil {
		n, err = ws.output.Write(p)
	}
	ws.RUnlock()
	return
}

func (ws *AtomicWriteSyncer) Sync() error {
	var err error
	ws.RLock()
	if ws.output != nil {
		err = ws.output.Sync()
	}
	ws.RUnlock()
	return err
}

func (ws *AtomicWriteSyncer) setOutput(output closableSyncer) error {
	var err error
	ws.Lock()
	if ws.output != nil {
		err = ws.output.Close()
	}
	ws.output = output
	ws.Unlock()
	return err
}

// Close closes the current output. Later writes are dropped.
func (ws *AtomicWriteSyncer) Close() error {
	return ws.setOutput(nil)
}

func initFileLog(cfg *config.LogFile) (*lumberjack.Logger, error) {
	if st, err := os.Stat(cfg.Filename); err == nil && st.IsDir() {
		return nil, errors.Wrapf(ErrInvalidLogFile, "%s is a directory", cfg.Filename)
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}
