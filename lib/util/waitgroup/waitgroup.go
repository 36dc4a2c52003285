// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package waitgroup

import (
	"sync"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"go.uber.org/zap"
)

var (
	ErrGoroutineFailed = errors.New("goroutine failed")
	ErrGoroutinePanic  = errors.New("goroutine panicked")
)

// WaitGroup is a sync.WaitGroup that also collects the errors of the
// goroutines it runs.
type WaitGroup struct {
	sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Run runs exec in a goroutine. exec must not panic.
func (w *WaitGroup) Run(exec func()) {
	w.Add(1)
	go func() {
		defer w.Done()
		exec()
	}()
}

// RunWithError runs exec in a goroutine and keeps its error for WaitErr.
// A panic is recovered and recorded as ErrGoroutinePanic.
func (w *WaitGroup) RunWithError(exec func() error, logger *zap.Logger) {
	w.Add(1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("panic in the goroutine", zap.Reflect("r", r), zap.Stack("stack trace"))
				}
				err = errors.Wrapf(ErrGoroutinePanic, "%v", r)
			}
			w.addErr(err)
			w.Done()
		}()
		err = exec()
	}()
}

// RunWithRecover runs exec in a goroutine and recovers from its panic. The
// stack is logged and recoverFn, if not nil, is called with the recovered value.
func (w *WaitGroup) RunWithRecover(exec func(), recoverFn func(r any), logger *zap.Logger) {
	w.Add(1)
	go func() {
		defer w.recoverFromErr(recoverFn, logger)
		exec()
	}()
}

func (w *WaitGroup) recoverFromErr(recoverFn func(r any), logger *zap.Logger) {
	r := recover()
	defer func() {
		// If it panics again in recovery, quit ASAP.
		_ = recover()
	}()
	if r != nil {
		if logger != nil {
			logger.Error("panic in the recoverable goroutine",
				zap.Reflect("r", r),
				zap.Stack("stack trace"))
		}
		w.addErr(errors.Wrapf(ErrGoroutinePanic, "%v", r))
	}
	// Done before recoverFn because recoverFn may wait for this group.
	w.Done()
	if r != nil && recoverFn != nil {
		recoverFn(r)
	}
}

func (w *WaitGroup) addErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	w.errs = append(w.errs, err)
	w.mu.Unlock()
}

// WaitErr waits for all goroutines and returns their errors collected in one,
// or nil.
func (w *WaitGroup) WaitErr() error {
	w.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := make([]error, len(w.errs))
	copy(errs, w.errs)
	return errors.Collect(ErrGoroutineFailed, errs...)
}
