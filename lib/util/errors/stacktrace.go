// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
)

var (
	_ fmt.Formatter = stacktrace(nil)
)

// stacktrace stores program counters only. Frames are resolved when printed.
type stacktrace []uintptr

// Format prints one frame per line. Runtime frames such as runtime.goexit are
// left out.
func (st stacktrace) Format(s fmt.State, verb rune) {
	frames := runtime.CallersFrames(st)
	for {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, "runtime.") {
			io.WriteString(s, "\n")
			writeFrame(s, fr, verb)
		}
		if !more {
			break
		}
	}
}

func writeFrame(s fmt.State, fr runtime.Frame, verb rune) {
	fn := fr.Function
	if fn == "" {
		fn = "unknown"
	}
	switch verb {
	case 'v', 's':
		io.WriteString(s, fn)
		io.WriteString(s, "\n\t")
		io.WriteString(s, fr.File)
		if s.Flag('+') {
			io.WriteString(s, ":")
			io.WriteString(s, strconv.Itoa(fr.Line))
		}
	case 'n':
		if i := strings.LastIndexByte(fn, '/'); i >= 0 {
			fn = fn[i+1:]
		}
		if i := strings.IndexByte(fn, '.'); i >= 0 {
			fn = fn[i+1:]
		}
		io.WriteString(s, fn)
	}
}
