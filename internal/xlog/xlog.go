// Copyright 2018 Mark Wardle / Eldrix Ltd
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
//

// Package xlog is a thin shim over the standard library's log.Logger for
// operational messages (index build progress, store open/close). It exists
// so that progress output can be silenced in tests and redirected in the CLI
// without every caller reaching for the global logger directly.
package xlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Logger writes timestamped operational messages to an underlying writer.
// Obtain one from New, Discard or Default: the zero value Logger{} has no
// writer. A nil *Logger drops Printf and Progress output, and its Fatalf
// writes to os.Stderr before exiting.
type Logger struct {
	out *log.Logger
}

// New returns a Logger writing to w with no line prefix, timestamps only.
func New(w io.Writer) *Logger {
	return &Logger{out: log.New(w, "", log.LstdFlags)}
}

// Discard returns a Logger that drops every message, for tests that don't
// want import/build progress cluttering test output.
func Discard() *Logger {
	return &Logger{out: log.New(io.Discard, "", 0)}
}

var std = New(os.Stderr)

// Default returns the package-level logger writing to os.Stderr.
func Default() *Logger { return std }

// Printf logs a formatted operational message.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.out.Printf(format, args...)
}

// Progress logs a recurring progress line: a count, the elapsed time, and
// the mean time per unit.
func (l *Logger) Progress(label string, count int64, elapsed time.Duration) {
	if l == nil || count == 0 {
		return
	}
	l.Printf("%s: processed %d in %s (mean %s/item)", label, count, elapsed, elapsed/time.Duration(count))
}

// Fatalf logs a message and terminates the process, mirroring log.Fatalf.
func (l *Logger) Fatalf(format string, args ...any) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
		os.Exit(1)
	}
	l.out.Fatalf(format, args...)
}
