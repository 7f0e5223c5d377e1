// Package monitoring wires the per-package log streams from one place.
package monitoring

import (
	"io"
	"log"

	"github.com/banshee-data/rehab.report/internal/alignment"
	"github.com/banshee-data/rehab.report/internal/capture"
	"github.com/banshee-data/rehab.report/internal/session"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// StreamsFor returns writers for a binary: ops always goes to w, diag
// when debug is set, trace when trace is set.
func StreamsFor(w io.Writer, debug, trace bool) LogWriters {
	lw := LogWriters{Ops: w}
	if debug || trace {
		lw.Diag = w
	}
	if trace {
		lw.Trace = w
	}
	return lw
}

// Configure points the alignment, session and capture log streams at w.
// Nil writers disable the matching stream.
func Configure(w LogWriters) {
	alignment.SetLogWriters(w.Ops, w.Diag, w.Trace)
	session.SetLogWriters(w.Ops, w.Diag, w.Trace)
	capture.SetLogWriters(w.Ops, w.Diag, w.Trace)
}
