// Package monitoring carries the pipeline's diagnostic logging. Call sites
// use the package-level functions; tests and embedding programs can
// redirect or mute them with SetLogger.
package monitoring

import "log"

// Logf is the diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose bool

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose toggles per-unit progress logging. Off by default; a long run
// over thousands of stars is unreadable otherwise.
func SetVerbose(v bool) { verbose = v }

// Debugf logs only when verbose logging is enabled.
func Debugf(format string, v ...interface{}) {
	if verbose {
		Logf(format, v...)
	}
}
