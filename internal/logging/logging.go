// Package logging is the coordinator's logging facade. Output goes to
// stderr: stdout belongs to CLI results and, in wrap mode, to the child
// process.
package logging

import (
	"log"
	"os"
)

var (
	disabled = false
	debug    = os.Getenv("BROWSERPILOT_DEBUG") != ""
	logger   = log.New(os.Stderr, "", log.LstdFlags)
)

// Disable turns off all logging (quiet CLI modes).
func Disable() {
	disabled = true
}

// Enable turns logging back on.
func Enable() {
	disabled = false
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf("warning: "+format, v...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf("error: "+format, v...)
	}
}

// Debugf logs a formatted debug message when BROWSERPILOT_DEBUG is set.
func Debugf(format string, v ...any) {
	if !disabled && debug {
		logger.Printf("debug: "+format, v...)
	}
}
