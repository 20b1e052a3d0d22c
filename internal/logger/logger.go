// Package logger provides verbose logging for the RAG pipeline.
// When verbose mode is enabled via the --verbose flag, each pipeline
// stage prints what it retrieved, merged, and reranked to stderr.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for verbose logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// emit prints one prefixed line when verbose mode is on.
func emit(prefix, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, prefix+format+"\n", args...)
	}
}

// Section prints a header marking the start of a pipeline stage.
func Section(name string) {
	emit("", "\n=== %s ===", name)
}

// Debug prints a debug message if verbose mode is enabled.
func Debug(format string, args ...any) {
	emit("[DEBUG] ", format, args...)
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	emit("[INFO] ", format, args...)
}

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) {
	emit("[WARN] ", format, args...)
}
