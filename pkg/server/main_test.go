package server

import (
	"io"
	"log"
	"os"
	"testing"
)

// TestMain pre-assigns the package loggers so NewServer skips initLoggers and
// nothing writes to the real data directory during tests. Assigning them here,
// once, also keeps session goroutines from racing tests that would otherwise
// swap the loggers mid-run. All log output is discarded to keep test output
// readable.
func TestMain(m *testing.M) {
	errorLog = log.New(io.Discard, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
	log.SetOutput(io.Discard)

	os.Exit(m.Run())
}
