package walksim

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pawmates/tracking/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "walksim_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the walk simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Walk Simulator
==============

A concurrent load and correctness tool for the tracking service. It starts
walk sessions, streams synthetic GPS tracks through the ingest endpoint,
completes the sessions and verifies the stored history.

Usage:
  go run cmd/test-walks/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8090")
  -walks int
        Number of walk sessions to simulate (default 100)
  -fixes int
        Number of location fixes per walk (default 200)
  -walkers int
        Number of concurrent workers (default CPU cores * 2)
  -interval duration
        Simulated time between fixes on a track (default 2s)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file for simulation output (default: walksim_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/test-walks/main.go

  # Heavier run against a remote instance
  go run cmd/test-walks/main.go -walks 500 -fixes 400 -url http://tracking:8090
`)
}
