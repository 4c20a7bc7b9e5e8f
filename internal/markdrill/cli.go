package markdrill

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		logFile = "drill_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the drill.
func ShowHelp() {
	os.Stdout.WriteString(`Rollcall Mark Drill
===================

Fires concurrent mark requests at a running rollcall service and checks that
the person in view is recorded at most once.

Usage:
  go run cmd/test-marks/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:5000")
  -requests int
        Number of concurrent mark requests (default 50)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -warmup duration
        Wait for the first streamed frame, 0 disables (default 10s)
  -output string
        Output file for responses (default: mark_results_TIMESTAMP.json)
  -log string
        Log file for drill output (default: drill_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Exit status is 0 when the drill passes and 1 otherwise.

Examples:
  # Drill a local service with one person in front of the camera
  go run cmd/test-marks/main.go

  # More pressure
  go run cmd/test-marks/main.go -requests 500 -workers 64
`)
}
