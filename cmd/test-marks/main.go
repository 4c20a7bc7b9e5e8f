package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/rollcall/internal/markdrill"
)

// Default configuration constants.
const (
	defaultRequests     = 50
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 10 * time.Second
	defaultDrillTimeout = 2 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:5000", "Base URL of the service")
		requests   = flag.Int("requests", defaultRequests, "Number of concurrent mark requests")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		warmUp     = flag.Duration("warmup", markdrill.DefaultWarmUp, "Wait for the first streamed frame, 0 disables")
		outputFile = flag.String("output", "", "Output file for responses (default: mark_results_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for drill output (default: drill_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		markdrill.ShowHelp()
		return
	}

	if err := markdrill.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDrillTimeout)
	defer cancel()

	config := &markdrill.Config{
		BaseURL:    *baseURL,
		Requests:   *requests,
		Workers:    *workers,
		Timeout:    *timeout,
		WarmUp:     *warmUp,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	if _, err := markdrill.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Drill failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
