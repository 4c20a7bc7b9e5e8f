package markdrill

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	outputPermission    = 0600
)

// Run executes the complete mark drill. The returned error is non-nil when
// the service could not be reached or the outcomes break the
// at-most-once-per-window rule.
func Run(ctx context.Context, config *Config) (Stats, error) {
	stats := Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting rollcall mark drill",
		logger.String("baseURL", config.BaseURL),
		logger.Int("requests", config.Requests),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.String("warmUp", config.WarmUp.String()),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// The stream keeps the detection loop alive until the drill ends.
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	if config.WarmUp > 0 {
		logger.Get().Info(ctx, "waiting for the first streamed frame")
		if err := openStream(streamCtx, config.BaseURL, config.WarmUp); err != nil {
			return stats, fmt.Errorf("warm-up failed: %w", err)
		}
	}

	results := fireMarks(ctx, config)
	tally(results, &stats)

	if err := saveResultsToFile(ctx, config, results); err != nil {
		logger.Get().Warn(ctx, "failed to save results to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(&stats)

	if err := verify(ctx, &stats); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	logger.Get().Info(ctx, "drill passed")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveResultsToFile writes every observed response as a JSON array.
func saveResultsToFile(ctx context.Context, config *Config, results []Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to save")
	}

	filename := config.OutputFile
	if filename == "" {
		filename = "mark_results_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, data, outputPermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	logger.Get().Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final drill statistics.
func displayFinalStats(stats *Stats) {
	var recordedRate, requestsPerSecond float64

	if stats.Sent > 0 {
		recordedRate = float64(stats.Success+stats.Reverified) / float64(stats.Sent) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Sent) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("sent", stats.Sent),
		logger.Int("success", stats.Success),
		logger.Int("reverified", stats.Reverified),
		logger.Int("fail", stats.Fail),
		logger.Int("errors", stats.Errors),
		logger.Any("names", stats.Names),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("recordedRate", recordedRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}
