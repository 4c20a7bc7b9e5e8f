package markdrill

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/rollcall/pkg/logger"
)

// Verdict errors.
var (
	ErrMultipleSuccess = errors.New("more than one mark succeeded")
	ErrMixedOutcome    = errors.New("fail outcomes mixed with recorded ones")
	ErrMixedNames      = errors.New("responses name different people")
	ErrTransport       = errors.New("requests failed")
)

// tally folds results into stats.
func tally(results []Result, stats *Stats) {
	stats.Names = make(map[string]int)
	for _, r := range results {
		stats.Sent++
		if r.Err != "" || (r.StatusCode != http.StatusOK && r.StatusCode != http.StatusInternalServerError) {
			stats.Errors++
			continue
		}
		switch r.Response.Status {
		case StatusSuccess:
			stats.Success++
		case StatusReverified:
			stats.Reverified++
		case StatusFail:
			stats.Fail++
			continue
		default:
			stats.Errors++
			continue
		}
		stats.Names[r.Response.Name]++
	}
}

// verify checks that concurrent marks for one person were recorded at most
// once: one success and the rest reverified, all reverified when the person
// was already present, or all fail when nobody was in view.
func verify(ctx context.Context, stats *Stats) error {
	logger.Get().Info(ctx, "verifying mark outcomes",
		logger.Int("success", stats.Success),
		logger.Int("reverified", stats.Reverified),
		logger.Int("fail", stats.Fail),
		logger.Int("errors", stats.Errors))

	var errs []error
	if stats.Errors > 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrTransport, stats.Errors))
	}
	if stats.Success > 1 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrMultipleSuccess, stats.Success))
	}
	if stats.Fail > 0 && stats.Success+stats.Reverified > 0 {
		errs = append(errs, fmt.Errorf("%w: %d fail, %d recorded", ErrMixedOutcome, stats.Fail, stats.Success+stats.Reverified))
	}
	if len(stats.Names) > 1 {
		errs = append(errs, fmt.Errorf("%w: %v", ErrMixedNames, stats.Names))
	}
	return errors.Join(errs...)
}
