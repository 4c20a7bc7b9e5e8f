package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Seeder receives the latest mark per person while replaying the store.
type Seeder interface {
	Seed(entry model.CacheEntry)
	Size() int
}

// RebuildReport summarises a replay.
type RebuildReport struct {
	Loaded   int
	Skipped  int
	People   int
	Duration time.Duration
}

// Rebuild replays every stored record into cache in write order so that each
// person ends up with their most recent mark. Corrupt rows are logged and
// skipped; a read failure aborts.
func Rebuild(ctx context.Context, store Store, cache Seeder, loc *time.Location, log logger.Logger) (RebuildReport, error) {
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()

	recs, err := store.LoadAll(ctx)
	if err != nil {
		return RebuildReport{}, fmt.Errorf("rebuild: %w", err)
	}

	var rep RebuildReport
	for i, rec := range recs {
		if !Valid(rec) {
			rep.Skipped++
			log.Warn(ctx, "skipping corrupt attendance record", logger.Int("index", i))
			continue
		}
		at, err := rec.Timestamp(loc)
		if err != nil {
			rep.Skipped++
			log.Warn(ctx, "skipping attendance record with bad timestamp",
				logger.Int("index", i),
				logger.Int("rollno", rec.PersonID),
				logger.Error(err))
			continue
		}
		cache.Seed(model.CacheEntry{PersonID: rec.PersonID, LastMarkedAt: at, LastMarkedDate: rec.Date})
		rep.Loaded++
	}
	rep.People = cache.Size()
	rep.Duration = time.Since(start)

	metrics.RecordRebuild(rep.Loaded, rep.Skipped, float64(rep.Duration.Milliseconds()))
	metrics.UpdateCacheSize(rep.People)
	log.Info(ctx, "attendance cache rebuilt",
		logger.Int("loaded", rep.Loaded),
		logger.Int("skipped", rep.Skipped),
		logger.Int("people", rep.People),
		logger.Duration("took", rep.Duration))
	return rep, nil
}
