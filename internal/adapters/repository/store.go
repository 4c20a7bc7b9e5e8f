// Package repository persists attendance records.
//
// Every store is append-only: a record is durable once Append returns nil
// and is never updated or deleted afterwards. LoadAll replays records in the
// order they were written so the dedup cache can be rebuilt at startup.
package repository

import (
	"context"

	"github.com/okian/rollcall/internal/domain/model"
)

// Store provides durable, append-only access to attendance records.
type Store interface {
	// Append writes rec durably. A nil error means the record survives a crash.
	Append(ctx context.Context, rec model.AttendanceRecord) error

	// LoadAll returns every stored record in write order. Rows that could not
	// be decoded are returned with PersonID 0 so callers can skip them.
	LoadAll(ctx context.Context) ([]model.AttendanceRecord, error)

	// List returns the records stored for date (YYYY-MM-DD) in write order.
	List(ctx context.Context, date string) ([]model.AttendanceRecord, error)

	// Close releases the underlying file or connection pool.
	Close() error
}

// Valid reports whether rec was decoded from a well-formed row.
func Valid(rec model.AttendanceRecord) bool {
	return rec.PersonID > 0
}

func filterDate(recs []model.AttendanceRecord, date string) []model.AttendanceRecord {
	out := make([]model.AttendanceRecord, 0, len(recs))
	for _, r := range recs {
		if Valid(r) && r.Date == date {
			out = append(out, r)
		}
	}
	return out
}
