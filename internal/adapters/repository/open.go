package repository

import (
	"context"
	"fmt"

	"github.com/okian/rollcall/internal/config"
)

// Open builds the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverFile, "":
		return NewFileStore(cfg.StorePath, opts...), nil
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.StorePath, opts...)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.StoreDSN, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
	}
}
