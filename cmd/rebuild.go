package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/dedupe"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Replay the attendance store and report what the cache would hold",
	Long: `Read every stored attendance record the way the service does at
startup and print how many were loaded, skipped as corrupt, and how many
people end up in the dedup cache. Nothing is written.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolve timezone: %w", err)
	}

	store, err := repository.Open(ctx, cfg, repository.WithLogger(log.Named("store")))
	if err != nil {
		return err
	}
	defer store.Close()

	cache := dedupe.New(
		dedupe.WithWindow(cfg.DedupWindow),
		dedupe.WithAnchor(dedupe.Anchor(cfg.DedupAnchor)),
	)
	report, err := repository.Rebuild(ctx, store, cache, loc, log.Named("rebuild"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Store:    %s\n", cfg.StoreDriver)
	fmt.Fprintf(out, "Loaded:   %d\n", report.Loaded)
	fmt.Fprintf(out, "Skipped:  %d\n", report.Skipped)
	fmt.Fprintf(out, "People:   %d\n", report.People)
	fmt.Fprintf(out, "Duration: %s\n", report.Duration)
	return nil
}
