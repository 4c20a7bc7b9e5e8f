package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/pkg/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Face-recognition attendance service",
	Long: `rollcall watches a camera, recognises enrolled people and records
their attendance at most once per window. The HTTP API streams the annotated
feed and marks whoever is currently in view.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if configFile != "" {
		_ = os.Setenv(config.EnvConfigFile, configFile)
	}
}

// setup loads configuration and initializes the global logger from it.
func setup(ctx context.Context) (*config.Config, logger.Logger, error) {
	if err := logger.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}
