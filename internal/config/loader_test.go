package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":5000")
				convey.So(cfg.DedupWindow, convey.ShouldEqual, time.Hour)
				convey.So(cfg.StorePath, convey.ShouldEqual, "Attendance/attendance.csv")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("ROLLCALL_ADDR", ":8080")
			_ = os.Setenv("ROLLCALL_STORE_DRIVER", "sqlite")
			_ = os.Setenv("ROLLCALL_STORE_PATH", "/tmp/attendance.db")
			_ = os.Setenv("ROLLCALL_DEDUP_WINDOW", "30m")
			_ = os.Setenv("ROLLCALL_CONF_THRESHOLD", "70")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.StorePath, convey.ShouldEqual, "/tmp/attendance.db")
				convey.So(cfg.DedupWindow, convey.ShouldEqual, 30*time.Minute)
				convey.So(cfg.ConfThreshold, convey.ShouldEqual, 70)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
dedup_anchor: rolling
frame_interval: 250ms
roster_path: /srv/roster.tsv
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("ROLLCALL_CONFIG", tmpFile)
			_ = os.Setenv("ROLLCALL_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DedupAnchor, convey.ShouldEqual, config.AnchorRolling)
				convey.So(cfg.FrameInterval, convey.ShouldEqual, 250*time.Millisecond)
				convey.So(cfg.RosterPath, convey.ShouldEqual, "/srv/roster.tsv")
				convey.So(cfg.ConfThreshold, convey.ShouldEqual, 85)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("ROLLCALL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("ROLLCALL_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("ROLLCALL_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollcall.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"ROLLCALL_CONFIG", "ROLLCALL_ADDR", "ROLLCALL_STORE_DRIVER", "ROLLCALL_STORE_PATH",
		"ROLLCALL_DEDUP_WINDOW", "ROLLCALL_CONF_THRESHOLD",
	} {
		_ = os.Unsetenv(key)
	}
}
