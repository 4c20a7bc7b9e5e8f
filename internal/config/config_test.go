package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should match the attendance defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":5000")
			convey.So(cfg.ConfThreshold, convey.ShouldEqual, 85)
			convey.So(cfg.DedupWindow, convey.ShouldEqual, time.Hour)
			convey.So(cfg.DedupAnchor, convey.ShouldEqual, config.AnchorSameDay)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverFile)
			convey.So(cfg.FrameInterval, convey.ShouldEqual, 100*time.Millisecond)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the local timezone should resolve", func() {
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc, convey.ShouldEqual, time.Local)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid fields", t, func() {
		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }},
			{"postgres no dsn", func(c *config.Config) { c.StoreDriver = config.DriverPostgres }},
			{"empty store path", func(c *config.Config) { c.StorePath = "" }},
			{"bad anchor", func(c *config.Config) { c.DedupAnchor = "weekly" }},
			{"zero window", func(c *config.Config) { c.DedupWindow = 0 }},
			{"zero threshold", func(c *config.Config) { c.ConfThreshold = 0 }},
			{"zero interval", func(c *config.Config) { c.FrameInterval = 0 }},
			{"quality too high", func(c *config.Config) { c.JPEGQuality = 101 }},
			{"unknown time zone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }},
		}
		for _, tc := range cases {
			convey.Convey("When validating with "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then it should report an invalid config", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})
}
