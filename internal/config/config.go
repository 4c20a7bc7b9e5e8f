// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and ROLLCALL_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"time"
)

// Store drivers understood by the repository package.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Dedup anchors.
const (
	AnchorSameDay = "same-calendar-day"
	AnchorRolling = "rolling"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// RosterPath points at the tab-separated roster file.
	RosterPath string `koanf:"roster_path"`

	// StoreDriver selects the attendance store: file, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StorePath is the CSV file or SQLite database path.
	StorePath string `koanf:"store_path"`

	// StoreDSN is the PostgreSQL connection string.
	StoreDSN string `koanf:"store_dsn"`

	// ConfThreshold is the recognizer distance below which a match is accepted.
	ConfThreshold float64 `koanf:"conf_threshold"`

	// DedupWindow is the re-verification window per person.
	DedupWindow time.Duration `koanf:"dedup_window"`

	// DedupAnchor is same-calendar-day or rolling.
	DedupAnchor string `koanf:"dedup_anchor"`

	// Timezone names the location used for record dates, e.g. "Local" or "Asia/Kolkata".
	Timezone string `koanf:"timezone"`

	// FramesDir is the directory replayed by the frame source.
	FramesDir string `koanf:"frames_dir"`

	// FrameInterval paces the detection loop.
	FrameInterval time.Duration `koanf:"frame_interval"`

	// GalleryPath optionally points at a JSON file of enrolled face descriptors.
	GalleryPath string `koanf:"gallery_path"`

	// JPEGQuality is the encoding quality for streamed frames (1-100).
	JPEGQuality int `koanf:"jpeg_quality"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		Addr:          ":5000",
		RosterPath:    "StudentDetails/studentdetails.tsv",
		StoreDriver:   DriverFile,
		StorePath:     "Attendance/attendance.csv",
		ConfThreshold: 85,
		DedupWindow:   time.Hour,
		DedupAnchor:   AnchorSameDay,
		Timezone:      "Local",
		FramesDir:     "frames",
		FrameInterval: 100 * time.Millisecond,
		JPEGQuality:   80,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
