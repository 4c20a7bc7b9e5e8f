package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerFormats(t *testing.T) {
	Convey("Given a logger writing JSON to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWith(&buf, "json"), ShouldBeNil)
		defer func() { _ = Init() }()

		Convey("When logging with fields", func() {
			Get().Named("detector").Info(context.Background(), "cycle done",
				Int("person_id", 7),
				Bool("accepted", true),
				Duration("took", 15*time.Millisecond),
				Error(errors.New("boom")),
			)

			Convey("Then the record should carry the fields and component", func() {
				var rec map[string]any
				So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "cycle done")
				So(rec["component"], ShouldEqual, "detector")
				So(rec["person_id"], ShouldEqual, float64(7))
				So(rec["accepted"], ShouldEqual, true)
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised above info", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(context.Background(), "hidden")
			Get().Warn(context.Background(), "shown")

			Convey("Then only the warning should be written", func() {
				out := buf.String()
				So(out, ShouldNotContainSubstring, "hidden")
				So(out, ShouldContainSubstring, "shown")
			})
		})
	})

	Convey("Given an unknown format", t, func() {
		err := InitWith(&bytes.Buffer{}, "xml")

		Convey("Then initialization should fail", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unknown log format")
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "INFO", " warn ", "warning", "error", ""} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		err := SetLevelString("verbose")
		So(err, ShouldNotBeNil)
		So(strings.Contains(err.Error(), "verbose"), ShouldBeTrue)
		_ = SetLevelString("info")
	})
}

func TestNopLogger(t *testing.T) {
	Convey("Given a nop logger", t, func() {
		l := Nop()
		So(func() {
			l.Error(context.Background(), "ignored", String("k", "v"))
			l.Named("x").Debug(nil, "ignored") //nolint:staticcheck // nil ctx is tolerated
		}, ShouldNotPanic)
	})
}
