package service_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

const rosterTSV = "rollno\tname\tbranch\n7\tAsha\tCSE\n12\tRavi\tECE\n"

// frameSource emits a small gray frame every few milliseconds.
type frameSource struct{ seq atomic.Uint64 }

func (f *frameSource) Next(ctx context.Context) (model.Frame, error) {
	select {
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(1, 1, color.Gray{Y: 200})
	return model.Frame{Seq: f.seq.Add(1), Image: img, CapturedAt: time.Now()}, nil
}

func (f *frameSource) Close() error { return nil }

// fixedRecognizer reports whoever the test puts in front of the camera.
type fixedRecognizer struct{ person atomic.Int64 }

func (r *fixedRecognizer) Recognize(_ context.Context, _ model.Frame) ([]model.Identification, error) {
	id := int(r.person.Load())
	if id == 0 {
		return nil, nil
	}
	return []model.Identification{{
		Region:     model.Region{X: 0, Y: 0, W: 8, H: 8},
		PersonID:   id,
		Confidence: 40,
	}}, nil
}

// flakyStore fails appends while broken is set.
type flakyStore struct {
	repository.Store
	broken atomic.Bool
}

func (s *flakyStore) Append(ctx context.Context, rec model.AttendanceRecord) error {
	if s.broken.Load() {
		return errors.New("disk full")
	}
	return s.Store.Append(ctx, rec)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(hhmm string) {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2024-03-01 "+hhmm, time.UTC)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// SetExact sets a sub-second wall time such as "09:00:00.900".
func (c *clock) SetExact(ts string) {
	t, err := time.ParseInLocation("2006-01-02 15:04:05.000", "2024-03-01 "+ts, time.UTC)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type harness struct {
	svc        *service.Service
	cfg        *config.Config
	clock      *clock
	recognizer *fixedRecognizer
	store      *flakyStore
	leave      func()
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "students.tsv")
	if err := os.WriteFile(rosterPath, []byte(rosterTSV), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	cfg := config.New()
	cfg.RosterPath = rosterPath
	cfg.StorePath = filepath.Join(dir, "attendance.csv")
	cfg.Timezone = "UTC"
	return &harness{
		cfg:        cfg,
		clock:      &clock{},
		recognizer: &fixedRecognizer{},
		store:      &flakyStore{Store: repository.NewFileStore(cfg.StorePath)},
	}
}

func (h *harness) start(ctx context.Context) error {
	h.clock.Set("08:00")
	h.svc = service.New(
		service.WithConfig(h.cfg),
		service.WithClock(h.clock.Now),
		service.WithSource(&frameSource{}),
		service.WithRecognizer(h.recognizer),
		service.WithStore(h.store),
	)
	if err := h.svc.Start(ctx); err != nil {
		return err
	}
	_, leave, err := h.svc.Subscribe(ctx, "test-viewer")
	h.leave = leave
	return err
}

func (h *harness) stop() {
	if h.leave != nil {
		h.leave()
	}
	h.svc.Stop()
}

// show puts id in front of the camera and waits for the loop to publish it.
func (h *harness) show(id int) {
	h.recognizer.person.Store(int64(id))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		occupied, _ := h.svc.GetStats()["slotOccupied"].(bool)
		if occupied == (id != 0) {
			// Let one more full cycle land so the slot holds id, not a predecessor.
			time.Sleep(20 * time.Millisecond)
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		h := newHarness(t)

		Convey("When it has not been started", func() {
			svc := service.New(service.WithConfig(h.cfg))
			_, err := svc.MarkAttendance(context.Background())

			Convey("Then marks should be refused and stats should say so", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When it is started and stopped", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(h.start(ctx), ShouldBeNil)
			So(h.svc.GetStats()["started"], ShouldEqual, true)
			So(h.svc.GetStats()["roster"], ShouldEqual, 2)
			h.stop()

			Convey("Then it should refuse further work", func() {
				So(h.svc.GetStats()["started"], ShouldEqual, false)
				_, err := h.svc.MarkAttendance(ctx)
				So(errors.Is(err, service.ErrStopped), ShouldBeTrue)
				So(errors.Is(h.svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
			})
		})
	})
}

func TestService_MarkAttendance(t *testing.T) {
	Convey("Given a running service with Asha and Ravi on the roster", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h := newHarness(t)
		So(h.start(ctx), ShouldBeNil)
		defer h.stop()

		Convey("When nobody is in view", func() {
			h.show(0)
			res, err := h.svc.MarkAttendance(ctx)

			Convey("Then the mark should fail with no face detected", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, model.Fail(model.MsgNoFace))
			})
		})

		Convey("When Asha is marked at 09:00, 09:30 and 10:05", func() {
			h.show(7)

			h.clock.Set("09:00")
			first, err := h.svc.MarkAttendance(ctx)
			So(err, ShouldBeNil)
			h.clock.Set("09:30")
			second, err := h.svc.MarkAttendance(ctx)
			So(err, ShouldBeNil)
			h.clock.Set("10:05")
			third, err := h.svc.MarkAttendance(ctx)
			So(err, ShouldBeNil)

			Convey("Then she should be recorded twice and reverified once", func() {
				So(first, ShouldResemble, model.MarkResult{Outcome: model.OutcomeSuccess, Name: "Asha", Time: "09:00:00"})
				So(second, ShouldResemble, model.MarkResult{Outcome: model.OutcomeReverified, Name: "Asha", Time: "09:30:00"})
				So(third, ShouldResemble, model.MarkResult{Outcome: model.OutcomeSuccess, Name: "Asha", Time: "10:05:00"})

				recs, err := h.svc.Records(ctx, "2024-03-01")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 2)
				So(recs[0].Time, ShouldEqual, "09:00:00")
				So(recs[1].Time, ShouldEqual, "10:05:00")
			})

			Convey("Then an empty date should default to today", func() {
				recs, err := h.svc.Records(ctx, "")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 2)
			})
		})

		Convey("When many marks race for the same person", func() {
			h.show(12)
			h.clock.Set("09:00")

			var wg sync.WaitGroup
			results := make([]model.MarkResult, 32)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], _ = h.svc.MarkAttendance(ctx)
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one should succeed and one record should exist", func() {
				success := 0
				for _, r := range results {
					if r.Outcome == model.OutcomeSuccess {
						success++
					} else {
						So(r.Outcome, ShouldEqual, model.OutcomeReverified)
					}
				}
				So(success, ShouldEqual, 1)
				recs, err := h.svc.Records(ctx, "2024-03-01")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
			})
		})

		Convey("When someone off the roster is in view", func() {
			h.show(99)
			h.clock.Set("09:00")
			res, err := h.svc.MarkAttendance(ctx)

			Convey("Then nothing should be recorded", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeFail)
				recs, err := h.svc.Records(ctx, "2024-03-01")
				So(err, ShouldBeNil)
				So(recs, ShouldBeEmpty)
			})
		})

		Convey("When the store fails during a mark", func() {
			h.show(7)
			h.clock.Set("09:00")
			h.store.broken.Store(true)
			res, err := h.svc.MarkAttendance(ctx)

			Convey("Then the mark should fail and a retry should still succeed", func() {
				So(errors.Is(err, service.ErrStoreWrite), ShouldBeTrue)
				So(res, ShouldResemble, model.Fail(model.MsgStoreFailure))

				h.store.broken.Store(false)
				h.clock.Set("09:01")
				res, err = h.svc.MarkAttendance(ctx)
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeSuccess)
			})
		})
	})
}

func TestService_RestartRebuildsCache(t *testing.T) {
	Convey("Given Asha marked at 09:00 before a restart", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h := newHarness(t)
		So(h.start(ctx), ShouldBeNil)
		h.show(7)
		h.clock.Set("09:00")
		res, err := h.svc.MarkAttendance(ctx)
		So(err, ShouldBeNil)
		So(res.Outcome, ShouldEqual, model.OutcomeSuccess)
		h.stop()

		Convey("When the service restarts and she is seen at 09:20", func() {
			h.store = &flakyStore{Store: repository.NewFileStore(h.cfg.StorePath)}
			h.recognizer = &fixedRecognizer{}
			So(h.start(ctx), ShouldBeNil)
			defer h.stop()
			h.show(7)
			h.clock.Set("09:20")
			res, err := h.svc.MarkAttendance(ctx)

			Convey("Then she should be reverified, not recorded again", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeReverified)
				So(h.svc.GetStats()["recordsLoaded"], ShouldEqual, 1)
			})
		})
	})
}

func TestService_SubSecondMarksSurviveRestart(t *testing.T) {
	Convey("Given Asha marked at 09:00:00.900", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h := newHarness(t)
		So(h.start(ctx), ShouldBeNil)
		h.show(7)
		h.clock.SetExact("09:00:00.900")
		res, err := h.svc.MarkAttendance(ctx)
		So(err, ShouldBeNil)
		So(res.Outcome, ShouldEqual, model.OutcomeSuccess)
		live := h.svc.LastMarks()
		So(len(live), ShouldEqual, 1)

		Convey("When she is seen again at 10:00:00.500 without a restart", func() {
			defer h.stop()
			h.clock.SetExact("10:00:00.500")
			res, err := h.svc.MarkAttendance(ctx)

			Convey("Then the window should count from the recorded second", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeSuccess)
			})
		})

		Convey("When the service restarts", func() {
			h.stop()
			h.store = &flakyStore{Store: repository.NewFileStore(h.cfg.StorePath)}
			h.recognizer = &fixedRecognizer{}
			So(h.start(ctx), ShouldBeNil)
			defer h.stop()

			Convey("Then the rebuilt cache should equal the live one", func() {
				rebuilt := h.svc.LastMarks()
				So(len(rebuilt), ShouldEqual, len(live))
				for i := range live {
					So(rebuilt[i].PersonID, ShouldEqual, live[i].PersonID)
					So(rebuilt[i].LastMarkedDate, ShouldEqual, live[i].LastMarkedDate)
					So(rebuilt[i].LastMarkedAt.Equal(live[i].LastMarkedAt), ShouldBeTrue)
				}
			})

			Convey("Then a mark at 10:00:00.500 should decide as it would have live", func() {
				h.show(7)
				h.clock.SetExact("10:00:00.500")
				res, err := h.svc.MarkAttendance(ctx)
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeSuccess)
			})
		})
	})
}

func TestService_StartRetryAfterFailure(t *testing.T) {
	Convey("Given a service whose first Start fails after opening its store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h := newHarness(t)
		h.cfg.GalleryPath = filepath.Join(t.TempDir(), "gallery.json")
		So(os.WriteFile(h.cfg.GalleryPath, []byte("{not json"), 0o600), ShouldBeNil)

		recognizer := &fixedRecognizer{}
		svc := service.New(
			service.WithConfig(h.cfg),
			service.WithClock(h.clock.Now),
			service.WithSource(&frameSource{}),
			service.WithRecognizer(recognizer),
		)
		So(svc.Start(ctx), ShouldNotBeNil)

		Convey("When the cause is removed and Start is called again", func() {
			So(os.Remove(h.cfg.GalleryPath), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			_, leave, err := svc.Subscribe(ctx, "retry-viewer")
			So(err, ShouldBeNil)
			defer leave()

			Convey("Then marks should be written to a freshly opened store", func() {
				h.svc = svc
				h.recognizer = recognizer
				h.show(7)
				h.clock.Set("09:00")
				res, err := svc.MarkAttendance(ctx)
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, model.OutcomeSuccess)
				recs, err := svc.Records(ctx, "2024-03-01")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
			})
		})
	})
}

func TestService_RosterAndEnrollment(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h := newHarness(t)
		So(h.start(ctx), ShouldBeNil)
		defer h.stop()

		Convey("When a student registers", func() {
			p, err := h.svc.RegisterStudent(ctx, model.Person{ID: 21, DisplayName: "Meera", Metadata: "IT"})

			Convey("Then they should appear on the roster", func() {
				So(err, ShouldBeNil)
				So(p.ID, ShouldEqual, 21)
				So(len(h.svc.People()), ShouldEqual, 3)
			})
		})

		Convey("When samples are enrolled for an unknown person", func() {
			err := h.svc.Enroll(ctx, 99, [][]float32{{1, 0, 0}})

			Convey("Then enrollment should be refused", func() {
				So(err, ShouldNotBeNil)
				So(h.svc.GetStats()["gallery"], ShouldEqual, 0)
			})
		})

		Convey("When samples are enrolled for a rostered person", func() {
			err := h.svc.Enroll(ctx, 7, [][]float32{{1, 0, 0}, {0.9, 0.1, 0}})

			Convey("Then the gallery should grow", func() {
				So(err, ShouldBeNil)
				So(h.svc.GetStats()["gallery"], ShouldEqual, 2)
			})
		})

		Convey("When a flat image is enrolled", func() {
			_, err := h.svc.EnrollImages(ctx, 7, []image.Image{image.NewGray(image.Rect(0, 0, 32, 32))})

			Convey("Then no face should be found", func() {
				So(errors.Is(err, service.ErrNoFace), ShouldBeTrue)
			})
		})
	})
}
