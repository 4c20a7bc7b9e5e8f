// Package service wires the attendance components together and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/okian/rollcall/internal/adapters/capture"
	"github.com/okian/rollcall/internal/adapters/mq/mailbox"
	"github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/adapters/roster"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/recognition"
	"github.com/okian/rollcall/internal/domain/slot"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

const (
	stopTimeout        = 5 * time.Second
	outcomeStoreFailed = "store_failed"
)

// Sentinel errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrStopped    = errors.New("service stopped")
	ErrStoreWrite = errors.New("attendance could not be recorded")
	ErrNoFace     = errors.New("no face found in image")
)

// Service implements the API dependencies for the attendance system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config
	loc *time.Location
	now func() time.Time

	// Injected collaborators; built from cfg when nil.
	source     capture.Source
	recognizer worker.Recognizer
	store      repository.Store

	roster    *roster.Roster
	cache     *dedupe.Cache
	slot      *slot.Slot
	hub       *mailbox.Hub
	gallery   *recognition.Gallery
	detector  recognition.Detector
	embedder  recognition.Embedder
	loop      *worker.DetectionLoop
	rebuilt   repository.RebuildReport
	ownSource bool
	ownStore  bool

	started bool
	stopped bool

	logger logger.Logger
}

// New constructs a new Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the roster, opens the store, rebuilds the dedup cache and builds
// the detection loop. The loop itself starts on the first stream request.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting attendance service...")

	loc, err := s.cfg.Location()
	if err != nil {
		return fmt.Errorf("resolve timezone: %w", err)
	}
	s.loc = loc

	s.roster, err = roster.Load(ctx, s.cfg.RosterPath, s.logger.Named("roster"))
	if err != nil {
		return err
	}

	if s.store == nil {
		s.store, err = repository.Open(ctx, s.cfg, repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			return err
		}
		s.ownStore = true
	}

	s.cache = dedupe.New(
		dedupe.WithWindow(s.cfg.DedupWindow),
		dedupe.WithAnchor(dedupe.Anchor(s.cfg.DedupAnchor)),
	)
	s.rebuilt, err = repository.Rebuild(ctx, s.store, s.cache, s.loc, s.logger.Named("rebuild"))
	if err != nil {
		s.releaseStore()
		return err
	}

	s.embedder = recognition.LumaEmbedder{}
	s.detector = recognition.FullFrameDetector{}
	s.gallery = recognition.NewGallery(s.embedder)
	if s.cfg.GalleryPath != "" {
		if err := s.gallery.Load(ctx, s.cfg.GalleryPath); err != nil {
			s.releaseStore()
			return err
		}
	}
	metrics.UpdateGallerySize(s.gallery.Len())
	if s.recognizer == nil {
		s.recognizer = recognition.NewPipeline(s.detector, s.gallery)
	}

	if s.source == nil {
		if s.source, err = s.openSource(ctx); err != nil {
			s.releaseStore()
			return err
		}
		s.ownSource = true
	}

	s.slot = slot.New()
	s.hub = mailbox.New(mailbox.WithOnDrop(metrics.RecordFrameDropped))
	s.loop = worker.NewDetectionLoop(s.source, s.recognizer, s.roster, s.slot,
		worker.WithThreshold(s.cfg.ConfThreshold),
		worker.WithFrames(s.hub, recognition.NewAnnotator(s.cfg.JPEGQuality)),
		worker.WithClock(s.now),
	)

	s.started = true
	s.logger.Info(ctx, "attendance service started",
		logger.Int("roster", s.roster.Len()),
		logger.Int("records", s.rebuilt.Loaded),
		logger.Int("corrupt_records", s.rebuilt.Skipped),
		logger.Int("gallery", s.gallery.Len()),
		logger.Duration("dedup_window", s.cfg.DedupWindow),
		logger.String("dedup_anchor", s.cfg.DedupAnchor),
	)
	return nil
}

// releaseStore closes the store after a failed Start. A store opened from
// config is dropped so the next Start opens a fresh one.
func (s *Service) releaseStore() {
	_ = s.store.Close()
	if s.ownStore {
		s.store = nil
		s.ownStore = false
	}
}

func (s *Service) openSource(ctx context.Context) (capture.Source, error) {
	dir := s.cfg.FramesDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	open := func(context.Context) (capture.Source, error) {
		return capture.NewDirectorySource(dir, capture.WithInterval(s.cfg.FrameInterval))
	}
	return capture.NewReopeningSource(ctx, open, capture.DefaultReopenConfig(), s.logger.Named("capture"))
}

// Stop shuts down the loop, disconnects viewers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping attendance service...")

	if err := s.loop.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "detection loop did not stop in time", logger.Error(err))
	}
	s.hub.Close()
	if s.ownSource {
		_ = s.source.Close()
	}
	if s.cfg.GalleryPath != "" {
		if err := s.gallery.Save(s.cfg.GalleryPath); err != nil {
			s.logger.Error(ctx, "failed to save gallery", logger.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "failed to close store", logger.Error(err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "attendance service stopped")
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.stopped:
		return ErrStopped
	case !s.started:
		return ErrNotStarted
	}
	return nil
}

// MarkAttendance records the person currently in view.
//
// The returned error is non-nil only when the record could not be written;
// the result then carries a fail outcome and the cache is left unchanged.
func (s *Service) MarkAttendance(ctx context.Context) (model.MarkResult, error) {
	if err := s.running(); err != nil {
		return model.Fail(model.MsgStoreFailure), err
	}
	start := time.Now()
	res, err := s.mark(ctx)
	metrics.RecordMarkLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordMark(outcomeStoreFailed)
	} else {
		metrics.RecordMark(string(res.Outcome))
	}
	return res, err
}

func (s *Service) mark(ctx context.Context) (model.MarkResult, error) {
	id, ok := s.slot.Read()
	if !ok {
		return model.Fail(model.MsgNoFace), nil
	}
	person, ok := s.roster.Lookup(id)
	if !ok {
		s.logger.Warn(ctx, "slot holds a person missing from the roster", logger.Int("rollno", id))
		return model.Fail(model.MsgUnknownPerson), nil
	}

	// Records keep whole seconds; the cache must hold the same instant.
	now := s.now().In(s.loc).Truncate(time.Second)
	rec := model.NewRecord(person, now)
	decision, err := s.cache.Mark(ctx, person.ID, now, func(ctx context.Context) error {
		return s.store.Append(ctx, rec)
	})
	if err != nil {
		s.logger.Error(ctx, "failed to record attendance",
			logger.Int("rollno", person.ID),
			logger.Error(err))
		metrics.RecordErrorByComponent("store", "append")
		return model.Fail(model.MsgStoreFailure), fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	res := model.MarkResult{Name: person.DisplayName, Time: rec.Time}
	if decision == dedupe.Reverify {
		res.Outcome = model.OutcomeReverified
		return res, nil
	}
	res.Outcome = model.OutcomeSuccess
	metrics.UpdateCacheSize(s.cache.Size())
	s.logger.Info(ctx, "attendance recorded",
		logger.Int("rollno", person.ID),
		logger.String("name", person.DisplayName),
		logger.String("date", rec.Date),
		logger.String("time", rec.Time))
	return res, nil
}

// Subscribe registers a stream viewer and makes sure the detection loop runs.
// The returned cancel must be called when the viewer leaves.
func (s *Service) Subscribe(ctx context.Context, viewerID string) (mailbox.ReadFunc, func(), error) {
	if err := s.running(); err != nil {
		return nil, nil, err
	}
	if !s.loop.EnsureStarted(ctx) {
		return nil, nil, ErrStopped
	}
	read, err := s.hub.Subscribe(viewerID)
	if err != nil {
		return nil, nil, err
	}
	metrics.UpdateViewers(s.hub.Viewers())
	leave := func() {
		s.hub.Unsubscribe(viewerID)
		metrics.UpdateViewers(s.hub.Viewers())
	}
	return read, leave, nil
}

// RegisterStudent adds p to the roster.
func (s *Service) RegisterStudent(ctx context.Context, p model.Person) (model.Person, error) {
	if err := s.running(); err != nil {
		return model.Person{}, err
	}
	return s.roster.Register(ctx, p)
}

// Enroll adds face descriptors for a rostered person.
func (s *Service) Enroll(ctx context.Context, personID int, samples [][]float32) error {
	if err := s.running(); err != nil {
		return err
	}
	if _, err := s.roster.Resolve(personID); err != nil {
		return err
	}
	if err := s.gallery.OnNewEnrollment(ctx, personID, samples); err != nil {
		return err
	}
	metrics.UpdateGallerySize(s.gallery.Len())
	s.logger.Info(ctx, "face samples enrolled",
		logger.Int("rollno", personID),
		logger.Int("samples", len(samples)))
	return nil
}

// EnrollImages detects a face in each image and enrolls its descriptor.
func (s *Service) EnrollImages(ctx context.Context, personID int, imgs []image.Image) (int, error) {
	if err := s.running(); err != nil {
		return 0, err
	}
	samples := make([][]float32, 0, len(imgs))
	for _, img := range imgs {
		regions, err := s.detector.Detect(ctx, img)
		if err != nil {
			return 0, err
		}
		if len(regions) == 0 {
			continue
		}
		vec, err := s.embedder.Embed(ctx, img, regions[0])
		if err != nil {
			continue
		}
		samples = append(samples, vec)
	}
	if len(samples) == 0 {
		return 0, ErrNoFace
	}
	return len(samples), s.Enroll(ctx, personID, samples)
}

// Records returns the attendance stored for date (YYYY-MM-DD). An empty date
// means today.
func (s *Service) Records(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if date == "" {
		date = s.Today()
	}
	return s.store.List(ctx, date)
}

// Today returns the current date in the configured time zone.
func (s *Service) Today() string {
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	return s.now().In(loc).Format(model.DateLayout)
}

// People returns the roster ordered by id.
func (s *Service) People() []model.Person {
	if s.running() != nil {
		return nil
	}
	return s.roster.People()
}

// LastMarks returns the most recent mark per person held by the dedup cache.
func (s *Service) LastMarks() []model.CacheEntry {
	if s.running() != nil {
		return nil
	}
	return s.cache.Snapshot()
}

// LoopStats exposes detection loop counters.
func (s *Service) LoopStats() worker.Stats {
	if s.running() != nil {
		return worker.Stats{}
	}
	return s.loop.Stats()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"storeDriver":  s.cfg.StoreDriver,
		"dedupWindow":  s.cfg.DedupWindow.String(),
		"dedupAnchor":  s.cfg.DedupAnchor,
		"threshold":    s.cfg.ConfThreshold,
		"frameSeconds": s.cfg.FrameInterval.Seconds(),
	}
	if !s.started {
		return stats
	}

	loop := s.loop.Stats()
	hub := s.hub.Stats()
	_, occupied := s.slot.Read()

	stats["roster"] = s.roster.Len()
	stats["rosterSkipped"] = s.roster.Skipped()
	stats["gallery"] = s.gallery.Len()
	stats["cacheSize"] = s.cache.Size()
	stats["recordsLoaded"] = s.rebuilt.Loaded
	stats["recordsSkipped"] = s.rebuilt.Skipped
	stats["detectorRunning"] = loop.Running
	stats["cycles"] = loop.Cycles
	stats["acquisitionFailures"] = loop.AcquisitionFailures
	stats["recognitionFailures"] = loop.RecognitionFailures
	stats["accepted"] = loop.Accepted
	stats["rejected"] = loop.Rejected
	stats["slotOccupied"] = occupied
	stats["viewers"] = hub.Viewers
	stats["framesPublished"] = hub.Published
	stats["framesDropped"] = hub.Drops

	metrics.UpdateCacheSize(s.cache.Size())
	metrics.UpdateRosterSize(s.roster.Len())
	return stats
}
