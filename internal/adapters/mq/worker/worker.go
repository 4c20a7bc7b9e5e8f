// Package worker runs the detection loop: frames in, current identity and
// annotated frames out. The loop never writes attendance.
package worker

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/recognition"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Default loop configuration constants.
const (
	defaultThreshold      = 85.0
	defaultBackoff        = 50 * time.Millisecond
	acquisitionLogEvery   = 50
	decisionAccepted      = "accepted"
	decisionRejected      = "rejected"
	componentDetectorLoop = "detector"
)

// Source yields frames.
type Source interface {
	Next(ctx context.Context) (model.Frame, error)
}

// Recognizer turns a frame into identifications.
type Recognizer interface {
	Recognize(ctx context.Context, frame model.Frame) ([]model.Identification, error)
}

// Roster resolves person ids.
type Roster interface {
	Lookup(id int) (model.Person, bool)
}

// Slot receives the identity chosen for each cycle.
type Slot interface {
	Publish(cycle uint64, personID int, ok bool) bool
}

// Frames receives annotated frames for viewers.
type Frames interface {
	Publish(f model.AnnotatedFrame)
}

// Annotator renders boxes onto a frame.
type Annotator interface {
	Annotate(img image.Image, boxes []recognition.Box) ([]byte, error)
}

// Worker is the lifecycle contract of the detection loop.
type Worker interface {
	// Run drives cycles until ctx is cancelled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the loop and waits for the current cycle to finish.
	Shutdown(ctx context.Context) error
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Running             bool
	Cycles              uint64
	AcquisitionFailures uint64
	RecognitionFailures uint64
	Accepted            uint64
	Rejected            uint64
}

// DetectionLoop implements Worker.
type DetectionLoop struct {
	source     Source
	recognizer Recognizer
	roster     Roster
	slot       Slot
	frames     Frames
	annotator  Annotator

	name      string
	threshold float64
	backoff   time.Duration
	now       func() time.Time

	started  atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc

	cycles              atomic.Uint64
	acquisitionFailures atomic.Uint64
	recognitionFailures atomic.Uint64
	accepted            atomic.Uint64
	rejected            atomic.Uint64

	logger logger.Logger
}

// NewDetectionLoop wires a loop. frames and the annotator are optional.
func NewDetectionLoop(source Source, recognizer Recognizer, roster Roster, slot Slot, opts ...Option) *DetectionLoop {
	l := &DetectionLoop{
		source:     source,
		recognizer: recognizer,
		roster:     roster,
		slot:       slot,
		name:       componentDetectorLoop,
		threshold:  defaultThreshold,
		backoff:    defaultBackoff,
		now:        time.Now,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named(componentDetectorLoop),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.name != componentDetectorLoop {
		l.logger = l.logger.Named(l.name)
	}
	return l
}

// Run drives the loop. Only the first call runs; later calls return at once.
func (l *DetectionLoop) Run(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	// Shutdown cancels ctx so a blocked source read or backoff returns at once.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.cancelMu.Lock()
	l.cancelRun = cancel
	l.cancelMu.Unlock()

	l.running.Store(true)
	metrics.UpdateDetectorRunning(true)
	l.logger.Info(ctx, "detection loop started", logger.Float64("threshold", l.threshold))
	defer func() {
		l.running.Store(false)
		metrics.UpdateDetectorRunning(false)
		l.logger.Info(ctx, "detection loop stopped", logger.Uint64("cycles", l.cycles.Load()))
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		default:
		}
		l.runCycle(ctx)
	}
}

// EnsureStarted starts the loop in the background if it has never run.
// The loop is detached from ctx cancellation so that one viewer leaving does
// not stop it. Returns false once the loop has been shut down.
func (l *DetectionLoop) EnsureStarted(ctx context.Context) bool {
	select {
	case <-l.shutdown:
		return false
	default:
	}
	if l.started.Load() {
		return true
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer cancel()
		l.Run(runCtx)
	}()
	return true
}

// Running reports whether the loop is currently cycling.
func (l *DetectionLoop) Running() bool {
	return l.running.Load()
}

// Shutdown stops the loop and waits for it to exit.
func (l *DetectionLoop) Shutdown(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.shutdown) })
	l.cancelMu.Lock()
	if l.cancelRun != nil {
		l.cancelRun()
	}
	l.cancelMu.Unlock()
	if !l.started.Load() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns loop counters.
func (l *DetectionLoop) Stats() Stats {
	return Stats{
		Running:             l.Running(),
		Cycles:              l.cycles.Load(),
		AcquisitionFailures: l.acquisitionFailures.Load(),
		RecognitionFailures: l.recognitionFailures.Load(),
		Accepted:            l.accepted.Load(),
		Rejected:            l.rejected.Load(),
	}
}

// runCycle performs one acquire, recognize, publish pass.
func (l *DetectionLoop) runCycle(ctx context.Context) {
	start := time.Now()

	frame, err := l.source.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		n := l.acquisitionFailures.Add(1)
		metrics.RecordAcquisitionError()
		if n == 1 || n%acquisitionLogEvery == 0 {
			l.logger.Warn(ctx, "frame acquisition failed", logger.Uint64("failures", n), logger.Error(err))
		}
		l.wait(ctx, l.backoff)
		return
	}

	ids, err := l.recognizer.Recognize(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.recognitionFailures.Add(1)
		metrics.RecordRecognitionError()
		metrics.RecordErrorByComponent(l.name, "recognition")
		l.logger.Warn(ctx, "recognition failed, treating frame as empty", logger.Error(err))
		ids = nil
	}

	cycle := l.cycles.Add(1)
	observedAt := frame.CapturedAt
	if observedAt.IsZero() {
		observedAt = l.now()
	}

	personID, found := 0, false
	boxes := make([]recognition.Box, 0, len(ids))
	events := make([]model.DetectionEvent, 0, len(ids))
	for _, id := range ids {
		box := recognition.Box{Region: id.Region}
		if id.Confidence < l.threshold {
			if p, ok := l.roster.Lookup(id.PersonID); ok {
				box.Accepted, box.Label = true, p.Label()
				personID, found = p.ID, true
			}
		}
		if box.Accepted {
			l.accepted.Add(1)
			metrics.RecordFace(decisionAccepted)
		} else {
			l.rejected.Add(1)
			metrics.RecordFace(decisionRejected)
		}
		boxes = append(boxes, box)
		events = append(events, model.DetectionEvent{
			PersonID:   id.PersonID,
			Confidence: id.Confidence,
			ObservedAt: observedAt,
			Accepted:   box.Accepted,
		})
	}

	l.slot.Publish(cycle, personID, found)
	metrics.UpdateSlotOccupied(found)

	if l.frames != nil && l.annotator != nil && frame.Image != nil {
		jpg, err := l.annotator.Annotate(frame.Image, boxes)
		if err != nil {
			l.logger.Warn(ctx, "annotate frame failed", logger.Uint64("cycle", cycle), logger.Error(err))
		} else {
			l.frames.Publish(model.AnnotatedFrame{Seq: cycle, JPEG: jpg, Detections: events})
		}
	}

	metrics.RecordCycle(float64(time.Since(start).Microseconds()) / 1000)
}

func (l *DetectionLoop) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-l.shutdown:
	case <-t.C:
	}
}
