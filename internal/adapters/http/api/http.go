// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"image"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/rollcall/internal/adapters/mq/mailbox"
	"github.com/okian/rollcall/internal/adapters/roster"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/recognition"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	MarkDependencies
	StreamDependencies
	StudentDependencies
	EnrollmentDependencies
	AttendanceDependencies
}

// Server wires HTTP routes for the attendance API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	markHandler       *MarkHandler
	streamHandler     *StreamHandler
	studentHandler    *StudentHandler
	enrollmentHandler *EnrollmentHandler
	attendanceHandler *AttendanceHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		markHandler:       NewMarkHandler(deps),
		streamHandler:     NewStreamHandler(deps),
		studentHandler:    NewStudentHandler(deps),
		enrollmentHandler: NewEnrollmentHandler(deps),
		attendanceHandler: NewAttendanceHandler(deps),
	}
}

// NewRouter returns a chi router with the common middleware stack.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Get("/mark-attendance", MetricsMiddleware(s.markHandler.HandleMark, "mark_attendance"))

	stream := MetricsMiddleware(s.streamHandler.HandleVideoFeed, "video_feed")
	r.Get("/video-feed", stream)
	r.Get("/video_feed", stream)

	r.Get("/students", MetricsMiddleware(s.studentHandler.HandleList, "students"))
	create := MetricsMiddleware(s.studentHandler.HandleCreate, "students")
	r.Post("/students", create)
	r.Post("/save-student", create)
	r.Post("/enrollments/{id}", MetricsMiddleware(s.enrollmentHandler.HandleEnroll, "enrollments"))
	r.Get("/attendance", MetricsMiddleware(s.attendanceHandler.HandleList, "attendance"))
}

// MarkDependencies is what GET /mark-attendance needs.
type MarkDependencies interface {
	MarkAttendance(ctx context.Context) (model.MarkResult, error)
}

// StreamDependencies is what GET /video-feed needs.
type StreamDependencies interface {
	Subscribe(ctx context.Context, viewerID string) (mailbox.ReadFunc, func(), error)
}

// StudentDependencies is what /students needs.
type StudentDependencies interface {
	RegisterStudent(ctx context.Context, p model.Person) (model.Person, error)
	People() []model.Person
}

// EnrollmentDependencies is what POST /enrollments/{id} needs.
type EnrollmentDependencies interface {
	Enroll(ctx context.Context, personID int, samples [][]float32) error
	EnrollImages(ctx context.Context, personID int, imgs []image.Image) (int, error)
}

// AttendanceDependencies is what GET /attendance needs.
type AttendanceDependencies interface {
	Records(ctx context.Context, date string) ([]model.AttendanceRecord, error)
}

// kindOf classifies an upstream error as one of the API kinds, or nil for an
// internal failure.
func kindOf(err error) error {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, roster.ErrInvalidPerson),
		errors.Is(err, recognition.ErrNoSamples),
		errors.Is(err, recognition.ErrDimension),
		errors.Is(err, recognition.ErrFlatDescriptor),
		errors.Is(err, service.ErrNoFace):
		return ErrBadRequest
	case errors.Is(err, ErrNotFound),
		errors.Is(err, roster.ErrUnknownPerson):
		return ErrNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, roster.ErrDuplicatePerson):
		return ErrConflict
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, service.ErrStopped),
		errors.Is(err, mailbox.ErrClosed),
		errors.Is(err, mailbox.ErrTooManyViewers):
		return ErrUnavailable
	default:
		return nil
	}
}

// statusFor maps upstream errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch kindOf(err) {
	case ErrBadRequest:
		return http.StatusBadRequest, "bad_request"
	case ErrNotFound:
		return http.StatusNotFound, "not_found"
	case ErrConflict:
		return http.StatusConflict, "conflict"
	case ErrUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeUpstreamError tags err with op and its kind and writes the matching status.
func writeUpstreamError(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if kind := kindOf(err); kind != nil && !errors.Is(err, kind) {
		err = WrapKind(op, kind, err)
	}
	writeError(w, status, code, err)
}
