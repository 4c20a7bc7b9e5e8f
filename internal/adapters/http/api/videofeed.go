package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

const frameBoundary = "frame"

// StreamHandler serves the annotated camera feed as MJPEG.
type StreamHandler struct {
	deps StreamDependencies
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies) *StreamHandler {
	return &StreamHandler{deps: deps}
}

// HandleVideoFeed handles GET /video-feed. The response never completes on its
// own: it ends when the client disconnects or the service stops.
func (h *StreamHandler) HandleVideoFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.video_feed"
	ctx := r.Context()
	viewer := uuid.NewString()

	read, leave, err := h.deps.Subscribe(ctx, viewer)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, WrapKind(op, ErrStream, err))
		return
	}
	defer leave()

	log := logger.Get().Named("stream")
	log.Debug(ctx, "viewer connected", logger.String("viewer", viewer))
	defer log.Debug(ctx, "viewer disconnected", logger.String("viewer", viewer))

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+frameBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	for {
		frame, ok := read(ctx)
		if !ok {
			return
		}
		if err := writePart(w, frame.JPEG); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
		metrics.RecordFrameSent()
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	header := "--" + frameBoundary + "\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Content-Length: " + strconv.Itoa(len(jpeg)) + "\r\n\r\n"
	if _, err := w.Write([]byte(header)); err != nil {
		return fmt.Errorf("write part header: %w", err)
	}
	if _, err := w.Write(jpeg); err != nil {
		return fmt.Errorf("write part body: %w", err)
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return fmt.Errorf("write part trailer: %w", err)
	}
	return nil
}
