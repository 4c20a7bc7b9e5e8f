package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/types"
)

// AttendanceHandler serves stored attendance records.
type AttendanceHandler struct {
	deps AttendanceDependencies
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies) *AttendanceHandler {
	return &AttendanceHandler{deps: deps}
}

// HandleList handles GET /attendance?date=YYYY-MM-DD. Without date it lists today.
func (h *AttendanceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_attendance"
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, errors.New("date must be YYYY-MM-DD")))
			return
		}
	}
	recs, err := h.deps.Records(r.Context(), date)
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	out := make([]types.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, types.Record{
			RollNo: rec.PersonID,
			Name:   rec.DisplayName,
			Date:   rec.Date,
			Time:   rec.Time,
			Status: rec.Status,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
