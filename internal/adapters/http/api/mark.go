package api

import (
	"net/http"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/types"
)

// MarkHandler handles mark attendance requests.
type MarkHandler struct {
	deps MarkDependencies
}

// NewMarkHandler creates a new mark handler.
func NewMarkHandler(deps MarkDependencies) *MarkHandler {
	return &MarkHandler{deps: deps}
}

// HandleMark handles GET /mark-attendance requests.
// Every outcome is a 200 except a failed store write, which is a 500 that
// still carries the fail body.
func (h *MarkHandler) HandleMark(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.MarkAttendance(r.Context())
	body := toMarkResponse(res)
	if err != nil {
		status, _ := statusFor(err)
		if body.Status == "" {
			body = toMarkResponse(model.Fail(model.MsgStoreFailure))
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func toMarkResponse(res model.MarkResult) types.MarkResponse {
	return types.MarkResponse{
		Status: string(res.Outcome),
		Name:   res.Name,
		Time:   res.Time,
		Msg:    res.Msg,
	}
}
