package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/types"
)

const (
	maxJSONBody = 1 << 20
	maxFormBody = 32 << 20
)

// StudentHandler registers and lists students.
type StudentHandler struct {
	deps StudentDependencies
}

// NewStudentHandler creates a new student handler.
func NewStudentHandler(deps StudentDependencies) *StudentHandler {
	return &StudentHandler{deps: deps}
}

// HandleCreate handles POST /students with a JSON body or form fields
// rollno, name and branch.
func (h *StudentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_student"
	req, err := decodeStudent(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.RegisterStudent(r.Context(), model.Person{
		ID:          req.RollNo,
		DisplayName: req.Name,
		Metadata:    req.Branch,
	})
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudent(p))
}

// HandleList handles GET /students.
func (h *StudentHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	people := h.deps.People()
	out := make([]types.Student, 0, len(people))
	for _, p := range people {
		out = append(out, toStudent(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeStudent(w http.ResponseWriter, r *http.Request) (types.Student, error) {
	var req types.Student
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFormBody); err != nil {
			return req, err
		}
	} else if err := r.ParseForm(); err != nil {
		return req, err
	}
	raw := strings.TrimSpace(r.FormValue("rollno"))
	if raw == "" {
		return req, errors.New("missing rollno")
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return req, errors.New("rollno must be an integer")
	}
	req.RollNo = id
	req.Name = r.FormValue("name")
	req.Branch = r.FormValue("branch")
	return req, nil
}

func toStudent(p model.Person) types.Student {
	return types.Student{RollNo: p.ID, Name: p.DisplayName, Branch: p.Metadata}
}
