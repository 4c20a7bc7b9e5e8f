package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for uploaded samples
	_ "image/png"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/rollcall/internal/domain/types"
)

// EnrollmentHandler adds face samples for a rostered person.
type EnrollmentHandler struct {
	deps EnrollmentDependencies
}

// NewEnrollmentHandler creates a new enrollment handler.
func NewEnrollmentHandler(deps EnrollmentDependencies) *EnrollmentHandler {
	return &EnrollmentHandler{deps: deps}
}

// HandleEnroll handles POST /enrollments/{id}.
//
// A JSON body carries precomputed descriptors: {"samples": [[...], ...]}.
// A multipart body carries face images under the "images" field.
func (h *EnrollmentHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	const op = "api.enroll"
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var n int
	switch ct {
	case "multipart/form-data":
		n, err = h.enrollImages(w, r, id)
	default:
		n, err = h.enrollSamples(w, r, id)
	}
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.EnrollmentResult{RollNo: id, Samples: n})
}

func (h *EnrollmentHandler) enrollSamples(w http.ResponseWriter, r *http.Request, id int) (int, error) {
	const op = "api.enroll_samples"
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req types.Enrollment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, WrapKind(op, ErrBadRequest, err)
	}
	if len(req.Samples) == 0 {
		return 0, WrapKind(op, ErrBadRequest, errors.New("samples must not be empty"))
	}
	if err := h.deps.Enroll(r.Context(), id, req.Samples); err != nil {
		return 0, err
	}
	return len(req.Samples), nil
}

func (h *EnrollmentHandler) enrollImages(w http.ResponseWriter, r *http.Request, id int) (int, error) {
	const op = "api.enroll_images"
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := r.ParseMultipartForm(maxFormBody); err != nil {
		return 0, WrapKind(op, ErrBadRequest, err)
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		return 0, WrapKind(op, ErrBadRequest, errors.New("no images uploaded"))
	}
	imgs := make([]image.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return 0, WrapKind(op, ErrBadRequest, err)
		}
		img, _, err := image.Decode(f)
		_ = f.Close()
		if err != nil {
			return 0, WrapKind(op, ErrBadRequest, fmt.Errorf("%s: %w", fh.Filename, err))
		}
		imgs = append(imgs, img)
	}
	return h.deps.EnrollImages(r.Context(), id, imgs)
}
