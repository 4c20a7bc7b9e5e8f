// Package recognition turns frames into identifications.
//
// Detection and identification models are collaborators behind the Detector,
// Embedder and Identifier interfaces. The package ships a nearest-neighbour
// Gallery over enrolled descriptors and simple stand-in models so the service
// runs end to end without a vision runtime.
package recognition

import (
	"context"
	"errors"
	"image"
	"math"

	"github.com/okian/rollcall/internal/domain/model"
)

// Sentinel errors.
var (
	ErrNoMatch        = errors.New("recognition: no match")
	ErrEmptyRegion    = errors.New("recognition: empty region")
	ErrFlatDescriptor = errors.New("recognition: descriptor has no contrast")
	ErrDimension      = errors.New("recognition: descriptor dimension mismatch")
	ErrNoSamples      = errors.New("recognition: no samples")
)

// NoMatchConfidence is reported for regions no enrolled person resembles.
var NoMatchConfidence = math.Inf(1)

// Detector finds face regions in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]model.Region, error)
}

// Identifier maps a face region to the closest known person.
// Lower confidence is a better match.
type Identifier interface {
	Identify(ctx context.Context, img image.Image, region model.Region) (personID int, confidence float64, err error)
}

// Embedder computes a face descriptor for a region.
type Embedder interface {
	Embed(ctx context.Context, img image.Image, region model.Region) ([]float32, error)
}

// Enroller receives new face samples for a person.
type Enroller interface {
	OnNewEnrollment(ctx context.Context, personID int, samples [][]float32) error
}

// Recognizer runs detection then identification over a frame.
type Recognizer interface {
	Recognize(ctx context.Context, frame model.Frame) ([]model.Identification, error)
}

// Pipeline is the default Recognizer.
type Pipeline struct {
	detector   Detector
	identifier Identifier
}

// NewPipeline combines a detector and an identifier.
func NewPipeline(d Detector, id Identifier) *Pipeline {
	return &Pipeline{detector: d, identifier: id}
}

// Recognize returns one identification per detected region, in detection
// order. Regions that match nobody are returned with NoMatchConfidence.
// Only a detector failure or cancellation is an error.
func (p *Pipeline) Recognize(ctx context.Context, frame model.Frame) ([]model.Identification, error) {
	if frame.Image == nil {
		return nil, nil
	}
	regions, err := p.detector.Detect(ctx, frame.Image)
	if err != nil {
		return nil, err
	}
	out := make([]model.Identification, 0, len(regions))
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, conf, err := p.identifier.Identify(ctx, frame.Image, r)
		if err != nil {
			id, conf = 0, NoMatchConfidence
		}
		out = append(out, model.Identification{Region: r, PersonID: id, Confidence: conf})
	}
	return out, nil
}
