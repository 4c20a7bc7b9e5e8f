package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/okian/rollcall/internal/domain/model"
)

const (
	galleryMaxNeighbors = 16
	gallerySearchK      = 3
	// confidenceScale maps cosine distance onto the recognizer threshold scale.
	confidenceScale = 100
)

// Gallery identifies faces by nearest enrolled descriptor.
// Safe for concurrent Identify and OnNewEnrollment.
type Gallery struct {
	embedder Embedder

	mu      sync.RWMutex
	graph   *hnsw.Graph[int64]
	owners  map[int64]int
	samples map[int][][]float32
	nextKey int64
	dim     int
}

// NewGallery creates an empty gallery that embeds regions with e.
func NewGallery(e Embedder) *Gallery {
	return &Gallery{
		embedder: e,
		owners:   make(map[int64]int),
		samples:  make(map[int][][]float32),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = galleryMaxNeighbors
	g.Ml = 1.0 / float64(galleryMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Identify embeds the region and returns the nearest enrolled person.
func (g *Gallery) Identify(ctx context.Context, img image.Image, region model.Region) (int, float64, error) {
	vec, err := g.embedder.Embed(ctx, img, region)
	if err != nil {
		return 0, NoMatchConfidence, err
	}
	return g.Nearest(vec)
}

// Nearest returns the owner of the closest descriptor and its scaled distance.
func (g *Gallery) Nearest(vec []float32) (int, float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil || g.graph.Len() == 0 {
		return 0, NoMatchConfidence, ErrNoMatch
	}
	if len(vec) != g.dim {
		return 0, NoMatchConfidence, fmt.Errorf("%w: got %d want %d", ErrDimension, len(vec), g.dim)
	}

	best, bestDist := 0, NoMatchConfidence
	for _, n := range g.graph.Search(vec, gallerySearchK) {
		d := float64(hnsw.CosineDistance(vec, n.Value)) * confidenceScale
		if d < bestDist {
			best, bestDist = g.owners[n.Key], d
		}
	}
	if math.IsInf(bestDist, 1) {
		return 0, NoMatchConfidence, ErrNoMatch
	}
	return best, bestDist, nil
}

// OnNewEnrollment indexes samples for personID.
func (g *Gallery) OnNewEnrollment(_ context.Context, personID int, samples [][]float32) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	dim := g.dim
	for _, s := range samples {
		if len(s) == 0 {
			return ErrNoSamples
		}
		if dim == 0 {
			dim = len(s)
		}
		if len(s) != dim {
			return fmt.Errorf("%w: got %d want %d", ErrDimension, len(s), dim)
		}
	}
	if g.graph == nil {
		g.graph = newGraph()
	}
	g.dim = dim
	for _, s := range samples {
		vec := append([]float32(nil), s...)
		g.nextKey++
		g.graph.Add(hnsw.MakeNode(g.nextKey, vec))
		g.owners[g.nextKey] = personID
		g.samples[personID] = append(g.samples[personID], vec)
	}
	return nil
}

// Len returns the number of indexed descriptors.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.owners)
}

// People returns the ids with at least one descriptor, ascending.
func (g *Gallery) People() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]int, 0, len(g.samples))
	for id := range g.samples {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type galleryFile struct {
	People []galleryPerson `json:"people"`
}

type galleryPerson struct {
	ID      int         `json:"id"`
	Samples [][]float32 `json:"samples"`
}

// Save writes every enrolled descriptor to path as JSON.
func (g *Gallery) Save(path string) error {
	g.mu.RLock()
	doc := galleryFile{People: make([]galleryPerson, 0, len(g.samples))}
	for id, s := range g.samples {
		doc.People = append(doc.People, galleryPerson{ID: id, Samples: s})
	}
	g.mu.RUnlock()
	sort.Slice(doc.People, func(i, j int) bool { return doc.People[i].ID < doc.People[j].ID })

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load enrolls every person stored at path. A missing file is not an error.
func (g *Gallery) Load(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read gallery: %w", err)
	}
	var doc galleryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode gallery: %w", err)
	}
	for _, p := range doc.People {
		if err := g.OnNewEnrollment(ctx, p.ID, p.Samples); err != nil {
			return fmt.Errorf("enroll %d: %w", p.ID, err)
		}
	}
	return nil
}
