package recognition

import (
	"context"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/okian/rollcall/internal/domain/model"
)

const (
	defaultGrid        = 16
	defaultMinContrast = 8.0
)

// LumaEmbedder describes a region by its mean-centred luma on a square grid.
// It is a stand-in for a trained face model.
type LumaEmbedder struct {
	Grid int
}

// Embed scales the region to Grid x Grid and returns centred luma values.
func (e LumaEmbedder) Embed(ctx context.Context, img image.Image, region model.Region) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grid := e.Grid
	if grid <= 0 {
		grid = defaultGrid
	}
	src := region.Rect().Intersect(img.Bounds())
	if src.Empty() {
		return nil, ErrEmptyRegion
	}

	luma := lumaGrid(img, src, grid)
	var mean float64
	for _, v := range luma {
		mean += v
	}
	mean /= float64(len(luma))

	vec := make([]float32, len(luma))
	var norm float64
	for i, v := range luma {
		c := v - mean
		vec[i] = float32(c)
		norm += c * c
	}
	if norm == 0 {
		return nil, ErrFlatDescriptor
	}
	return vec, nil
}

// FullFrameDetector treats the whole frame as one face crop when it has
// enough contrast, and as an empty scene otherwise.
type FullFrameDetector struct {
	MinContrast float64
}

// Detect returns the frame bounds as a single region, or nothing for a flat frame.
func (d FullFrameDetector) Detect(ctx context.Context, img image.Image) ([]model.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	minContrast := d.MinContrast
	if minContrast <= 0 {
		minContrast = defaultMinContrast
	}
	if stddev(lumaGrid(img, b, defaultGrid)) < minContrast {
		return nil, nil
	}
	return []model.Region{{X: b.Min.X, Y: b.Min.Y, W: b.Dx(), H: b.Dy()}}, nil
}

func lumaGrid(img image.Image, src image.Rectangle, grid int) []float64 {
	dst := image.NewRGBA(image.Rect(0, 0, grid, grid))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	out := make([]float64, 0, grid*grid)
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			// ITU-R BT.601 luma
			out = append(out, 0.299*float64(r>>8)+0.587*float64(g>>8)+0.114*float64(b>>8))
		}
	}
	return out
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(len(values)))
}
