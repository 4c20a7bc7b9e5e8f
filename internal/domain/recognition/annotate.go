package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/okian/rollcall/internal/domain/model"
)

// ErrNoImage is returned when a frame carries no image.
var ErrNoImage = errors.New("recognition: frame has no image")

// UnknownLabel captions rejected faces.
const UnknownLabel = "Unknown"

var (
	acceptColor = color.RGBA{G: 255, A: 255}
	rejectColor = color.RGBA{R: 255, A: 255}
)

const boxThickness = 2

// Box is one region to outline on a frame.
type Box struct {
	Region   model.Region
	Label    string
	Accepted bool
}

// Annotator draws boxes and labels and encodes the result as JPEG.
type Annotator struct {
	quality int
	face    font.Face
}

// NewAnnotator creates an annotator encoding at the given JPEG quality.
func NewAnnotator(quality int) *Annotator {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &Annotator{quality: quality, face: basicfont.Face7x13}
}

// Annotate draws boxes onto a copy of img and returns the JPEG bytes.
func (a *Annotator) Annotate(img image.Image, boxes []Box) ([]byte, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	b := img.Bounds()
	canvas := image.NewRGBA(b)
	draw.Draw(canvas, b, img, b.Min, draw.Src)

	for _, box := range boxes {
		col := rejectColor
		label := UnknownLabel
		if box.Accepted {
			col = acceptColor
			label = box.Label
		}
		outline(canvas, box.Region.Rect().Intersect(b), col)
		a.label(canvas, box.Region, label, col)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: a.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Annotator) label(dst *image.RGBA, r model.Region, text string, col color.Color) {
	y := r.Y - 4
	if y < dst.Bounds().Min.Y+a.face.Metrics().Ascent.Ceil() {
		y = r.Y + r.H - 4 // no room above the box
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: a.face,
		Dot:  fixed.P(r.X+boxThickness, y),
	}
	d.DrawString(text)
}

func outline(dst *image.RGBA, r image.Rectangle, col color.Color) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(col)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
