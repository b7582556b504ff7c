// Package preprocess turns a drawing into the model input tensor: resample to
// a 28×28 grid, keep the red channel and invert it so ink is 1 and paper is 0.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

const (
	GridSize  = 28
	TensorLen = GridSize * GridSize
)

// TensorShape is the logical [batch, channel, height, width] layout.
var TensorShape = []int64{1, 1, GridSize, GridSize}

var ErrEmptyImage = errors.New("image has no pixels")

type Preprocessor struct {
	filter   string
	resample ResampleFunc
}

// New returns a Preprocessor using the named resampling filter.
func New(filter string) (*Preprocessor, error) {
	if filter == "" {
		filter = DefaultFilter
	}
	fn, err := Lookup(filter)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{filter: filter, resample: fn}, nil
}

// Filter returns the resampling filter name.
func (p *Preprocessor) Filter() string {
	return p.filter
}

// Tensor converts img into TensorLen row-major values in [0, 1].
func (p *Preprocessor) Tensor(img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	grid, err := p.resample(flatten(img), GridSize)
	if err != nil {
		return nil, fmt.Errorf("resample with %s: %w", p.filter, err)
	}

	b := grid.Bounds()
	if b.Dx() != GridSize || b.Dy() != GridSize {
		return nil, fmt.Errorf("resample with %s: got %dx%d grid", p.filter, b.Dx(), b.Dy())
	}

	tensor := make([]float32, TensorLen)
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			r, _, _, _ := grid.At(b.Min.X+x, b.Min.Y+y).RGBA()
			tensor[y*GridSize+x] = Normalize(uint8(r >> 8))
		}
	}
	return tensor, nil
}

// Normalize maps a channel value to 1 - v/255: paper (255) becomes 0 and
// ink (0) becomes 1.
func Normalize(v uint8) float32 {
	return float32(1 - float64(v)/255.0)
}

// flatten composites img over an opaque white background so transparent
// regions read as paper.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}
