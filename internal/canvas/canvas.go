// Package canvas implements the drawing surface: a fixed-size RGBA raster
// that receives freehand strokes from pointer events.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

const (
	DefaultSize       = 280
	DefaultBrushWidth = 20
)

var (
	Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Ink        = color.RGBA{A: 255}
)

// Canvas is a white raster with a round-capped black brush. It is not safe
// for concurrent use; its owner serializes access.
type Canvas struct {
	img     *image.RGBA
	radius  float64
	drawing bool
	lastX   float64
	lastY   float64
}

// New returns a cleared width×height canvas using a brush of the given width.
func New(width, height, brushWidth int) *Canvas {
	if width <= 0 {
		width = DefaultSize
	}
	if height <= 0 {
		height = DefaultSize
	}
	if brushWidth <= 0 {
		brushWidth = DefaultBrushWidth
	}
	c := &Canvas{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		radius: float64(brushWidth) / 2,
	}
	c.Clear()
	return c
}

// Clear fills the surface with the background and drops any open stroke.
func (c *Canvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
	c.drawing = false
}

// StartStroke begins a stroke at (x, y) and inks a single round dot there.
func (c *Canvas) StartStroke(x, y float64) {
	c.drawing = true
	c.lastX, c.lastY = x, y
	c.segment(x, y, x, y)
}

// MoveTo extends the open stroke to (x, y). Without an open stroke it does nothing.
func (c *Canvas) MoveTo(x, y float64) {
	if !c.drawing {
		return
	}
	c.segment(c.lastX, c.lastY, x, y)
	c.lastX, c.lastY = x, y
}

// EndStroke closes the open stroke, if any.
func (c *Canvas) EndStroke() {
	c.drawing = false
}

// Drawing reports whether a stroke is open.
func (c *Canvas) Drawing() bool {
	return c.drawing
}

// Bounds returns the raster bounds.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// Content returns a copy of the raster.
func (c *Canvas) Content() *image.RGBA {
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// segment inks every pixel whose center lies within radius of the segment
// (x0,y0)-(x1,y1), which yields round caps and round joins between segments.
func (c *Canvas) segment(x0, y0, x1, y1 float64) {
	r := c.radius
	area := image.Rect(
		int(math.Floor(math.Min(x0, x1)-r)),
		int(math.Floor(math.Min(y0, y1)-r)),
		int(math.Ceil(math.Max(x0, x1)+r))+1,
		int(math.Ceil(math.Max(y0, y1)+r))+1,
	).Intersect(c.img.Bounds())

	dx, dy := x1-x0, y1-y0
	lenSq := dx*dx + dy*dy
	rSq := r * r

	for py := area.Min.Y; py < area.Max.Y; py++ {
		for px := area.Min.X; px < area.Max.X; px++ {
			cx, cy := float64(px)+0.5, float64(py)+0.5
			t := 0.0
			if lenSq > 0 {
				t = ((cx-x0)*dx + (cy-y0)*dy) / lenSq
				t = math.Max(0, math.Min(1, t))
			}
			ex, ey := cx-(x0+t*dx), cy-(y0+t*dy)
			if ex*ex+ey*ey <= rSq {
				c.img.SetRGBA(px, py, Ink)
			}
		}
	}
}
