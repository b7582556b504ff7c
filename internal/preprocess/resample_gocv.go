//go:build gocv

package preprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// The area filter averages every source pixel covered by a destination
// pixel (OpenCV INTER_AREA). It needs OpenCV, so it is only built with the
// gocv tag.
func init() {
	Register("area", areaResample)
}

func areaResample(src image.Image, size int) (image.Image, error) {
	mat, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image to mat: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("converted image is empty")
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(mat, &dst, image.Pt(size, size), 0, 0, gocv.InterpolationArea)

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mat to image: %w", err)
	}
	return out, nil
}
