// Package texture measures surface texture and focus on grayscale crops.
package texture

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"terrain-classifier/internal/opencv/safe"
)

const grayLevels = 256

// offset is a (row, col) displacement at distance 1.
type offset struct {
	dy, dx int
}

// Angles 0, 45, 90 and 135 degrees, row axis pointing down.
var offsets = []offset{
	{0, 1},
	{-1, 1},
	{-1, 0},
	{-1, -1},
}

// CoOccurrence builds the symmetric, normalised gray-level co-occurrence matrix for one
// displacement. ok is false when the displacement yields no pixel pairs.
func CoOccurrence(pixels []byte, width, height, dy, dx int) (*mat.Dense, bool) {
	glcm := mat.NewDense(grayLevels, grayLevels, nil)
	var pairs float64

	for y := 0; y < height; y++ {
		ny := y + dy
		if ny < 0 || ny >= height {
			continue
		}
		for x := 0; x < width; x++ {
			nx := x + dx
			if nx < 0 || nx >= width {
				continue
			}
			i := int(pixels[y*width+x])
			j := int(pixels[ny*width+nx])
			glcm.Set(i, j, glcm.At(i, j)+1)
			glcm.Set(j, i, glcm.At(j, i)+1)
			pairs += 2
		}
	}

	if pairs == 0 {
		return nil, false
	}

	glcm.Scale(1/pairs, glcm)
	return glcm, true
}

// Contrast is sum P(i,j) * (i-j)^2 over a normalised co-occurrence matrix.
func Contrast(glcm *mat.Dense) float64 {
	var contrast float64
	rows, cols := glcm.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p := glcm.At(i, j)
			if p == 0 {
				continue
			}
			d := float64(i - j)
			contrast += p * d * d
		}
	}
	return contrast
}

// MeanContrast averages GLCM contrast over the four standard angles. Angles without pixel
// pairs are skipped; ok is false when none had any.
func MeanContrast(pixels []byte, width, height int) (float64, bool) {
	if width <= 0 || height <= 0 || len(pixels) < width*height {
		return 0, false
	}

	contrasts := make([]float64, 0, len(offsets))
	for _, o := range offsets {
		glcm, ok := CoOccurrence(pixels, width, height, o.dy, o.dx)
		if !ok {
			continue
		}
		contrasts = append(contrasts, Contrast(glcm))
	}

	if len(contrasts) == 0 {
		return 0, false
	}

	return stat.Mean(contrasts, nil), true
}

// RegionContrast computes MeanContrast over roi of a single channel image. ok is false for an
// empty region or one too small to form pixel pairs.
func RegionContrast(gray *safe.Mat, roi image.Rectangle) (float64, bool, error) {
	if err := safe.ValidateMask(gray, "glcm contrast"); err != nil {
		return 0, false, err
	}

	roi = roi.Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))
	if roi.Empty() {
		return 0, false, nil
	}

	grayMat := gray.GetMat()
	region := grayMat.Region(roi)
	crop, err := gray.DeriveFrom(region.Clone(), "texture_crop")
	region.Close()
	if err != nil {
		return 0, false, fmt.Errorf("texture crop failed: %w", err)
	}
	defer crop.Close()

	pixels, err := crop.Bytes()
	if err != nil {
		return 0, false, err
	}

	contrast, ok := MeanContrast(pixels, roi.Dx(), roi.Dy())
	return contrast, ok, nil
}
