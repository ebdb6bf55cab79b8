package conversion

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

// ResizeMat resizes Mat to new dimensions using specified interpolation
func ResizeMat(src *safe.Mat, newWidth, newHeight int, interpolation gocv.InterpolationFlags) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "Mat resizing"); err != nil {
		return nil, err
	}

	if err := safe.ValidateDimensions(newWidth, newHeight, "Mat resizing"); err != nil {
		return nil, err
	}

	dst, err := src.Derive(newHeight, newWidth, src.Type(), "resized")
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	gocv.Resize(srcMat, &dstMat, image.Point{X: newWidth, Y: newHeight}, 0, 0, interpolation)

	return dst, nil
}

// FitWithin returns the size that keeps the aspect ratio of width x height while the longest
// side does not exceed maxDimension. Sizes already inside the limit are returned unchanged.
func FitWithin(width, height, maxDimension int) (int, int) {
	longest := max(width, height)
	if maxDimension <= 0 || longest <= maxDimension {
		return width, height
	}

	scale := float64(maxDimension) / float64(longest)
	newWidth := max(1, int(float64(width)*scale+0.5))
	newHeight := max(1, int(float64(height)*scale+0.5))
	return newWidth, newHeight
}

// ScaleRect maps a rectangle from a (fromW x fromH) frame onto a (toW x toH) frame.
func ScaleRect(rect image.Rectangle, fromW, fromH, toW, toH int) image.Rectangle {
	if fromW == toW && fromH == toH {
		return rect
	}

	sx := float64(toW) / float64(fromW)
	sy := float64(toH) / float64(fromH)
	scaled := image.Rect(
		int(float64(rect.Min.X)*sx),
		int(float64(rect.Min.Y)*sy),
		int(float64(rect.Max.X)*sx+0.999),
		int(float64(rect.Max.Y)*sy+0.999),
	)
	return scaled.Intersect(image.Rect(0, 0, toW, toH))
}
