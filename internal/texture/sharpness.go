package texture

import (
	"fmt"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"terrain-classifier/internal/opencv/safe"
)

// LaplacianVariance is the focus measure: the population variance of the 64-bit Laplacian
// of a grayscale image. Low values mean a blurry frame.
func LaplacianVariance(gray *safe.Mat) (float64, error) {
	if err := safe.ValidateMask(gray, "laplacian variance"); err != nil {
		return 0, err
	}

	lap, err := gray.Derive(gray.Rows(), gray.Cols(), gocv.MatTypeCV64FC1, "laplacian")
	if err != nil {
		return 0, fmt.Errorf("laplacian Mat creation failed: %w", err)
	}
	defer lap.Close()

	srcMat := gray.GetMat()
	lapMat := lap.GetMat()
	gocv.Laplacian(srcMat, &lapMat, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	values, err := lapMat.DataPtrFloat64()
	if err != nil {
		return 0, fmt.Errorf("laplacian buffer access failed: %w", err)
	}

	return stat.PopVariance(values, nil), nil
}
