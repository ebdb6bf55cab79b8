package terrain

import (
	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

// ResolveOverlap hands contested pixels to grass: the result is dirt AND NOT grass.
func ResolveOverlap(grass, dirt *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMask(grass, "overlap resolution"); err != nil {
		return nil, err
	}
	if err := safe.ValidateMask(dirt, "overlap resolution"); err != nil {
		return nil, err
	}
	if err := safe.ValidateSameSize(grass, dirt, "overlap resolution"); err != nil {
		return nil, err
	}

	notGrass, err := grass.Derive(grass.Rows(), grass.Cols(), gocv.MatTypeCV8UC1, "not_grass")
	if err != nil {
		return nil, err
	}
	defer notGrass.Close()

	result, err := dirt.Derive(dirt.Rows(), dirt.Cols(), gocv.MatTypeCV8UC1, "dirt_clean")
	if err != nil {
		return nil, err
	}

	grassMat := grass.GetMat()
	dirtMat := dirt.GetMat()
	notGrassMat := notGrass.GetMat()
	resultMat := result.GetMat()
	gocv.BitwiseNot(grassMat, &notGrassMat)
	gocv.BitwiseAnd(dirtMat, notGrassMat, &resultMat)

	return result, nil
}
