package terrain

import (
	"errors"
	"math"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

var errNoPixels = errors.New("mask has no pixels")

// Coverage is the share of the frame, in percent, covered by each category.
type Coverage struct {
	Grass float64
	Dirt  float64
	Other float64
}

// Aggregate converts disjoint masks into rounded percentages of the frame.
func Aggregate(grass, dirt *safe.Mat) (Coverage, error) {
	if err := safe.ValidateSameSize(grass, dirt, "aggregation"); err != nil {
		return Coverage{}, err
	}

	total := grass.Total()
	if total == 0 {
		return Coverage{}, errNoPixels
	}

	grassPixels := gocv.CountNonZero(grass.GetMat())
	dirtPixels := gocv.CountNonZero(dirt.GetMat())

	g := 100 * float64(grassPixels) / float64(total)
	d := 100 * float64(dirtPixels) / float64(total)

	return Coverage{
		Grass: round2(g),
		Dirt:  round2(d),
		Other: round2(math.Max(0, 100-g-d)),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
