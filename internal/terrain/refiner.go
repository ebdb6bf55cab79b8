package terrain

import (
	"context"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/config"
	"terrain-classifier/internal/opencv/safe"
	"terrain-classifier/internal/processing/chain"
	"terrain-classifier/internal/processing/filters"
)

// ccStatArea is the area column of the ConnectedComponentsWithStats table.
const ccStatArea = 4

// Refiner closes gaps in a mask, optionally opens it, and drops specks.
type Refiner struct {
	morphology      *chain.ProcessingChain
	minAreaFraction float64
}

func NewRefiner(cfg config.RefineConfig) *Refiner {
	morphology := chain.NewProcessingChain(filters.NewCloseFilter(cfg.KernelSize))
	if cfg.Open {
		morphology.AddStep(filters.NewOpenFilter(cfg.KernelSize))
	}

	return &Refiner{
		morphology:      morphology,
		minAreaFraction: cfg.MinAreaFraction,
	}
}

func (r *Refiner) Steps() []string {
	return append(r.morphology.GetStepNames(), "small_components")
}

// Refine returns a new mask; the input is left untouched.
func (r *Refiner) Refine(ctx context.Context, mask *safe.Mat) (*safe.Mat, error) {
	cleaned, err := r.morphology.Execute(ctx, mask)
	if err != nil {
		return nil, err
	}
	defer cleaned.Close()

	minArea := int(math.Ceil(r.minAreaFraction * float64(mask.Total())))
	return RemoveSmallComponents(cleaned, minArea)
}

// RemoveSmallComponents clears every 8-connected foreground component smaller than minArea
// pixels. The result is a new Mat.
func RemoveSmallComponents(mask *safe.Mat, minArea int) (*safe.Mat, error) {
	if err := safe.ValidateMask(mask, "small component removal"); err != nil {
		return nil, err
	}

	srcMat := mask.GetMat()
	if minArea <= 1 || gocv.CountNonZero(srcMat) == 0 {
		return mask.Clone()
	}

	labels, err := mask.Derive(mask.Rows(), mask.Cols(), gocv.MatTypeCV32SC1, "cc_labels")
	if err != nil {
		return nil, err
	}
	defer labels.Close()

	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	labelsMat := labels.GetMat()
	numComponents := gocv.ConnectedComponentsWithStats(srcMat, &labelsMat, &stats, &centroids)

	drop := make([]bool, numComponents)
	dropped := 0
	for i := 1; i < numComponents; i++ { // label 0 is background
		if int(stats.GetIntAt(i, ccStatArea)) < minArea {
			drop[i] = true
			dropped++
		}
	}

	result, err := mask.Clone()
	if err != nil {
		return nil, err
	}
	if dropped == 0 {
		return result, nil
	}

	labelData, err := labelsMat.DataPtrInt32()
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("label buffer access failed: %w", err)
	}
	resultMat := result.GetMat()
	pixels, err := resultMat.DataPtrUint8()
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("mask buffer access failed: %w", err)
	}

	for i, label := range labelData {
		if drop[label] {
			pixels[i] = 0
		}
	}

	return result, nil
}
