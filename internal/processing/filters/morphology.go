package filters

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

// MorphologyFilter applies one morphological operation with an elliptical structuring element.
type MorphologyFilter struct {
	operation  gocv.MorphType
	kernelSize int
}

func NewCloseFilter(kernelSize int) *MorphologyFilter {
	return &MorphologyFilter{operation: gocv.MorphClose, kernelSize: kernelSize}
}

func NewOpenFilter(kernelSize int) *MorphologyFilter {
	return &MorphologyFilter{operation: gocv.MorphOpen, kernelSize: kernelSize}
}

func (m *MorphologyFilter) Name() string {
	if m.operation == gocv.MorphOpen {
		return "morphology_open"
	}
	return "morphology_close"
}

func (m *MorphologyFilter) ShouldExecute(input *safe.Mat) bool {
	return m.kernelSize > 1
}

func (m *MorphologyFilter) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMask(input, m.Name()); err != nil {
		return nil, err
	}

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: m.kernelSize, Y: m.kernelSize})
	defer kernel.Close()

	result, err := input.Derive(input.Rows(), input.Cols(), input.Type(), m.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}

	srcMat := input.GetMat()
	resultMat := result.GetMat()
	gocv.MorphologyEx(srcMat, &resultMat, m.operation, kernel)

	return result, nil
}
