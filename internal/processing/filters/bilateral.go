package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

// BilateralFilter smooths within regions while keeping terrain boundaries sharp.
type BilateralFilter struct {
	diameter   int
	sigmaColor float64
	sigmaSpace float64
}

func NewBilateralFilter(diameter int, sigmaColor, sigmaSpace float64) *BilateralFilter {
	return &BilateralFilter{diameter: diameter, sigmaColor: sigmaColor, sigmaSpace: sigmaSpace}
}

func (b *BilateralFilter) Name() string {
	return "bilateral_filter"
}

func (b *BilateralFilter) ShouldExecute(input *safe.Mat) bool {
	return b.diameter > 0 && input.Type() == gocv.MatTypeCV8UC3
}

func (b *BilateralFilter) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateColorImage(input, b.Name()); err != nil {
		return nil, err
	}

	dst, err := input.Derive(input.Rows(), input.Cols(), input.Type(), "bilateral")
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	srcMat := input.GetMat()
	dstMat := dst.GetMat()
	gocv.BilateralFilter(srcMat, &dstMat, b.diameter, b.sigmaColor, b.sigmaSpace)

	return dst, nil
}
