package filters

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

type GaussianFilter struct {
	kernelSize int
}

func NewGaussianFilter(kernelSize int) *GaussianFilter {
	if kernelSize%2 == 0 {
		kernelSize++
	}
	return &GaussianFilter{kernelSize: kernelSize}
}

func (g *GaussianFilter) Name() string {
	return "gaussian_filter"
}

func (g *GaussianFilter) ShouldExecute(input *safe.Mat) bool {
	return g.kernelSize > 1
}

func (g *GaussianFilter) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(input, g.Name()); err != nil {
		return nil, err
	}

	dst, err := input.Derive(input.Rows(), input.Cols(), input.Type(), "gaussian")
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	srcMat := input.GetMat()
	dstMat := dst.GetMat()

	// sigma 0 lets OpenCV derive it from the kernel size
	gocv.GaussianBlur(srcMat, &dstMat, image.Point{X: g.kernelSize, Y: g.kernelSize}, 0, 0, gocv.BorderDefault)

	return dst, nil
}
