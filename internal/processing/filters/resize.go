package filters

import (
	"context"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/conversion"
	"terrain-classifier/internal/opencv/safe"
)

// DownscaleFilter bounds the longest side of the frame for speed.
type DownscaleFilter struct {
	maxDimension int
}

func NewDownscaleFilter(maxDimension int) *DownscaleFilter {
	return &DownscaleFilter{maxDimension: maxDimension}
}

func (d *DownscaleFilter) Name() string {
	return "downscale_filter"
}

func (d *DownscaleFilter) ShouldExecute(input *safe.Mat) bool {
	return d.maxDimension > 0 && max(input.Rows(), input.Cols()) > d.maxDimension
}

func (d *DownscaleFilter) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	width, height := conversion.FitWithin(input.Cols(), input.Rows(), d.maxDimension)
	return conversion.ResizeMat(input, width, height, gocv.InterpolationArea)
}
