package filters

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/conversion"
	"terrain-classifier/internal/opencv/safe"
)

// CLAHEFilter equalises the lightness channel of Lab, leaving chroma untouched.
type CLAHEFilter struct {
	clipLimit float64
	tileSize  int
}

func NewCLAHEFilter(clipLimit float64, tileSize int) *CLAHEFilter {
	return &CLAHEFilter{clipLimit: clipLimit, tileSize: tileSize}
}

func (c *CLAHEFilter) Name() string {
	return "clahe_filter"
}

// ShouldExecute skips frames smaller than a single tile.
func (c *CLAHEFilter) ShouldExecute(input *safe.Mat) bool {
	return input.Channels() == 3 && input.Rows() >= c.tileSize && input.Cols() >= c.tileSize
}

func (c *CLAHEFilter) Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	lab, err := conversion.ConvertBGRToLab(input)
	if err != nil {
		return nil, fmt.Errorf("lab conversion failed: %w", err)
	}
	defer lab.Close()

	channels := gocv.Split(lab.GetMat())
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	if len(channels) != 3 {
		return nil, fmt.Errorf("expected 3 Lab channels, got %d", len(channels))
	}

	clahe := gocv.NewCLAHEWithParams(c.clipLimit, image.Point{X: c.tileSize, Y: c.tileSize})
	defer clahe.Close()

	equalised := gocv.NewMat()
	defer equalised.Close()
	clahe.Apply(channels[0], &equalised)

	merged, err := lab.Derive(lab.Rows(), lab.Cols(), gocv.MatTypeCV8UC3, "clahe_lab")
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}
	defer merged.Close()

	mergedMat := merged.GetMat()
	gocv.Merge([]gocv.Mat{equalised, channels[1], channels[2]}, &mergedMat)

	return conversion.ConvertLabToBGR(merged)
}
