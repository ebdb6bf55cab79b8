// Package terrain turns a decoded frame into grass, dirt and other coverage percentages.
package terrain

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/config"
	"terrain-classifier/internal/opencv/conversion"
	"terrain-classifier/internal/opencv/safe"
)

// Masks holds one binary mask (0/255) per category.
type Masks struct {
	Grass *safe.Mat
	Dirt  *safe.Mat
}

func (m Masks) Close() {
	if m.Grass != nil {
		m.Grass.Close()
	}
	if m.Dirt != nil {
		m.Dirt.Close()
	}
}

// Segmenter thresholds an HSV frame against the colour ranges of each category.
type Segmenter struct {
	grass []config.ColorRange
	dirt  []config.ColorRange
}

func NewSegmenter(cfg config.SegmentationConfig) *Segmenter {
	return &Segmenter{grass: cfg.Grass, dirt: cfg.Dirt}
}

// Segment returns raw, possibly overlapping, masks the size of img.
func (s *Segmenter) Segment(ctx context.Context, img *safe.Mat) (Masks, error) {
	select {
	case <-ctx.Done():
		return Masks{}, ctx.Err()
	default:
	}

	hsv, err := conversion.ConvertBGRToHSV(img)
	if err != nil {
		return Masks{}, fmt.Errorf("hsv conversion failed: %w", err)
	}
	defer hsv.Close()

	grass, err := RangeMask(hsv, s.grass, "grass_mask")
	if err != nil {
		return Masks{}, fmt.Errorf("grass mask failed: %w", err)
	}

	dirt, err := RangeMask(hsv, s.dirt, "dirt_mask")
	if err != nil {
		grass.Close()
		return Masks{}, fmt.Errorf("dirt mask failed: %w", err)
	}

	return Masks{Grass: grass, Dirt: dirt}, nil
}

// RangeMask is the union of the inclusive InRange masks of every range.
func RangeMask(hsv *safe.Mat, ranges []config.ColorRange, tag string) (*safe.Mat, error) {
	if err := safe.ValidateColorImage(hsv, tag); err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%s: no colour ranges", tag)
	}

	mask, err := hsv.Derive(hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8UC1, tag)
	if err != nil {
		return nil, err
	}

	band, err := hsv.Derive(hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8UC1, tag+"_band")
	if err != nil {
		mask.Close()
		return nil, err
	}
	defer band.Close()

	hsvMat := hsv.GetMat()
	maskMat := mask.GetMat()
	bandMat := band.GetMat()

	for _, r := range ranges {
		lower := gocv.NewScalar(r.Lower.H, r.Lower.S, r.Lower.V, 0)
		upper := gocv.NewScalar(r.Upper.H, r.Upper.S, r.Upper.V, 0)
		gocv.InRangeWithScalar(hsvMat, lower, upper, &bandMat)
		gocv.BitwiseOr(maskMat, bandMat, &maskMat)
	}

	return mask, nil
}
