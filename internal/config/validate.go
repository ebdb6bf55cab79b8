package config

import (
	"errors"
	"fmt"
)

var ErrInvalidThresholds = errors.New("invalid thresholds")

func (t Thresholds) Validate() error {
	var errs []error

	switch t.Preprocess.Strategy {
	case StrategySimple, StrategyEnhanced:
	default:
		errs = append(errs, fmt.Errorf("unknown preprocess strategy %q", t.Preprocess.Strategy))
	}
	if t.Preprocess.BlurKernel < 1 || t.Preprocess.BlurKernel%2 == 0 {
		errs = append(errs, fmt.Errorf("blur kernel must be a positive odd number, got %d", t.Preprocess.BlurKernel))
	}
	if t.Preprocess.CLAHETileSize < 1 {
		errs = append(errs, fmt.Errorf("clahe tile size must be positive, got %d", t.Preprocess.CLAHETileSize))
	}

	errs = append(errs, validateRanges("grass", t.Segmentation.Grass)...)
	errs = append(errs, validateRanges("dirt", t.Segmentation.Dirt)...)

	if k := t.Refine.KernelSize; k < 3 || k > 15 || k%2 == 0 {
		errs = append(errs, fmt.Errorf("refine kernel must be odd and within [3,15], got %d", k))
	}
	if f := t.Refine.MinAreaFraction; f < 0 || f >= 1 {
		errs = append(errs, fmt.Errorf("min area fraction must be within [0,1), got %v", f))
	}

	tx := t.Confidence.Texture
	if tx.Scale < 0 || tx.Scale > 1 {
		errs = append(errs, fmt.Errorf("texture scale must be within [0,1], got %v", tx.Scale))
	}
	b := t.Confidence.Blur
	if b.GrassFactor < 0 || b.DirtFactor < 0 {
		errs = append(errs, fmt.Errorf("blur factors must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidThresholds, errors.Join(errs...))
	}
	return nil
}

func validateRanges(category string, ranges []ColorRange) []error {
	if len(ranges) == 0 {
		return []error{fmt.Errorf("%s needs at least one color range", category)}
	}

	var errs []error
	for i, r := range ranges {
		lo, hi := r.Lower, r.Upper
		if lo.H > hi.H || lo.S > hi.S || lo.V > hi.V {
			errs = append(errs, fmt.Errorf("%s range %d has lower bound above upper bound", category, i))
		}
		if lo.H < 0 || hi.H > 180 || lo.S < 0 || hi.S > 255 || lo.V < 0 || hi.V > 255 {
			errs = append(errs, fmt.Errorf("%s range %d is outside the HSV domain", category, i))
		}
	}
	return errs
}
