package terrain

import (
	"context"
	"fmt"

	"terrain-classifier/internal/config"
	"terrain-classifier/internal/debug/timing"
	"terrain-classifier/internal/decoder"
	"terrain-classifier/internal/logger"
	"terrain-classifier/internal/models"
	"terrain-classifier/internal/opencv/conversion"
	"terrain-classifier/internal/opencv/safe"
	"terrain-classifier/internal/processing/chain"
	"terrain-classifier/internal/processing/filters"
)

// Classifier runs the full pipeline on one frame at a time. It holds no per-call state and
// is safe for sequential reuse.
type Classifier struct {
	preprocessor *chain.ProcessingChain
	segmenter    *Segmenter
	refiner      *Refiner
	adjuster     *Adjuster
	logger       logger.Logger
	tracker      safe.MemoryTracker
}

// NewClassifier wires the stages from an already validated threshold table. tracker may be
// nil; when set, every Mat allocated by a call is reported to it.
func NewClassifier(thresholds config.Thresholds, log logger.Logger, tracker safe.MemoryTracker) *Classifier {
	if log == nil {
		log = logger.Nop()
	}

	return &Classifier{
		preprocessor: filters.NewPreprocessor(thresholds.Preprocess),
		segmenter:    NewSegmenter(thresholds.Segmentation),
		refiner:      NewRefiner(thresholds.Refine),
		adjuster:     NewAdjuster(thresholds.Confidence, log),
		logger:       log,
		tracker:      tracker,
	}
}

// Classify decodes payload and classifies it. Decode failures are returned as
// *decoder.DecodeError or decoder.ErrEmptyImage; everything later as *ProcessingError.
func (c *Classifier) Classify(ctx context.Context, payload string) (*models.Classification, error) {
	timings := timing.NewTracker()

	decodeCtx := timings.StartTiming(ctx, "decode")
	img, err := decoder.Decode(payload, c.tracker)
	timings.EndTiming(decodeCtx)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	return c.classify(ctx, img, timings)
}

// ClassifyMat classifies an already decoded 8-bit BGR frame. img stays owned by the caller.
func (c *Classifier) ClassifyMat(ctx context.Context, img *safe.Mat) (*models.Classification, error) {
	return c.classify(ctx, img, timing.NewTracker())
}

func (c *Classifier) classify(ctx context.Context, img *safe.Mat, timings *timing.Tracker) (result *models.Classification, err error) {
	stage := StagePreprocess

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ProcessingError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
			c.logger.Debug("Classifier", "recovered panic", map[string]interface{}{
				"stage": stage,
				"error": err.Error(),
			})
		}
	}()

	if err := safe.ValidateColorImage(img, "classification"); err != nil {
		return nil, stageError(stage, err)
	}

	var preprocessed *safe.Mat
	err = timings.Time(ctx, stage, func(ctx context.Context) error {
		var stepErr error
		preprocessed, stepErr = c.preprocessor.Execute(ctx, img)
		return stepErr
	})
	if err != nil {
		return nil, stageError(stage, err)
	}
	defer preprocessed.Close()

	stage = StageSegment
	var raw Masks
	err = timings.Time(ctx, stage, func(ctx context.Context) error {
		var stepErr error
		raw, stepErr = c.segmenter.Segment(ctx, preprocessed)
		return stepErr
	})
	if err != nil {
		return nil, stageError(stage, err)
	}
	defer raw.Close()

	stage = StageRefine
	var refined Masks
	err = timings.Time(ctx, stage, func(ctx context.Context) error {
		grass, stepErr := c.refiner.Refine(ctx, raw.Grass)
		if stepErr != nil {
			return fmt.Errorf("grass: %w", stepErr)
		}
		refined.Grass = grass

		dirt, stepErr := c.refiner.Refine(ctx, raw.Dirt)
		if stepErr != nil {
			return fmt.Errorf("dirt: %w", stepErr)
		}
		refined.Dirt = dirt
		return nil
	})
	defer refined.Close()
	if err != nil {
		return nil, stageError(stage, err)
	}

	stage = StageOverlap
	dirtClean, err := ResolveOverlap(refined.Grass, refined.Dirt)
	if err != nil {
		return nil, stageError(stage, err)
	}
	defer dirtClean.Close()

	stage = StageAggregate
	coverage, err := Aggregate(refined.Grass, dirtClean)
	if err != nil {
		return nil, stageError(stage, err)
	}

	stage = StageConfidence
	var adjustments []string
	err = timings.Time(ctx, stage, func(ctx context.Context) error {
		evidence := Evidence{GrassMask: refined.Grass}
		if c.adjuster.NeedsGray() {
			gray, grayErr := conversion.ConvertToGrayscale(img)
			if grayErr != nil {
				return grayErr
			}
			defer gray.Close()
			evidence.Gray = gray
		}

		var adjErr error
		coverage, adjustments, adjErr = c.adjuster.Adjust(coverage, evidence)
		return adjErr
	})
	if err != nil {
		return nil, stageError(stage, err)
	}

	elapsed := timings.Elapsed()
	fields := timings.Fields()
	fields["pasto"] = coverage.Grass
	fields["tierra"] = coverage.Dirt
	fields["otros"] = coverage.Other
	c.logger.Debug("Classifier", "frame classified", fields)

	return &models.Classification{
		Grass:          coverage.Grass,
		Dirt:           coverage.Dirt,
		Other:          coverage.Other,
		Resolution:     models.FormatResolution(img.Cols(), img.Rows()),
		ProcessingTime: elapsed.Seconds(),
		Adjustments:    adjustments,
	}, nil
}
