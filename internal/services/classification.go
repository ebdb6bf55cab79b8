package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"terrain-classifier/internal/debug/timing"
	"terrain-classifier/internal/decoder"
	"terrain-classifier/internal/lineio"
	"terrain-classifier/internal/logger"
	"terrain-classifier/internal/models"
	"terrain-classifier/internal/terrain"
)

// MaxLineBytes bounds a single base64 request line.
const MaxLineBytes = 64 << 20

const classifyOperation = "classify"

// Classifier is the per-frame boundary the service drives.
type Classifier interface {
	Classify(ctx context.Context, payload string) (*models.Classification, error)
}

// RunStats summarises one Run.
type RunStats struct {
	Lines     int
	Succeeded int
	Failed    int
}

// ClassificationService reads one request per line and writes exactly one result per
// non-blank line: a Classification on out or an ErrorResult on errOut.
type ClassificationService struct {
	classifier   Classifier
	logger       logger.Logger
	diagnostics  bool
	maxLineBytes int
	timings      *timing.Tracker
	now          func() time.Time
}

func NewClassificationService(classifier Classifier, log logger.Logger, diagnostics bool) *ClassificationService {
	if log == nil {
		log = logger.Nop()
	}

	return &ClassificationService{
		classifier:   classifier,
		logger:       log,
		diagnostics:  diagnostics,
		maxLineBytes: MaxLineBytes,
		timings:      timing.NewTracker(),
		now:          time.Now,
	}
}

// Run processes in until EOF or until ctx is cancelled. Cancellation is honoured while
// waiting for input and between lines, never in the middle of one. A bad or oversized
// line never stops the loop; only read or write failures on the streams are returned.
func (s *ClassificationService) Run(ctx context.Context, in io.Reader, out, errOut io.Writer) (RunStats, error) {
	var stats RunStats
	s.timings.Reset()

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	items := lineio.NewReader(in, s.maxLineBytes).Stream(readCtx)

	results := json.NewEncoder(out)
	failures := json.NewEncoder(errOut)

	for {
		var item lineio.Item
		var open bool
		select {
		case <-ctx.Done():
			return s.cancelled(stats), nil
		case item, open = <-items:
		}
		if !open || ctx.Err() != nil {
			return s.cancelled(stats), nil
		}

		if item.Err != nil {
			if errors.Is(item.Err, io.EOF) {
				break
			}
			return stats, fmt.Errorf("failed to read input: %w", item.Err)
		}

		var result *models.Classification
		var err error
		if item.Line.TooLong {
			stats.Lines++
			err = &decoder.DecodeError{Reason: "payload too large"}
			s.logger.Debug("ClassificationService", "line rejected", map[string]interface{}{
				"bytes": item.Line.Size,
				"limit": s.maxLineBytes,
			})
		} else {
			line := strings.TrimSpace(string(item.Line.Data))
			if line == "" {
				continue
			}
			stats.Lines++
			result, err = s.classify(ctx, line, uuid.NewString())
		}

		if err != nil {
			stats.Failed++
			if writeErr := failures.Encode(models.NewErrorResult(err, s.now())); writeErr != nil {
				return stats, fmt.Errorf("failed to write error result: %w", writeErr)
			}
			continue
		}

		stats.Succeeded++
		if !s.diagnostics {
			stripped := result.WithoutDiagnostics()
			result = &stripped
		}
		if err := results.Encode(result); err != nil {
			return stats, fmt.Errorf("failed to write result: %w", err)
		}
	}

	s.logger.Debug("ClassificationService", "input exhausted", map[string]interface{}{
		"lines":     stats.Lines,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
	})

	return stats, nil
}

func (s *ClassificationService) cancelled(stats RunStats) RunStats {
	s.logger.Debug("ClassificationService", "stopping on cancellation", map[string]interface{}{
		"lines": stats.Lines,
	})
	return stats
}

// TimingSummary reports the count and mean duration of each timed operation in the
// last Run, in milliseconds.
func (s *ClassificationService) TimingSummary() map[string]interface{} {
	summary := make(map[string]interface{})
	for operation, runs := range s.timings.GetAllTimings() {
		summary[operation+"_count"] = len(runs)
		summary[operation+"_avg_ms"] = float64(s.timings.GetAverageTime(operation).Microseconds()) / 1000
	}
	return summary
}

func (s *ClassificationService) classify(ctx context.Context, line, requestID string) (*models.Classification, error) {
	var result *models.Classification
	err := s.timings.Time(ctx, classifyOperation, func(ctx context.Context) error {
		var classifyErr error
		result, classifyErr = s.classifier.Classify(ctx, line)
		return classifyErr
	})
	if err != nil {
		fields := map[string]interface{}{
			"request_id": requestID,
			"kind":       errorKind(err),
			"bytes":      len(line),
		}
		var procErr *terrain.ProcessingError
		if errors.As(err, &procErr) {
			fields["stage"] = procErr.Stage
		}
		// The ErrorResult on errOut is the report; logs may share that stream.
		fields["error"] = err.Error()
		s.logger.Debug("ClassificationService", "line failed", fields)
		return nil, err
	}

	s.logger.Debug("ClassificationService", "line classified", map[string]interface{}{
		"request_id": requestID,
		"resolution": result.Resolution,
		"seconds":    result.ProcessingTime,
	})

	return result, nil
}

func errorKind(err error) string {
	var decodeErr *decoder.DecodeError
	var procErr *terrain.ProcessingError

	switch {
	case errors.Is(err, decoder.ErrEmptyImage):
		return "empty_image"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &procErr):
		return "processing"
	default:
		return "unknown"
	}
}
