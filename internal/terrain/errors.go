package terrain

import "fmt"

const (
	StagePreprocess = "preprocess"
	StageSegment    = "segment"
	StageRefine     = "refine"
	StageOverlap    = "overlap"
	StageAggregate  = "aggregate"
	StageConfidence = "confidence"
)

// ProcessingError reports a failure inside one pipeline stage, including recovered panics
// from the OpenCV bindings.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed at %s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &ProcessingError{Stage: stage, Err: err}
}
