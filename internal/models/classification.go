package models

import (
	"fmt"
	"time"
)

// Classification is one result line. Percentages are rounded to two decimals and sum to 100.
type Classification struct {
	Grass float64 `json:"pasto"`
	Dirt  float64 `json:"tierra"`
	Other float64 `json:"otros"`

	// Diagnostics
	Resolution     string   `json:"resolucion,omitempty"`
	ProcessingTime float64  `json:"tiempo_procesamiento,omitempty"`
	Adjustments    []string `json:"ajustes,omitempty"`
}

// WithoutDiagnostics returns only the three percentages.
func (c Classification) WithoutDiagnostics() Classification {
	return Classification{Grass: c.Grass, Dirt: c.Dirt, Other: c.Other}
}

// Sum totals the three percentages.
func (c Classification) Sum() float64 {
	return c.Grass + c.Dirt + c.Other
}

// FormatResolution renders a frame size as "WxH".
func FormatResolution(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// ErrorResult is written to the error stream for a line that could not be classified.
type ErrorResult struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func NewErrorResult(err error, at time.Time) ErrorResult {
	return ErrorResult{
		Error:     err.Error(),
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}
