// Package relay prints control samples received as JSON lines.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"terrain-classifier/internal/lineio"
	"terrain-classifier/internal/logger"
)

// Sample is one control frame. Values keep their textual form so they print exactly as sent.
type Sample struct {
	TauX             json.Number `json:"tau_x"`
	TauY             json.Number `json:"tau_y"`
	TauZ             json.Number `json:"tau_z"`
	KalmanAngleRoll  json.Number `json:"KalmanAngleRoll"`
	KalmanAnglePitch json.Number `json:"KalmanAnglePitch"`
}

func (s Sample) String() string {
	return fmt.Sprintf("Recibido de Node.js: tau_x=%s, tau_y=%s, tau_z=%s, KalmanAngleRoll=%s, KalmanAnglePitch=%s",
		s.TauX, s.TauY, s.TauZ, s.KalmanAngleRoll, s.KalmanAnglePitch)
}

// MissingFieldError names a required key absent from a line.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

var errNotObject = errors.New("line is not a JSON object")

// ParseSample decodes one line. Every field is required and must be a number.
func ParseSample(line []byte) (Sample, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return Sample{}, err
	}
	if raw == nil {
		return Sample{}, errNotObject
	}

	var s Sample
	fields := []struct {
		key string
		dst *json.Number
	}{
		{"tau_x", &s.TauX},
		{"tau_y", &s.TauY},
		{"tau_z", &s.TauZ},
		{"KalmanAngleRoll", &s.KalmanAngleRoll},
		{"KalmanAnglePitch", &s.KalmanAnglePitch},
	}

	for _, f := range fields {
		value, ok := raw[f.key]
		if !ok {
			return Sample{}, &MissingFieldError{Field: f.key}
		}

		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		var n interface{}
		if err := dec.Decode(&n); err != nil {
			return Sample{}, fmt.Errorf("field %s: %w", f.key, err)
		}
		num, isNumber := n.(json.Number)
		if !isNumber {
			return Sample{}, fmt.Errorf("field %s: not a number: %s", f.key, value)
		}
		*f.dst = num
	}

	return s, nil
}

// MaxLineBytes bounds one sample line; longer lines are drained and rejected.
const MaxLineBytes = 1 << 20

// Relay reads samples from in and prints one line per input line on out. Malformed lines
// print an error line and the loop continues.
type Relay struct {
	logger       logger.Logger
	maxLineBytes int
}

func New(log logger.Logger) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{logger: log, maxLineBytes: MaxLineBytes}
}

// Run returns the number of lines relayed and rejected. It stops at EOF or as soon as
// ctx is done, even while waiting on an idle input.
func (r *Relay) Run(ctx context.Context, in io.Reader, out io.Writer) (relayed, rejected int, err error) {
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	items := lineio.NewReader(in, r.maxLineBytes).Stream(readCtx)
	w := bufio.NewWriter(out)

	for {
		var item lineio.Item
		var open bool
		select {
		case <-ctx.Done():
			return relayed, rejected, nil
		case item, open = <-items:
		}
		if !open || ctx.Err() != nil {
			return relayed, rejected, nil
		}
		if item.Err != nil {
			if errors.Is(item.Err, io.EOF) {
				return relayed, rejected, nil
			}
			return relayed, rejected, fmt.Errorf("failed to read samples: %w", item.Err)
		}

		var text string
		if item.Line.TooLong {
			rejected++
			text = fmt.Sprintf("Error al procesar datos: line exceeds %d bytes", r.maxLineBytes)
			r.logger.Warning("Relay", "oversized sample", map[string]interface{}{
				"bytes": item.Line.Size,
			})
		} else {
			line := bytes.TrimSpace(item.Line.Data)
			if len(line) == 0 {
				continue
			}

			sample, parseErr := ParseSample(line)
			if parseErr != nil {
				rejected++
				text = fmt.Sprintf("Error al procesar datos: %v", parseErr)
				r.logger.Warning("Relay", "malformed sample", map[string]interface{}{
					"error": parseErr.Error(),
					"line":  truncate(string(line), 120),
				})
			} else {
				relayed++
				text = sample.String()
			}
		}

		if _, err := fmt.Fprintln(w, text); err != nil {
			return relayed, rejected, fmt.Errorf("failed to write relay output: %w", err)
		}
		if err := w.Flush(); err != nil {
			return relayed, rejected, fmt.Errorf("failed to flush relay output: %w", err)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
