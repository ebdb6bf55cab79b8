package decoder

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

// ErrEmptyImage reports a payload that decompressed into an image without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// DecodeError reports a payload that is not valid encoded image data.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not decode image: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("could not decode image: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StripDataURI removes a leading "data:<mime>;base64," marker and surrounding whitespace.
func StripDataURI(payload string) string {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if comma := strings.IndexByte(payload, ','); comma >= 0 {
			return payload[comma+1:]
		}
	}
	return payload
}

// DecodeBase64 accepts padded standard base64 and falls back to the unpadded form.
func DecodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}

	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}

	return nil, &DecodeError{Reason: "invalid base64 payload", Err: err}
}

// Decode turns a textual payload into an 8-bit BGR image owned by the caller.
func Decode(payload string, tracker safe.MemoryTracker) (*safe.Mat, error) {
	data, err := DecodeBase64(StripDataURI(payload))
	if err != nil {
		return nil, err
	}

	return DecodeBytes(data, tracker)
}

// DecodeBytes decompresses JPEG/PNG/... bytes into an 8-bit BGR image.
func DecodeBytes(data []byte, tracker safe.MemoryTracker) (*safe.Mat, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "payload is empty"}
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		mat.Close()
		return nil, &DecodeError{Reason: "image decompression failed", Err: err}
	}

	if mat.Empty() {
		mat.Close()
		return nil, &DecodeError{Reason: "payload is not a supported image"}
	}

	if mat.Rows() == 0 || mat.Cols() == 0 {
		mat.Close()
		return nil, ErrEmptyImage
	}

	img, err := safe.Adopt(mat, tracker, "decoded")
	if err != nil {
		return nil, &DecodeError{Reason: "image wrapping failed", Err: err}
	}

	return img, nil
}
