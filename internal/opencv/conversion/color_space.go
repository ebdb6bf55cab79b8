package conversion

import (
	"fmt"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/safe"
)

// ConvertBGRToHSV converts BGR image to HSV color space (H in [0,180], S and V in [0,255])
func ConvertBGRToHSV(src *safe.Mat) (*safe.Mat, error) {
	return convert(src, gocv.ColorBGRToHSV, "bgr_to_hsv")
}

// ConvertBGRToLab converts BGR image to Lab color space
func ConvertBGRToLab(src *safe.Mat) (*safe.Mat, error) {
	return convert(src, gocv.ColorBGRToLab, "bgr_to_lab")
}

// ConvertLabToBGR converts Lab image back to BGR color space
func ConvertLabToBGR(src *safe.Mat) (*safe.Mat, error) {
	return convert(src, gocv.ColorLabToBGR, "lab_to_bgr")
}

func convert(src *safe.Mat, code gocv.ColorConversionCode, tag string) (*safe.Mat, error) {
	if err := safe.ValidateColorImage(src, tag); err != nil {
		return nil, err
	}

	dst, err := src.Derive(src.Rows(), src.Cols(), gocv.MatTypeCV8UC3, tag)
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	gocv.CvtColor(srcMat, &dstMat, code)

	return dst, nil
}

// ConvertToGrayscale converts a BGR image to single-channel grayscale
func ConvertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "grayscale conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if src.Channels() == 1 {
		return src.Clone()
	}

	if src.Channels() != 3 {
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	dst, err := src.Derive(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1, "grayscale")
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRToGray)

	return dst, nil
}
