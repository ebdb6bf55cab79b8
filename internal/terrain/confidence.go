package terrain

import (
	"fmt"
	"image"
	"math"

	"terrain-classifier/internal/config"
	"terrain-classifier/internal/logger"
	"terrain-classifier/internal/opencv/conversion"
	"terrain-classifier/internal/opencv/safe"
	"terrain-classifier/internal/texture"
)

const (
	AdjustmentTexture = "texture"
	AdjustmentBlur    = "blur"
)

// Evidence is what the heuristics look at besides the coverage itself.
type Evidence struct {
	// Gray is the decoded frame in grayscale.
	Gray *safe.Mat
	// GrassMask is the refined grass mask, in preprocessed coordinates.
	GrassMask *safe.Mat
}

// Adjuster applies the texture and blur heuristics and then finalises the coverage.
type Adjuster struct {
	cfg    config.ConfidenceConfig
	logger logger.Logger
}

func NewAdjuster(cfg config.ConfidenceConfig, log logger.Logger) *Adjuster {
	if log == nil {
		log = logger.Nop()
	}
	return &Adjuster{cfg: cfg, logger: log}
}

// NeedsGray reports whether any heuristic reads the grayscale frame.
func (a *Adjuster) NeedsGray() bool {
	return a.cfg.Texture.Enabled || a.cfg.Blur.Enabled
}

// Adjust returns the finalised coverage and the names of the heuristics that fired.
func (a *Adjuster) Adjust(c Coverage, ev Evidence) (Coverage, []string, error) {
	var fired []string

	if a.cfg.Texture.Enabled && c.Grass > a.cfg.Texture.GrassThreshold {
		weak, contrast, err := a.weakTexture(ev)
		if err != nil {
			return Coverage{}, nil, fmt.Errorf("texture validation failed: %w", err)
		}
		if weak {
			c.Grass *= a.cfg.Texture.Scale
			fired = append(fired, AdjustmentTexture)
			a.logger.Debug("ConfidenceAdjuster", "grass texture too smooth", map[string]interface{}{
				"contrast": contrast,
				"grass":    c.Grass,
			})
		}
	}

	if a.cfg.Blur.Enabled {
		sharpness, err := texture.LaplacianVariance(ev.Gray)
		if err != nil {
			return Coverage{}, nil, fmt.Errorf("sharpness measurement failed: %w", err)
		}
		if sharpness < a.cfg.Blur.SharpnessThreshold {
			c.Grass *= a.cfg.Blur.GrassFactor
			c.Dirt *= a.cfg.Blur.DirtFactor
			fired = append(fired, AdjustmentBlur)
			a.logger.Debug("ConfidenceAdjuster", "blurry frame compensated", map[string]interface{}{
				"sharpness": sharpness,
			})
		}
	}

	return Finalize(c), fired, nil
}

// weakTexture crops the grass bounding box out of the gray frame. An empty mask or crop counts
// as failed validation.
func (a *Adjuster) weakTexture(ev Evidence) (bool, float64, error) {
	bounds, err := MaskBounds(ev.GrassMask)
	if err != nil {
		return false, 0, err
	}
	if bounds.Empty() {
		return true, 0, nil
	}

	roi := conversion.ScaleRect(bounds,
		ev.GrassMask.Cols(), ev.GrassMask.Rows(),
		ev.Gray.Cols(), ev.Gray.Rows())

	contrast, ok, err := texture.RegionContrast(ev.Gray, roi)
	if err != nil {
		return false, 0, err
	}

	return !ok || contrast < a.cfg.Texture.MinContrast, contrast, nil
}

// MaskBounds is the bounding box of the non-zero pixels of mask.
func MaskBounds(mask *safe.Mat) (image.Rectangle, error) {
	if err := safe.ValidateMask(mask, "mask bounds"); err != nil {
		return image.Rectangle{}, err
	}

	pixels, err := mask.Bytes()
	if err != nil {
		return image.Rectangle{}, err
	}

	width, height := mask.Cols(), mask.Rows()
	minX, minY, maxX, maxY := width, height, -1, -1
	for y := 0; y < height; y++ {
		row := pixels[y*width : (y+1)*width]
		for x, v := range row {
			if v == 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < 0 {
		return image.Rectangle{}, nil
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

// Finalize clamps grass and dirt into [0,100], scales them down together when they exceed
// the frame, and rounds to hundredths so that the three shares sum to exactly 100.
func Finalize(c Coverage) Coverage {
	g := clamp(c.Grass, 0, 100)
	d := clamp(c.Dirt, 0, 100)
	if g+d > 100 {
		scale := 100 / (g + d)
		g *= scale
		d *= scale
	}

	gh := int64(math.Round(g * 100))
	dh := int64(math.Round(d * 100))
	if excess := gh + dh - 10000; excess > 0 {
		if gh >= dh {
			gh -= excess
		} else {
			dh -= excess
		}
	}
	oh := 10000 - gh - dh

	return Coverage{
		Grass: float64(gh) / 100,
		Dirt:  float64(dh) / 100,
		Other: float64(oh) / 100,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
