package terrain

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"terrain-classifier/internal/config"
	"terrain-classifier/internal/decoder"
	"terrain-classifier/internal/models"
	"terrain-classifier/internal/opencv/memory"
	"terrain-classifier/internal/opencv/safe"
	"terrain-classifier/internal/testutil"
)

func decodeFixture(t *testing.T, img image.Image, tracker safe.MemoryTracker) *safe.Mat {
	t.Helper()
	mat, err := decoder.DecodeBytes(testutil.PNG(t, img), tracker)
	require.NoError(t, err)
	return mat
}

func solidBGR(t *testing.T, rows, cols int, b, g, r float64) *safe.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), rows, cols, gocv.MatTypeCV8UC3)
	sm, err := safe.Adopt(m, nil, "solid")
	require.NoError(t, err)
	return sm
}

func assertValidClassification(t *testing.T, c *models.Classification) {
	t.Helper()
	assert.InDelta(t, 100, c.Sum(), 0.01)
	for _, v := range []float64{c.Grass, c.Dirt, c.Other} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestClassifyUniformFrames(t *testing.T) {
	tests := []struct {
		name      string
		img       image.Image
		wantGrass float64
		wantDirt  float64
		wantOther float64
	}{
		{"grass", testutil.Solid(64, 64, testutil.Green), 100, 0, 0},
		{"dirt", testutil.Solid(64, 64, testutil.Brown), 0, 100, 0},
		{"neutral", testutil.Solid(64, 64, testutil.Gray), 0, 0, 100},
		{"water", testutil.Solid(64, 64, testutil.Blue), 0, 0, 100},
		{"single pixel", testutil.Solid(1, 1, testutil.Green), 100, 0, 0},
	}

	classifier := NewClassifier(config.DefaultThresholds(), nil, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifier.Classify(context.Background(), testutil.Base64PNG(t, tt.img))
			require.NoError(t, err)

			assertValidClassification(t, got)
			assert.InDelta(t, tt.wantGrass, got.Grass, 0.01)
			assert.InDelta(t, tt.wantDirt, got.Dirt, 0.01)
			assert.InDelta(t, tt.wantOther, got.Other, 0.01)
			assert.Empty(t, got.Adjustments)
		})
	}
}

func TestClassifySplitFrame(t *testing.T) {
	classifier := NewClassifier(config.DefaultThresholds(), nil, nil)
	payload := testutil.Base64PNG(t, testutil.Split(100, 80, testutil.Green, testutil.Brown))

	got, err := classifier.Classify(context.Background(), payload)
	require.NoError(t, err)

	assertValidClassification(t, got)
	assert.InDelta(t, 50, got.Grass, 3)
	assert.InDelta(t, 50, got.Dirt, 3)
	assert.Equal(t, "100x80", got.Resolution)
}

func TestClassifyIsIdempotent(t *testing.T) {
	classifier := NewClassifier(config.DefaultThresholds(), nil, nil)
	payload := testutil.Base64PNG(t, testutil.Split(120, 90, testutil.Brown, testutil.Gray))

	first, err := classifier.Classify(context.Background(), payload)
	require.NoError(t, err)
	second, err := classifier.Classify(context.Background(), payload)
	require.NoError(t, err)

	ignoreTime := cmpopts.IgnoreFields(models.Classification{}, "ProcessingTime")
	if diff := cmp.Diff(first, second, ignoreTime); diff != "" {
		t.Errorf("repeated classification differs (-first +second):\n%s", diff)
	}
}

func TestClassifyRemovesStrayPixel(t *testing.T) {
	frame := testutil.WithPixel(testutil.Solid(1000, 1000, testutil.Gray), 500, 500, testutil.Green)
	classifier := NewClassifier(config.DefaultThresholds(), nil, nil)

	got, err := classifier.Classify(context.Background(), testutil.Base64PNG(t, frame))
	require.NoError(t, err)

	assert.Zero(t, got.Grass)
	assert.Equal(t, 100.0, got.Other)
}

func TestClassifyDecodeErrors(t *testing.T) {
	classifier := NewClassifier(config.DefaultThresholds(), nil, nil)

	_, err := classifier.Classify(context.Background(), "not base64 at all!!")
	var decodeErr *decoder.DecodeError
	assert.True(t, errors.As(err, &decodeErr))

	notAnImage := base64.StdEncoding.EncodeToString([]byte("just some text"))
	_, err = classifier.Classify(context.Background(), notAnImage)
	assert.True(t, errors.As(err, &decodeErr) || errors.Is(err, decoder.ErrEmptyImage))
}

func TestClassifyReleasesEveryMat(t *testing.T) {
	payload := testutil.Base64PNG(t, testutil.Speckled(300, 200, testutil.Green, 40, 7))

	for name, thresholds := range map[string]config.Thresholds{
		"default":  config.DefaultThresholds(),
		"enhanced": config.Enhanced(),
	} {
		t.Run(name, func(t *testing.T) {
			tracker := memory.NewTracker(nil)
			classifier := NewClassifier(thresholds, nil, tracker)

			_, err := classifier.Classify(context.Background(), payload)
			require.NoError(t, err)

			stats := tracker.Stats()
			assert.Positive(t, stats.Allocations)
			assert.Zero(t, stats.ActiveMats, "leaked: %v", tracker.Leaked())
			assert.Zero(t, stats.ActiveBytes)
		})
	}
}

func TestClassifyMatRejectsGrayInput(t *testing.T) {
	gray, err := safe.NewMat(8, 8, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer gray.Close()

	_, err = NewClassifier(config.DefaultThresholds(), nil, nil).ClassifyMat(context.Background(), gray)

	var procErr *ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, StagePreprocess, procErr.Stage)
}

func TestClassifyHonoursCancellation(t *testing.T) {
	img := solidBGR(t, 16, 16, 0, 200, 0)
	defer img.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClassifier(config.DefaultThresholds(), nil, nil).ClassifyMat(ctx, img)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnhancedVariant(t *testing.T) {
	classifier := NewClassifier(config.Enhanced(), nil, nil)

	t.Run("textured grass keeps its share", func(t *testing.T) {
		payload := testutil.Base64PNG(t, testutil.Speckled(240, 160, testutil.Green, 40, 42))
		got, err := classifier.Classify(context.Background(), payload)
		require.NoError(t, err)

		assertValidClassification(t, got)
		assert.Greater(t, got.Grass, 95.0)
		assert.Empty(t, got.Adjustments)
	})

	t.Run("flat grass is distrusted and treated as blurry", func(t *testing.T) {
		payload := testutil.Base64PNG(t, testutil.Solid(120, 80, testutil.Green))
		got, err := classifier.Classify(context.Background(), payload)
		require.NoError(t, err)

		assertValidClassification(t, got)
		assert.InDelta(t, 77, got.Grass, 0.01)
		assert.InDelta(t, 23, got.Other, 0.01)
		assert.Equal(t, []string{AdjustmentTexture, AdjustmentBlur}, got.Adjustments)
	})

	t.Run("large frame is downscaled", func(t *testing.T) {
		payload := testutil.Base64PNG(t, testutil.Split(1600, 1200, testutil.Gray, testutil.Brown))
		got, err := classifier.Classify(context.Background(), payload)
		require.NoError(t, err)

		assertValidClassification(t, got)
		assert.Equal(t, "1600x1200", got.Resolution)
		// A single edge leaves the frame blurry, so dirt is damped by 0.95.
		assert.Contains(t, got.Adjustments, AdjustmentBlur)
		assert.InDelta(t, 47.5, got.Dirt, 2)
	})
}

func TestSegmentHueWraparound(t *testing.T) {
	segmenter := NewSegmenter(config.DefaultThresholds().Segmentation)

	for _, bgr := range [][3]float64{{0, 0, 200}, {60, 0, 200}} {
		img := solidBGR(t, 4, 4, bgr[0], bgr[1], bgr[2])
		masks, err := segmenter.Segment(context.Background(), img)
		require.NoError(t, err)

		assert.Equal(t, 16, gocv.CountNonZero(masks.Dirt.GetMat()), "bgr %v", bgr)
		assert.Zero(t, gocv.CountNonZero(masks.Grass.GetMat()), "bgr %v", bgr)

		masks.Close()
		img.Close()
	}
}

func TestRangeMaskRequiresRanges(t *testing.T) {
	hsv := solidBGR(t, 2, 2, 60, 255, 200)
	defer hsv.Close()

	_, err := RangeMask(hsv, nil, "grass_mask")
	assert.Error(t, err)
}

func maskWith(t *testing.T, rows, cols int, rects ...image.Rectangle) *safe.Mat {
	t.Helper()
	mask, err := safe.NewMat(rows, cols, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	for _, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				require.NoError(t, mask.SetUCharAt(y, x, 255))
			}
		}
	}
	return mask
}

func TestRemoveSmallComponents(t *testing.T) {
	mask := maskWith(t, 1000, 1000, image.Rect(500, 500, 501, 501), image.Rect(10, 10, 50, 50))
	defer mask.Close()

	cleaned, err := RemoveSmallComponents(mask, 1000)
	require.NoError(t, err)
	defer cleaned.Close()

	assert.Equal(t, 1600, gocv.CountNonZero(cleaned.GetMat()))
	v, err := cleaned.GetUCharAt(500, 500)
	require.NoError(t, err)
	assert.Zero(t, v)

	// input untouched
	assert.Equal(t, 1601, gocv.CountNonZero(mask.GetMat()))
}

func TestRemoveSmallComponentsEmptyMask(t *testing.T) {
	mask := maskWith(t, 10, 10)
	defer mask.Close()

	cleaned, err := RemoveSmallComponents(mask, 5)
	require.NoError(t, err)
	defer cleaned.Close()

	assert.Zero(t, gocv.CountNonZero(cleaned.GetMat()))
}

func TestRefinerStrayPixel(t *testing.T) {
	mask := maskWith(t, 1000, 1000, image.Rect(200, 300, 201, 301))
	defer mask.Close()

	refiner := NewRefiner(config.DefaultThresholds().Refine)
	assert.Equal(t, []string{"morphology_close", "small_components"}, refiner.Steps())

	refined, err := refiner.Refine(context.Background(), mask)
	require.NoError(t, err)
	defer refined.Close()

	assert.Zero(t, gocv.CountNonZero(refined.GetMat()))
}

func TestResolveOverlapIsDisjoint(t *testing.T) {
	grass := maskWith(t, 20, 20, image.Rect(0, 0, 12, 20))
	defer grass.Close()
	dirt := maskWith(t, 20, 20, image.Rect(8, 0, 20, 20))
	defer dirt.Close()

	clean, err := ResolveOverlap(grass, dirt)
	require.NoError(t, err)
	defer clean.Close()

	assert.Equal(t, 8*20, gocv.CountNonZero(clean.GetMat()))

	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseAnd(grass.GetMat(), clean.GetMat(), &both)
	assert.Zero(t, gocv.CountNonZero(both))
}

func TestAggregate(t *testing.T) {
	grass := maskWith(t, 10, 10, image.Rect(0, 0, 5, 5))
	defer grass.Close()
	dirt := maskWith(t, 10, 10, image.Rect(5, 5, 10, 8))
	defer dirt.Close()

	got, err := Aggregate(grass, dirt)
	require.NoError(t, err)
	assert.Equal(t, Coverage{Grass: 25, Dirt: 15, Other: 60}, got)
}

func TestMaskBounds(t *testing.T) {
	mask := maskWith(t, 30, 40, image.Rect(3, 4, 6, 10), image.Rect(20, 7, 21, 8))
	defer mask.Close()

	bounds, err := MaskBounds(mask)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(3, 4, 21, 10), bounds)

	empty := maskWith(t, 5, 5)
	defer empty.Close()
	bounds, err = MaskBounds(empty)
	require.NoError(t, err)
	assert.True(t, bounds.Empty())
}

func TestFinalize(t *testing.T) {
	tests := []struct {
		name string
		in   Coverage
		want Coverage
	}{
		{"unchanged", Coverage{Grass: 40, Dirt: 35.5}, Coverage{Grass: 40, Dirt: 35.5, Other: 24.5}},
		{"grass boosted past frame", Coverage{Grass: 110, Dirt: 0}, Coverage{Grass: 100, Dirt: 0, Other: 0}},
		{"scaled down together", Coverage{Grass: 80, Dirt: 40}, Coverage{Grass: 66.67, Dirt: 33.33, Other: 0}},
		{"negative clamped", Coverage{Grass: -5, Dirt: 30}, Coverage{Grass: 0, Dirt: 30, Other: 70}},
		{"rounding residue", Coverage{Grass: 33.333, Dirt: 33.333}, Coverage{Grass: 33.33, Dirt: 33.33, Other: 33.34}},
		{"fractional boost", Coverage{Grass: 55.0 * 1.1, Dirt: 20 * 0.95}, Coverage{Grass: 60.5, Dirt: 19, Other: 20.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Finalize(tt.in)
			assert.InDelta(t, tt.want.Grass, got.Grass, 1e-9)
			assert.InDelta(t, tt.want.Dirt, got.Dirt, 1e-9)
			assert.InDelta(t, tt.want.Other, got.Other, 1e-9)
			assert.InDelta(t, 100, got.Grass+got.Dirt+got.Other, 1e-9)
		})
	}
}

func TestAdjusterTextureOnEmptyMask(t *testing.T) {
	cfg := config.DefaultThresholds().Confidence
	cfg.Texture.Enabled = true

	gray := maskWith(t, 10, 10, image.Rect(0, 0, 10, 10))
	defer gray.Close()
	grass := maskWith(t, 10, 10)
	defer grass.Close()

	got, fired, err := NewAdjuster(cfg, nil).Adjust(Coverage{Grass: 50, Dirt: 10, Other: 40}, Evidence{Gray: gray, GrassMask: grass})
	require.NoError(t, err)
	assert.Equal(t, []string{AdjustmentTexture}, fired)
	assert.InDelta(t, 35, got.Grass, 1e-9)
	assert.InDelta(t, 55, got.Other, 1e-9)
}

func TestAdjusterTextureBelowThresholdIsSkipped(t *testing.T) {
	cfg := config.DefaultThresholds().Confidence
	cfg.Texture.Enabled = true

	got, fired, err := NewAdjuster(cfg, nil).Adjust(Coverage{Grass: 10, Dirt: 10, Other: 80}, Evidence{})
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Equal(t, Coverage{Grass: 10, Dirt: 10, Other: 80}, got)
}

func TestProcessingErrorUnwraps(t *testing.T) {
	cause := errors.New("cause")
	err := stageError(StageRefine, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), StageRefine)
	assert.Nil(t, stageError(StageRefine, nil))
}

func TestClassifyMatLeavesInputOwnedByCaller(t *testing.T) {
	tracker := memory.NewTracker(nil)
	img := decodeFixture(t, testutil.Split(40, 40, testutil.Green, testutil.Gray), tracker)

	got, err := NewClassifier(config.DefaultThresholds(), nil, nil).ClassifyMat(context.Background(), img)
	require.NoError(t, err)
	assertValidClassification(t, got)

	assert.True(t, img.IsValid())
	assert.Equal(t, int64(1), tracker.Stats().ActiveMats)

	img.Close()
	assert.Zero(t, tracker.Stats().ActiveMats)
}
