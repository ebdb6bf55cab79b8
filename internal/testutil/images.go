// Package testutil builds encoded image fixtures for package tests.
package testutil

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
)

var (
	Green = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
	Brown = color.NRGBA{R: 140, G: 80, B: 40, A: 255}
	Gray  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	Blue  = color.NRGBA{R: 20, G: 40, B: 220, A: 255}
)

func Solid(width, height int, c color.Color) *image.NRGBA {
	return imaging.New(width, height, c)
}

// Split paints the left half with left and the right half with right.
func Split(width, height int, left, right color.Color) *image.NRGBA {
	img := imaging.New(width, height, right)
	return imaging.Paste(img, imaging.New(width/2, height, left), image.Pt(0, 0))
}

// WithPixel returns img with a single pixel repainted.
func WithPixel(img *image.NRGBA, x, y int, c color.Color) *image.NRGBA {
	out := imaging.Clone(img)
	out.Set(x, y, c)
	return out
}

// Speckled scatters seeded random brightness noise over a base colour, giving grass-like texture.
func Speckled(width, height int, base color.NRGBA, amplitude int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := imaging.New(width, height, base)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := rng.Intn(2*amplitude+1) - amplitude
			img.SetNRGBA(x, y, color.NRGBA{
				R: clamp(int(base.R) + d/4),
				G: clamp(int(base.G) + d),
				B: clamp(int(base.B) + d/4),
				A: 255,
			})
		}
	}
	return img
}

// Blocks tiles the frame with seeded random gray squares, a corner-rich pattern for
// feature detectors.
func Blocks(width, height, block int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := imaging.New(width, height, color.Black)
	for y := 0; y < height; y += block {
		for x := 0; x < width; x += block {
			v := uint8(rng.Intn(256))
			square := imaging.New(block, block, color.NRGBA{R: v, G: v, B: v, A: 255})
			img = imaging.Paste(img, square, image.Pt(x, y))
		}
	}
	return img
}

func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func JPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

// Base64PNG is the wire form of img as one input line.
func Base64PNG(t testing.TB, img image.Image) string {
	return base64.StdEncoding.EncodeToString(PNG(t, img))
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
