// Package matching scores a frame against a directory of reference images with ORB features.
package matching

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"terrain-classifier/internal/logger"
	"terrain-classifier/internal/opencv/conversion"
	"terrain-classifier/internal/opencv/safe"
)

const (
	loweRatio            = 0.75
	minHomographyMatches = 4
	ransacReprojection   = 5.0
	ransacMaxIterations  = 2000
	ransacConfidence     = 0.995
)

var referenceExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// Match scores one reference image. Confidence is the number of matches that pass the
// ratio test; Inliers is how many of those agree with a RANSAC homography.
type Match struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Inliers    int    `json:"inliers"`
}

type Matcher struct {
	logger  logger.Logger
	tracker safe.MemoryTracker
}

func NewMatcher(log logger.Logger, tracker safe.MemoryTracker) *Matcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Matcher{logger: log, tracker: tracker}
}

// features holds ORB keypoints and their descriptors.
type features struct {
	keypoints   []gocv.KeyPoint
	descriptors gocv.Mat
}

func (f features) Close() {
	f.descriptors.Close()
}

func (f features) usable() bool {
	return len(f.keypoints) >= 2 && !f.descriptors.Empty()
}

// MatchDirectory scores img against every readable image in dir, best first. Unreadable
// files are skipped.
func (m *Matcher) MatchDirectory(ctx context.Context, img *safe.Mat, dir string) ([]Match, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference directory: %w", err)
	}

	gray, err := conversion.ConvertToGrayscale(img)
	if err != nil {
		return nil, fmt.Errorf("query conversion failed: %w", err)
	}
	defer gray.Close()

	orb := gocv.NewORB()
	defer orb.Close()

	query := detect(&orb, gray.GetMat())
	defer query.Close()

	matches := make([]Match, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !referenceExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		reference, err := safe.Adopt(gocv.IMRead(path, gocv.IMReadGrayScale), m.tracker, "reference")
		if err != nil {
			m.logger.Warning("Matcher", "skipping unreadable reference", map[string]interface{}{
				"path": path,
			})
			continue
		}

		match := m.score(&orb, query, reference)
		reference.Close()

		match.Name = entry.Name()
		matches = append(matches, match)
	}

	SortMatches(matches)

	m.logger.Debug("Matcher", "reference directory scored", map[string]interface{}{
		"dir":        dir,
		"references": len(matches),
		"keypoints":  len(query.keypoints),
	})

	return matches, nil
}

// MatchImages scores a single query/reference pair.
func (m *Matcher) MatchImages(query, reference *safe.Mat) (Match, error) {
	queryGray, err := conversion.ConvertToGrayscale(query)
	if err != nil {
		return Match{}, fmt.Errorf("query conversion failed: %w", err)
	}
	defer queryGray.Close()

	refGray, err := conversion.ConvertToGrayscale(reference)
	if err != nil {
		return Match{}, fmt.Errorf("reference conversion failed: %w", err)
	}
	defer refGray.Close()

	orb := gocv.NewORB()
	defer orb.Close()

	queryFeatures := detect(&orb, queryGray.GetMat())
	defer queryFeatures.Close()

	return m.score(&orb, queryFeatures, refGray), nil
}

func (m *Matcher) score(orb *gocv.ORB, query features, reference *safe.Mat) Match {
	train := detect(orb, reference.GetMat())
	defer train.Close()

	if !query.usable() || !train.usable() {
		return Match{}
	}

	matcher := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	defer matcher.Close()

	var good []gocv.DMatch
	for _, pair := range matcher.KnnMatch(query.descriptors, train.descriptors, 2) {
		if len(pair) == 2 && pair[0].Distance < loweRatio*pair[1].Distance {
			good = append(good, pair[0])
		}
	}

	match := Match{Confidence: len(good)}
	if len(good) >= minHomographyMatches {
		match.Inliers = countInliers(good, query.keypoints, train.keypoints)
	}
	return match
}

func detect(orb *gocv.ORB, gray gocv.Mat) features {
	mask := gocv.NewMat()
	defer mask.Close()

	keypoints, descriptors := orb.DetectAndCompute(gray, mask)
	return features{keypoints: keypoints, descriptors: descriptors}
}

func countInliers(good []gocv.DMatch, queryKP, trainKP []gocv.KeyPoint) int {
	src := gocv.NewMatWithSize(len(good), 1, gocv.MatTypeCV64FC2)
	defer src.Close()
	dst := gocv.NewMatWithSize(len(good), 1, gocv.MatTypeCV64FC2)
	defer dst.Close()

	for i, m := range good {
		q := queryKP[m.QueryIdx]
		r := trainKP[m.TrainIdx]
		src.SetDoubleAt(i, 0, q.X)
		src.SetDoubleAt(i, 1, q.Y)
		dst.SetDoubleAt(i, 0, r.X)
		dst.SetDoubleAt(i, 1, r.Y)
	}

	inlierMask := gocv.NewMat()
	defer inlierMask.Close()

	homography := gocv.FindHomography(src, dst, gocv.HomographyMethodRANSAC,
		ransacReprojection, &inlierMask, ransacMaxIterations, ransacConfidence)
	defer homography.Close()

	if homography.Empty() || inlierMask.Empty() {
		return 0
	}
	return gocv.CountNonZero(inlierMask)
}

// SortMatches orders by confidence, highest first, then by name.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Name < matches[j].Name
	})
}
