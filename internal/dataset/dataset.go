// Package dataset reads labelled image trees laid out the way the training
// pipeline expects them (one subdirectory per class) and scores a classifier
// against them.
package dataset

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"imgclass/internal/vision"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

type Sample struct {
	Path  string
	Class string
}

// Walk lists the images under root/<class>/ for both configured classes.
// Directories named after anything else are returned in skipped.
func Walk(root string, classNames [2]string) (samples []Sample, skipped []string, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset root: %w", err)
	}

	known := map[string]bool{classNames[0]: true, classNames[1]: true}
	found := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !known[entry.Name()] {
			skipped = append(skipped, entry.Name())
			continue
		}
		found[entry.Name()] = true

		classDir := filepath.Join(root, entry.Name())
		err := filepath.WalkDir(classDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			samples = append(samples, Sample{Path: path, Class: entry.Name()})
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("walk %s: %w", classDir, err)
		}
	}

	for _, name := range classNames {
		if !found[name] {
			return nil, nil, fmt.Errorf("dataset root %s has no %q directory", root, name)
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Path < samples[j].Path })
	return samples, skipped, nil
}

type ClassStats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Unknown int `json:"unknown"`
	Failed  int `json:"failed"`
}

type Report struct {
	Classes map[string]*ClassStats `json:"classes"`
	Overall ClassStats             `json:"overall"`
}

// Accuracy is correct over all samples, unknown and failed included.
func (r *Report) Accuracy() float64 {
	if r.Overall.Total == 0 {
		return 0
	}
	return float64(r.Overall.Correct) / float64(r.Overall.Total)
}

// Coverage is the share of samples that got a concrete label.
func (r *Report) Coverage() float64 {
	if r.Overall.Total == 0 {
		return 0
	}
	return float64(r.Overall.Correct+r.Overall.Wrong) / float64(r.Overall.Total)
}

type Predictor interface {
	Predict(imageData []byte) (vision.Prediction, error)
}

// Evaluate runs every sample through p using up to workers goroutines.
// Unreadable or undecodable files count as Failed rather than aborting.
func Evaluate(ctx context.Context, p Predictor, samples []Sample, workers int, logger *slog.Logger) (*Report, error) {
	if workers <= 0 {
		workers = 1
	}
	report := &Report{Classes: map[string]*ClassStats{}}
	var mu sync.Mutex

	record := func(class string, apply func(*ClassStats)) {
		mu.Lock()
		defer mu.Unlock()
		stats, ok := report.Classes[class]
		if !ok {
			stats = &ClassStats{}
			report.Classes[class] = stats
		}
		stats.Total++
		report.Overall.Total++
		apply(stats)
		apply(&report.Overall)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sample := range samples {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(sample.Path)
			if err != nil {
				logger.Warn("read sample failed", "path", sample.Path, "err", err)
				record(sample.Class, func(s *ClassStats) { s.Failed++ })
				return nil
			}
			prediction, err := p.Predict(data)
			if err != nil {
				logger.Warn("predict sample failed", "path", sample.Path, "err", err)
				record(sample.Class, func(s *ClassStats) { s.Failed++ })
				return nil
			}
			switch prediction.ClassLabel {
			case sample.Class:
				record(sample.Class, func(s *ClassStats) { s.Correct++ })
			case vision.UnknownLabel:
				record(sample.Class, func(s *ClassStats) { s.Unknown++ })
			default:
				logger.Debug("misclassified", "path", sample.Path, "want", sample.Class, "got", prediction.ClassLabel)
				record(sample.Class, func(s *ClassStats) { s.Wrong++ })
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}
