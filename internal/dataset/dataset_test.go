package dataset

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgclass/internal/vision"
)

var classes = [2]string{"cats", "dogs"}

func writeImage(t *testing.T, path string, c color.Color) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// buildTree lays out cats as red images and dogs as blue ones.
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}

	writeImage(t, filepath.Join(root, "cats", "c1.png"), red)
	writeImage(t, filepath.Join(root, "cats", "c2.PNG"), red)
	writeImage(t, filepath.Join(root, "cats", "nested", "c3.png"), blue)
	writeImage(t, filepath.Join(root, "dogs", "d1.png"), blue)
	writeImage(t, filepath.Join(root, "dogs", "d2.png"), green)
	require.NoError(t, os.WriteFile(filepath.Join(root, "dogs", "notes.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dogs", "broken.jpg"), []byte("junk"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "birds"), 0o755))
	return root
}

// colorModel answers by the dominant channel of the first pixel: blue is a
// confident dog, red a confident cat, anything else a coin flip.
type colorModel struct{}

func (colorModel) Forward(input []float32) (float32, error) {
	r, b := input[0], input[2]
	switch {
	case b > 0.5:
		return 0.97, nil
	case r > 0.5:
		return 0.02, nil
	}
	return 0.5, nil
}

func TestWalk(t *testing.T) {
	root := buildTree(t)

	samples, skipped, err := Walk(root, classes)
	require.NoError(t, err)
	assert.Equal(t, []string{"birds"}, skipped)
	require.Len(t, samples, 6)

	perClass := map[string]int{}
	for _, s := range samples {
		perClass[s.Class]++
	}
	assert.Equal(t, map[string]int{"cats": 3, "dogs": 3}, perClass)
}

func TestWalkRequiresBothClasses(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "cats", "c1.png"), color.White)

	_, _, err := Walk(root, classes)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	root := buildTree(t)
	samples, _, err := Walk(root, classes)
	require.NoError(t, err)

	classifier := vision.NewClassifier(colorModel{}, vision.Options{
		Width: 4, Height: 4, Threshold: 0.85, ClassNames: classes,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	report, err := Evaluate(context.Background(), classifier, samples, 3, logger)
	require.NoError(t, err)

	assert.Equal(t, ClassStats{Total: 3, Correct: 2, Wrong: 1}, *report.Classes["cats"])
	assert.Equal(t, ClassStats{Total: 3, Correct: 1, Unknown: 1, Failed: 1}, *report.Classes["dogs"])
	assert.Equal(t, ClassStats{Total: 6, Correct: 3, Wrong: 1, Unknown: 1, Failed: 1}, report.Overall)
	assert.InDelta(t, 0.5, report.Accuracy(), 1e-9)
	assert.InDelta(t, 4.0/6.0, report.Coverage(), 1e-9)
}

func TestEvaluateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	samples := []Sample{{Path: "a.png", Class: "cats"}}
	_, err := Evaluate(ctx, vision.NewClassifier(colorModel{}, vision.Options{Width: 1, Height: 1, ClassNames: classes}), samples, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, errors.Is(err, context.Canceled))
}
