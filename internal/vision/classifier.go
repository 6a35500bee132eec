package vision

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDecode    = errors.New("decode image")
	ErrInference = errors.New("inference")
)

// Model runs one forward pass over a single-item batch and returns the
// positive-class probability. Implementations must be safe for concurrent use.
type Model interface {
	Forward(input []float32) (float32, error)
}

type Options struct {
	Width      int
	Height     int
	Layout     Layout
	Threshold  float64
	ClassNames [2]string
}

// Classifier decodes uploads, runs the binary model and applies the
// confidence threshold. It holds no mutable state.
type Classifier struct {
	model Model
	opts  Options
}

func NewClassifier(model Model, opts Options) *Classifier {
	return &Classifier{model: model, opts: opts}
}

func (c *Classifier) Options() Options { return c.opts }

// Predict is Score followed by Decide.
func (c *Classifier) Predict(imageData []byte) (Prediction, error) {
	p, err := c.Score(imageData)
	if err != nil {
		return Prediction{}, err
	}
	return c.Decide(p), nil
}

// Score decodes and preprocesses imageData and returns the raw positive-class
// probability from the model.
func (c *Classifier) Score(imageData []byte) (float32, error) {
	img, _, err := DecodeImage(imageData)
	if err != nil {
		return 0, err
	}

	input := Preprocess(img, c.opts.Width, c.opts.Height, c.opts.Layout)

	p, err := c.model.Forward(input)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if math.IsNaN(float64(p)) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: model output %v is not a probability", ErrInference, p)
	}
	return p, nil
}

func (c *Classifier) Decide(p float32) Prediction {
	return Decide(p, c.opts.Threshold, c.opts.ClassNames)
}
