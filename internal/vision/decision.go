package vision

import "math"

// UnknownLabel is reported when the model is not confident enough.
const UnknownLabel = "unknown"

// Prediction is the result returned to clients.
type Prediction struct {
	ClassLabel string `json:"class_label"`
	// Probabilities holds [negative, positive], each rounded to 4 decimals.
	Probabilities [2]float64 `json:"probabilities"`
}

// Decide turns the positive-class probability p into a Prediction.
// Confidence is max(p, 1-p) on the unrounded value; a confidence equal to the
// threshold counts as confident.
func Decide(p float32, threshold float64, classNames [2]string) Prediction {
	pos := float64(p)
	neg := 1 - pos

	result := Prediction{
		Probabilities: [2]float64{round4(neg), round4(pos)},
	}

	confidence := math.Max(pos, neg)
	switch {
	case confidence < threshold:
		result.ClassLabel = UnknownLabel
	case pos >= 0.5:
		result.ClassLabel = classNames[1]
	default:
		result.ClassLabel = classNames[0]
	}
	return result
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
