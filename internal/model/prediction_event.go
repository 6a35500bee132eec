package model

import "time"

// PredictionEvent describes one served prediction. It is published for
// downstream consumers and never stored by this service.
type PredictionEvent struct {
	ID            string     `json:"id"`
	RequestID     string     `json:"request_id,omitempty"`
	Filename      string     `json:"filename"`
	ContentType   string     `json:"content_type"`
	SizeBytes     int64      `json:"size_bytes"`
	ClassLabel    string     `json:"class_label"`
	Probabilities [2]float64 `json:"probabilities"`
	Score         float32    `json:"score"`
	Cached        bool       `json:"cached"`
	LatencyMS     float64    `json:"latency_ms"`
	CreatedAt     time.Time  `json:"created_at"`
}
