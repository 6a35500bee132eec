package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"imgclass/internal/metrics"
	"imgclass/internal/model"
	"imgclass/internal/vision"
)

var (
	ErrUnsupportedMediaType = errors.New("only image files (e.g., JPEG, PNG) are allowed for prediction")
	ErrUploadTooLarge       = errors.New("uploaded file is too large")
)

const publishTimeout = 2 * time.Second

// Scorer is the inference component as seen by the service.
type Scorer interface {
	Score(imageData []byte) (float32, error)
	Decide(p float32) vision.Prediction
}

type ScoreCache interface {
	Get(ctx context.Context, key string) (float32, bool, error)
	Set(ctx context.Context, key string, score float32) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.PredictionEvent) error
}

// Upload is one file received for prediction.
type Upload struct {
	RequestID   string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Validate checks the declared content type and size before any bytes are read.
func (u Upload) Validate(maxBytes int64) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(u.ContentType)), "image/") {
		return ErrUnsupportedMediaType
	}
	if maxBytes > 0 && u.Size > maxBytes {
		return ErrUploadTooLarge
	}
	return nil
}

type PredictionServiceDeps struct {
	// Cache and Publisher are optional.
	Cache     ScoreCache
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// ModelID scopes cache keys to one model artifact.
	ModelID string
}

type PredictionService struct {
	scorer    Scorer
	cache     ScoreCache
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	modelID   string
}

func NewPredictionService(scorer Scorer, deps PredictionServiceDeps) *PredictionService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	modelID := deps.ModelID
	if len(modelID) > 16 {
		modelID = modelID[:16]
	}
	if modelID == "" {
		modelID = "default"
	}
	return &PredictionService{
		scorer:    scorer,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    logger,
		modelID:   modelID,
	}
}

// Predict classifies upload.Data. Cache and publisher failures are logged and
// never fail the prediction; decode and inference errors are returned as is.
func (s *PredictionService) Predict(ctx context.Context, upload Upload) (vision.Prediction, error) {
	start := time.Now()
	key := s.ScoreKey(upload.Data)

	score, cached := s.lookup(ctx, key)
	if !cached {
		p, err := s.scorer.Score(upload.Data)
		if err != nil {
			s.metrics.ObservePredictionError(errorKind(err))
			return vision.Prediction{}, err
		}
		score = p
		s.store(ctx, key, score)
	}

	prediction := s.scorer.Decide(score)
	elapsed := time.Since(start)

	source := "model"
	if cached {
		source = "cache"
	}
	s.metrics.ObservePrediction(prediction.ClassLabel, source, elapsed)
	s.logger.Debug("prediction served",
		"request_id", upload.RequestID,
		"label", prediction.ClassLabel,
		"score", score,
		"source", source,
		"elapsed", elapsed,
	)

	s.publish(ctx, upload, prediction, score, cached, elapsed)
	return prediction, nil
}

// ScoreKey is the cache key for an image under the current model.
func (s *PredictionService) ScoreKey(imageData []byte) string {
	sum := sha256.Sum256(imageData)
	return "predict:score:" + s.modelID + ":" + hex.EncodeToString(sum[:])
}

func (s *PredictionService) lookup(ctx context.Context, key string) (float32, bool) {
	if s.cache == nil {
		return 0, false
	}
	score, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("score cache read failed", "key", key, "err", err)
		return 0, false
	}
	if ok && !validScore(score) {
		s.logger.Warn("ignoring invalid cached score", "key", key, "score", score)
		return 0, false
	}
	return score, ok
}

func validScore(p float32) bool {
	return !math.IsNaN(float64(p)) && p >= 0 && p <= 1
}

func (s *PredictionService) store(ctx context.Context, key string, score float32) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, score); err != nil {
		s.logger.Warn("score cache write failed", "key", key, "err", err)
	}
}

func (s *PredictionService) publish(ctx context.Context, upload Upload, prediction vision.Prediction, score float32, cached bool, elapsed time.Duration) {
	if s.publisher == nil {
		return
	}
	event := model.PredictionEvent{
		ID:            uuid.NewString(),
		RequestID:     upload.RequestID,
		Filename:      upload.Filename,
		ContentType:   upload.ContentType,
		SizeBytes:     int64(len(upload.Data)),
		ClassLabel:    prediction.ClassLabel,
		Probabilities: prediction.Probabilities,
		Score:         score,
		Cached:        cached,
		LatencyMS:     float64(elapsed.Microseconds()) / 1000,
		CreatedAt:     time.Now().UTC(),
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.Warn("publish prediction event failed", "event_id", event.ID, "err", err)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, vision.ErrDecode):
		return "decode"
	case errors.Is(err, vision.ErrInference):
		return "inference"
	default:
		return "internal"
	}
}
