package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"imgclass/internal/app"
	"imgclass/internal/cache"
	"imgclass/internal/config"
	"imgclass/internal/metrics"
	rabbitmqClient "imgclass/internal/platform/rabbitmq"
	redisClient "imgclass/internal/platform/redis"
	"imgclass/internal/vision"
)

// App owns every process-scoped resource. It is built once in main and
// released with Close on shutdown.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Model       *vision.ONNXModel
	Classifier  *vision.Classifier
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Publisher   *rabbitmqClient.PredictionPublisher
	Metrics     *metrics.Metrics
	Predictions *app.PredictionService

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
	}

	model, classifier, err := LoadClassifier(cfg)
	if err != nil {
		return nil, err
	}
	a.Model = model
	a.Classifier = classifier
	logger.Info("model loaded",
		"path", cfg.Model.Path,
		"layout", model.Layout().String(),
		"digest", model.Digest()[:12],
		"classes", cfg.Model.ClassNames,
		"threshold", cfg.Model.Threshold,
	)

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	deps := app.PredictionServiceDeps{
		Metrics: a.Metrics,
		Logger:  logger,
		ModelID: model.Digest(),
	}

	if cfg.Redis.Enabled() {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Redis = redisCli
		deps.Cache = cache.NewScoreCache(redisCli, time.Duration(cfg.Redis.ScoreTTLSeconds)*time.Second)
		logger.Info("score cache enabled", "addr", cfg.Redis.Addr)
	}

	if cfg.RabbitMQ.Enabled() {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = mqConn
		a.Publisher = rabbitmqClient.NewPredictionPublisher(mqConn, cfg.RabbitMQ.PredictionQueue)
		deps.Publisher = a.Publisher
		logger.Info("prediction events enabled", "queue", cfg.RabbitMQ.PredictionQueue)
	}

	a.Predictions = app.NewPredictionService(classifier, deps)
	return a, nil
}

// LoadClassifier opens the ONNX model described by cfg and wraps it in a
// Classifier. The caller owns the returned model and must Close it.
func LoadClassifier(cfg *config.Config) (*vision.ONNXModel, *vision.Classifier, error) {
	model, err := vision.LoadONNXModel(vision.ONNXOptions{
		Path:           cfg.Model.Path,
		SharedLibPath:  cfg.Model.ONNXSharedLibPath,
		Width:          cfg.Model.Width(),
		Height:         cfg.Model.Height(),
		IntraOpThreads: cfg.Model.IntraOpThreads,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load model failed: %w", err)
	}

	classifier := vision.NewClassifier(model, vision.Options{
		Width:      cfg.Model.Width(),
		Height:     cfg.Model.Height(),
		Layout:     model.Layout(),
		Threshold:  cfg.Model.Threshold,
		ClassNames: [2]string{cfg.Model.ClassNames[0], cfg.Model.ClassNames[1]},
	})
	return model, classifier, nil
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}
	if a.Model != nil {
		if err := a.Model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model: %w", err))
		}
	}
	return errors.Join(errs...)
}
