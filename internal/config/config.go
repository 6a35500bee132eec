package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Log      LogConfig      `toml:"log"`
	Model    ModelConfig    `toml:"model"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type AppConfig struct {
	Name           string `toml:"name"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	GinMode        string `toml:"gin_mode"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// ModelConfig describes the classifier artifact and how its output is read.
// ClassNames[0] is the negative class, ClassNames[1] the positive one.
type ModelConfig struct {
	Path              string   `toml:"path"`
	ImageSize         [2]int   `toml:"image_size"`
	ClassNames        []string `toml:"class_names"`
	Threshold         float64  `toml:"threshold"`
	ONNXSharedLibPath string   `toml:"onnx_shared_lib_path"`
	IntraOpThreads    int      `toml:"intra_op_threads"`
}

type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	ScoreTTLSeconds int    `toml:"score_ttl_seconds"`
}

type RabbitMQConfig struct {
	URL             string `toml:"url"`
	PredictionQueue string `toml:"prediction_queue"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// Load builds the process configuration: defaults, then the optional TOML file
// named by CONFIG_FILE, then environment overrides. The result is validated and
// must not be mutated afterwards.
func Load() (*Config, error) {
	cfg := Default()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	if err := overrideByEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (m ModelConfig) Width() int  { return m.ImageSize[0] }
func (m ModelConfig) Height() int { return m.ImageSize[1] }

func (r RedisConfig) Enabled() bool    { return r.Addr != "" }
func (r RabbitMQConfig) Enabled() bool { return r.URL != "" }

func (c *Config) Validate() error {
	var errs []error
	if c.Model.Width() <= 0 || c.Model.Height() <= 0 {
		errs = append(errs, fmt.Errorf("image size must be positive, got %dx%d", c.Model.Width(), c.Model.Height()))
	}
	if len(c.Model.ClassNames) != 2 {
		errs = append(errs, fmt.Errorf("exactly two class names are required, got %d", len(c.Model.ClassNames)))
	} else {
		for i, name := range c.Model.ClassNames {
			if strings.TrimSpace(name) == "" {
				errs = append(errs, fmt.Errorf("class name %d is empty", i))
			}
		}
	}
	if math.IsNaN(c.Model.Threshold) || c.Model.Threshold < 0 || c.Model.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be within [0,1], got %v", c.Model.Threshold))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model path is empty"))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.App.Port))
	}
	if c.App.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.App.MaxUploadBytes))
	}
	if c.Redis.Enabled() && c.Redis.ScoreTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("redis score ttl must be positive, got %d", c.Redis.ScoreTTLSeconds))
	}
	if c.RabbitMQ.Enabled() && c.RabbitMQ.PredictionQueue == "" {
		errs = append(errs, errors.New("rabbitmq prediction queue is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:           "imgclass",
			Host:           "0.0.0.0",
			Port:           8080,
			GinMode:        "release",
			MaxUploadBytes: 10 << 20,
		},
		Log: LogConfig{
			Level: "INFO",
		},
		Model: ModelConfig{
			Path:       "models/my_classifier_model.onnx",
			ImageSize:  [2]int{160, 160},
			ClassNames: []string{"cats", "dogs"},
			Threshold:  0.85,
		},
		Redis: RedisConfig{
			ScoreTTLSeconds: 3600,
		},
		RabbitMQ: RabbitMQConfig{
			PredictionQueue: "predictions.events",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func overrideByEnv(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	maxUpload, err := getEnvAsInt64("MAX_UPLOAD_BYTES", cfg.App.MaxUploadBytes)
	collect(err)
	cfg.App.MaxUploadBytes = maxUpload

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Model.Path = getEnv("MODEL_PATH", cfg.Model.Path)
	if raw, ok := os.LookupEnv("IMAGE_SIZE"); ok && raw != "" {
		size, err := ParseImageSize(raw)
		collect(err)
		if err == nil {
			cfg.Model.ImageSize = size
		}
	}
	if raw, ok := os.LookupEnv("CLASS_NAMES"); ok && raw != "" {
		names, err := ParseClassNames(raw)
		collect(err)
		if err == nil {
			cfg.Model.ClassNames = names
		}
	}
	threshold, err := getEnvAsFloat("THRESHOLD", cfg.Model.Threshold)
	collect(err)
	cfg.Model.Threshold = threshold
	cfg.Model.ONNXSharedLibPath = getEnv("ONNX_SHARED_LIB", cfg.Model.ONNXSharedLibPath)
	cfg.Model.IntraOpThreads = getEnvAsInt("ONNX_INTRA_OP_THREADS", cfg.Model.IntraOpThreads)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.ScoreTTLSeconds = getEnvAsInt("REDIS_SCORE_TTL_SECONDS", cfg.Redis.ScoreTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.PredictionQueue = getEnv("RABBITMQ_PREDICTION_QUEUE", cfg.RabbitMQ.PredictionQueue)

	metricsEnabled, err := getEnvAsBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	collect(err)
	cfg.Metrics.Enabled = metricsEnabled

	return errors.Join(errs...)
}

// ParseImageSize accepts "160,160", "160x160", "(160, 160)" or "[160, 160]".
func ParseImageSize(raw string) ([2]int, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "()[]")
	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == 'x' || r == 'X'
	})
	if len(parts) != 2 {
		return [2]int{}, fmt.Errorf("IMAGE_SIZE %q: want width,height", raw)
	}
	var size [2]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return [2]int{}, fmt.Errorf("IMAGE_SIZE %q: %w", raw, err)
		}
		size[i] = v
	}
	return size, nil
}

// ParseClassNames accepts a JSON list (["cats","dogs"]) or a comma separated list.
func ParseClassNames(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	var names []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil, fmt.Errorf("CLASS_NAMES %q: %w", raw, err)
		}
	} else {
		for _, name := range strings.Split(raw, ",") {
			names = append(names, strings.TrimSpace(name))
		}
	}
	return names, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt64(key string, fallback int64) (int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
