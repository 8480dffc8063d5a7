package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "IDSGUARD_CONFIG"
	EnvStorageDSN = "IDSGUARD_STORAGE_DSN"
	EnvAPIAddr    = "IDSGUARD_API_ADDR"
	EnvLogLevel   = "IDSGUARD_LOG_LEVEL"
)

type Config struct {
	LogLevel  string        `json:"log_level" yaml:"log_level"`
	LogFormat string        `json:"log_format" yaml:"log_format"`
	Model     ModelConfig   `json:"model" yaml:"model"`
	API       APIConfig     `json:"api" yaml:"api"`
	Storage   StorageConfig `json:"storage" yaml:"storage"`
	Notify    NotifyConfig  `json:"notify" yaml:"notify"`
	Metrics   MetricsConfig `json:"metrics" yaml:"metrics"`
}

type ModelConfig struct {
	Dir           string `json:"dir" yaml:"dir"`
	ModelFile     string `json:"model_file" yaml:"model_file"`
	ScalerFile    string `json:"scaler_file" yaml:"scaler_file"`
	ThresholdFile string `json:"threshold_file" yaml:"threshold_file"`
	FeaturesFile  string `json:"features_file" yaml:"features_file"`
	InfoFile      string `json:"info_file" yaml:"info_file"`
}

// Path joins name onto the model directory unless name is absolute.
func (m ModelConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.Dir, name)
}

type APIConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Addr           string `json:"addr" yaml:"addr"`
	MaxUploadBytes int64  `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	DefaultLimit   int    `json:"default_limit" yaml:"default_limit"`
	MaxLimit       int    `json:"max_limit" yaml:"max_limit"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type NotifyConfig struct {
	Redis RedisConfig `json:"redis" yaml:"redis"`
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RedisConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Channel string `json:"channel" yaml:"channel"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type MetricsConfig struct {
	Prometheus    bool `json:"prometheus" yaml:"prometheus"`
	RecordScoring bool `json:"record_scoring" yaml:"record_scoring"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Model: ModelConfig{
			Dir:           "models",
			ModelFile:     "final_model.json",
			ScalerFile:    "scaler.json",
			ThresholdFile: "optimal_threshold.txt",
			FeaturesFile:  "selected_features.csv",
			InfoFile:      "model_info.txt",
		},
		API: APIConfig{
			Enabled:        true,
			Addr:           ":5000",
			MaxUploadBytes: 32 << 20,
			DefaultLimit:   100,
			MaxLimit:       1000,
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:ids_database.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"},
		Notify: NotifyConfig{
			Redis: RedisConfig{Enabled: false, URL: "redis://localhost:6379/0", Channel: "idsguard:alerts"},
			Kafka: KafkaConfig{Enabled: false, Topic: "idsguard.alerts"},
		},
		Metrics: MetricsConfig{Prometheus: true, RecordScoring: true},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when given, otherwise the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := DefaultConfig()
		applyEnv(cfg)
		applyDefaults(cfg)
		return cfg, Validate(cfg)
	}
	return Load(path)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvStorageDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(EnvAPIAddr); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = def.Model.Dir
	}
	if cfg.Model.ModelFile == "" {
		cfg.Model.ModelFile = def.Model.ModelFile
	}
	if cfg.Model.ScalerFile == "" {
		cfg.Model.ScalerFile = def.Model.ScalerFile
	}
	if cfg.Model.ThresholdFile == "" {
		cfg.Model.ThresholdFile = def.Model.ThresholdFile
	}
	if cfg.Model.FeaturesFile == "" {
		cfg.Model.FeaturesFile = def.Model.FeaturesFile
	}
	if cfg.API.MaxUploadBytes <= 0 {
		cfg.API.MaxUploadBytes = def.API.MaxUploadBytes
	}
	if cfg.API.DefaultLimit <= 0 {
		cfg.API.DefaultLimit = def.API.DefaultLimit
	}
	if cfg.API.MaxLimit <= 0 {
		cfg.API.MaxLimit = def.API.MaxLimit
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
	if cfg.Notify.Redis.Channel == "" {
		cfg.Notify.Redis.Channel = def.Notify.Redis.Channel
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.API.DefaultLimit > cfg.API.MaxLimit {
		return fmt.Errorf("api.default_limit %d exceeds api.max_limit %d", cfg.API.DefaultLimit, cfg.API.MaxLimit)
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported storage.driver: %q", cfg.Storage.Driver)
	}
	if cfg.Notify.Redis.Enabled && cfg.Notify.Redis.URL == "" {
		return errors.New("notify.redis.url required when notify.redis.enabled is true")
	}
	if cfg.Notify.Kafka.Enabled {
		if len(cfg.Notify.Kafka.Brokers) == 0 || cfg.Notify.Kafka.Topic == "" {
			return errors.New("notify.kafka requires brokers, topic")
		}
	}
	return nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
