// Package config loads the trainer server configuration: defaults, then an
// optional YAML file named by TRAINER_CONFIG, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// KafkaConfig controls the optional Kafka sink. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	TopicPrefix  string   `yaml:"topic_prefix"`
	PublishEvery int      `yaml:"publish_every"`
	Codec        string   `yaml:"codec"`
}

// Enabled reports whether a broker list was configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// TracingConfig selects the span exporter. Tracing is off unless Enabled.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Config is the server configuration.
type Config struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	TickPeriod   time.Duration `yaml:"tick_period"`
	InitialSpeed int           `yaml:"initial_speed"`

	AlarmHistoryLimit int `yaml:"alarm_history_limit"`
	HistoryCapacity   int `yaml:"history_capacity"`
	TrendSamples      int `yaml:"trend_samples"`
	ObserverBuffer    int `yaml:"observer_buffer"`

	PlantPath   string `yaml:"plant_path"`
	CatalogPath string `yaml:"catalog_path"`

	// AllowedOrigins enables CORS on the HTTP API for browser clients.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Kafka   KafkaConfig   `yaml:"kafka"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		GRPCAddr:          ":50061",
		HTTPAddr:          ":8080",
		MetricsAddr:       ":9090",
		TickPeriod:        500 * time.Millisecond,
		InitialSpeed:      1,
		AlarmHistoryLimit: 200,
		TrendSamples:      720,
		ObserverBuffer:    8,
		Kafka: KafkaConfig{
			TopicPrefix:  "plant-trainer",
			PublishEvery: 10,
			Codec:        "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			Endpoint:    "localhost:4317",
			ServiceName: "plant-trainer",
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration from defaults, the TRAINER_CONFIG file and
// TRAINER_* environment variables, in that order.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("TRAINER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.GRPCAddr = getenvDefault("TRAINER_GRPC_ADDR", cfg.GRPCAddr)
	cfg.HTTPAddr = getenvDefault("TRAINER_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getenvDefault("TRAINER_METRICS_ADDR", cfg.MetricsAddr)
	cfg.TickPeriod = getenvDurationDefault("TRAINER_TICK_PERIOD", cfg.TickPeriod)
	cfg.InitialSpeed = getenvIntDefault("TRAINER_INITIAL_SPEED", cfg.InitialSpeed)
	cfg.PlantPath = getenvDefault("TRAINER_PLANT_PATH", cfg.PlantPath)
	cfg.CatalogPath = getenvDefault("TRAINER_CATALOG_PATH", cfg.CatalogPath)
	if origins := splitCSV(os.Getenv("TRAINER_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if brokers := splitCSV(os.Getenv("TRAINER_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.TopicPrefix = getenvDefault("TRAINER_KAFKA_TOPIC_PREFIX", cfg.Kafka.TopicPrefix)
	cfg.Kafka.Codec = getenvDefault("TRAINER_KAFKA_CODEC", cfg.Kafka.Codec)
	if v := os.Getenv("TRAINER_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = strings.EqualFold(v, "true")
	}
	cfg.Tracing.Exporter = strings.ToLower(getenvDefault("TRAINER_TRACING_EXPORTER", cfg.Tracing.Exporter))
	cfg.Tracing.Endpoint = getenvDefault("TRAINER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.ServiceName = getenvDefault("TRAINER_TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.SampleRatio = getenvFloatDefault("TRAINER_TRACING_SAMPLE_RATIO", cfg.Tracing.SampleRatio)

	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.TickPeriod <= 0 {
		return errors.New("config: tick_period must be positive")
	}
	switch c.InitialSpeed {
	case 1, 5, 10:
	default:
		return fmt.Errorf("config: initial_speed %d not one of 1, 5, 10", c.InitialSpeed)
	}
	switch strings.ToLower(c.Kafka.Codec) {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("config: kafka codec %q not json or msgpack", c.Kafka.Codec)
	}
	if c.Kafka.Enabled() && c.Kafka.PublishEvery <= 0 {
		return errors.New("config: kafka publish_every must be positive")
	}
	if c.Tracing.Enabled {
		switch strings.ToLower(c.Tracing.Exporter) {
		case "stdout", "otlp":
		default:
			return fmt.Errorf("config: tracing exporter %q not stdout or otlp", c.Tracing.Exporter)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config: tracing sample_ratio %.2f not in [0, 1]", c.Tracing.SampleRatio)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
