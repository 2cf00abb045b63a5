package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Ash-Blanc/migru/internal/events"
	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
	"github.com/Ash-Blanc/migru/internal/services"
	"gopkg.in/yaml.v3"
)

const (
	EventLogSQLite = "sqlite"
	EventLogRedis  = "redis"

	DefaultPath = "migru.yaml"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	SecretKey       string        `yaml:"secret_key"`
	DefaultLanguage string        `yaml:"default_language"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	DBPath      string `yaml:"db_path"`
	EventLog    string `yaml:"event_log"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type KafkaConfig struct {
	Brokers []string          `yaml:"brokers"`
	Topics  map[string]string `yaml:"topics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WindowConfig struct {
	Duration time.Duration `yaml:"duration"`
	Hop      time.Duration `yaml:"hop"`
}

type AnalyticsConfig struct {
	RetentionDays                      int                     `yaml:"retention_days"`
	ConfidenceThreshold                float64                 `yaml:"confidence_threshold"`
	MinConversationsBeforeFirstInsight int                     `yaml:"min_conversations_before_first_insight"`
	InsightCheckIntervalConversations  int                     `yaml:"insight_check_interval_conversations"`
	MaxInsightsPerDay                  int                     `yaml:"max_insights_per_day"`
	TriggerLookbackWindow              time.Duration           `yaml:"trigger_lookback_window"`
	TriggerConfirmationCount           int                     `yaml:"trigger_confirmation_count"`
	PressureThresholdHPA               float64                 `yaml:"pressure_threshold_hpa"`
	CorrelationMinSampleSize           int                     `yaml:"correlation_min_sample_size"`
	PatternMinSampleSize               int                     `yaml:"pattern_min_sample_size"`
	MaxIngestSkew                      time.Duration           `yaml:"max_ingest_skew"`
	EvaluationTimeout                  time.Duration           `yaml:"evaluation_timeout"`
	AlertHeartRateBPM                  float64                 `yaml:"alert_heart_rate_bpm"`
	SweepInterval                      time.Duration           `yaml:"sweep_interval"`
	Windows                            map[string]WindowConfig `yaml:"windows"`
}

func Default() Config {
	analytics := services.DefaultAnalyticsConfig()
	windows := make(map[string]WindowConfig, len(analytics.Windows))
	for kind, window := range analytics.Windows {
		windows[string(kind)] = WindowConfig{Duration: window.Duration, Hop: window.Hop}
	}

	return Config{
		Server: ServerConfig{
			Port:            8080,
			DefaultLanguage: "en",
			TokenTTL:        30 * 24 * time.Hour,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:      filepath.Join("data", "migru.db"),
			EventLog:    EventLogSQLite,
			RedisPrefix: "migru",
		},
		Kafka: KafkaConfig{
			Topics: map[string]string{
				events.TypeInsightShared: "migru.insight.shared",
				events.TypeWellnessAlert: "migru.wellness.alert",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Analytics: AnalyticsConfig{
			RetentionDays:                      analytics.RetentionDays,
			ConfidenceThreshold:                analytics.ConfidenceThreshold,
			MinConversationsBeforeFirstInsight: analytics.MinConversationsBeforeFirstInsight,
			InsightCheckIntervalConversations:  analytics.InsightCheckIntervalConversations,
			MaxInsightsPerDay:                  analytics.MaxInsightsPerDay,
			TriggerLookbackWindow:              analytics.TriggerLookbackWindow,
			TriggerConfirmationCount:           analytics.TriggerConfirmationCount,
			PressureThresholdHPA:               analytics.PressureThresholdHPA,
			CorrelationMinSampleSize:           analytics.CorrelationMinSampleSize,
			PatternMinSampleSize:               analytics.PatternMinSampleSize,
			MaxIngestSkew:                      analytics.MaxIngestSkew,
			EvaluationTimeout:                  analytics.EvaluationTimeout,
			AlertHeartRateBPM:                  analytics.AlertHeartRateBPM,
			SweepInterval:                      analytics.SweepInterval,
			Windows:                            windows,
		},
	}
}

// Load applies defaults, then the YAML file when it exists, then environment overrides.
// An empty path falls back to MIGRU_CONFIG and then to DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = envOrDefault("MIGRU_CONFIG", DefaultPath)
	}
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = envInt("PORT", cfg.Server.Port)
	cfg.Server.SecretKey = envOrDefault("SECRET_KEY", cfg.Server.SecretKey)
	cfg.Server.DefaultLanguage = envOrDefault("MIGRU_DEFAULT_LANGUAGE", cfg.Server.DefaultLanguage)
	cfg.Server.TokenTTL = envDuration("MIGRU_TOKEN_TTL", cfg.Server.TokenTTL)

	cfg.Storage.DBPath = envOrDefault("DB_PATH", cfg.Storage.DBPath)
	cfg.Storage.EventLog = envOrDefault("MIGRU_EVENT_LOG", cfg.Storage.EventLog)
	cfg.Storage.RedisURL = envOrDefault("REDIS_URL", cfg.Storage.RedisURL)
	cfg.Storage.RedisPrefix = envOrDefault("MIGRU_REDIS_PREFIX", cfg.Storage.RedisPrefix)

	cfg.Kafka.Brokers = envCSV("KAFKA_BROKERS", cfg.Kafka.Brokers)

	cfg.Logging.Level = envOrDefault("MIGRU_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("MIGRU_LOG_FORMAT", cfg.Logging.Format)

	analytics := &cfg.Analytics
	analytics.RetentionDays = envInt("MIGRU_RETENTION_DAYS", analytics.RetentionDays)
	analytics.ConfidenceThreshold = envFloat("MIGRU_CONFIDENCE_THRESHOLD", analytics.ConfidenceThreshold)
	analytics.MinConversationsBeforeFirstInsight = envInt("MIGRU_MIN_CONVERSATIONS_BEFORE_FIRST_INSIGHT", analytics.MinConversationsBeforeFirstInsight)
	analytics.InsightCheckIntervalConversations = envInt("MIGRU_INSIGHT_CHECK_INTERVAL_CONVERSATIONS", analytics.InsightCheckIntervalConversations)
	analytics.MaxInsightsPerDay = envInt("MIGRU_MAX_INSIGHTS_PER_DAY", analytics.MaxInsightsPerDay)
	analytics.TriggerLookbackWindow = envDuration("MIGRU_TRIGGER_LOOKBACK_WINDOW", analytics.TriggerLookbackWindow)
	analytics.TriggerConfirmationCount = envInt("MIGRU_TRIGGER_CONFIRMATION_COUNT", analytics.TriggerConfirmationCount)
	analytics.PressureThresholdHPA = envFloat("MIGRU_PRESSURE_THRESHOLD_HPA", analytics.PressureThresholdHPA)
	analytics.CorrelationMinSampleSize = envInt("MIGRU_CORRELATION_MIN_SAMPLE_SIZE", analytics.CorrelationMinSampleSize)
	analytics.PatternMinSampleSize = envInt("MIGRU_PATTERN_MIN_SAMPLE_SIZE", analytics.PatternMinSampleSize)
	analytics.MaxIngestSkew = envDuration("MIGRU_MAX_INGEST_SKEW", analytics.MaxIngestSkew)
	analytics.EvaluationTimeout = envDuration("MIGRU_EVALUATION_TIMEOUT", analytics.EvaluationTimeout)
	analytics.AlertHeartRateBPM = envFloat("MIGRU_ALERT_HEART_RATE_BPM", analytics.AlertHeartRateBPM)
	analytics.SweepInterval = envDuration("MIGRU_SWEEP_INTERVAL", analytics.SweepInterval)
}

func (cfg Config) Validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if err := security.ValidateSecretKey(cfg.Server.SecretKey); err != nil {
		return fmt.Errorf("server.secret_key: %w", err)
	}
	if cfg.Server.TokenTTL <= 0 {
		return errors.New("server.token_ttl must be positive")
	}
	if strings.TrimSpace(cfg.Storage.DBPath) == "" {
		return errors.New("storage.db_path is required")
	}

	switch cfg.Storage.EventLog {
	case EventLogSQLite:
	case EventLogRedis:
		if strings.TrimSpace(cfg.Storage.RedisURL) == "" {
			return errors.New("storage.redis_url is required when storage.event_log is redis")
		}
	default:
		return fmt.Errorf("storage.event_log must be %q or %q, got %q", EventLogSQLite, EventLogRedis, cfg.Storage.EventLog)
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		return err
	}

	return cfg.Analytics.validate()
}

func (analytics AnalyticsConfig) validate() error {
	if analytics.ConfidenceThreshold <= 0 || analytics.ConfidenceThreshold > 1 {
		return fmt.Errorf("analytics.confidence_threshold must be in (0, 1], got %v", analytics.ConfidenceThreshold)
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{"analytics.retention_days", analytics.RetentionDays},
		{"analytics.min_conversations_before_first_insight", analytics.MinConversationsBeforeFirstInsight},
		{"analytics.insight_check_interval_conversations", analytics.InsightCheckIntervalConversations},
		{"analytics.max_insights_per_day", analytics.MaxInsightsPerDay},
		{"analytics.trigger_confirmation_count", analytics.TriggerConfirmationCount},
		{"analytics.correlation_min_sample_size", analytics.CorrelationMinSampleSize},
		{"analytics.pattern_min_sample_size", analytics.PatternMinSampleSize},
	}
	for _, field := range positiveInts {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", field.name, field.value)
		}
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"analytics.trigger_lookback_window", analytics.TriggerLookbackWindow},
		{"analytics.max_ingest_skew", analytics.MaxIngestSkew},
		{"analytics.evaluation_timeout", analytics.EvaluationTimeout},
		{"analytics.sweep_interval", analytics.SweepInterval},
	}
	for _, field := range positiveDurations {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", field.name, field.value)
		}
	}

	if analytics.PressureThresholdHPA <= 0 {
		return fmt.Errorf("analytics.pressure_threshold_hpa must be positive, got %v", analytics.PressureThresholdHPA)
	}
	if analytics.AlertHeartRateBPM <= 0 {
		return fmt.Errorf("analytics.alert_heart_rate_bpm must be positive, got %v", analytics.AlertHeartRateBPM)
	}

	for name, window := range analytics.Windows {
		if _, err := models.ParseWindowKind(name); err != nil {
			return fmt.Errorf("analytics.windows.%s: unknown window kind", name)
		}
		if window.Duration <= 0 || window.Hop <= 0 {
			return fmt.Errorf("analytics.windows.%s: duration and hop must be positive", name)
		}
	}
	return nil
}

// ToAnalytics maps the file section onto the engine configuration. Call after Validate.
func (cfg Config) ToAnalytics() services.AnalyticsConfig {
	source := cfg.Analytics
	windows := make(map[models.WindowKind]services.WindowConfig, len(source.Windows))
	for name, window := range source.Windows {
		kind, err := models.ParseWindowKind(name)
		if err != nil {
			continue
		}
		windows[kind] = services.WindowConfig{Duration: window.Duration, Hop: window.Hop}
	}

	return services.AnalyticsConfig{
		RetentionDays:                      source.RetentionDays,
		ConfidenceThreshold:                source.ConfidenceThreshold,
		MinConversationsBeforeFirstInsight: source.MinConversationsBeforeFirstInsight,
		InsightCheckIntervalConversations:  source.InsightCheckIntervalConversations,
		MaxInsightsPerDay:                  source.MaxInsightsPerDay,
		TriggerLookbackWindow:              source.TriggerLookbackWindow,
		TriggerConfirmationCount:           source.TriggerConfirmationCount,
		PressureThresholdHPA:               source.PressureThresholdHPA,
		CorrelationMinSampleSize:           source.CorrelationMinSampleSize,
		PatternMinSampleSize:               source.PatternMinSampleSize,
		MaxIngestSkew:                      source.MaxIngestSkew,
		EvaluationTimeout:                  source.EvaluationTimeout,
		AlertHeartRateBPM:                  source.AlertHeartRateBPM,
		SweepInterval:                      source.SweepInterval,
		Windows:                            windows,
	}
}

// WriteDefault writes a default config with a fresh secret key. Existing files are left alone.
func WriteDefault(path string) (Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Config{}, fmt.Errorf("config %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("stat config %s: %w", path, err)
	}

	secret, err := security.GenerateSecretKey()
	if err != nil {
		return Config{}, fmt.Errorf("generate secret key: %w", err)
	}

	cfg := Default()
	cfg.Server.SecretKey = secret

	content, err := yaml.Marshal(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return Config{}, fmt.Errorf("write config %s: %w", path, err)
	}
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

// envInt keeps the fallback on empty or invalid values.
func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

// envCSV drops empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
