package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Weather   WeatherConfig   `yaml:"weather" mapstructure:"weather"`
	Holiday   HolidayConfig   `yaml:"holiday" mapstructure:"holiday"`
	Fraud     FraudConfig     `yaml:"fraud" mapstructure:"fraud"`
	Tourist   TouristConfig   `yaml:"tourist" mapstructure:"tourist"`
	Detector  DetectorConfig  `yaml:"detector" mapstructure:"detector"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// WeatherConfig holds Open-Meteo archive API settings.
type WeatherConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// HolidayConfig holds holiday calendar API settings.
type HolidayConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	CountryCode string `yaml:"country_code" mapstructure:"country_code"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FraudConfig configures the published-sheet fraud order registry.
type FraudConfig struct {
	SheetURL    string `yaml:"sheet_url" mapstructure:"sheet_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TouristConfig configures the seasonality workbook loader.
type TouristConfig struct {
	WorkbookPath string `yaml:"workbook_path" mapstructure:"workbook_path"`
	SheetName    string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// DetectorConfig configures the baseline anomaly detector.
type DetectorConfig struct {
	MADMultiplier float64 `yaml:"mad_multiplier" mapstructure:"mad_multiplier"`
	MinDays       int     `yaml:"min_days" mapstructure:"min_days"`
	TopN          int     `yaml:"top_n" mapstructure:"top_n"`
}

// ModelConfig configures the attribution model and Shapley sampling.
type ModelConfig struct {
	Trees           int     `yaml:"trees" mapstructure:"trees"`
	MaxDepth        int     `yaml:"max_depth" mapstructure:"max_depth"`
	MinLeaf         int     `yaml:"min_leaf" mapstructure:"min_leaf"`
	Seed            int64   `yaml:"seed" mapstructure:"seed"`
	MinTrainingDays int     `yaml:"min_training_days" mapstructure:"min_training_days"`
	ShapleySamples  int     `yaml:"shapley_samples" mapstructure:"shapley_samples"`
	Materiality     float64 `yaml:"materiality" mapstructure:"materiality"` // fraction of predicted sales
}

// AnthropicConfig holds Anthropic API settings for report narratives.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DETECTIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "detective.sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("weather.base_url", "https://archive-api.open-meteo.com/v1/archive")
	v.SetDefault("weather.timeout_secs", 10)
	v.SetDefault("weather.rate_per_sec", 5)
	v.SetDefault("holiday.base_url", "https://date.nager.at/api/v3")
	v.SetDefault("holiday.country_code", "ID")
	v.SetDefault("holiday.timeout_secs", 10)
	v.SetDefault("fraud.sheet_url", "")
	v.SetDefault("fraud.timeout_secs", 15)
	v.SetDefault("tourist.workbook_path", "")
	v.SetDefault("tourist.sheet_name", "monthly")
	v.SetDefault("detector.mad_multiplier", 1.5)
	v.SetDefault("detector.min_days", 7)
	v.SetDefault("detector.top_n", 5)
	v.SetDefault("model.trees", 200)
	v.SetDefault("model.max_depth", 8)
	v.SetDefault("model.min_leaf", 2)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.min_training_days", 5)
	v.SetDefault("model.shapley_samples", 128)
	v.SetDefault("model.materiality", 0.05)
	// Empty default so the env var is visible to Unmarshal under AutomaticEnv.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
