// Package config loads application configuration from file and environment
// and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/deal-radar/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Serper   SerperConfig   `yaml:"serper" mapstructure:"serper"`
	Scan     ScanConfig     `yaml:"scan" mapstructure:"scan"`
	Topics   TopicsConfig   `yaml:"topics" mapstructure:"topics"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Health   HealthConfig   `yaml:"health" mapstructure:"health"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// SerperConfig holds the search provider settings.
type SerperConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Country         string `yaml:"country" mapstructure:"country"`
	Language        string `yaml:"language" mapstructure:"language"`
	ResultsPerQuery int    `yaml:"results_per_query" mapstructure:"results_per_query"`
}

// ScanConfig tunes the scan run.
type ScanConfig struct {
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	QueryTimeoutSecs int     `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	SearchRetries    int     `yaml:"search_retries" mapstructure:"search_retries"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RunTimeoutMins   int     `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
}

// TopicsConfig points at the topics file.
type TopicsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ReportConfig configures the weekly digest.
type ReportConfig struct {
	TopN int `yaml:"top_n" mapstructure:"top_n"`
}

// HealthConfig configures the post-run and periodic health checks.
type HealthConfig struct {
	EvidenceCeiling int `yaml:"evidence_ceiling" mapstructure:"evidence_ceiling"`
	StaleAfterHours int `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	CadenceHours    int `yaml:"cadence_hours" mapstructure:"cadence_hours"`
}

// ScheduleConfig holds the cron expressions used by the serve loop.
type ScheduleConfig struct {
	Scan   string `yaml:"scan" mapstructure:"scan"`
	Report string `yaml:"report" mapstructure:"report"`
}

// ServerConfig configures the trigger server.
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
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("serper.key", "")
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.country", "us")
	v.SetDefault("serper.language", "en")
	v.SetDefault("serper.results_per_query", 10)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.query_timeout_secs", 30)
	v.SetDefault("scan.search_retries", 3)
	v.SetDefault("scan.rate_per_sec", 2)
	v.SetDefault("scan.run_timeout_mins", 30)
	v.SetDefault("topics.path", "topics.yaml")
	v.SetDefault("report.top_n", 15)
	v.SetDefault("health.evidence_ceiling", 20)
	v.SetDefault("health.stale_after_hours", 48)
	v.SetDefault("health.cadence_hours", 6)
	v.SetDefault("schedule.scan", "0 6 * * *")
	v.SetDefault("schedule.report", "0 7 * * 1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
