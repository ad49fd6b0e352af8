// Package config provides configuration loading for the enrichment control plane.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Chimera  ChimeraConfig  `mapstructure:"chimera"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Sources  SourcesConfig  `mapstructure:"sources"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"` // full DSN; wins over host/port fields
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrateURL returns the postgres:// URL used by golang-migrate.
func (c DatabaseConfig) MigrateURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL      string `mapstructure:"url"` // redis:// URL; wins over host/port fields
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PipelineConfig holds pipeline engine configuration.
type PipelineConfig struct {
	Name        string  `mapstructure:"name"`         // selects a non-default route
	BudgetLimit float64 `mapstructure:"budget_limit"` // max spend per lead
}

// ChimeraConfig holds mission-bridge configuration.
type ChimeraConfig struct {
	MissionQueue   string        `mapstructure:"mission_queue"`
	MissionDLQ     string        `mapstructure:"mission_dlq"`
	StationTimeout time.Duration `mapstructure:"station_timeout"` // BRPOP wait for a reply
	BrainURL       string        `mapstructure:"brain_url"`       // hive-mind predictor, optional
}

// WorkerConfig holds lead queue worker configuration.
type WorkerConfig struct {
	Queue          string        `mapstructure:"queue"`
	FailedQueue    string        `mapstructure:"failed_queue"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	PopTimeout     time.Duration `mapstructure:"pop_timeout"`
}

// AlertsConfig holds outbound webhook configuration.
type AlertsConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SourcesConfig holds credentials for the paid enrichment sources.
type SourcesConfig struct {
	TelnyxAPIKey    string        `mapstructure:"telnyx_api_key"`
	TelnyxTimeout   time.Duration `mapstructure:"telnyx_timeout"`
	SkipTraceAPIKey string        `mapstructure:"skip_trace_api_key"`
	SkipTraceURL    string        `mapstructure:"skip_trace_url"`
	CensusURL       string        `mapstructure:"census_url"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/scrapeshifter")

	// Enable environment variable override
	v.SetEnvPrefix("SCRAPESHIFTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Legacy environment names carried over from the original deployment.
	// First match wins; the prefixed SCRAPESHIFTER_* names take priority.
	v.BindEnv("redis.url", "SCRAPESHIFTER_REDIS_URL", "REDIS_URL", "APP_REDIS_URL")
	v.BindEnv("database.url", "SCRAPESHIFTER_DATABASE_URL", "DATABASE_URL", "APP_DATABASE_URL")
	v.BindEnv("pipeline.name", "SCRAPESHIFTER_PIPELINE_NAME", "PIPELINE_NAME")
	v.BindEnv("pipeline.budget_limit", "SCRAPESHIFTER_PIPELINE_BUDGET_LIMIT", "PIPELINE_BUDGET_LIMIT")
	v.BindEnv("chimera.station_timeout", "SCRAPESHIFTER_CHIMERA_STATION_TIMEOUT", "CHIMERA_STATION_TIMEOUT")
	v.BindEnv("chimera.mission_queue", "SCRAPESHIFTER_CHIMERA_MISSION_QUEUE", "CHIMERA_MISSION_QUEUE")
	v.BindEnv("chimera.mission_dlq", "SCRAPESHIFTER_CHIMERA_MISSION_DLQ", "CHIMERA_MISSION_DLQ")
	v.BindEnv("chimera.brain_url", "SCRAPESHIFTER_CHIMERA_BRAIN_URL", "CHIMERA_BRAIN_HTTP_URL")
	v.BindEnv("alerts.webhook_url", "SCRAPESHIFTER_WEBHOOK_URL", "WEBHOOK_URL")
	v.BindEnv("sources.telnyx_api_key", "SCRAPESHIFTER_TELNYX_API_KEY", "TELNYX_API_KEY")
	v.BindEnv("sources.skip_trace_api_key", "SCRAPESHIFTER_SKIP_TRACE_API_KEY", "RAPIDAPI_KEY")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	// CHIMERA_STATION_TIMEOUT is documented as plain seconds ("120").
	if raw := v.GetString("chimera.station_timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			v.Set("chimera.station_timeout", (time.Duration(secs) * time.Second).String())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scrapeshifter")
	v.SetDefault("database.password", "scrapeshifter")
	v.SetDefault("database.database", "scrapeshifter")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Pipeline defaults
	v.SetDefault("pipeline.name", "")
	v.SetDefault("pipeline.budget_limit", 5.0)

	// Chimera defaults
	v.SetDefault("chimera.mission_queue", "chimera:missions")
	v.SetDefault("chimera.mission_dlq", "chimera:missions:dlq")
	v.SetDefault("chimera.station_timeout", "120s")
	v.SetDefault("chimera.brain_url", "")

	// Worker defaults
	v.SetDefault("worker.queue", "leads_to_enrich")
	v.SetDefault("worker.failed_queue", "failed_leads")
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.retry_base_delay", "5s")
	v.SetDefault("worker.pop_timeout", "10s")

	// Alerts defaults
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.timeout", "8s")

	// Source defaults
	v.SetDefault("sources.telnyx_api_key", "")
	v.SetDefault("sources.telnyx_timeout", "30s")
	v.SetDefault("sources.skip_trace_api_key", "")
	v.SetDefault("sources.skip_trace_url", "https://skip-tracing-working-api.p.rapidapi.com/search/bynamestate")
	v.SetDefault("sources.census_url", "https://api.census.gov/data/2021/acs/acs5")
}
