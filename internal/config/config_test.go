package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "dev", cfg.Server.Environment)

	assert.Equal(t, "", cfg.Pipeline.Name)
	assert.Equal(t, 5.0, cfg.Pipeline.BudgetLimit)

	assert.Equal(t, "chimera:missions", cfg.Chimera.MissionQueue)
	assert.Equal(t, 120*time.Second, cfg.Chimera.StationTimeout)
	assert.Equal(t, "", cfg.Chimera.BrainURL)

	assert.Equal(t, "leads_to_enrich", cfg.Worker.Queue)
	assert.Equal(t, "failed_leads", cfg.Worker.FailedQueue)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Worker.RetryBaseDelay)
}

func TestLoadPrefixedEnvOverride(t *testing.T) {
	t.Setenv("SCRAPESHIFTER_SERVER_PORT", "9090")
	t.Setenv("SCRAPESHIFTER_PIPELINE_BUDGET_LIMIT", "7.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 7.5, cfg.Pipeline.BudgetLimit)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://legacy:6379/2")
	t.Setenv("PIPELINE_NAME", "contact_only")
	t.Setenv("RAPIDAPI_KEY", "rk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://legacy:6379/2", cfg.Redis.URL)
	assert.Equal(t, "contact_only", cfg.Pipeline.Name)
	assert.Equal(t, "rk-test", cfg.Sources.SkipTraceAPIKey)
}

func TestStationTimeoutAcceptsBareSeconds(t *testing.T) {
	t.Setenv("CHIMERA_STATION_TIMEOUT", "90")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Chimera.StationTimeout)
}

func TestStationTimeoutAcceptsDurationString(t *testing.T) {
	t.Setenv("CHIMERA_STATION_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Chimera.StationTimeout)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "leads", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=leads sslmode=disable", c.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/leads?sslmode=disable", c.MigrateURL())

	c.URL = "postgres://elsewhere/leads"
	assert.Equal(t, "postgres://elsewhere/leads", c.DSN())
	assert.Equal(t, "postgres://elsewhere/leads", c.MigrateURL())
}

func TestRedisAddr(t *testing.T) {
	c := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", c.Addr())
}
