package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWithoutEnvFile(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("STATS_CACHE_TTL", "not-a-duration")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 2000, cfg.Statistics.MinYear)
	assert.Equal(t, 2100, cfg.Statistics.MaxYear)
	assert.Equal(t, 4, cfg.Statistics.RebuildWorkers)
	assert.Equal(t, time.Hour, cfg.Statistics.CacheTTL)
	assert.False(t, cfg.Statistics.RebuildOnStartup)
}

func TestLoadConfig_StatisticsOverrides(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())
	t.Setenv("STATS_CACHE_TTL", "15m")
	t.Setenv("STATS_REBUILD_WORKERS", "8")
	t.Setenv("STATS_REBUILD_ON_STARTUP", "true")
	t.Setenv("DB_AUTO_MIGRATE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Statistics.CacheTTL)
	assert.Equal(t, 8, cfg.Statistics.RebuildWorkers)
	assert.True(t, cfg.Statistics.RebuildOnStartup)
	assert.True(t, cfg.DB.AutoMigrate)
}
