package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// Save current env and restore later
	origHost := os.Getenv("DB_HOST")
	defer os.Setenv("DB_HOST", origHost)

	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_MAX_OPEN_CONNS", "20")
	os.Setenv("PROCESSING_MAX_RETRIES", "5")
	os.Setenv("RETRIEVAL_MIN_SCORE", "0.4")
	os.Setenv("RETRY_SWEEP_INTERVAL_SEC", "60")
	defer func() {
		os.Unsetenv("DB_MAX_OPEN_CONNS")
		os.Unsetenv("PROCESSING_MAX_RETRIES")
		os.Unsetenv("RETRIEVAL_MIN_SCORE")
		os.Unsetenv("RETRY_SWEEP_INTERVAL_SEC")
	}()

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Processing.MaxRetries)
	assert.Equal(t, 0.4, cfg.Retrieval.MinScore)
	assert.Equal(t, time.Minute, cfg.Processing.SweepInterval)
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 3, cfg.Processing.MaxRetries)
	assert.Equal(t, 1_000_000, cfg.Processing.MaxContentSize)
	assert.Equal(t, 15*time.Minute, cfg.Processing.SweepInterval)
	assert.Equal(t, 0.25, cfg.Retrieval.RelativeMargin)
	assert.Equal(t, 5, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 50, cfg.Retrieval.SearchTopK)
	assert.Equal(t, "sentence", cfg.Chunking.SplitBy)
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvFloat(t *testing.T) {
	key := "TEST_FLOAT_VAR"

	os.Setenv(key, "0.5")
	assert.Equal(t, 0.5, getEnvFloat(key, 0.25))

	os.Setenv(key, "invalid")
	assert.Equal(t, 0.25, getEnvFloat(key, 0.25))

	os.Unsetenv(key)
	assert.Equal(t, 0.25, getEnvFloat(key, 0.25))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"

	os.Setenv(key, "30")
	assert.Equal(t, 30*time.Second, getEnvDuration(key, time.Minute))

	os.Setenv(key, "-5")
	assert.Equal(t, time.Minute, getEnvDuration(key, time.Minute))

	os.Unsetenv(key)
	assert.Equal(t, time.Minute, getEnvDuration(key, time.Minute))
}
