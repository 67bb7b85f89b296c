package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 30, cfg.Database.MaxOpenConns())
	assert.Equal(t, 300*time.Second, cfg.Security.NegotiationTokenTTL)
	assert.True(t, cfg.Business.VIPPriceThreshold.Equal(decimal.NewFromInt(50)))
	assert.Contains(t, cfg.Runtime.Cities, "London")
	require.Contains(t, cfg.Runtime.Jobs, "cleanup_inactive_device_tokens")
	assert.False(t, *cfg.Runtime.Jobs["cleanup_inactive_device_tokens"].Enabled)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_POOL_SIZE", "4")
	t.Setenv("DB_MAX_OVERFLOW", "1")
	t.Setenv("JOB_TIMEOUT", "45s")
	t.Setenv("VIP_PRICE_THRESHOLD", "80.50")
	t.Setenv("ASYNC_DATABASE_URL", "postgres://async")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Database.MaxOpenConns())
	assert.Equal(t, "postgres://async", cfg.Database.DSN())
	assert.Equal(t, 45*time.Second, cfg.Scheduler.JobTimeout)
	assert.Equal(t, "80.5", cfg.Business.VIPPriceThreshold.String())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("DB_POOL_SIZE", "not-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ThresholdOrdering(t *testing.T) {
	t.Setenv("VIP_PRICE_THRESHOLD", "300")
	t.Setenv("SUPER_VIP_PRICE_THRESHOLD", "100")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STRIPE_SECRET_KEY", "sk_live_x")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("NEGOTIATION_TOKEN_SECRET", "n")
	t.Setenv("IMAGE_ACCESS_SECRET", "i")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Server.IsProduction())
}

func TestLoad_CitiesFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cities: [Dublin, Cork]\njobs:\n  send_payment_reminders:\n    interval: 30m\n"), 0o600))
	t.Setenv("CITIES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Dublin", "Cork"}, cfg.Runtime.Cities)
	assert.Equal(t, 30*time.Minute, cfg.Runtime.Jobs["send_payment_reminders"].Interval)
}

func TestLoad_CitiesFileErrors(t *testing.T) {
	t.Setenv("CITIES_FILE", "/does/not/exist.yaml")
	_, err := Load()
	assert.Error(t, err)

	orig := readFile
	t.Cleanup(func() { readFile = orig })
	readFile = func(string) ([]byte, error) { return []byte("cities: []"), nil }
	_, err = Load()
	assert.Error(t, err)

	readFile = func(string) ([]byte, error) { return nil, errors.New("io") }
	_, err = Load()
	assert.Error(t, err)
}

func TestParseRuntime_Malformed(t *testing.T) {
	_, err := ParseRuntime([]byte("cities: {"))
	assert.Error(t, err)
}
