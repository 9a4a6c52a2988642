package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.RunAddress)
	assert.Equal(t, "", cfg.DatabaseURI)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 10.0, cfg.DefaultCommissionRate)
	assert.Equal(t, 15*time.Minute, cfg.IntentTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled)
	assert.False(t, cfg.AutoSyncOnApprove)
}

func TestNewConfigEnvAndFlags(t *testing.T) {
	t.Setenv("RUN_ADDRESS", ":9000")
	t.Setenv("DATABASE_URI", "postgres://env/db")
	t.Setenv("PAYOUTS_ENCRYPTION_KEY", strings.Repeat("ab", 32))
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PARTNERS_DEFAULT_COMMISSION_RATE", "12.5")
	t.Setenv("PAYMENTS_INTENT_TTL", "30s")
	t.Setenv("AUTH_JWT_SECRET", "env-secret")

	cfg, err := NewConfig([]string{"-d", "postgres://flag/db"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.RunAddress, "env overrides default")
	assert.Equal(t, "postgres://flag/db", cfg.DatabaseURI, "flag overrides env")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 12.5, cfg.DefaultCommissionRate)
	assert.Equal(t, 30*time.Second, cfg.IntentTTL)
}

func TestNewConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "carrental.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
partners:
  auto_sync_on_approve: true
  registration_fee: 499
kafka:
  enabled: true
  brokers: [b1:9092, b2:9092]
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := NewConfig(nil)
	require.NoError(t, err)
	assert.True(t, cfg.AutoSyncOnApprove)
	assert.Equal(t, 499.0, cfg.RegistrationFee)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
}

func TestNewConfigValidation(t *testing.T) {
	t.Run("database without encryption key", func(t *testing.T) {
		_, err := NewConfig([]string{"-d", "postgres://x/db"})
		assert.ErrorContains(t, err, "payouts.encryption_key")
	})
	t.Run("commission out of range", func(t *testing.T) {
		t.Setenv("PARTNERS_DEFAULT_COMMISSION_RATE", "120")
		_, err := NewConfig(nil)
		assert.ErrorContains(t, err, "default_commission_rate")
	})
	t.Run("secret required outside dev", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		_, err := NewConfig(nil)
		assert.ErrorContains(t, err, "jwt_secret")
	})
	t.Run("no dev secret with a database", func(t *testing.T) {
		t.Setenv("DATABASE_URI", "postgres://prod/db")
		t.Setenv("PAYOUTS_ENCRYPTION_KEY", strings.Repeat("ab", 32))
		cfg, err := NewConfig(nil)
		assert.ErrorContains(t, err, "jwt_secret")
		assert.Nil(t, cfg)
	})
	t.Run("unknown flag", func(t *testing.T) {
		_, err := NewConfig([]string{"-zzz"})
		assert.Error(t, err)
	})
}
