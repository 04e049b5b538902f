package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
  claim_lock_ttl: 2h
  restore_marker_ttl: 48h
  default_payment_timeout: 30m
  schedule_retry:
    attempts: 7
    backoff: 50ms
infra:
  redis:
    addrs: "r1:6379,r2:6379"
  kafka:
    brokers: ["k1:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 2*time.Hour, cfg.App.ClaimLockTTL)
	assert.Equal(t, 30*time.Minute, cfg.App.DefaultPaymentTimeout)
	assert.EqualValues(t, 7, cfg.App.ScheduleRetry.Attempts)
	assert.Equal(t, 50*time.Millisecond, cfg.App.ScheduleRetry.Backoff)
	assert.Equal(t, "r1:6379,r2:6379", cfg.Infra.Redis.Addrs)
	assert.Equal(t, []string{"k1:9092"}, cfg.Infra.Kafka.Brokers)
	// 文件中未出现的字段保持默认值
	assert.Equal(t, "ticket-compensation-topic", cfg.Infra.Kafka.CompensationTopic)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("NACOS_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "db.internal", cfg.Infra.MySQL.Host)
	assert.True(t, cfg.Infra.Nacos.Enabled)

	t.Setenv("HTTP_PORT", "not-a-port")
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateClaimLockTTL(t *testing.T) {
	path := writeConfig(t, `
app:
  claim_lock_ttl: 10m
  default_payment_timeout: 15m
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "claim_lock_ttl")
}

func TestValidateRestoreMarkerTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.RestoreMarkerTTL = 30 * time.Minute
	assert.ErrorContains(t, cfg.Validate(), "restore_marker_ttl")
}

func TestValidateRetryBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.ConsumerRetry.Backoff = 0
	assert.ErrorContains(t, cfg.Validate(), "consumer_retry")
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.App.ClaimLockTTL)
	assert.Equal(t, 168*time.Hour, cfg.App.RestoreMarkerTTL)
	assert.Equal(t, "ticket-compensation-topic-dlt", cfg.Infra.Kafka.DLTTopic)
	assert.False(t, cfg.Infra.Nacos.Enabled)
}

func TestGetCurrentConfig(t *testing.T) {
	SetCurrentConfig(nil)
	assert.Equal(t, "ticket-service", GetCurrentConfig().App.Name)

	cfg := DefaultConfig()
	cfg.App.Name = "custom"
	SetCurrentConfig(cfg)
	t.Cleanup(func() { SetCurrentConfig(nil) })
	assert.Equal(t, "custom", GetCurrentConfig().App.Name)
}
