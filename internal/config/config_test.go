package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-fuel/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "STORE", "JWT_EXPIRY", "YARD_MATCH_WINDOW", "RETRY_CONCURRENCY", "MQTT_BROKER"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMongo, cfg.Store)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, time.Duration(0), cfg.YardMatchWindow)
	assert.Equal(t, 4, cfg.RetryConcurrency)
	assert.Empty(t, cfg.MQTTBroker)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("STORE", "Memory")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("YARD_MATCH_WINDOW", "720h")
	t.Setenv("RETRY_CONCURRENCY", "8")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 720*time.Hour, cfg.YardMatchWindow)
	assert.Equal(t, 8, cfg.RetryConcurrency)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown store", "STORE", "postgres"},
		{"bad duration", "JWT_EXPIRY", "soon"},
		{"negative window", "YARD_MATCH_WINDOW", "-1h"},
		{"bad concurrency", "RETRY_CONCURRENCY", "many"},
		{"zero concurrency", "RETRY_CONCURRENCY", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MONGO_DB", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MONGO_DB=from_dotenv\n"), 0o600))
	// godotenv never overrides variables already set, so start from unset
	require.NoError(t, os.Unsetenv("MONGO_DB"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv", cfg.MongoDB)
	require.NoError(t, os.Unsetenv("MONGO_DB"))
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `
routes:
  - destination: DAR
    total_liters: 2400
    going_plan:
      dar_yard: 550
      mbeya_going: 450
      zambia_going: 600
    return_plan:
      zambia_return: 400
      tunduma_return: 100
      mbeya_return: 400
truck_batches:
  - suffix: DXY
    extra_liters: 100
stations:
  - name: NAKONDE
    going_checkpoint: tdm_going
    return_checkpoint: tunduma_return
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	set, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, set.Routes, 1)
	assert.Equal(t, 2400.0, set.Routes[0].TotalLiters)
	assert.Equal(t, 550.0, set.Routes[0].GoingPlan[models.CheckpointDarYard])
	assert.Equal(t, 100.0, set.Routes[0].ReturnPlan[models.CheckpointTundumaReturn])
	require.Len(t, set.Batches, 1)
	assert.Equal(t, "DXY", set.Batches[0].Suffix)
	require.Len(t, set.Stations, 1)
	assert.Equal(t, models.CheckpointTdmGoing, set.Stations[0].GoingCheckpoint)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("routes: [unterminated"), 0o600))
	_, err = LoadSeed(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "json")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = NewLogger("nonsense", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
