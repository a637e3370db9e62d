package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/pkg/config"
)

const minimalYAML = `
environment: test
market:
  tokens:
    - address: "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82"
      symbol: CAKE
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 60, cfg.Market.HistoricalDataDays)
	assert.Equal(t, 200, cfg.Market.HistoryRetentionLimit)
	assert.Equal(t, 5, cfg.Market.SignalHistoryLength)
	assert.Equal(t, []int{1, 5, 9, 13, 17, 21}, cfg.Forecast.AllowedHours)
	assert.Equal(t, 4*time.Hour, cfg.Forecast.Horizon)
	assert.InDelta(t, 0.02, cfg.Forecast.TargetMargin, 1e-12)
	assert.Equal(t, 98, cfg.Accuracy.ExpectedPairCount)
	assert.Equal(t, "Africa/Lagos", cfg.Accuracy.LabelTimezone)

	quote, ok := cfg.QuoteTokenAddress()
	require.True(t, ok)
	assert.Equal(t, "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", quote)
}

func TestMonitoredAddressesAreLowercase(t *testing.T) {
	cfg, err := config.Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"}, cfg.MonitoredAddresses())
}

func TestMinHistoryLength(t *testing.T) {
	cfg, err := config.Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.MinHistoryLength())

	cfg.Market.HistoryRetentionLimit = 10
	assert.Equal(t, 27, cfg.MinHistoryLength(), "macd slow + 1 dominates")

	cfg.Forecast.LSTMLookback = 40
	assert.Equal(t, 41, cfg.MinHistoryLength())
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"no tokens": `environment: test`,
		"bad address": `
market:
  tokens:
    - address: "not-an-address"
      symbol: BAD
`,
		"postgres without dsn": minimalYAML + `
storage:
  driver: postgres
`,
		"unknown driver": minimalYAML + `
storage:
  driver: mongo
`,
		"kafka without brokers": minimalYAML + `
kafka:
  enabled: true
  brokers: []
`,
		"bad hour": minimalYAML + `
forecast:
  allowed_hours: [1, 25]
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	t.Setenv("ALCHEMY_API_KEY", "alchemy-key")
	t.Setenv("SUBGRAPH_API_KEY", "graph-key")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PORT", "9090")

	cfg, err := config.LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "alchemy-key", cfg.Sources.Alchemy.APIKey)
	assert.Equal(t, "graph-key", cfg.Sources.Subgraph.APIKey)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
