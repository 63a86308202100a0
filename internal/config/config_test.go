package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DATABASE_URL", "MONGO_URI", "MONGO_DATABASE",
	"TARIFF_API_URL", "TARIFF_API_TOKEN", "TARIFF_CSV", "TARIFF_CSV_SERVICE",
	"TARIFF_SOURCES", "SOURCE_TIMEOUT", "PRICE_CACHE_TTL", "LISTING_CACHE_TTL",
	"CACHE_SWEEP_INTERVAL", "LOG_LEVEL", "LOG_FORMAT",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_GROUP_ID", "FUZZY_THRESHOLD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{SourceSimulated}, cfg.Sources)
	assert.Equal(t, 2*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PriceCacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.ListingCacheTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "yalidine", cfg.TariffCSVService)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Zero(t, cfg.FuzzyThreshold)
	require.NoError(t, cfg.Validate())
}

func TestDefaultSourcesFollowConfiguredStores(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/deliverycost")
	t.Setenv("TARIFF_CSV", "/etc/deliverycost/yalidine.csv")

	cfg := Load()
	assert.Equal(t, []string{SourcePostgres, SourceFlatfile, SourceSimulated}, cfg.Sources)
	require.NoError(t, cfg.Validate())
}

func TestExplicitSourcesAndParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARIFF_SOURCES", " Remote , simulated ")
	t.Setenv("TARIFF_API_URL", "https://tariffs.example.dz")
	t.Setenv("SOURCE_TIMEOUT", "750ms")
	t.Setenv("PRICE_CACHE_TTL", "not-a-duration")
	t.Setenv("FUZZY_THRESHOLD", "0.8")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg := Load()
	assert.Equal(t, []string{SourceRemote, SourceSimulated}, cfg.Sources)
	assert.Equal(t, 750*time.Millisecond, cfg.SourceTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PriceCacheTTL)
	assert.InDelta(t, 0.8, cfg.FuzzyThreshold, 1e-9)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "tariff.updated", cfg.KafkaTopic)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown source", map[string]string{"TARIFF_SOURCES": "redis"}, "Sources"},
		{"postgres without url", map[string]string{"TARIFF_SOURCES": "postgres"}, "DATABASE_URL"},
		{"mongo without uri", map[string]string{"TARIFF_SOURCES": "mongo,simulated"}, "MONGO_URI"},
		{"flatfile without path", map[string]string{"TARIFF_SOURCES": "flatfile"}, "TARIFF_CSV"},
		{"duplicate source", map[string]string{"TARIFF_SOURCES": "simulated,simulated"}, "listed twice"},
		{"threshold above one", map[string]string{"FUZZY_THRESHOLD": "1.5"}, "FuzzyThreshold"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LogLevel"},
		{"bad port", map[string]string{"PORT": "http"}, "Port"},
		{"bad api url", map[string]string{"TARIFF_API_URL": "::nope"}, "TariffAPIURL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			err := Load().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
