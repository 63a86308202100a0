package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Source names accepted in TARIFF_SOURCES.
const (
	SourcePostgres  = "postgres"
	SourceMongo     = "mongo"
	SourceRemote    = "remote"
	SourceFlatfile  = "flatfile"
	SourceSimulated = "simulated"
)

// Config is the runtime configuration of the binaries, read from the
// environment.
type Config struct {
	Port string `validate:"required,numeric"`

	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	TariffAPIURL   string `validate:"omitempty,url"`
	TariffAPIToken string
	TariffCSV      string

	// TariffCSVService is the service the CSV export is priced for.
	TariffCSVService string `validate:"required"`

	// Sources is the lookup order.
	Sources []string `validate:"min=1,dive,oneof=postgres mongo remote flatfile simulated"`

	SourceTimeout   time.Duration `validate:"gt=0"`
	PriceCacheTTL   time.Duration `validate:"gt=0"`
	ListingCacheTTL time.Duration `validate:"gt=0"`
	SweepInterval   time.Duration `validate:"gte=0"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	KafkaBrokers []string `validate:"dive,hostname_port"`
	KafkaTopic   string   `validate:"required_with=KafkaBrokers"`
	KafkaGroupID string   `validate:"required_with=KafkaBrokers"`

	// FuzzyThreshold enables typo-tolerant matching when above zero.
	FuzzyThreshold float64 `validate:"gte=0,lte=1"`
}

// Load reads the environment. Unparseable values fall back to defaults;
// Validate reports what is still wrong.
func Load() Config {
	cfg := Config{
		Port:             getenv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    getenv("MONGO_DATABASE", "deliverycost"),
		TariffAPIURL:     os.Getenv("TARIFF_API_URL"),
		TariffAPIToken:   os.Getenv("TARIFF_API_TOKEN"),
		TariffCSV:        os.Getenv("TARIFF_CSV"),
		TariffCSVService: strings.ToLower(getenv("TARIFF_CSV_SERVICE", "yalidine")),
		SourceTimeout:    duration("SOURCE_TIMEOUT", 2*time.Second),
		PriceCacheTTL:    duration("PRICE_CACHE_TTL", 5*time.Minute),
		ListingCacheTTL:  duration("LISTING_CACHE_TTL", 2*time.Minute),
		SweepInterval:    duration("CACHE_SWEEP_INTERVAL", time.Minute),
		LogLevel:         strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getenv("LOG_FORMAT", "json")),
		KafkaBrokers:     list(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getenv("KAFKA_TOPIC", "tariff.updated"),
		KafkaGroupID:     getenv("KAFKA_GROUP_ID", "deliverycost-api"),
	}
	if f, err := strconv.ParseFloat(os.Getenv("FUZZY_THRESHOLD"), 64); err == nil {
		cfg.FuzzyThreshold = f
	}
	cfg.Sources = list(strings.ToLower(os.Getenv("TARIFF_SOURCES")))
	if len(cfg.Sources) == 0 {
		cfg.Sources = cfg.defaultSources()
	}
	return cfg
}

// defaultSources orders every configured store by priority and ends with
// the simulated source.
func (c Config) defaultSources() []string {
	var out []string
	if c.DatabaseURL != "" {
		out = append(out, SourcePostgres)
	}
	if c.MongoURI != "" {
		out = append(out, SourceMongo)
	}
	if c.TariffAPIURL != "" {
		out = append(out, SourceRemote)
	}
	if c.TariffCSV != "" {
		out = append(out, SourceFlatfile)
	}
	return append(out, SourceSimulated)
}

// Validate checks field formats and that every selected source has what it
// needs to connect.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	need := func(source, value, env string) {
		if slices.Contains(c.Sources, source) && strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("source %s needs %s", source, env))
		}
	}
	need(SourcePostgres, c.DatabaseURL, "DATABASE_URL")
	need(SourceMongo, c.MongoURI, "MONGO_URI")
	need(SourceRemote, c.TariffAPIURL, "TARIFF_API_URL")
	need(SourceFlatfile, c.TariffCSV, "TARIFF_CSV")
	for i, s := range c.Sources {
		if slices.Contains(c.Sources[:i], s) {
			errs = append(errs, fmt.Errorf("source %s listed twice", s))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return d
}

func list(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
