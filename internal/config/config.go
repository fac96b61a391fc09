package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Persistence.
	DatabaseDriver string // sqlite or postgres
	SQLitePath     string
	DatabaseURL    string

	// Notification transport.
	Notifier         string // kafka or log
	KafkaBrokers     []string
	KafkaNotifyTopic string

	// Open-Meteo weather source.
	OpenMeteoURL       string
	OpenMeteoMarineURL string
	WeatherTimeout     time.Duration
	WeatherCacheTTL    time.Duration
	WeatherCacheSize   int

	// Hazard classifier. Empty URL disables narrative analysis.
	ClassifierURL     string
	ClassifierTimeout time.Duration

	// NWS bulletins.
	NWSURL     string
	NWSEnabled bool

	// Schedule.
	DigestHour           int
	PollInterval         time.Duration
	ThresholdInterval    time.Duration
	ScanWindow           time.Duration
	ThresholdWindow      time.Duration
	HazardProbabilityBar float64
	ScanWorkers          int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseDriver: sharedcfg.EnvOrDefault("DATABASE_DRIVER", "sqlite"),
		SQLitePath:     sharedcfg.EnvOrDefault("SQLITE_PATH", "data/marine-alerts.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		Notifier:         sharedcfg.EnvOrDefault("NOTIFIER", "log"),
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaNotifyTopic: sharedcfg.EnvOrDefault("KAFKA_NOTIFY_TOPIC", "marine-notifications"),

		OpenMeteoURL:       sharedcfg.EnvOrDefault("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
		OpenMeteoMarineURL: sharedcfg.EnvOrDefault("OPEN_METEO_MARINE_URL", "https://marine-api.open-meteo.com/v1/marine"),

		ClassifierURL: os.Getenv("CLASSIFIER_URL"),

		NWSURL:     sharedcfg.EnvOrDefault("NWS_URL", "https://api.weather.gov"),
		NWSEnabled: sharedcfg.EnvOrDefault("NWS_ENABLED", "true") == "true",
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"WEATHER_TIMEOUT", "10s", &cfg.WeatherTimeout},
		{"WEATHER_CACHE_TTL", "5m", &cfg.WeatherCacheTTL},
		{"CLASSIFIER_TIMEOUT", "30s", &cfg.ClassifierTimeout},
		{"POLL_INTERVAL", "5m", &cfg.PollInterval},
		{"THRESHOLD_INTERVAL", "10m", &cfg.ThresholdInterval},
		{"SCAN_WINDOW", "2h", &cfg.ScanWindow},
		{"THRESHOLD_WINDOW", "1h", &cfg.ThresholdWindow},
	}
	for _, d := range durations {
		v, err := parsePositiveDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if cfg.WeatherCacheSize, err = parseIntInRange("WEATHER_CACHE_SIZE", 256, 1, 100000); err != nil {
		return nil, err
	}
	if cfg.DigestHour, err = parseIntInRange("DIGEST_HOUR", 6, 0, 23); err != nil {
		return nil, err
	}
	if cfg.ScanWorkers, err = parseIntInRange("SCAN_WORKERS", 4, 1, 64); err != nil {
		return nil, err
	}
	if cfg.HazardProbabilityBar, err = parseProbability("HAZARD_PROBABILITY_BAR", 0.7); err != nil {
		return nil, err
	}

	switch cfg.DatabaseDriver {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required when DATABASE_DRIVER is sqlite")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when DATABASE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: want sqlite or postgres", cfg.DatabaseDriver)
	}

	switch cfg.Notifier {
	case "log":
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when NOTIFIER is kafka")
		}
		if cfg.KafkaNotifyTopic == "" {
			return nil, errors.New("KAFKA_NOTIFY_TOPIC is required when NOTIFIER is kafka")
		}
	default:
		return nil, fmt.Errorf("invalid NOTIFIER %q: want kafka or log", cfg.Notifier)
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntInRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}

func parseProbability(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p <= 0 || p > 1 {
		return 0, fmt.Errorf("invalid %s: must be in (0, 1]", key)
	}
	return p, nil
}
