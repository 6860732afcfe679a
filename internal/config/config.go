package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
		Format string `yaml:"format" validate:"omitempty,oneof=json pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Assessment struct {
		TTL string `yaml:"ttl"`
	} `yaml:"assessment"`
	Timer struct {
		TTL       string `yaml:"ttl"`
		ReasonTTL string `yaml:"reason_ttl"`
	} `yaml:"timer"`
	Integrity struct {
		RecheckInterval string `yaml:"recheck_interval"`
	} `yaml:"integrity"`
	Proctor struct {
		LookAwayThreshold string  `yaml:"look_away_threshold"`
		DisqualifyAfter   string  `yaml:"disqualify_after"`
		StaleAfter        string  `yaml:"stale_after"`
		MaxViolations     int     `yaml:"max_violations" validate:"gte=0"`
		MinEyeRatio       float64 `yaml:"min_eye_ratio" validate:"gte=0,lte=1"`
		MaxEyeRatio       float64 `yaml:"max_eye_ratio" validate:"gte=0,lte=1"`
	} `yaml:"proctor"`
	Recommend struct {
		Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"recommend"`
	Events struct {
		Brokers       []string `yaml:"brokers" validate:"dive,hostname_port"`
		Topic         string   `yaml:"topic"`
		ConsumerGroup string   `yaml:"consumer_group"`
		Audit         bool     `yaml:"audit"`
	} `yaml:"events"`
}

// Load reads YAML config from path, applies environment overrides (a .env
// file in the working directory is honoured) and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Log.Level, "LOG_LEVEL")
	override(&c.Log.Format, "LOG_FORMAT")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.Postgres.URL, "DATABASE_URL")
	override(&c.Recommend.Endpoint, "RECOMMEND_ENDPOINT")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Events.Brokers = strings.Split(v, ",")
	}
}

// Validate checks field constraints and duration syntax.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	durations := map[string]string{
		"redis.ttl":                   c.Redis.TTL,
		"assessment.ttl":              c.Assessment.TTL,
		"timer.ttl":                   c.Timer.TTL,
		"timer.reason_ttl":            c.Timer.ReasonTTL,
		"integrity.recheck_interval":  c.Integrity.RecheckInterval,
		"proctor.look_away_threshold": c.Proctor.LookAwayThreshold,
		"proctor.disqualify_after":    c.Proctor.DisqualifyAfter,
		"proctor.stale_after":         c.Proctor.StaleAfter,
		"recommend.timeout":           c.Recommend.Timeout,
	}
	for field, raw := range durations {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: %s: %w", field, err)
		}
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
