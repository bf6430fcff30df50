package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultFeedURL = "https://data.ndovloket.nl/ns/ns-latest.zip"

type Config struct {
	DatabaseURL string `validate:"required"`
	DBMaxConns  int    `validate:"gte=1"`

	Workers    int     `validate:"gte=1,lte=64"`
	CommitRate float64 `validate:"gte=0"`

	InputPath string
	FeedURL   string `validate:"required,url"`

	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string `validate:"required"`
	LogNATSSubjects   bool

	MetricsAddr    string `validate:"omitempty,hostname_port"`
	PushgatewayURL string `validate:"omitempty,url"`

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
}

// File is the optional YAML config file. Its values are defaults that
// environment variables override.
type File struct {
	DatabaseURL string  `yaml:"database_url"`
	DBMaxConns  int     `yaml:"db_max_conns"`
	Workers     int     `yaml:"workers"`
	CommitRate  float64 `yaml:"commit_rate"`
	InputPath   string  `yaml:"input_path"`
	FeedURL     string  `yaml:"feed_url"`
	NATS        struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
		LogSubjects   bool   `yaml:"log_subjects"`
	} `yaml:"nats"`
	MetricsAddr    string `yaml:"metrics_addr"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Log            struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// ReadFile decodes the YAML file at path. An absent config.yml is not an
// error; an absent file named explicitly via CONFIG_FILE is.
func ReadFile(path string) (*File, error) {
	f := &File{}
	explicit := path != ""
	if !explicit {
		path = "config.yml"
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return f, nil
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	file, err := ReadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN / file, else build from PG* or DB_* vars
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"), file.DatabaseURL)
	if cfg.DatabaseURL == "" {
		host := firstNonEmpty(os.Getenv("PGHOST"), os.Getenv("DB_HOST"), "127.0.0.1")
		port := firstNonEmpty(os.Getenv("PGPORT"), os.Getenv("DB_PORT"), "5432")
		user := firstNonEmpty(os.Getenv("PGUSER"), os.Getenv("DB_USER"), "postgres")
		pass := firstNonEmpty(os.Getenv("PGPASSWORD"), os.Getenv("DB_PASSWORD"))
		name := firstNonEmpty(os.Getenv("PGDATABASE"), os.Getenv("DB_NAME"))
		if name == "" {
			return nil, fmt.Errorf("PGDATABASE, DB_NAME or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, name, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, name, sslmode)
		}
	}

	if cfg.Workers, err = intEnv("WORKERS", orDefault(file.Workers, 5)); err != nil {
		return nil, err
	}
	if cfg.DBMaxConns, err = intEnv("DB_MAX_CONNS", orDefault(file.DBMaxConns, cfg.Workers+1)); err != nil {
		return nil, err
	}
	cfg.CommitRate = file.CommitRate
	if v := os.Getenv("COMMIT_RATE"); v != "" {
		if cfg.CommitRate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid COMMIT_RATE: %q", v)
		}
	}

	cfg.InputPath = getenvDefault("INPUT_PATH", file.InputPath)
	cfg.FeedURL = getenvDefault("FEED_URL", firstNonEmpty(file.FeedURL, DefaultFeedURL))

	// Empty NATS_URL disables outcome publishing.
	cfg.NATSURL = getenvDefault("NATS_URL", file.NATS.URL)
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", firstNonEmpty(file.NATS.SubjectPrefix, "timetable.import"))
	cfg.LogNATSSubjects = file.NATS.LogSubjects
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", file.MetricsAddr)
	cfg.PushgatewayURL = getenvDefault("PUSHGATEWAY_URL", file.PushgatewayURL)

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", firstNonEmpty(file.Log.Level, "info")))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", firstNonEmpty(file.Log.Format, "console")))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints; call again after applying flag overrides.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func orDefault(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
