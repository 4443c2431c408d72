// Package config reads the server configuration from the environment,
// after an optional .env file has been loaded into it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string   `env:"PORT" env-default:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`

	Database Database
	Storage  Storage
	Template Template
	Gen      Generation
	Log      Log
}

type Database struct {
	Driver string `env:"DB_DRIVER" env-default:"sqlite"`
	Path   string `env:"DB_PATH" env-default:"docgen.db"`
	URL    string `env:"DATABASE_URL"`
}

type Storage struct {
	Driver  string `env:"STORAGE_DRIVER" env-default:"local"`
	Dir     string `env:"STORAGE_DIR" env-default:"generated"`
	BaseURL string `env:"STORAGE_BASE_URL" env-default:"http://localhost:8080/files"`
	Minio   Minio
}

type Minio struct {
	Endpoint      string `env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKey     string `env:"MINIO_ACCESS_KEY"`
	SecretKey     string `env:"MINIO_SECRET_KEY"`
	Bucket        string `env:"MINIO_BUCKET" env-default:"documents"`
	UseSSL        bool   `env:"MINIO_USE_SSL" env-default:"false"`
	PublicBaseURL string `env:"MINIO_PUBLIC_URL"`
}

type Template struct {
	FetchTimeout time.Duration `env:"TEMPLATE_FETCH_TIMEOUT" env-default:"15s"`
	MaxBytes     int64         `env:"TEMPLATE_MAX_BYTES" env-default:"20971520"`
	CacheTTL     time.Duration `env:"TEMPLATE_CACHE_TTL" env-default:"1h"`
}

type Generation struct {
	Timeout      time.Duration `env:"GEN_TIMEOUT" env-default:"1m"`
	MaxAttempts  int           `env:"GEN_MAX_ATTEMPTS" env-default:"3"`
	RetryBackoff time.Duration `env:"GEN_RETRY_BACKOFF" env-default:"2s"`
	StaleAfter   time.Duration `env:"GEN_STALE_AFTER" env-default:"10m"`
	SweepSpec    string        `env:"GEN_SWEEP_SPEC" env-default:"@every 1m"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"text"`
}

// Load reads envFiles (a missing file is not an error) and then the
// process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
			slog.Debug("env file not found", "file", f)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local":
	case "minio":
		if c.Storage.Minio.AccessKey == "" || c.Storage.Minio.SecretKey == "" {
			return errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when STORAGE_DRIVER=minio")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Gen.MaxAttempts < 1 {
		return fmt.Errorf("GEN_MAX_ATTEMPTS must be at least 1, got %d", c.Gen.MaxAttempts)
	}
	// a sweep must not race a run that is still inside its retry budget
	if budget := c.Gen.RetryBudget(); c.Gen.StaleAfter <= budget {
		return fmt.Errorf("GEN_STALE_AFTER (%s) must exceed the retry budget (%s)", c.Gen.StaleAfter, budget)
	}
	return nil
}

// RetryBudget is the longest a single scheduled run can take: every
// attempt timing out plus every backoff wait.
func (g Generation) RetryBudget() time.Duration {
	total := time.Duration(g.MaxAttempts) * g.Timeout
	for i := 1; i < g.MaxAttempts; i++ {
		total += g.RetryBackoff << (i - 1)
	}
	return total
}
