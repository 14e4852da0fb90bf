package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Database struct {
		// "sqlite" or "postgres"
		Driver      string `env:"DB_DRIVER" envDefault:"sqlite"`
		Path        string `env:"DB_PATH" envDefault:"database/rentscout.db"`
		PostgresDSN string `env:"POSTGRES_DSN"`
	}

	Fetch struct {
		// "chrome" renders with a headless browser, "http" fetches static HTML
		Renderer    string        `env:"RENDERER" envDefault:"chrome"`
		Headless    bool          `env:"HEADLESS" envDefault:"true"`
		PageTimeout time.Duration `env:"PAGE_TIMEOUT" envDefault:"60s"`
		MaxRetries  int           `env:"FETCH_MAX_RETRIES" envDefault:"3"`

		// Per session; 0 disables the limiter
		RequestsPerSecond float64  `env:"REQUESTS_PER_SECOND" envDefault:"0"`
		UserAgents        []string `env:"USER_AGENTS" envSeparator:"|"`
	}

	Pacing struct {
		ListingMin     time.Duration `env:"PACE_LISTING_MIN" envDefault:"1s"`
		ListingMax     time.Duration `env:"PACE_LISTING_MAX" envDefault:"2s"`
		BatchEvery     int           `env:"PACE_BATCH_EVERY" envDefault:"5"`
		BatchMin       time.Duration `env:"PACE_BATCH_MIN" envDefault:"3s"`
		BatchMax       time.Duration `env:"PACE_BATCH_MAX" envDefault:"6s"`
		PageMin        time.Duration `env:"PACE_PAGE_MIN" envDefault:"2s"`
		PageMax        time.Duration `env:"PACE_PAGE_MAX" envDefault:"4s"`
		BetweenRegions time.Duration `env:"PACE_REGION" envDefault:"5s"`
	}

	Run struct {
		Workers       int    `env:"WORKERS" envDefault:"1"`
		IntervalHours int    `env:"RUN_INTERVAL_HOURS" envDefault:"24"`
		RetentionDays int    `env:"RETENTION_DAYS" envDefault:"7"`
		OnStartup     bool   `env:"RUN_ON_STARTUP" envDefault:"true"`
		Once          bool   `env:"RUN_ONCE" envDefault:"false"`
		RegionsFile   string `env:"REGIONS_FILE" envDefault:"config/regions.yaml"`
		SnapshotPath  string `env:"SNAPSHOT_PATH" envDefault:"data/listings.json"`
		GeoJSONPath   string `env:"GEOJSON_PATH" envDefault:"data/listings.geojson"`
		QueueSize     int    `env:"QUEUE_SIZE" envDefault:"100"`

		// How long a cancelled run may keep flushing queued listings
		DrainTimeout time.Duration `env:"DRAIN_TIMEOUT" envDefault:"30s"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Maximum number of listings to accumulate before committing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"10"`

		// Maximum time to wait before committing a non-full batch (in seconds)
		MaxBatchWaitTime int `env:"BATCH_WAIT_TIME" envDefault:"30"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	APIPort string `env:"API_PORT" envDefault:"5250"`
}

// MaxWorkers bounds concurrent region pipelines.
const MaxWorkers = 8

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes out-of-range values and rejects unusable ones.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Fetch.Renderer {
	case "chrome", "http":
	default:
		return fmt.Errorf("unsupported RENDERER %q", c.Fetch.Renderer)
	}

	if c.Run.Workers < 1 {
		c.Run.Workers = 1
	}
	if c.Run.Workers > MaxWorkers {
		c.Run.Workers = MaxWorkers
	}
	if c.Fetch.MaxRetries < 1 {
		c.Fetch.MaxRetries = 1
	}
	if c.BatchProcessing.MaxBatchSize < 1 {
		c.BatchProcessing.MaxBatchSize = 1
	}
	if c.Run.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.Run.RetentionDays)
	}
	return nil
}

// Retention is the soft-delete window for listings not seen again.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Run.RetentionDays) * 24 * time.Hour
}
