package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/meditrack-pos/internal/backend"
)

const defaultAddr = "127.0.0.1:8090"

// Config holds the terminal configuration, loadable from environment
// variables (POS_ prefix), flags, a .env file or YAML config files.
type Config struct {
	Addr        string `default:"127.0.0.1:8090" usage:"Local API listen address"`
	DatabaseURL string `usage:"PostgreSQL URL of the receipt journal; empty keeps receipts in memory" flag:"database-url"`
	Backend     backend.Config
	Scanner     ScannerConfig
	Notices     NoticesConfig
	Journal     JournalConfig
	CORS        CORSConfig
	Health      HealthConfig
	Graceful    GracefulConfig
}

// ScannerConfig controls scan input.
type ScannerConfig struct {
	Device      string        `default:"" usage:"Line-oriented scanner device path, '-' for stdin, empty to disable"`
	QuietWindow time.Duration `default:"1s" usage:"Quiescence window after an accepted scan" flag:"scanner-quiet-window"`
}

// NoticesConfig controls the cashier notice feed.
type NoticesConfig struct {
	Capacity int `default:"100" usage:"Notices kept for the display"`
}

// JournalConfig controls the in-memory receipt journal.
type JournalConfig struct {
	Capacity int `default:"1000" usage:"Receipts kept in memory when no database is configured"`
}

// CORSConfig controls Cross-Origin Resource Sharing for the display.
type CORSConfig struct {
	Origins          []string `usage:"Display origins allowed to call the API (\"*\" allows any)"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials" flag:"cors-credentials"`
}

// HealthConfig controls background probes.
type HealthConfig struct {
	Interval time.Duration `default:"10s" usage:"Probe interval" flag:"health-interval"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"1s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then environment variables and YAML config files,
// and applies platform defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // optional
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/meditrack-pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Backend.BaseURL == "":
		return errors.New("backend base url is required")
	case c.Backend.Timeout <= 0:
		return errors.New("backend timeout must be positive")
	case c.Scanner.QuietWindow < 0:
		return errors.New("scanner quiet window must not be negative")
	case c.Notices.Capacity <= 0:
		return errors.New("notice capacity must be positive")
	case c.Health.Interval <= 0:
		return errors.New("health interval must be positive")
	}
	return nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT to the POS_ settings.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "127.0.0.1:" + port
	}
}
