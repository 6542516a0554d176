package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// defaultMemorySeed fills the memory driver, which starts empty.
const defaultMemorySeed = "db/seed/seed.json"

// Config holds the complete application configuration, loadable from
// environment variables (TOPUP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (TOPUP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (TOPUP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Storage      StorageConfig
	Payment      PaymentConfig
	Sweep        SweepConfig
	Proof        ProofConfig
	VoucherIndex VoucherIndexConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StorageConfig selects the order store.
type StorageConfig struct {
	Driver   string `default:"postgres" usage:"Storage driver: postgres or memory"`
	SeedFile string `default:"" usage:"Rate table seed (JSON, optionally gzipped) applied at startup" flag:"seed-file"`
}

// PaymentConfig controls order payment deadlines.
type PaymentConfig struct {
	Window time.Duration `default:"10m" usage:"Time allowed to submit a payment proof"`
}

// SweepConfig controls the overdue order sweeper.
type SweepConfig struct {
	Interval  time.Duration `default:"20s" usage:"Interval between expiration sweeps"`
	BatchSize int           `default:"500" usage:"Orders failed per sweep statement" flag:"sweep-batch-size"`
}

// ProofConfig bounds payment proof uploads.
type ProofConfig struct {
	MinBytes int `default:"1024"    usage:"Smallest accepted proof" flag:"proof-min-bytes"`
	MaxBytes int `default:"5242880" usage:"Largest accepted proof" flag:"proof-max-bytes"`
}

// VoucherIndexConfig controls the voucher code bloom filter.
type VoucherIndexConfig struct {
	Refresh time.Duration `default:"1m" usage:"Voucher code index rebuild interval; 0 disables the index"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TOPUP",
		Files:     []string{"config.yaml", "/etc/topup/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set TOPUP_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
		if c.Storage.SeedFile == "" {
			c.Storage.SeedFile = defaultMemorySeed
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Payment.Window <= 0 {
		return errors.New("payment window must be positive")
	}
	if c.Proof.MaxBytes > 0 && c.Proof.MinBytes > c.Proof.MaxBytes {
		return errors.Errorf("proof min bytes %d exceed max bytes %d", c.Proof.MinBytes, c.Proof.MaxBytes)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's TOPUP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
