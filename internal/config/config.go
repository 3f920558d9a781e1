// Package config handles runtime settings for the uploader: defaults,
// environment overlay, and command-line flags, applied in that order.
package config

import "time"

// Config holds the pipeline's runtime settings.
//
// Fields:
//   - UserID: the creator account uploads are attributed to.
//   - CatalogDSN: Postgres DSN for the media catalog; empty disables the
//     catalog (no duplicate checks against the library).
//   - S3BaseEndpoint: set for MinIO-style backends; empty means local
//     filesystem storage at LocalStoragePath.
//   - QuotaCeilingBytes: the fixed byte budget for one upload batch.
//   - Concurrency: in-flight transfers; 1 keeps the queue strictly
//     sequential.
type Config struct {
	UserID string

	CatalogDSN string

	S3Bucket         string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3BaseEndpoint   string
	LocalStoragePath string

	QuotaCeilingBytes int64
	MaxQueueFiles     int
	Concurrency       int64
	MaxRetries        uint64
	SignedURLTTL      time.Duration

	MetricsPort string
	Dev         bool

	// OnDuplicate and OnQuota preselect the dialog answers for
	// non-interactive runs: drop|keep-both|abort and accept|abort.
	OnDuplicate string
	OnQuota     string

	// Paths are the positional arguments: files and directories to queue.
	Paths []string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.UserID = "dev-user"
	c.CatalogDSN = ""
	c.S3Bucket = "media"
	c.S3Region = "us-east-1"
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3BaseEndpoint = ""
	c.LocalStoragePath = "./data/files"
	c.QuotaCeilingBytes = 1000 * 1024 * 1024
	c.MaxQueueFiles = 100
	c.Concurrency = 1
	c.MaxRetries = 3
	c.SignedURLTTL = 15 * time.Minute
	c.MetricsPort = "9090"
	c.Dev = false
	c.OnDuplicate = "abort"
	c.OnQuota = "abort"
}

// Load builds a Config by applying defaults, then overlaying environment
// variables and finally command-line flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	rest, err := parseFlags(cfg, args)
	if err != nil {
		return nil, err
	}
	cfg.Paths = rest
	return cfg, nil
}
