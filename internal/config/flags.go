package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// parseEnv overlays MEDIAQUEUE_* environment variables onto config.
func parseEnv(config *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("MEDIAQUEUE_USER_ID", &config.UserID)
	setString("MEDIAQUEUE_CATALOG_DSN", &config.CatalogDSN)
	setString("MEDIAQUEUE_S3_BUCKET", &config.S3Bucket)
	setString("MEDIAQUEUE_S3_REGION", &config.S3Region)
	setString("MEDIAQUEUE_S3_ACCESS_KEY", &config.S3AccessKey)
	setString("MEDIAQUEUE_S3_SECRET_KEY", &config.S3SecretKey)
	setString("MEDIAQUEUE_S3_ENDPOINT", &config.S3BaseEndpoint)
	setString("MEDIAQUEUE_STORAGE_PATH", &config.LocalStoragePath)
	setString("MEDIAQUEUE_METRICS_PORT", &config.MetricsPort)

	if v, ok := os.LookupEnv("MEDIAQUEUE_QUOTA_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.QuotaCeilingBytes = n
		}
	}
}

// parseFlags populates Config fields from command-line flags and returns
// the positional arguments (paths to queue).
func parseFlags(config *Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("uploader", flag.ContinueOnError)

	fs.StringVar(&config.UserID, "user", config.UserID, "user ID uploads are attributed to")
	fs.StringVar(&config.CatalogDSN, "dsn", config.CatalogDSN, "Postgres DSN of the media catalog")
	fs.StringVar(&config.S3Bucket, "bucket", config.S3Bucket, "S3 bucket name")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3AccessKey, "access-key", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "secret-key", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3BaseEndpoint, "endpoint", config.S3BaseEndpoint, "S3 base endpoint (empty = local storage)")
	fs.StringVar(&config.LocalStoragePath, "storage", config.LocalStoragePath, "local storage path when no S3 endpoint is set")
	fs.Int64Var(&config.QuotaCeilingBytes, "quota", config.QuotaCeilingBytes, "upload batch byte ceiling")
	fs.IntVar(&config.MaxQueueFiles, "max-files", config.MaxQueueFiles, "maximum queued files")
	fs.Int64Var(&config.Concurrency, "concurrency", config.Concurrency, "concurrent transfers (1 = sequential)")
	fs.StringVar(&config.MetricsPort, "metrics-port", config.MetricsPort, "metrics HTTP port")
	fs.BoolVar(&config.Dev, "dev", config.Dev, "development mode logging")
	fs.StringVar(&config.OnDuplicate, "on-duplicate", config.OnDuplicate, "duplicate resolution: drop, keep-both or abort")
	fs.StringVar(&config.OnQuota, "on-quota", config.OnQuota, "quota overflow resolution: accept or abort")

	retries := fs.Uint64("retries", config.MaxRetries, "transfer retry attempts")
	ttlMinutes := fs.Int("url-ttl", int(config.SignedURLTTL.Minutes()), "signed URL validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	config.MaxRetries = *retries
	config.SignedURLTTL = time.Duration(*ttlMinutes) * time.Minute

	return fs.Args(), nil
}
