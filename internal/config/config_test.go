package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "dev-user", cfg.UserID)
	assert.Equal(t, int64(1000*1024*1024), cfg.QuotaCeilingBytes)
	assert.Equal(t, 100, cfg.MaxQueueFiles)
	assert.Equal(t, int64(1), cfg.Concurrency)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.SignedURLTTL)
	assert.Equal(t, "abort", cfg.OnDuplicate)
	assert.Equal(t, "abort", cfg.OnQuota)
	assert.Empty(t, cfg.S3BaseEndpoint, "local storage by default")
	assert.Empty(t, cfg.Paths)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MEDIAQUEUE_USER_ID", "creator-9")
	t.Setenv("MEDIAQUEUE_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("MEDIAQUEUE_QUOTA_BYTES", "2048")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "creator-9", cfg.UserID)
	assert.Equal(t, "http://localhost:9000", cfg.S3BaseEndpoint)
	assert.Equal(t, int64(2048), cfg.QuotaCeilingBytes)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("MEDIAQUEUE_USER_ID", "from-env")

	cfg, err := Load([]string{
		"-user", "from-flag",
		"-quota", "4096",
		"-retries", "5",
		"-url-ttl", "30",
		"-on-duplicate", "keep-both",
		"/tmp/a.jpg", "/tmp/b.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.UserID)
	assert.Equal(t, int64(4096), cfg.QuotaCeilingBytes)
	assert.Equal(t, uint64(5), cfg.MaxRetries)
	assert.Equal(t, 30*time.Minute, cfg.SignedURLTTL)
	assert.Equal(t, "keep-both", cfg.OnDuplicate)
	assert.Equal(t, []string{"/tmp/a.jpg", "/tmp/b.jpg"}, cfg.Paths)
}

func TestLoadBadEnvNumberKeepsDefault(t *testing.T) {
	t.Setenv("MEDIAQUEUE_QUOTA_BYTES", "lots")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000*1024*1024), cfg.QuotaCeilingBytes)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"})
	assert.Error(t, err)
}
