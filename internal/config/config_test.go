package conf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "products-dev", cfg.Container)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)

	// second load reads the file back
	cfg2, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg, cfg2)
}

func TestLoadOrCreateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := &Config{
		Database:    Database{Driver: "postgres", DSN: "postgres://u:p@host/db"},
		Container:   "invoices-dev",
		WatchDir:    "/var/drops",
		PollSeconds: 30,
		Retry:       Retry{MaxAttempts: 6, BaseDelayMs: 250},
	}
	require.NoError(t, Save(path, cfg))

	got, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg, got)
}
