package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresWadoURL(t *testing.T) {
	t.Setenv("DICOM_WADO_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DICOM_WADO_URL", "http://pacs.example/wado")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddress)
	assert.Equal(t, 30*time.Second, cfg.MetadataTimeout)
	assert.Equal(t, 15*time.Second, cfg.InstanceTimeout)
	assert.Equal(t, 4, cfg.DefaultMaxWorkers)
	assert.Equal(t, 8, cfg.MaxAllowedWorkers)
	assert.Empty(t, cfg.AllowedClientIPs)
	assert.False(t, cfg.Debug)
}

func TestLoadStripsQuotesFromWadoURL(t *testing.T) {
	t.Setenv("DICOM_WADO_URL", ` "http://pacs.example/wado" `)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://pacs.example/wado", cfg.WadoURL)
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("DICOM_WADO_URL", "http://pacs.example/wado")
	t.Setenv("METADATA_TIMEOUT_SECONDS", "60")
	t.Setenv("INSTANCE_TIMEOUT_SECONDS", "5")
	t.Setenv("DEFAULT_MAX_WORKERS", "2")
	t.Setenv("ALLOWED_CLIENT_IPS", "10.0.0.1, 10.0.0.2,,")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.MetadataTimeout)
	assert.Equal(t, 5*time.Second, cfg.InstanceTimeout)
	assert.Equal(t, 2, cfg.DefaultMaxWorkers)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.AllowedClientIPs)
	assert.True(t, cfg.Debug)
}

func TestLoadIgnoresInvalidNumericOverrides(t *testing.T) {
	t.Setenv("DICOM_WADO_URL", "http://pacs.example/wado")
	t.Setenv("METADATA_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("DEFAULT_MAX_WORKERS", "-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.MetadataTimeout)
	assert.Equal(t, 4, cfg.DefaultMaxWorkers)
}
