package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Cache.VolatileTTL)
	assert.Equal(t, 5, cfg.Limits.MunicipalWidth)
	assert.Equal(t, 10, cfg.Limits.ListingWidth)
	assert.Equal(t, 2000, cfg.Limits.FetchCap)
	assert.Equal(t, 60*time.Second, cfg.Limits.ListingPhase)
	assert.Equal(t, "TUCSON", cfg.Municipality)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scout.yaml")
	content := `
server:
  port: 9090
logging:
  level: debug
  format: json
limits:
  fetch_cap: 500
  listing_phase: 15s
shapefiles:
  - name: zoning
    path: data/zoning.shp
    field: ZONING
    target: zoning
    projection:
      false_easting: 1968500
      false_northing: 6561666.667
      central_meridian: -98.5
      origin_lat: 31.66666666666667
      parallel_1: 32.13333333333333
      parallel_2: 33.96666666666667
      units_per_meter: 3.2808333333333334
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 500, cfg.Limits.FetchCap)
	assert.Equal(t, 15*time.Second, cfg.Limits.ListingPhase)
	require.Len(t, cfg.Shapefiles, 1)
	require.NotNil(t, cfg.Shapefiles[0].Projection)
	assert.Equal(t, "ZONING", cfg.Shapefiles[0].Field)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CENSUS_API_KEY", "census-key")
	t.Setenv("ADMIN_KEY", "secret")
	t.Setenv("SCOUT_LIMITS_FETCH_CAP", "123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "census-key", cfg.Keys.Census)
	assert.Equal(t, "secret", cfg.AdminKey)
	assert.Equal(t, 123, cfg.Limits.FetchCap)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, ErrInvalidPort},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"shrinking backoff", func(c *Config) { c.Retry.BackoffMultiplier = 0.5 }, ErrInvalidBackoffMultiplier},
		{"zero width", func(c *Config) { c.Limits.ListingWidth = 0 }, ErrInvalidWidth},
		{"zero batch", func(c *Config) { c.Limits.BatchSize = 0 }, ErrInvalidBatchSize},
		{"zero cap", func(c *Config) { c.Limits.FetchCap = 0 }, ErrInvalidFetchCap},
		{"zero deadline", func(c *Config) { c.Limits.Request = 0 }, ErrInvalidDeadline},
		{"no parcel layer", func(c *Config) { c.Upstreams.ParcelLayer = "" }, ErrMissingParcelLayer},
		{"bad shapefile", func(c *Config) { c.Shapefiles = []ShapefileLayer{{Name: "x"}} }, ErrMissingShapefilePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestGetRetryDelay(t *testing.T) {
	rp := RetryPolicy{InitialDelayMs: 100, MaxDelayMs: 350, BackoffMultiplier: 2}
	assert.Equal(t, time.Duration(0), rp.GetRetryDelay(1))
	assert.Equal(t, 100*time.Millisecond, rp.GetRetryDelay(2))
	assert.Equal(t, 200*time.Millisecond, rp.GetRetryDelay(3))
	assert.Equal(t, 350*time.Millisecond, rp.GetRetryDelay(4))
}

func TestOverlayDeadline(t *testing.T) {
	l := Default().Limits
	assert.Equal(t, 30*time.Second, l.OverlayDeadline(0))
	assert.Equal(t, 60*time.Second, l.OverlayDeadline(3))
	assert.Equal(t, 90*time.Second, l.OverlayDeadline(20))
}
