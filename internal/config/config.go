// Package config loads scout configuration from a YAML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
)

// Configuration validation errors.
var (
	ErrInvalidPort              = errors.New("server.port must be between 1 and 65535")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrInvalidWidth             = errors.New("limits: semaphore widths must be at least 1")
	ErrInvalidBatchSize         = errors.New("limits: batch sizes must be at least 1")
	ErrInvalidFetchCap          = errors.New("limits.fetch_cap must be at least 1")
	ErrInvalidDeadline          = errors.New("limits: deadlines must be positive")
	ErrMissingParcelLayer       = errors.New("upstreams.parcel_layer is required")
	ErrMissingShapefilePath     = errors.New("shapefiles: path and field are required")
)

// Config is the complete scout configuration.
type Config struct {
	Server       ServerConfig     `mapstructure:"server"`
	Logging      LoggingConfig    `mapstructure:"logging"`
	Retry        RetryPolicy      `mapstructure:"retry"`
	Cache        CacheConfig      `mapstructure:"cache"`
	Limits       LimitsConfig     `mapstructure:"limits"`
	Upstreams    UpstreamsConfig  `mapstructure:"upstreams"`
	Keys         KeysConfig       `mapstructure:"keys"`
	Recorder     RecorderConfig   `mapstructure:"recorder"`
	Database     DBConfig         `mapstructure:"database"`
	Shapefiles   []ShapefileLayer `mapstructure:"shapefiles"`
	Municipality string           `mapstructure:"municipality"`
	AdminKey     string           `mapstructure:"admin_key"`
	LeadBookPath string           `mapstructure:"lead_book_path"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RetryPolicy defines retry behavior for upstream calls.
type RetryPolicy struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	TimeoutSec        int     `mapstructure:"timeout_sec"`
}

// CacheConfig controls the cache tier.
type CacheConfig struct {
	VolatileTTL time.Duration `mapstructure:"volatile_ttl"`
	CountsPath  string        `mapstructure:"counts_path"`
	WarmFile    string        `mapstructure:"warm_file"`
}

// LimitsConfig holds concurrency widths, batch sizes and deadlines.
type LimitsConfig struct {
	MunicipalWidth     int           `mapstructure:"municipal_width"`
	ListingWidth       int           `mapstructure:"listing_width"`
	BatchSize          int           `mapstructure:"batch_size"`
	ProgressiveBatch   int           `mapstructure:"progressive_batch"`
	FetchCap           int           `mapstructure:"fetch_cap"`
	RecorderBudget     int           `mapstructure:"recorder_budget"`
	ListingPhase       time.Duration `mapstructure:"listing_phase"`
	ListingCall        time.Duration `mapstructure:"listing_call"`
	OverlayBase        time.Duration `mapstructure:"overlay_base"`
	OverlayPerLayer    time.Duration `mapstructure:"overlay_per_layer"`
	OverlayMax         time.Duration `mapstructure:"overlay_max"`
	ParcelPhase        time.Duration `mapstructure:"parcel_phase"`
	CandidatePhase     time.Duration `mapstructure:"candidate_phase"`
	Request            time.Duration `mapstructure:"request"`
	RecorderInterval   time.Duration `mapstructure:"recorder_interval"`
	AutocompleteLimit  int           `mapstructure:"autocomplete_limit"`
	WholeLayerMaxCount int           `mapstructure:"whole_layer_max_count"`
}

// UpstreamsConfig lists the upstream endpoints.
type UpstreamsConfig struct {
	AddressLayer      string   `mapstructure:"address_layer"`
	ZipLayer          string   `mapstructure:"zip_layer"`
	ParcelLayer       string   `mapstructure:"parcel_layer"`
	ViolationLayer    string   `mapstructure:"violation_layer"`
	NeighborhoodLayer string   `mapstructure:"neighborhood_layer"`
	SubdivisionLayer  string   `mapstructure:"subdivision_layer"`
	ZoningLayer       string   `mapstructure:"zoning_layer"`
	FloodLayer        string   `mapstructure:"flood_layer"`
	SchoolLayer       string   `mapstructure:"school_layer"`
	OverlayLayers     []string `mapstructure:"overlay_layers"`
	ListingURL        string   `mapstructure:"listing_url"`
	RecorderURL       string   `mapstructure:"recorder_url"`
	BLSURL            string   `mapstructure:"bls_url"`
	CensusURL         string   `mapstructure:"census_url"`
	FREDURL           string   `mapstructure:"fred_url"`
	NativeWKID        int      `mapstructure:"native_wkid"`
}

// KeysConfig holds per-provider API keys.
type KeysConfig struct {
	Census string `mapstructure:"census"`
	BLS    string `mapstructure:"bls"`
	FRED   string `mapstructure:"fred"`
	Maps   string `mapstructure:"maps"`
}

// RecorderConfig configures the recorder scraper sidecar.
type RecorderConfig struct {
	CookieJarPath string `mapstructure:"cookie_jar_path"`
}

// DBConfig holds the optional Oracle parcel snapshot connection.
type DBConfig struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	Service        string `mapstructure:"service"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	WalletLocation string `mapstructure:"wallet_location"`
	Table          string `mapstructure:"table"`
}

// Enabled reports whether a parcel snapshot database is configured.
func (d DBConfig) Enabled() bool {
	return d.Host != "" && d.Username != ""
}

// ShapefileLayer is a local polygon layer used as a whole-layer overlay.
type ShapefileLayer struct {
	Name       string                     `mapstructure:"name"`
	Path       string                     `mapstructure:"path"`
	Field      string                     `mapstructure:"field"`
	Target     string                     `mapstructure:"target"`
	Projection *geo.LambertConformalConic `mapstructure:"projection"`
}

// envBindings maps config keys to the conventional environment variables.
var envBindings = map[string]string{
	"keys.census":              "CENSUS_API_KEY",
	"keys.bls":                 "BLS_API_KEY",
	"keys.fred":                "FRED_API_KEY",
	"keys.maps":                "MAPS_API_KEY",
	"admin_key":                "ADMIN_KEY",
	"server.host":              "HOST",
	"server.port":              "PORT",
	"logging.level":            "LOG_LEVEL",
	"recorder.cookie_jar_path": "RECORDER_COOKIE_JAR",
	"database.host":            "DB_HOST",
	"database.port":            "DB_PORT",
	"database.service":         "DB_SERVICE",
	"database.username":        "DB_USERNAME",
	"database.password":        "DB_PASSWORD",
	"database.wallet_location": "DB_WALLET_LOCATION",
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and the environment apply.
func Load(path string) (*Config, error) {
	// A missing .env is fine; existing variables are never overridden.
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "SCOUT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	for i := range cfg.Shapefiles {
		if p := cfg.Shapefiles[i].Projection; p != nil {
			cfg.Shapefiles[i].Projection = geo.NewLambertConformalConic(*p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay_ms", 500)
	v.SetDefault("retry.max_delay_ms", 8000)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.timeout_sec", 30)

	v.SetDefault("cache.volatile_ttl", "30m")
	v.SetDefault("cache.counts_path", "cache/zip_counts.json")
	v.SetDefault("cache.warm_file", "")

	v.SetDefault("limits.municipal_width", 5)
	v.SetDefault("limits.listing_width", 10)
	v.SetDefault("limits.batch_size", 50)
	v.SetDefault("limits.progressive_batch", 25)
	v.SetDefault("limits.fetch_cap", 2000)
	v.SetDefault("limits.recorder_budget", 25)
	v.SetDefault("limits.listing_phase", "60s")
	v.SetDefault("limits.listing_call", "30s")
	v.SetDefault("limits.overlay_base", "30s")
	v.SetDefault("limits.overlay_per_layer", "10s")
	v.SetDefault("limits.overlay_max", "90s")
	v.SetDefault("limits.parcel_phase", "45s")
	v.SetDefault("limits.candidate_phase", "60s")
	v.SetDefault("limits.request", "180s")
	v.SetDefault("limits.recorder_interval", "2s")
	v.SetDefault("limits.autocomplete_limit", 10)
	v.SetDefault("limits.whole_layer_max_count", 2000)

	v.SetDefault("upstreams.address_layer", "https://gis.pima.gov/arcgis/rest/services/GISOpenData/Addresses/MapServer/0")
	v.SetDefault("upstreams.zip_layer", "https://gis.pima.gov/arcgis/rest/services/GISOpenData/Boundaries/MapServer/6")
	v.SetDefault("upstreams.parcel_layer", "https://gis.pima.gov/arcgis/rest/services/GISOpenData/LandRecords/MapServer/12")
	v.SetDefault("upstreams.violation_layer", "https://gis.tucsonaz.gov/arcgis/rest/services/PDSD/pdsdCodeEnforcement/MapServer/0")
	v.SetDefault("upstreams.neighborhood_layer", "https://gis.tucsonaz.gov/arcgis/rest/services/PDSD/NeighborhoodAssociations/MapServer/0")
	v.SetDefault("upstreams.subdivision_layer", "https://gis.pima.gov/arcgis/rest/services/GISOpenData/LandRecords/MapServer/7")
	v.SetDefault("upstreams.zoning_layer", "https://gis.tucsonaz.gov/arcgis/rest/services/PDSD/Zoning/MapServer/0")
	v.SetDefault("upstreams.flood_layer", "https://gis.pima.gov/arcgis/rest/services/GISOpenData/Environmental/MapServer/3")
	v.SetDefault("upstreams.school_layer", "https://gis.pima.gov/arcgis/rest/services/GISOpenData/Boundaries/MapServer/9")
	v.SetDefault("upstreams.overlay_layers", []string{})
	v.SetDefault("upstreams.listing_url", "http://127.0.0.1:8090")
	v.SetDefault("upstreams.recorder_url", "http://127.0.0.1:8091")
	v.SetDefault("upstreams.bls_url", "https://api.bls.gov/publicAPI/v2/timeseries/data")
	v.SetDefault("upstreams.census_url", "https://api.census.gov/data")
	v.SetDefault("upstreams.fred_url", "https://api.stlouisfed.org/fred/series/observations")
	v.SetDefault("upstreams.native_wkid", geo.ArizonaCentralFt)

	v.SetDefault("recorder.cookie_jar_path", "cache/recorder_cookies.json")
	v.SetDefault("database.port", "1522")
	v.SetDefault("database.table", "PARCELS")
	v.SetDefault("municipality", "TUCSON")
	v.SetDefault("lead_book_path", "data/leads.json")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return ErrInvalidLogLevel
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}
	if c.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	l := c.Limits
	if l.MunicipalWidth < 1 || l.ListingWidth < 1 {
		return ErrInvalidWidth
	}
	if l.BatchSize < 1 || l.ProgressiveBatch < 1 {
		return ErrInvalidBatchSize
	}
	if l.FetchCap < 1 {
		return ErrInvalidFetchCap
	}
	for _, d := range []time.Duration{l.ListingPhase, l.ListingCall, l.OverlayBase, l.OverlayMax, l.ParcelPhase, l.CandidatePhase, l.Request} {
		if d <= 0 {
			return ErrInvalidDeadline
		}
	}

	if c.Upstreams.ParcelLayer == "" {
		return ErrMissingParcelLayer
	}
	for i, s := range c.Shapefiles {
		if s.Path == "" || s.Field == "" {
			return fmt.Errorf("%w: shapefiles[%d]", ErrMissingShapefilePath, i)
		}
	}
	return nil
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt-1; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	if rp.MaxDelayMs > 0 && int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the per-call timeout.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// OverlayDeadline scales the overlay phase deadline with the number of layers.
func (l LimitsConfig) OverlayDeadline(layers int) time.Duration {
	d := l.OverlayBase + time.Duration(layers)*l.OverlayPerLayer
	if l.OverlayMax > 0 && d > l.OverlayMax {
		d = l.OverlayMax
	}
	return d
}

// String returns a short representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Addr: %s, Municipality: %s, VolatileTTL: %s, FetchCap: %d}",
		c.Server.Addr(),
		c.Municipality,
		c.Cache.VolatileTTL,
		c.Limits.FetchCap,
	)
}
