// Package config provides the unified configuration system for caar.
// It defines a single Config structure that every stage of the conversion
// pipeline reads from, ensuring consistent behavior across the CLI and the
// library API.
//
// The configuration is organized into logical sections:
//   - Parse: Delimiter/quote overrides, sampling, cycle mode selection
//   - Layouts: Fixed column layouts used when auto-detection is disabled
//   - Metadata: Thermostat and postal metadata files for state filtering
//   - Cache: Binary cache directory, codec and compression selection
//   - Fetch: Timeouts and retry policy for remote inputs
//   - Performance: Worker counts, batch sizes, memory-mapped reads
//   - Observability: Metrics, tracing, logging
//
// Example usage:
//
//	cfg := config.New()
//	cfg.Parse.CycleMode = "Heat"
//	cfg.Cache.Compression = "zstd"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/ajitpratap0/caar/pkg/records"
)

// Config is the single unified configuration structure for the conversion
// pipeline. All sections are populated with working defaults by New; callers
// override only what they need.
type Config struct {
	// Name identifies the pipeline instance, used in logs and metrics
	Name string `yaml:"name" json:"name"`
	// Environment selects development or production behavior
	Environment string `yaml:"environment" json:"environment"`

	// Parse settings control sniffing, sampling and record validation
	Parse ParseConfig `yaml:"parse" json:"parse"`

	// Layouts define fixed column positions when auto-detection is off
	Layouts LayoutConfig `yaml:"layouts" json:"layouts"`

	// Metadata locates the thermostat and postal files for state filtering
	Metadata MetadataConfig `yaml:"metadata" json:"metadata"`

	// Cache controls the binary record cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Fetch settings for HTTP, S3 and GCS inputs
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Performance settings control throughput and resource usage
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ParseConfig contains settings for reading and cleaning raw delimited files.
type ParseConfig struct {
	// Delimiter overrides automatic delimiter detection when non-empty
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	// Quote overrides automatic quote detection when non-empty
	Quote string `yaml:"quote" json:"quote"`
	// SampleSize is the number of valid rows used for column detection
	SampleSize int `yaml:"sample_size" json:"sample_size"`
	// CycleMode selects which cycle records survive cleaning (e.g. "Cool", "Heat")
	CycleMode string `yaml:"cycle_mode" json:"cycle_mode"`
	// Encoding of the raw data file
	Encoding string `yaml:"encoding" json:"encoding"`
	// TimeFormats are the layouts tried when parsing timestamp fields,
	// in order
	TimeFormats []string `yaml:"time_formats" json:"time_formats"`
	// Auto enables column auto-detection; when false the Layouts section
	// defines the column positions
	Auto bool `yaml:"auto" json:"auto"`
}

// MetadataConfig locates and describes the metadata files needed for
// filtering records by US state.
type MetadataConfig struct {
	// ThermostatsFile is the path of the thermostat metadata file
	ThermostatsFile string `yaml:"thermostats_file" json:"thermostats_file"`
	// PostalFile is the path of the postal code metadata file
	PostalFile string `yaml:"postal_file" json:"postal_file"`
	// DeviceIDHeader names the thermostat metadata column holding device IDs
	DeviceIDHeader string `yaml:"device_id_header" json:"device_id_header"`
	// LocationIDHeader names the thermostat metadata column holding location IDs
	LocationIDHeader string `yaml:"location_id_header" json:"location_id_header"`
	// ZipCodeHeader names the thermostat metadata column holding zip codes
	ZipCodeHeader string `yaml:"zip_code_header" json:"zip_code_header"`
	// PostalZipHeader names the postal file column holding zip codes
	PostalZipHeader string `yaml:"postal_zip_header" json:"postal_zip_header"`
	// PostalStateHeader names the postal file column holding two-letter states
	PostalStateHeader string `yaml:"postal_state_header" json:"postal_state_header"`
}

// CacheConfig controls the binary record cache written beside converted files.
type CacheConfig struct {
	// Dir is the directory cache files are written to
	Dir string `yaml:"dir" json:"dir"`
	// Codec selects the payload encoding: "json" or "avro"
	Codec string `yaml:"codec" json:"codec"`
	// Compression selects the payload compression:
	// "none", "gzip", "snappy", "lz4", "zstd" or "s2"
	Compression string `yaml:"compression" json:"compression"`
	// CompressionLevel tunes ratio vs speed for codecs that support levels
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
}

// FetchConfig contains settings for opening remote inputs.
type FetchConfig struct {
	// Timeout bounds a single fetch operation
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// ConnectTimeout bounds connection establishment
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	// RetryAttempts sets maximum retry attempts for failed fetches
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// S3Region overrides the region resolved from the environment
	S3Region string `yaml:"s3_region" json:"s3_region"`
	// S3Endpoint points at an S3-compatible service when non-empty
	S3Endpoint string `yaml:"s3_endpoint" json:"s3_endpoint"`
	// GCSCredentialsFile is the path of a service account key file
	GCSCredentialsFile string `yaml:"gcs_credentials_file" json:"gcs_credentials_file"`
}

// PerformanceConfig contains all performance-related settings.
type PerformanceConfig struct {
	// Workers defines the number of concurrent parse workers
	Workers int `yaml:"workers" json:"workers"`
	// BatchSize controls the number of lines handed to a worker at once
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BufferSize sets the size of internal read buffers
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// MemoryLimitMB sets the memory usage limit in megabytes
	MemoryLimitMB int `yaml:"memory_limit_mb" json:"memory_limit_mb"`
	// UseMmap reads local files through memory mapping when possible
	UseMmap bool `yaml:"use_mmap" json:"use_mmap"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// EnableMetrics activates metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates span emission around pipeline stages
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// EnableLogging controls logging output
	EnableLogging bool `yaml:"enable_logging" json:"enable_logging"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsInterval sets how often resource metrics are sampled
	MetricsInterval time.Duration `yaml:"metrics_interval" json:"metrics_interval"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// New creates a Config with working defaults. The defaults convert the
// example thermostat files without any overrides; callers tune sections
// as needed.
func New() *Config {
	return &Config{
		Name:        "caar",
		Environment: "development",
		Parse: ParseConfig{
			Delimiter:  "", // Auto-detect
			Quote:      "", // Auto-detect
			SampleSize: 1000,
			CycleMode:  "Cool",
			Encoding:   "UTF-8",
			TimeFormats: records.DefaultTimeFormats(),
			Auto:        true,
		},
		Layouts: DefaultLayouts(),
		Metadata: MetadataConfig{
			DeviceIDHeader:    "ThermostatId",
			LocationIDHeader:  "LocationId",
			ZipCodeHeader:     "ZipCode",
			PostalZipHeader:   "Zip",
			PostalStateHeader: "State",
		},
		Cache: CacheConfig{
			Dir:              ".",
			Codec:            "avro",
			Compression:      "snappy",
			CompressionLevel: 0, // Codec default
		},
		Fetch: FetchConfig{
			Timeout:         5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   60 * time.Second,
		},
		Performance: PerformanceConfig{
			Workers:       runtime.NumCPU(),
			BatchSize:     4096,
			BufferSize:    1 << 20, // 1MB
			MemoryLimitMB: 1024,
			UseMmap:       true,
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			EnableTracing:     false,
			EnableLogging:     true,
			LogLevel:          "info",
			MetricsInterval:   30 * time.Second,
			TracingSampleRate: 0.1,
		},
	}
}

// Validate validates the configuration for correctness.
// It checks required fields and ensures values are within acceptable ranges.
// Callers should validate after loading configuration to catch errors early.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Parse.SampleSize <= 0 {
		return fmt.Errorf("parse.sample_size must be positive")
	}
	if len(c.Parse.Delimiter) > 1 {
		return fmt.Errorf("parse.delimiter must be a single character")
	}
	if len(c.Parse.Quote) > 1 {
		return fmt.Errorf("parse.quote must be a single character")
	}
	switch c.Cache.Codec {
	case "json", "avro":
	default:
		return fmt.Errorf("cache.codec must be json or avro, got %q", c.Cache.Codec)
	}
	switch c.Cache.Compression {
	case "none", "gzip", "snappy", "lz4", "zstd", "s2":
	default:
		return fmt.Errorf("cache.compression must be one of none, gzip, snappy, lz4, zstd, s2, got %q",
			c.Cache.Compression)
	}
	if c.Fetch.RetryAttempts < 0 {
		return fmt.Errorf("fetch.retry_attempts cannot be negative")
	}
	if c.Performance.BatchSize <= 0 {
		return fmt.Errorf("performance.batch_size must be positive")
	}
	if c.Performance.BufferSize <= 0 {
		return fmt.Errorf("performance.buffer_size must be positive")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("observability.tracing_sample_rate must be in [0, 1]")
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}

// HasMetadata returns true if both metadata files are configured,
// which is required for state filtering
func (m *MetadataConfig) HasMetadata() bool {
	return m.ThermostatsFile != "" && m.PostalFile != ""
}

// IsCompressed returns true if cache payloads should be compressed
func (cc *CacheConfig) IsCompressed() bool {
	return cc.Compression != "" && cc.Compression != "none"
}
