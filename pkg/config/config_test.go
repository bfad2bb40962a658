package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	if cfg.Parse.SampleSize != 1000 {
		t.Errorf("Parse.SampleSize = %d, expected 1000", cfg.Parse.SampleSize)
	}
	if cfg.Parse.CycleMode != "Cool" {
		t.Errorf("Parse.CycleMode = %q, expected %q", cfg.Parse.CycleMode, "Cool")
	}
	if !cfg.Parse.Auto {
		t.Error("Parse.Auto = false, expected true")
	}
	if cfg.Cache.Codec != "avro" {
		t.Errorf("Cache.Codec = %q, expected %q", cfg.Cache.Codec, "avro")
	}
	if cfg.Cache.Compression != "snappy" {
		t.Errorf("Cache.Compression = %q, expected %q", cfg.Cache.Compression, "snappy")
	}
	if cfg.Performance.GetWorkers() < 1 {
		t.Errorf("Performance.GetWorkers() = %d, expected at least 1", cfg.Performance.GetWorkers())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty name",
			mutate:  func(c *Config) { c.Name = "" },
			wantErr: true,
		},
		{
			name:    "zero sample size",
			mutate:  func(c *Config) { c.Parse.SampleSize = 0 },
			wantErr: true,
		},
		{
			name:    "multi-char delimiter",
			mutate:  func(c *Config) { c.Parse.Delimiter = ",," },
			wantErr: true,
		},
		{
			name:    "single-char delimiter",
			mutate:  func(c *Config) { c.Parse.Delimiter = "|" },
			wantErr: false,
		},
		{
			name:    "unknown codec",
			mutate:  func(c *Config) { c.Cache.Codec = "msgpack" },
			wantErr: true,
		},
		{
			name:    "unknown compression",
			mutate:  func(c *Config) { c.Cache.Compression = "brotli" },
			wantErr: true,
		},
		{
			name:    "compression none",
			mutate:  func(c *Config) { c.Cache.Compression = "none" },
			wantErr: false,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Fetch.RetryAttempts = -1 },
			wantErr: true,
		},
		{
			name:    "sample rate above one",
			mutate:  func(c *Config) { c.Observability.TracingSampleRate = 1.5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caar.yaml")

	content := []byte(`
name: conversion
parse:
  cycle_mode: Heat
  sample_size: 500
cache:
  codec: json
  compression: zstd
  compression_level: 3
performance:
  workers: 4
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "conversion" {
		t.Errorf("Name = %q, expected %q", cfg.Name, "conversion")
	}
	if cfg.Parse.CycleMode != "Heat" {
		t.Errorf("Parse.CycleMode = %q, expected %q", cfg.Parse.CycleMode, "Heat")
	}
	if cfg.Parse.SampleSize != 500 {
		t.Errorf("Parse.SampleSize = %d, expected 500", cfg.Parse.SampleSize)
	}
	if cfg.Cache.Codec != "json" {
		t.Errorf("Cache.Codec = %q, expected %q", cfg.Cache.Codec, "json")
	}
	if cfg.Cache.Compression != "zstd" {
		t.Errorf("Cache.Compression = %q, expected %q", cfg.Cache.Compression, "zstd")
	}
	if cfg.Performance.Workers != 4 {
		t.Errorf("Performance.Workers = %d, expected 4", cfg.Performance.Workers)
	}

	// Unset keys keep their defaults
	if cfg.Parse.Encoding != "UTF-8" {
		t.Errorf("Parse.Encoding = %q, expected default %q", cfg.Parse.Encoding, "UTF-8")
	}
	if cfg.Fetch.Timeout != 5*time.Minute {
		t.Errorf("Fetch.Timeout = %v, expected default %v", cfg.Fetch.Timeout, 5*time.Minute)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/caar.yaml")
	if err == nil {
		t.Error("LoadFile() with missing file, expected error")
	}
}

func TestLoadFileInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caar.yaml")

	content := []byte(`
cache:
  codec: protobuf
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() with invalid codec, expected validation error")
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caar.yaml")

	t.Setenv("CAAR_TEST_THERMOSTATS", "/data/thermostats.csv")

	content := []byte(`
metadata:
  thermostats_file: ${CAAR_TEST_THERMOSTATS}
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var cfg Config
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Metadata.ThermostatsFile != "/data/thermostats.csv" {
		t.Errorf("Metadata.ThermostatsFile = %q, expected %q",
			cfg.Metadata.ThermostatsFile, "/data/thermostats.csv")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caar.yaml")

	in := New()
	in.Parse.CycleMode = "Heat"
	in.Cache.Compression = "lz4"

	if err := Save(path, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var out Config
	if err := Load(path, &out); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if out.Parse.CycleMode != "Heat" {
		t.Errorf("round trip Parse.CycleMode = %q, expected %q", out.Parse.CycleMode, "Heat")
	}
	if out.Cache.Compression != "lz4" {
		t.Errorf("round trip Cache.Compression = %q, expected %q", out.Cache.Compression, "lz4")
	}
}

func TestDefaultLayouts(t *testing.T) {
	layouts := DefaultLayouts()

	if got := layouts.Cycles.UniqueField(); got != "CycleType" {
		t.Errorf("Cycles.UniqueField() = %q, expected %q", got, "CycleType")
	}
	if got := layouts.Geo.UniqueField(); got != "LocationId" {
		t.Errorf("Geo.UniqueField() = %q, expected %q", got, "LocationId")
	}

	vals := layouts.Cycles.ValueFields()
	if len(vals) != 1 || vals[0] != "EndTime" {
		t.Errorf("Cycles.ValueFields() = %v, expected [EndTime]", vals)
	}

	if layouts.Sensors.IDIndex != 0 || layouts.Sensors.TimeIndex != 1 || layouts.Sensors.ValueIndex != 2 {
		t.Errorf("Sensors layout positions = %d/%d/%d, expected 0/1/2",
			layouts.Sensors.IDIndex, layouts.Sensors.TimeIndex, layouts.Sensors.ValueIndex)
	}
}

func TestCycleLayoutOutOfRange(t *testing.T) {
	l := CycleLayout{Fields: []string{"A", "B"}, UniqueFieldIndex: 5, EndIndex: 7}

	if got := l.UniqueField(); got != "" {
		t.Errorf("UniqueField() = %q, expected empty for out-of-range index", got)
	}
	if got := l.ValueFields(); got != nil {
		t.Errorf("ValueFields() = %v, expected nil for out-of-range index", got)
	}
}
