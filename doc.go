// Package caar accelerates the analysis of thermostat cycling and ambient air
// readings. It turns raw delimited text files of thermostat cycles, indoor
// temperature readings, and outdoor weather observations into indexed tabular
// time series ready for downstream analysis.
//
// caar handles the unglamorous parts of working with field data exports:
//   - delimiter and quote detection on undocumented file formats
//   - sample-based detection of ID, timestamp, and value columns
//   - row-level validation with silent skipping of malformed rows
//   - compressed binary caching of cleaned record sets
//   - composite (ID, timestamp) indexing for fast slicing and joins
//
// # Quick Start
//
// Convert a raw export once with the CLI, then load and slice the
// cached record set as a library:
//
//	caar convert cycles_export.txt --datatype cycles
//
//	import (
//	    "github.com/ajitpratap0/caar/pkg/cache"
//	    "github.com/ajitpratap0/caar/pkg/frame"
//	    "github.com/ajitpratap0/caar/pkg/timeseries"
//	)
//
//	set, err := cache.ReadFile("all_states_cycles.caar")
//	f, err := frame.FromSet(set)
//	june := f.Between(start, end)
//	status, times, err := timeseries.OnOffStatus(f, deviceID, start, end, "5min")
//
// # Key Packages
//
//	pkg/delimited  - dialect sniffing, line parsing, row validation
//	pkg/schema     - column detection heuristics and summaries
//	pkg/records    - typed cycle, sensor, and geospatial record sets
//	pkg/cache      - versioned compressed binary cache artifacts
//	pkg/frame      - sorted composite-index frames with Arrow/Parquet export
//	pkg/summary    - per-device day counts and observation streaks
//	pkg/timeseries - on/off status and observation arrays on a time grid
//	pkg/metadata   - device and postal-code tables for state filtering
//	pkg/fetch      - input openers for local, HTTP, S3, and GCS sources
//
// # Data Types
//
// Three kinds of raw files are supported, selected by records.DataType:
//
//	cycles      - thermostat ON/OFF duty-cycle intervals (start and end times)
//	sensors     - indoor temperature readings (one timestamp per row)
//	geospatial  - outdoor weather station observations (one timestamp per row)
//
// # Command Line
//
// The caar binary wraps the library for batch use:
//
//	caar detect cycles_export.txt --datatype cycles
//	caar convert cycles_export.txt --datatype cycles --states "TX,IA" \
//	    --devices thermostats.csv --postal us_zips.csv
//	caar export all_states_cycles.caar --format parquet --output cycles.parquet
package caar
