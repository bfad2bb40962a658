// Package config provides unified configuration management for the caar
// conversion pipeline.
//
// A single Config structure carries everything the pipeline needs: parsing
// behavior, fixed file layouts, metadata file locations, cache codec and
// compression selection, fetch timeouts, worker counts and observability
// switches. Defaults from New convert the example thermostat files without
// any overrides.
//
// # Usage
//
// ## Loading with file and environment overrides
//
//	cfg, err := config.LoadFile("caar.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Environment variables override file values using the CAAR_ prefix with
// underscores in place of dots:
//
//	CAAR_CACHE_COMPRESSION=zstd
//	CAAR_PARSE_CYCLE_MODE=Heat
//
// ## Programmatic configuration
//
//	cfg := config.New()
//	cfg.Parse.CycleMode = "Heat"
//	cfg.Cache.Dir = "/var/cache/caar"
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// ## Environment variable substitution in YAML
//
//	# caar.yaml
//	metadata:
//	  thermostats_file: ${THERMOSTATS_FILE}
//	  postal_file: ${POSTAL_FILE}
//
// # Fixed layouts
//
// When parse.auto is false, the Layouts section pins the column order of
// each data type instead of sampling rows to detect it:
//
//	layouts:
//	  cycles:
//	    fields: [ThermostatId, CycleType, StartTime, EndTime]
//	    id_index: 0
//	    mode_index: 1
//	    start_index: 2
//	    end_index: 3
//
// Validation is performed by LoadFile; programmatic configurations should
// call Validate before use.
package config
