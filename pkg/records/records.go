// Package records defines the typed data model for cleaned observation
// files: thermostat duty cycles, indoor sensor readings, and outdoor
// weather-station readings, keyed the way downstream frames index them.
package records

import (
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// DataType identifies which of the three observation file kinds a record
// set holds.
type DataType string

const (
	// Cycles holds thermostat duty-cycle intervals (ON periods).
	Cycles DataType = "cycles"
	// Sensors holds indoor temperature readings.
	Sensors DataType = "sensors"
	// Geospatial holds outdoor weather-station readings.
	Geospatial DataType = "geospatial"
)

// ParseDataType parses a data type name. The indoor/outdoor aliases used by
// older data deliveries are accepted.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cycles", "cycle":
		return Cycles, nil
	case "sensors", "sensor", "inside":
		return Sensors, nil
	case "geospatial", "geo", "outside":
		return Geospatial, nil
	}
	return "", errors.New(errors.ErrorTypeConfig,
		stringpool.Sprintf("unknown data type %q (expected cycles, sensors or geospatial)", s))
}

// Valid reports whether dt is one of the three known data types.
func (dt DataType) Valid() bool {
	switch dt {
	case Cycles, Sensors, Geospatial:
		return true
	}
	return false
}

// String returns the data type name.
func (dt DataType) String() string {
	return string(dt)
}

// ColumnType classifies a detected column of a raw file.
type ColumnType string

const (
	// ColID is the device or location identifier column.
	ColID ColumnType = "id"
	// ColTime is a timestamp column (cycle start/end, or observation time).
	ColTime ColumnType = "time"
	// ColOpsTime is the cycle operating-mode column of cycle files.
	ColOpsTime ColumnType = "ops_time"
	// ColDigit marks a column whose values are plain unpadded integers.
	ColDigit ColumnType = "digitonly"
	// ColAlnum marks any other value column (decimals, codes, free text).
	ColAlnum ColumnType = "alphanumeric"
)

// ColumnMeta describes one column of a raw file after detection.
type ColumnMeta struct {
	// Label is the column's header label
	Label string `json:"label" yaml:"label"`
	// Position is the zero-based column position in the raw file
	Position int `json:"position" yaml:"position"`
	// Type classifies the column content
	Type ColumnType `json:"type" yaml:"type"`
}

// CycleKey uniquely identifies one thermostat duty-cycle interval.
type CycleKey struct {
	DeviceID uint64
	Mode     string
	Start    time.Time
}

// CycleValue holds the non-key fields of a cycle row. Extra carries the
// remaining value columns, raw, in column order.
type CycleValue struct {
	End   time.Time
	Extra []string
}

// SensorKey uniquely identifies one indoor sensor reading.
type SensorKey struct {
	SensorID  uint64
	Timestamp time.Time
}

// SensorValue holds the reading and any remaining value columns.
type SensorValue struct {
	Degrees float64
	Extra   []string
}

// GeoKey uniquely identifies one outdoor weather-station reading.
type GeoKey struct {
	LocationID uint64
	Timestamp  time.Time
}

// GeoValue holds the reading and any remaining value columns.
type GeoValue struct {
	Degrees float64
	Extra   []string
}

// Set holds the cleaned, keyed records of one input file together with the
// column metadata they were parsed under. Exactly one of the three maps is
// populated, matching DataType. Keys deduplicate rows: a later row with the
// same key replaces the earlier one.
type Set struct {
	DataType DataType
	Columns  []ColumnMeta

	Cycles  map[CycleKey]CycleValue
	Sensors map[SensorKey]SensorValue
	Geo     map[GeoKey]GeoValue
}

// NewSet allocates an empty record set for the given data type.
func NewSet(dt DataType) *Set {
	s := &Set{DataType: dt}
	switch dt {
	case Cycles:
		s.Cycles = make(map[CycleKey]CycleValue)
	case Sensors:
		s.Sensors = make(map[SensorKey]SensorValue)
	case Geospatial:
		s.Geo = make(map[GeoKey]GeoValue)
	}
	return s
}

// Len returns the number of records in the set.
func (s *Set) Len() int {
	switch s.DataType {
	case Cycles:
		return len(s.Cycles)
	case Sensors:
		return len(s.Sensors)
	case Geospatial:
		return len(s.Geo)
	}
	return 0
}

// IDs returns the distinct device or location IDs present in the set.
func (s *Set) IDs() map[uint64]bool {
	ids := make(map[uint64]bool)
	switch s.DataType {
	case Cycles:
		for k := range s.Cycles {
			ids[k.DeviceID] = true
		}
	case Sensors:
		for k := range s.Sensors {
			ids[k.SensorID] = true
		}
	case Geospatial:
		for k := range s.Geo {
			ids[k.LocationID] = true
		}
	}
	return ids
}

// ValueColumns returns the labels of the non-key columns in position order.
// These become the data columns of a frame built from the set. For cycles
// the end-time label leads, mirroring the stored CycleValue layout.
func (s *Set) ValueColumns() []string {
	labels := make([]string, 0, len(s.Columns))
	if s.DataType == Cycles {
		var endSeen bool
		for _, c := range s.Columns {
			if c.Type == ColTime {
				if endSeen {
					labels = append(labels, c.Label)
					break
				}
				endSeen = true
			}
		}
	}

	extra := make([]ColumnMeta, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Type == ColDigit || c.Type == ColAlnum {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Position < extra[j].Position })
	for _, c := range extra {
		labels = append(labels, c.Label)
	}
	return labels
}
