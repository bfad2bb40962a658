package config

import (
	"fmt"

	"github.com/ajitpratap0/caar/pkg/records"
)

// LayoutConfig groups the fixed column layouts for the three supported
// data types. When Parse.Auto is false, these positions take the place of
// the sampling heuristics: the column order in the raw file must match the
// layout exactly.
type LayoutConfig struct {
	Cycles  CycleLayout  `yaml:"cycles" json:"cycles"`
	Sensors SensorLayout `yaml:"sensors" json:"sensors"`
	Geo     GeoLayout    `yaml:"geo" json:"geo"`
}

// CycleLayout describes a thermostat cycle file with a known column order.
type CycleLayout struct {
	// Fields are the expected column headings, left to right
	Fields []string `yaml:"fields" json:"fields"`
	// IDIndex is the 0-based position of the device ID column
	IDIndex int `yaml:"id_index" json:"id_index"`
	// ModeIndex is the position of the cycle mode column (e.g. Cool/Heat)
	ModeIndex int `yaml:"mode_index" json:"mode_index"`
	// StartIndex is the position of the cycle start time column
	StartIndex int `yaml:"start_index" json:"start_index"`
	// EndIndex is the position of the cycle end time column; columns from
	// EndIndex onward are carried as record values
	EndIndex int `yaml:"end_index" json:"end_index"`
	// UniqueFieldIndex points at the heading that only cycle files carry,
	// used to recognize the data type from a header alone
	UniqueFieldIndex int `yaml:"unique_field_index" json:"unique_field_index"`
	// StartLabel and EndLabel name the output index and value columns
	StartLabel string `yaml:"start_label" json:"start_label"`
	EndLabel   string `yaml:"end_label" json:"end_label"`
	// DeviceLabel names the output index column holding device IDs
	DeviceLabel string `yaml:"device_label" json:"device_label"`
}

// SensorLayout describes an indoor temperature file with a known column order.
type SensorLayout struct {
	// Fields are the expected column headings, left to right
	Fields []string `yaml:"fields" json:"fields"`
	// IDIndex is the 0-based position of the device ID column
	IDIndex int `yaml:"id_index" json:"id_index"`
	// TimeIndex is the position of the observation timestamp column
	TimeIndex int `yaml:"time_index" json:"time_index"`
	// ValueIndex is the position of the temperature reading column
	ValueIndex int `yaml:"value_index" json:"value_index"`
	// DeviceLabel and TimeLabel name the output index columns
	DeviceLabel string `yaml:"device_label" json:"device_label"`
	TimeLabel   string `yaml:"time_label" json:"time_label"`
	// ValueLabel names the output value column
	ValueLabel string `yaml:"value_label" json:"value_label"`
}

// GeoLayout describes a weather station observation file with a known
// column order.
type GeoLayout struct {
	// Fields are the expected column headings, left to right
	Fields []string `yaml:"fields" json:"fields"`
	// IDIndex is the 0-based position of the location ID column
	IDIndex int `yaml:"id_index" json:"id_index"`
	// TimeIndex is the position of the observation timestamp column
	TimeIndex int `yaml:"time_index" json:"time_index"`
	// ValueIndex is the position of the observation column
	ValueIndex int `yaml:"value_index" json:"value_index"`
	// UniqueFieldIndex points at the heading that only geospatial files
	// carry, used to recognize the data type from a header alone
	UniqueFieldIndex int `yaml:"unique_field_index" json:"unique_field_index"`
	// LocationLabel and TimeLabel name the output index columns
	LocationLabel string `yaml:"location_label" json:"location_label"`
	TimeLabel     string `yaml:"time_label" json:"time_label"`
	// ValueLabel names the output value column
	ValueLabel string `yaml:"value_label" json:"value_label"`
}

// DefaultLayouts returns layouts matching the example data files:
// cycle files headed ThermostatId, CycleType, StartTime, EndTime, indoor
// files headed ThermostatId, TimeStamp, Degrees, and outdoor files headed
// LocationId, TimeStamp, Degrees.
func DefaultLayouts() LayoutConfig {
	return LayoutConfig{
		Cycles: CycleLayout{
			Fields:           []string{"ThermostatId", "CycleType", "StartTime", "EndTime"},
			IDIndex:          0,
			ModeIndex:        1,
			StartIndex:       2,
			EndIndex:         3,
			UniqueFieldIndex: 1, // CycleType only appears in cycle files
			StartLabel:       "start_time",
			EndLabel:         "end_time",
			DeviceLabel:      "device_id",
		},
		Sensors: SensorLayout{
			Fields:      []string{"ThermostatId", "TimeStamp", "Degrees"},
			IDIndex:     0,
			TimeIndex:   1,
			ValueIndex:  2,
			DeviceLabel: "device_id",
			TimeLabel:   "log_date",
			ValueLabel:  "degrees",
		},
		Geo: GeoLayout{
			Fields:           []string{"LocationId", "TimeStamp", "Degrees"},
			IDIndex:          0,
			TimeIndex:        1,
			ValueIndex:       2,
			UniqueFieldIndex: 0, // LocationId only appears in outdoor files
			LocationLabel:    "location_id",
			TimeLabel:        "log_date",
			ValueLabel:       "degrees",
		},
	}
}

// UniqueField returns the heading that identifies a cycle file.
func (l *CycleLayout) UniqueField() string {
	if l.UniqueFieldIndex < 0 || l.UniqueFieldIndex >= len(l.Fields) {
		return ""
	}
	return l.Fields[l.UniqueFieldIndex]
}

// UniqueField returns the heading that identifies a geospatial file.
func (l *GeoLayout) UniqueField() string {
	if l.UniqueFieldIndex < 0 || l.UniqueFieldIndex >= len(l.Fields) {
		return ""
	}
	return l.Fields[l.UniqueFieldIndex]
}

// ValueFields returns the headings carried as cycle record values,
// which are the columns from EndIndex rightward.
func (l *CycleLayout) ValueFields() []string {
	if l.EndIndex < 0 || l.EndIndex >= len(l.Fields) {
		return nil
	}
	return l.Fields[l.EndIndex:]
}

// Meta converts the fixed cycle layout into column metadata, taking the
// place of sampling-based detection.
func (l *CycleLayout) Meta() ([]records.ColumnMeta, error) {
	for _, idx := range [...]int{l.IDIndex, l.ModeIndex, l.StartIndex, l.EndIndex} {
		if idx < 0 || idx >= len(l.Fields) {
			return nil, fmt.Errorf("cycle layout index %d out of range for %d fields", idx, len(l.Fields))
		}
	}
	meta := []records.ColumnMeta{
		{Label: l.Fields[l.IDIndex], Position: l.IDIndex, Type: records.ColID},
		{Label: l.Fields[l.ModeIndex], Position: l.ModeIndex, Type: records.ColOpsTime},
		{Label: l.Fields[l.StartIndex], Position: l.StartIndex, Type: records.ColTime},
		{Label: l.Fields[l.EndIndex], Position: l.EndIndex, Type: records.ColTime},
	}
	for i := l.EndIndex + 1; i < len(l.Fields); i++ {
		meta = append(meta, records.ColumnMeta{Label: l.Fields[i], Position: i, Type: records.ColAlnum})
	}
	return meta, nil
}

// Meta converts the fixed sensor layout into column metadata.
func (l *SensorLayout) Meta() ([]records.ColumnMeta, error) {
	for _, idx := range [...]int{l.IDIndex, l.TimeIndex, l.ValueIndex} {
		if idx < 0 || idx >= len(l.Fields) {
			return nil, fmt.Errorf("sensor layout index %d out of range for %d fields", idx, len(l.Fields))
		}
	}
	meta := []records.ColumnMeta{
		{Label: l.Fields[l.IDIndex], Position: l.IDIndex, Type: records.ColID},
		{Label: l.Fields[l.TimeIndex], Position: l.TimeIndex, Type: records.ColTime},
		{Label: l.Fields[l.ValueIndex], Position: l.ValueIndex, Type: records.ColAlnum},
	}
	for i := 0; i < len(l.Fields); i++ {
		if i == l.IDIndex || i == l.TimeIndex || i == l.ValueIndex {
			continue
		}
		meta = append(meta, records.ColumnMeta{Label: l.Fields[i], Position: i, Type: records.ColAlnum})
	}
	return meta, nil
}

// Meta converts the fixed geospatial layout into column metadata.
func (l *GeoLayout) Meta() ([]records.ColumnMeta, error) {
	for _, idx := range [...]int{l.IDIndex, l.TimeIndex, l.ValueIndex} {
		if idx < 0 || idx >= len(l.Fields) {
			return nil, fmt.Errorf("geospatial layout index %d out of range for %d fields", idx, len(l.Fields))
		}
	}
	meta := []records.ColumnMeta{
		{Label: l.Fields[l.IDIndex], Position: l.IDIndex, Type: records.ColID},
		{Label: l.Fields[l.TimeIndex], Position: l.TimeIndex, Type: records.ColTime},
		{Label: l.Fields[l.ValueIndex], Position: l.ValueIndex, Type: records.ColAlnum},
	}
	for i := 0; i < len(l.Fields); i++ {
		if i == l.IDIndex || i == l.TimeIndex || i == l.ValueIndex {
			continue
		}
		meta = append(meta, records.ColumnMeta{Label: l.Fields[i], Position: i, Type: records.ColAlnum})
	}
	return meta, nil
}

// MetaFor returns the fixed column metadata for the given data type.
func (lc *LayoutConfig) MetaFor(dt records.DataType) ([]records.ColumnMeta, error) {
	switch dt {
	case records.Cycles:
		return lc.Cycles.Meta()
	case records.Sensors:
		return lc.Sensors.Meta()
	case records.Geospatial:
		return lc.Geo.Meta()
	}
	return nil, fmt.Errorf("no fixed layout for data type %q", dt)
}

// Match recognizes the data type of a file from its header alone. The
// cycle and geospatial unique fields are checked before the shared
// thermostat ID field, since sensor and cycle files both carry it.
func (lc *LayoutConfig) Match(header []string) (records.DataType, bool) {
	in := func(want string) bool {
		if want == "" {
			return false
		}
		for _, h := range header {
			if h == want {
				return true
			}
		}
		return false
	}

	if in(lc.Cycles.UniqueField()) {
		return records.Cycles, true
	}
	if in(lc.Geo.UniqueField()) {
		return records.Geospatial, true
	}
	if lc.Sensors.IDIndex >= 0 && lc.Sensors.IDIndex < len(lc.Sensors.Fields) &&
		in(lc.Sensors.Fields[lc.Sensors.IDIndex]) {
		return records.Sensors, true
	}
	return "", false
}
