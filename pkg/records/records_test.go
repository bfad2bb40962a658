package records

import (
	"testing"
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
)

func cycleMeta() []ColumnMeta {
	return []ColumnMeta{
		{Label: "ThermostatId", Position: 0, Type: ColID},
		{Label: "CycleType", Position: 1, Type: ColOpsTime},
		{Label: "StartTime", Position: 2, Type: ColTime},
		{Label: "EndTime", Position: 3, Type: ColTime},
	}
}

func sensorMeta() []ColumnMeta {
	return []ColumnMeta{
		{Label: "ThermostatId", Position: 0, Type: ColID},
		{Label: "TimeStamp", Position: 1, Type: ColTime},
		{Label: "Degrees", Position: 2, Type: ColAlnum},
	}
}

func TestParseDataType(t *testing.T) {
	tests := []struct {
		input    string
		expected DataType
		wantErr  bool
	}{
		{"cycles", Cycles, false},
		{"Cycles", Cycles, false},
		{"cycle", Cycles, false},
		{"sensors", Sensors, false},
		{" sensors ", Sensors, false},
		{"inside", Sensors, false},
		{"geospatial", Geospatial, false},
		{"geo", Geospatial, false},
		{"outside", Geospatial, false},
		{"weather", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDataType(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDataType(%q) expected error, got %v", tt.input, got)
				} else if !errors.IsType(err, errors.ErrorTypeConfig) {
					t.Errorf("ParseDataType(%q) error type = %v, expected config", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDataType(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseDataType(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDataTypeValid(t *testing.T) {
	for _, dt := range []DataType{Cycles, Sensors, Geospatial} {
		if !dt.Valid() {
			t.Errorf("%v.Valid() = false, expected true", dt)
		}
	}
	if DataType("weather").Valid() {
		t.Error(`DataType("weather").Valid() = true, expected false`)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
		wantErr  bool
	}{
		{"2012-01-01 00:03:40", time.Date(2012, 1, 1, 0, 3, 40, 0, time.UTC), false},
		{"2012-01-01 00:03", time.Date(2012, 1, 1, 0, 3, 0, 0, time.UTC), false},
		{"2012-01-01T00:03:40", time.Date(2012, 1, 1, 0, 3, 40, 0, time.UTC), false},
		{"1/2/2013 05:06:07", time.Date(2013, 1, 2, 5, 6, 7, 0, time.UTC), false},
		{"2013/01/02 05:06:07", time.Date(2013, 1, 2, 5, 6, 7, 0, time.UTC), false},
		{" 2012-01-01 00:03:40 ", time.Date(2012, 1, 1, 0, 3, 40, 0, time.UTC), false},
		{"not a time", time.Time{}, true},
		{"2012-01-01", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTime(tt.input, nil)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTime(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTime(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ParseTime(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFromRowsCycles(t *testing.T) {
	rows := [][]string{
		{"1298509", "Cool", "2012-01-01 00:03:40", "2012-01-01 00:15:20"},
		{"1298509", "Cool", "2012-01-01 01:00:00", "2012-01-01 01:11:30"},
		{"1298510", "Heat", "2012-01-01 00:05:00", "2012-01-01 00:10:00"},
		{"badid", "Cool", "2012-01-01 02:00:00", "2012-01-01 02:05:00"},
		{"1298511", "Cool", "garbage", "2012-01-01 03:00:00"},
	}

	set, stats, err := FromRows(rows, cycleMeta(), Cycles, &ParseOptions{CycleMode: "Cool"})
	if err != nil {
		t.Fatalf("FromRows() error: %v", err)
	}

	if set.Len() != 2 {
		t.Errorf("set.Len() = %d, expected 2", set.Len())
	}
	if stats.Rows != 5 || stats.Kept != 2 || stats.Skipped != 2 || stats.Filtered != 1 {
		t.Errorf("stats = %+v, expected Rows 5 Kept 2 Skipped 2 Filtered 1", stats)
	}

	key := CycleKey{
		DeviceID: 1298509,
		Mode:     "Cool",
		Start:    time.Date(2012, 1, 1, 0, 3, 40, 0, time.UTC),
	}
	val, ok := set.Cycles[key]
	if !ok {
		t.Fatalf("expected key %+v in set", key)
	}
	expectedEnd := time.Date(2012, 1, 1, 0, 15, 20, 0, time.UTC)
	if !val.End.Equal(expectedEnd) {
		t.Errorf("End = %v, expected %v", val.End, expectedEnd)
	}
	if len(val.Extra) != 0 {
		t.Errorf("Extra = %v, expected none", val.Extra)
	}
}

func TestFromRowsCyclesAllModes(t *testing.T) {
	rows := [][]string{
		{"1", "Cool", "2012-01-01 00:00:00", "2012-01-01 00:10:00"},
		{"1", "Heat", "2012-06-01 00:00:00", "2012-06-01 00:10:00"},
	}

	set, stats, err := FromRows(rows, cycleMeta(), Cycles, nil)
	if err != nil {
		t.Fatalf("FromRows() error: %v", err)
	}
	if set.Len() != 2 || stats.Filtered != 0 {
		t.Errorf("set.Len() = %d, Filtered = %d; expected both modes kept", set.Len(), stats.Filtered)
	}
}

func TestFromRowsSensors(t *testing.T) {
	meta := append(sensorMeta(), ColumnMeta{Label: "Humidity", Position: 3, Type: ColDigit})
	rows := [][]string{
		{"1298509", "2012-01-01 00:00:02", "71.5", "44"},
		{"1298509", "2012-01-01 00:05:02", "71", "45"},
		{"1298509", "2012-01-01 00:10:02", "NaNope", "46"},
	}

	set, stats, err := FromRows(rows, meta, Sensors, nil)
	if err != nil {
		t.Fatalf("FromRows() error: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("set.Len() = %d, expected 2", set.Len())
	}
	if stats.Skipped != 1 {
		t.Errorf("stats.Skipped = %d, expected 1", stats.Skipped)
	}

	key := SensorKey{SensorID: 1298509, Timestamp: time.Date(2012, 1, 1, 0, 0, 2, 0, time.UTC)}
	val, ok := set.Sensors[key]
	if !ok {
		t.Fatalf("expected key %+v in set", key)
	}
	if val.Degrees != 71.5 {
		t.Errorf("Degrees = %v, expected 71.5", val.Degrees)
	}
	if len(val.Extra) != 1 || val.Extra[0] != "44" {
		t.Errorf("Extra = %v, expected [44]", val.Extra)
	}
}

func TestFromRowsGeospatial(t *testing.T) {
	meta := []ColumnMeta{
		{Label: "LocationId", Position: 0, Type: ColID},
		{Label: "TimeStamp", Position: 1, Type: ColTime},
		{Label: "Degrees", Position: 2, Type: ColAlnum},
	}
	rows := [][]string{
		{"10894", "2012-01-01 00:00:00", "31.2"},
		{"10894", "2012-01-01 01:00:00", "30.1"},
	}

	set, _, err := FromRows(rows, meta, Geospatial, nil)
	if err != nil {
		t.Fatalf("FromRows() error: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("set.Len() = %d, expected 2", set.Len())
	}

	ids := set.IDs()
	if len(ids) != 1 || !ids[10894] {
		t.Errorf("IDs() = %v, expected {10894}", ids)
	}
}

func TestFromRowsAllowedIDs(t *testing.T) {
	rows := [][]string{
		{"100", "2012-01-01 00:00:00", "71.5"},
		{"200", "2012-01-01 00:00:00", "72.5"},
		{"300", "2012-01-01 00:00:00", "73.5"},
	}

	allowed := map[uint64]bool{100: true, 300: true}
	set, stats, err := FromRows(rows, sensorMeta(), Sensors, &ParseOptions{AllowedIDs: allowed})
	if err != nil {
		t.Fatalf("FromRows() error: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("set.Len() = %d, expected 2", set.Len())
	}
	if stats.Filtered != 1 {
		t.Errorf("stats.Filtered = %d, expected 1", stats.Filtered)
	}
	if _, ok := set.Sensors[SensorKey{SensorID: 200, Timestamp: time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)}]; ok {
		t.Error("ID 200 should have been filtered out")
	}
}

func TestFromRowsDeduplicatesKeys(t *testing.T) {
	rows := [][]string{
		{"1", "2012-01-01 00:00:00", "71.0"},
		{"1", "2012-01-01 00:00:00", "99.0"},
	}

	set, stats, err := FromRows(rows, sensorMeta(), Sensors, nil)
	if err != nil {
		t.Fatalf("FromRows() error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("set.Len() = %d, expected 1 after dedup", set.Len())
	}
	if stats.Kept != 2 {
		t.Errorf("stats.Kept = %d, expected 2 accepted rows", stats.Kept)
	}

	key := SensorKey{SensorID: 1, Timestamp: time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)}
	if set.Sensors[key].Degrees != 99.0 {
		t.Errorf("Degrees = %v, expected the later row to win", set.Sensors[key].Degrees)
	}
}

func TestFromRowsShortRow(t *testing.T) {
	rows := [][]string{
		{"1", "2012-01-01 00:00:00"},
		{"1", "2012-01-01 00:00:00", "71.0"},
	}

	set, stats, err := FromRows(rows, sensorMeta(), Sensors, nil)
	if err != nil {
		t.Fatalf("FromRows() error: %v", err)
	}
	if set.Len() != 1 || stats.Skipped != 1 {
		t.Errorf("Len = %d, Skipped = %d; expected short row dropped", set.Len(), stats.Skipped)
	}
}

func TestFromRowsMetadataErrors(t *testing.T) {
	tests := []struct {
		name string
		cols []ColumnMeta
		dt   DataType
	}{
		{
			"missing id",
			[]ColumnMeta{{Label: "TimeStamp", Position: 0, Type: ColTime}},
			Sensors,
		},
		{
			"missing time",
			[]ColumnMeta{{Label: "ThermostatId", Position: 0, Type: ColID}},
			Sensors,
		},
		{
			"cycles without mode",
			[]ColumnMeta{
				{Label: "ThermostatId", Position: 0, Type: ColID},
				{Label: "StartTime", Position: 1, Type: ColTime},
				{Label: "EndTime", Position: 2, Type: ColTime},
			},
			Cycles,
		},
		{
			"cycles without end time",
			[]ColumnMeta{
				{Label: "ThermostatId", Position: 0, Type: ColID},
				{Label: "CycleType", Position: 1, Type: ColOpsTime},
				{Label: "StartTime", Position: 2, Type: ColTime},
			},
			Cycles,
		},
		{
			"sensors without value column",
			[]ColumnMeta{
				{Label: "ThermostatId", Position: 0, Type: ColID},
				{Label: "TimeStamp", Position: 1, Type: ColTime},
			},
			Sensors,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := FromRows(nil, tt.cols, tt.dt, nil)
			if err == nil {
				t.Fatal("FromRows() expected error")
			}
			if !errors.IsType(err, errors.ErrorTypeDetect) {
				t.Errorf("error type = %v, expected detect", err)
			}
		})
	}
}

func TestValueColumns(t *testing.T) {
	tests := []struct {
		name     string
		set      *Set
		expected []string
	}{
		{
			"cycles",
			&Set{DataType: Cycles, Columns: cycleMeta()},
			[]string{"EndTime"},
		},
		{
			"cycles with extra column",
			&Set{DataType: Cycles, Columns: append(cycleMeta(),
				ColumnMeta{Label: "FanOn", Position: 4, Type: ColAlnum})},
			[]string{"EndTime", "FanOn"},
		},
		{
			"sensors ordered by position",
			&Set{DataType: Sensors, Columns: []ColumnMeta{
				{Label: "ThermostatId", Position: 0, Type: ColID},
				{Label: "TimeStamp", Position: 1, Type: ColTime},
				{Label: "Humidity", Position: 3, Type: ColDigit},
				{Label: "Degrees", Position: 2, Type: ColAlnum},
			}},
			[]string{"Degrees", "Humidity"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.set.ValueColumns()
			if len(got) != len(tt.expected) {
				t.Fatalf("ValueColumns() = %v, expected %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("ValueColumns()[%d] = %q, expected %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}
