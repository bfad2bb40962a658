package frame

import (
	"math/rand"
	"testing"
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/records"
)

func cycleFrame(t *testing.T) *Frame {
	t.Helper()
	set := records.NewSet(records.Cycles)
	set.Columns = []records.ColumnMeta{
		{Label: "ThermostatId", Position: 0, Type: records.ColID},
		{Label: "CycleType", Position: 1, Type: records.ColOpsTime},
		{Label: "StartTime", Position: 2, Type: records.ColTime},
		{Label: "EndTime", Position: 3, Type: records.ColTime},
		{Label: "ActualCycles", Position: 4, Type: records.ColDigit},
	}
	add := func(id uint64, mode string, start, end time.Time, extra ...string) {
		set.Cycles[records.CycleKey{DeviceID: id, Mode: mode, Start: start}] =
			records.CycleValue{End: end, Extra: extra}
	}
	add(102, "Cool",
		time.Date(2012, 6, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2012, 6, 2, 10, 20, 0, 0, time.UTC), "2")
	add(100, "Heat",
		time.Date(2012, 1, 5, 6, 0, 0, 0, time.UTC),
		time.Date(2012, 1, 5, 6, 30, 0, 0, time.UTC), "1")
	add(100, "Cool",
		time.Date(2012, 6, 1, 14, 0, 0, 0, time.UTC),
		time.Date(2012, 6, 1, 14, 15, 0, 0, time.UTC), "3")
	add(100, "Cool",
		time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2012, 6, 1, 12, 10, 0, 0, time.UTC), "1")

	f, err := FromSet(set)
	if err != nil {
		t.Fatalf("FromSet() error: %v", err)
	}
	return f
}

func sensorFrame(t *testing.T) *Frame {
	t.Helper()
	set := records.NewSet(records.Sensors)
	set.Columns = []records.ColumnMeta{
		{Label: "ThermostatId", Position: 0, Type: records.ColID},
		{Label: "TimeStamp", Position: 1, Type: records.ColTime},
		{Label: "Degrees", Position: 2, Type: records.ColAlnum},
	}
	base := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		set.Sensors[records.SensorKey{
			SensorID:  1298509,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
		}] = records.SensorValue{Degrees: 70 + float64(i)}
	}
	set.Sensors[records.SensorKey{
		SensorID:  1298511,
		Timestamp: base.Add(time.Hour),
	}] = records.SensorValue{Degrees: 68}

	f, err := FromSet(set)
	if err != nil {
		t.Fatalf("FromSet() error: %v", err)
	}
	return f
}

func TestFromSetSortsRows(t *testing.T) {
	f := cycleFrame(t)
	rows := f.Rows()
	if len(rows) != 4 {
		t.Fatalf("Len() = %d, expected 4", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		a, b := rows[i-1], rows[i]
		sorted := a.ID < b.ID ||
			(a.ID == b.ID && a.Mode < b.Mode) ||
			(a.ID == b.ID && a.Mode == b.Mode && a.Time.Before(b.Time))
		if !sorted {
			t.Errorf("rows[%d] %+v not before rows[%d] %+v", i-1, a, i, b)
		}
	}
	if rows[0].ID != 100 || rows[0].Mode != "Cool" || rows[0].Time.Hour() != 12 {
		t.Errorf("rows[0] = %+v, expected device 100 Cool 12:00", rows[0])
	}
}

func TestFromSetInvalid(t *testing.T) {
	for name, set := range map[string]*records.Set{
		"nil":       nil,
		"data type": {DataType: "weather"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromSet(set)
			if err == nil {
				t.Fatal("FromSet() expected error, got nil")
			}
			if !errors.IsType(err, errors.ErrorTypeConfig) {
				t.Errorf("FromSet() error type = %v, expected config", err)
			}
		})
	}
}

func TestFrameColumns(t *testing.T) {
	f := cycleFrame(t)

	index := f.IndexColumns()
	expectedIndex := []string{"ThermostatId", "CycleType", "StartTime"}
	if len(index) != len(expectedIndex) {
		t.Fatalf("IndexColumns() = %v, expected %v", index, expectedIndex)
	}
	for i := range expectedIndex {
		if index[i] != expectedIndex[i] {
			t.Errorf("IndexColumns()[%d] = %q, expected %q", i, index[i], expectedIndex[i])
		}
	}

	values := f.Columns()
	expectedValues := []string{"EndTime", "ActualCycles"}
	if len(values) != len(expectedValues) {
		t.Fatalf("Columns() = %v, expected %v", values, expectedValues)
	}
	for i := range expectedValues {
		if values[i] != expectedValues[i] {
			t.Errorf("Columns()[%d] = %q, expected %q", i, values[i], expectedValues[i])
		}
	}
}

func TestFrameColumnsDefaults(t *testing.T) {
	set := records.NewSet(records.Geospatial)
	set.Geo[records.GeoKey{
		LocationID: 9001,
		Timestamp:  time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC),
	}] = records.GeoValue{Degrees: 31}

	f, err := FromSet(set)
	if err != nil {
		t.Fatalf("FromSet() error: %v", err)
	}
	index := f.IndexColumns()
	if index[0] != "location_id" || index[1] != "timestamp" {
		t.Errorf("IndexColumns() = %v, expected defaults", index)
	}
	if values := f.Columns(); len(values) != 1 || values[0] != "degrees" {
		t.Errorf("Columns() = %v, expected [degrees]", values)
	}
}

func TestFrameIDs(t *testing.T) {
	f := cycleFrame(t)
	ids := f.IDs()
	if len(ids) != 2 || ids[0] != 100 || ids[1] != 102 {
		t.Errorf("IDs() = %v, expected [100 102]", ids)
	}
}

func TestFrameTimes(t *testing.T) {
	f := cycleFrame(t)
	times := f.Times(100)
	if len(times) != 3 {
		t.Fatalf("Times(100) returned %d entries, expected 3", len(times))
	}
	// Chronological even though the index orders Cool before Heat.
	if times[0].Month() != time.January {
		t.Errorf("Times(100)[0] = %v, expected the January heat cycle first", times[0])
	}
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			t.Errorf("Times(100)[%d] = %v before previous %v", i, times[i], times[i-1])
		}
	}

	if times := f.Times(999); len(times) != 0 {
		t.Errorf("Times(999) = %v, expected empty", times)
	}
}

func TestSelectIDs(t *testing.T) {
	f := cycleFrame(t)

	one := f.SelectIDs(100)
	if one.Len() != 3 {
		t.Errorf("SelectIDs(100).Len() = %d, expected 3", one.Len())
	}
	both := f.SelectIDs(102, 100, 100)
	if both.Len() != 4 {
		t.Errorf("SelectIDs(102, 100, 100).Len() = %d, expected 4", both.Len())
	}
	if both.Rows()[0].ID != 100 {
		t.Errorf("SelectIDs rows start with ID %d, expected 100", both.Rows()[0].ID)
	}
	if missing := f.SelectIDs(999); missing.Len() != 0 {
		t.Errorf("SelectIDs(999).Len() = %d, expected 0", missing.Len())
	}
}

func TestSelectRangeInclusive(t *testing.T) {
	f := sensorFrame(t)
	from := time.Date(2012, 1, 1, 0, 5, 0, 0, time.UTC)
	to := time.Date(2012, 1, 1, 0, 15, 0, 0, time.UTC)

	sel := f.SelectRange(1298509, from, to)
	if sel.Len() != 3 {
		t.Fatalf("SelectRange() Len = %d, expected 3 (both ends inclusive)", sel.Len())
	}
	rows := sel.Rows()
	if !rows[0].Time.Equal(from) || !rows[2].Time.Equal(to) {
		t.Errorf("SelectRange() rows span %v..%v, expected %v..%v",
			rows[0].Time, rows[2].Time, from, to)
	}
}

func TestSelectRangeCycles(t *testing.T) {
	f := cycleFrame(t)
	from := time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2012, 6, 30, 0, 0, 0, 0, time.UTC)

	sel := f.SelectRange(100, from, to)
	if sel.Len() != 2 {
		t.Errorf("SelectRange() Len = %d, expected the two June cool cycles", sel.Len())
	}
	for _, r := range sel.Rows() {
		if r.Mode != "Cool" {
			t.Errorf("SelectRange() returned %+v, expected only June cycles", r)
		}
	}
}

func TestBetween(t *testing.T) {
	f := sensorFrame(t)
	from := time.Date(2012, 1, 1, 0, 20, 0, 0, time.UTC)
	to := time.Date(2012, 1, 1, 1, 0, 0, 0, time.UTC)

	sel := f.Between(from, to)
	if sel.Len() != 3 {
		t.Errorf("Between() Len = %d, expected 3 (two from 1298509, one from 1298511)", sel.Len())
	}
}

func TestRandomRecord(t *testing.T) {
	f := sensorFrame(t)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 10; i++ {
		row, err := f.RandomRecord(rng)
		if err != nil {
			t.Fatalf("RandomRecord() error: %v", err)
		}
		if row.ID != 1298509 && row.ID != 1298511 {
			t.Errorf("RandomRecord() returned unknown ID %d", row.ID)
		}
	}

	if _, err := f.RandomRecord(nil); err != nil {
		t.Errorf("RandomRecord(nil) error: %v", err)
	}
}

func TestTimeBounds(t *testing.T) {
	f := sensorFrame(t)

	min, max, ok := f.TimeBounds()
	if !ok {
		t.Fatal("TimeBounds() ok = false for populated frame")
	}
	if want := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC); !min.Equal(want) {
		t.Errorf("TimeBounds() min = %v, expected %v", min, want)
	}
	if want := time.Date(2012, 1, 1, 1, 0, 0, 0, time.UTC); !max.Equal(want) {
		t.Errorf("TimeBounds() max = %v, expected %v", max, want)
	}

	if _, _, ok := f.SelectIDs(999).TimeBounds(); ok {
		t.Error("TimeBounds() ok = true for empty frame")
	}
}

func TestRandomRecordEmpty(t *testing.T) {
	f := sensorFrame(t).SelectIDs(999)
	_, err := f.RandomRecord(rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("RandomRecord() on empty frame expected error, got nil")
	}
	if !errors.IsType(err, errors.ErrorTypeData) {
		t.Errorf("RandomRecord() error type = %v, expected data", err)
	}
}
