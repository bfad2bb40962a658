// Package frame materializes a cleaned record set into a sorted tabular
// view with a composite index: (device, mode, start) for cycles, (id,
// timestamp) for sensor and geospatial readings. Frames are immutable
// after construction; selections return views over the same backing rows.
package frame

import (
	"math/rand"
	"sort"
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/records"
)

// Row is one indexed record. Mode and End are set for cycle frames,
// Value for sensor and geospatial frames; Extra carries the remaining
// value columns raw.
type Row struct {
	ID    uint64
	Mode  string
	Time  time.Time
	End   time.Time
	Value float64
	Extra []string
}

// Frame is a sorted, indexed view over the records of one data type.
type Frame struct {
	dataType records.DataType
	index    []string
	values   []string
	rows     []Row
}

// Default column labels for sets built by hand, without detection
// metadata. The labelled paths take these from the source file's header.
var (
	defaultCycleIndex  = []string{"device_id", "cycle_mode", "start_time"}
	defaultSensorIndex = []string{"sensor_id", "timestamp"}
	defaultGeoIndex    = []string{"location_id", "timestamp"}
)

// FromSet builds a frame from a record set. Rows sort by (ID, Mode,
// Start) for cycles and (ID, Timestamp) otherwise; index and value
// column labels come from the set's column metadata.
func FromSet(set *records.Set) (*Frame, error) {
	if set == nil || !set.DataType.Valid() {
		return nil, errors.New(errors.ErrorTypeConfig,
			"cannot build a frame from an invalid record set")
	}

	f := &Frame{
		dataType: set.DataType,
		index:    indexLabels(set),
		values:   valueLabels(set),
	}

	switch set.DataType {
	case records.Cycles:
		f.rows = make([]Row, 0, len(set.Cycles))
		for k, v := range set.Cycles {
			f.rows = append(f.rows, Row{
				ID:    k.DeviceID,
				Mode:  k.Mode,
				Time:  k.Start,
				End:   v.End,
				Extra: v.Extra,
			})
		}
	case records.Sensors:
		f.rows = make([]Row, 0, len(set.Sensors))
		for k, v := range set.Sensors {
			f.rows = append(f.rows, Row{
				ID:    k.SensorID,
				Time:  k.Timestamp,
				Value: v.Degrees,
				Extra: v.Extra,
			})
		}
	case records.Geospatial:
		f.rows = make([]Row, 0, len(set.Geo))
		for k, v := range set.Geo {
			f.rows = append(f.rows, Row{
				ID:    k.LocationID,
				Time:  k.Timestamp,
				Value: v.Degrees,
				Extra: v.Extra,
			})
		}
	}

	sort.Slice(f.rows, func(i, j int) bool { return f.less(f.rows[i], f.rows[j]) })
	return f, nil
}

func (f *Frame) less(a, b Row) bool {
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if f.dataType == records.Cycles && a.Mode != b.Mode {
		return a.Mode < b.Mode
	}
	return a.Time.Before(b.Time)
}

func indexLabels(set *records.Set) []string {
	var defaults []string
	switch set.DataType {
	case records.Cycles:
		defaults = defaultCycleIndex
	case records.Sensors:
		defaults = defaultSensorIndex
	default:
		defaults = defaultGeoIndex
	}

	labels := append([]string(nil), defaults...)
	var timeSeen bool
	for _, c := range set.Columns {
		switch c.Type {
		case records.ColID:
			labels[0] = c.Label
		case records.ColOpsTime:
			if set.DataType == records.Cycles {
				labels[1] = c.Label
			}
		case records.ColTime:
			// The first timestamp column names the time level.
			if timeSeen {
				continue
			}
			timeSeen = true
			if set.DataType == records.Cycles {
				labels[2] = c.Label
			} else {
				labels[1] = c.Label
			}
		}
	}
	return labels
}

func valueLabels(set *records.Set) []string {
	if labels := set.ValueColumns(); len(labels) > 0 {
		return labels
	}
	if set.DataType == records.Cycles {
		return []string{"end_time"}
	}
	return []string{"degrees"}
}

// DataType returns the data type the frame was built from.
func (f *Frame) DataType() records.DataType {
	return f.dataType
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// IndexColumns returns the index level labels.
func (f *Frame) IndexColumns() []string {
	return append([]string(nil), f.index...)
}

// Columns returns the value column labels.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.values...)
}

// Rows returns the sorted backing rows. Callers must not modify them.
func (f *Frame) Rows() []Row {
	return f.rows
}

// IDs returns the distinct IDs in ascending order.
func (f *Frame) IDs() []uint64 {
	ids := make([]uint64, 0)
	for i, r := range f.rows {
		if i == 0 || r.ID != f.rows[i-1].ID {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Times returns the timestamps recorded for one ID in chronological
// order: cycle starts for cycle frames, observation times otherwise.
func (f *Frame) Times(id uint64) []time.Time {
	lo, hi := f.idRun(id)
	times := make([]time.Time, 0, hi-lo)
	for _, r := range f.rows[lo:hi] {
		times = append(times, r.Time)
	}
	if f.dataType == records.Cycles {
		// The run is ordered by mode first.
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	}
	return times
}

// idRun returns the half-open row range holding id.
func (f *Frame) idRun(id uint64) (int, int) {
	lo := sort.Search(len(f.rows), func(i int) bool { return f.rows[i].ID >= id })
	hi := sort.Search(len(f.rows), func(i int) bool { return f.rows[i].ID > id })
	return lo, hi
}

func (f *Frame) view(rows []Row) *Frame {
	return &Frame{dataType: f.dataType, index: f.index, values: f.values, rows: rows}
}

// SelectIDs returns the rows of the given IDs. A single ID yields a view
// over the backing rows; multiple IDs gather their runs in ID order.
func (f *Frame) SelectIDs(ids ...uint64) *Frame {
	if len(ids) == 1 {
		lo, hi := f.idRun(ids[0])
		return f.view(f.rows[lo:hi])
	}

	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var rows []Row
	var prev uint64
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		lo, hi := f.idRun(id)
		rows = append(rows, f.rows[lo:hi]...)
	}
	return f.view(rows)
}

// SelectRange returns one ID's rows with timestamps in [from, to], both
// ends inclusive.
func (f *Frame) SelectRange(id uint64, from, to time.Time) *Frame {
	lo, hi := f.idRun(id)
	run := f.rows[lo:hi]

	if f.dataType == records.Cycles {
		// Cycle runs interleave start times across modes.
		rows := make([]Row, 0, len(run))
		for _, r := range run {
			if !r.Time.Before(from) && !r.Time.After(to) {
				rows = append(rows, r)
			}
		}
		return f.view(rows)
	}

	a := sort.Search(len(run), func(i int) bool { return !run[i].Time.Before(from) })
	b := sort.Search(len(run), func(i int) bool { return run[i].Time.After(to) })
	return f.view(run[a:b])
}

// Between returns the rows of every ID with timestamps in [from, to],
// both ends inclusive.
func (f *Frame) Between(from, to time.Time) *Frame {
	rows := make([]Row, 0)
	for _, r := range f.rows {
		if !r.Time.Before(from) && !r.Time.After(to) {
			rows = append(rows, r)
		}
	}
	return f.view(rows)
}

// TimeBounds returns the earliest and latest timestamps in the frame.
// ok is false for an empty frame.
func (f *Frame) TimeBounds() (min, max time.Time, ok bool) {
	if len(f.rows) == 0 {
		return time.Time{}, time.Time{}, false
	}
	min, max = f.rows[0].Time, f.rows[0].Time
	for _, r := range f.rows[1:] {
		if r.Time.Before(min) {
			min = r.Time
		}
		if r.Time.After(max) {
			max = r.Time
		}
	}
	return min, max, true
}

// RandomRecord returns one uniformly chosen row. A nil rng falls back to
// a time-seeded source.
func (f *Frame) RandomRecord(rng *rand.Rand) (Row, error) {
	if len(f.rows) == 0 {
		return Row{}, errors.New(errors.ErrorTypeData, "frame has no records")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return f.rows[rng.Intn(len(f.rows))], nil
}
