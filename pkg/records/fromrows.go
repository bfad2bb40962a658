package records

import (
	"sort"
	"strconv"
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// DefaultTimeFormats returns the timestamp layouts tried, in order, when
// parsing raw timestamp fields.
func DefaultTimeFormats() []string {
	return []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04:05",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"2006/01/02 15:04:05",
		"2006/01/02 15:04",
	}
}

// ParseTime parses a raw timestamp field against the layouts in order.
// An empty layouts slice falls back to DefaultTimeFormats.
func ParseTime(s string, layouts []string) (time.Time, error) {
	if len(layouts) == 0 {
		layouts = DefaultTimeFormats()
	}
	s = stringpool.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New(errors.ErrorTypeParse,
		stringpool.Sprintf("timestamp %q matches none of the configured layouts", s))
}

// timeParser remembers the last layout that matched. Raw files use one
// layout throughout, so after the first row every parse hits immediately.
type timeParser struct {
	layouts []string
	hit     int
}

func newTimeParser(layouts []string) *timeParser {
	if len(layouts) == 0 {
		layouts = DefaultTimeFormats()
	}
	return &timeParser{layouts: layouts}
}

func (p *timeParser) parse(s string) (time.Time, error) {
	s = stringpool.TrimSpace(s)
	if t, err := time.Parse(p.layouts[p.hit], s); err == nil {
		return t, nil
	}
	for i, layout := range p.layouts {
		if i == p.hit {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			p.hit = i
			return t, nil
		}
	}
	return time.Time{}, errors.New(errors.ErrorTypeParse,
		stringpool.Sprintf("timestamp %q matches none of the configured layouts", s))
}

// ParseOptions control row-to-record conversion.
type ParseOptions struct {
	// TimeFormats are candidate timestamp layouts; DefaultTimeFormats when
	// empty.
	TimeFormats []string
	// CycleMode keeps only cycle rows whose mode column equals it; empty
	// keeps every mode.
	CycleMode string
	// AllowedIDs keeps only rows whose device or location ID is present;
	// nil keeps every ID.
	AllowedIDs map[uint64]bool
}

// BuildStats reports what FromRows did with the offered rows. Kept counts
// accepted rows; the set can end up smaller when keys repeat.
type BuildStats struct {
	Rows     int
	Kept     int
	Skipped  int // unparseable ID, timestamp or reading fields
	Filtered int // dropped by CycleMode or AllowedIDs
}

// colPlan maps column metadata onto row positions for one data type.
type colPlan struct {
	id     int
	mode   int
	start  int
	end    int
	value  int
	extra  []int
	maxPos int
}

func planColumns(cols []ColumnMeta, dt DataType) (*colPlan, error) {
	plan := &colPlan{id: -1, mode: -1, start: -1, end: -1, value: -1}

	var values []ColumnMeta
	for _, c := range cols {
		switch c.Type {
		case ColID:
			if plan.id == -1 {
				plan.id = c.Position
			}
		case ColOpsTime:
			if plan.mode == -1 {
				plan.mode = c.Position
			}
		case ColTime:
			if plan.start == -1 {
				plan.start = c.Position
			} else if plan.end == -1 {
				plan.end = c.Position
			}
		case ColDigit, ColAlnum:
			values = append(values, c)
		}
	}

	if plan.id == -1 {
		return nil, errors.New(errors.ErrorTypeDetect, "column metadata has no id column")
	}
	if plan.start == -1 {
		return nil, errors.New(errors.ErrorTypeDetect, "column metadata has no timestamp column")
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Position < values[j].Position })

	switch dt {
	case Cycles:
		if plan.mode == -1 {
			return nil, errors.New(errors.ErrorTypeDetect, "cycle data requires an operating-mode column")
		}
		if plan.end == -1 {
			return nil, errors.New(errors.ErrorTypeDetect, "cycle data requires start and end timestamp columns")
		}
		for _, v := range values {
			plan.extra = append(plan.extra, v.Position)
		}
	default:
		if len(values) == 0 {
			return nil, errors.New(errors.ErrorTypeDetect, "column metadata has no value column")
		}
		plan.value = values[0].Position
		for _, v := range values[1:] {
			plan.extra = append(plan.extra, v.Position)
		}
	}

	plan.maxPos = plan.id
	for _, p := range [...]int{plan.mode, plan.start, plan.end, plan.value} {
		if p > plan.maxPos {
			plan.maxPos = p
		}
	}
	for _, p := range plan.extra {
		if p > plan.maxPos {
			plan.maxPos = p
		}
	}
	return plan, nil
}

// FromRows converts validated rows into a keyed record set under the given
// column metadata. Rows whose keyed fields fail to parse are dropped
// silently and counted; field strings are copied, so rows may alias
// short-lived buffers.
func FromRows(rows [][]string, cols []ColumnMeta, dt DataType, opts *ParseOptions) (*Set, BuildStats, error) {
	var stats BuildStats
	if !dt.Valid() {
		return nil, stats, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("unknown data type %q", string(dt)))
	}
	if opts == nil {
		opts = &ParseOptions{}
	}

	plan, err := planColumns(cols, dt)
	if err != nil {
		return nil, stats, err
	}

	set := NewSet(dt)
	set.Columns = append([]ColumnMeta(nil), cols...)

	parser := newTimeParser(opts.TimeFormats)
	modes := stringpool.NewIntern()

	stats.Rows = len(rows)
	for _, row := range rows {
		if len(row) <= plan.maxPos {
			stats.Skipped++
			continue
		}

		switch dt {
		case Cycles:
			mode := stringpool.TrimSpace(row[plan.mode])
			if opts.CycleMode != "" && mode != opts.CycleMode {
				stats.Filtered++
				continue
			}
			id, err := strconv.ParseUint(stringpool.TrimSpace(row[plan.id]), 10, 64)
			if err != nil {
				stats.Skipped++
				continue
			}
			if opts.AllowedIDs != nil && !opts.AllowedIDs[id] {
				stats.Filtered++
				continue
			}
			start, err := parser.parse(row[plan.start])
			if err != nil {
				stats.Skipped++
				continue
			}
			end, err := parser.parse(row[plan.end])
			if err != nil {
				stats.Skipped++
				continue
			}
			key := CycleKey{DeviceID: id, Mode: modes.Get(mode), Start: start}
			set.Cycles[key] = CycleValue{End: end, Extra: cloneExtras(row, plan.extra)}

		case Sensors:
			id, err := strconv.ParseUint(stringpool.TrimSpace(row[plan.id]), 10, 64)
			if err != nil {
				stats.Skipped++
				continue
			}
			if opts.AllowedIDs != nil && !opts.AllowedIDs[id] {
				stats.Filtered++
				continue
			}
			ts, err := parser.parse(row[plan.start])
			if err != nil {
				stats.Skipped++
				continue
			}
			degrees, err := strconv.ParseFloat(stringpool.TrimSpace(row[plan.value]), 64)
			if err != nil {
				stats.Skipped++
				continue
			}
			key := SensorKey{SensorID: id, Timestamp: ts}
			set.Sensors[key] = SensorValue{Degrees: degrees, Extra: cloneExtras(row, plan.extra)}

		case Geospatial:
			id, err := strconv.ParseUint(stringpool.TrimSpace(row[plan.id]), 10, 64)
			if err != nil {
				stats.Skipped++
				continue
			}
			if opts.AllowedIDs != nil && !opts.AllowedIDs[id] {
				stats.Filtered++
				continue
			}
			ts, err := parser.parse(row[plan.start])
			if err != nil {
				stats.Skipped++
				continue
			}
			degrees, err := strconv.ParseFloat(stringpool.TrimSpace(row[plan.value]), 64)
			if err != nil {
				stats.Skipped++
				continue
			}
			key := GeoKey{LocationID: id, Timestamp: ts}
			set.Geo[key] = GeoValue{Degrees: degrees, Extra: cloneExtras(row, plan.extra)}
		}

		stats.Kept++
	}

	return set, stats, nil
}

// cloneExtras copies the remaining value fields out of the row so the set
// never aliases parser or mmap buffers.
func cloneExtras(row []string, cols []int) []string {
	if len(cols) == 0 {
		return nil
	}
	extra := make([]string, len(cols))
	for i, c := range cols {
		extra[i] = stringpool.Clone(stringpool.TrimSpace(row[c]))
	}
	return extra
}
