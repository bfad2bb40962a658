package schema

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/caar/pkg/records"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// NumericStats summarizes a digit-only column over the detection sample.
type NumericStats struct {
	Max    float64 `json:"max" yaml:"max"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	Count  int     `json:"count" yaml:"count"`
}

// Detection is the detected column layout of a raw file. Columns are
// ordered the way record building expects them: ID first, then the
// cycle-mode and timestamp columns (or the single timestamp), then
// digit-only and alphanumeric value columns.
type Detection struct {
	DataType records.DataType        `json:"data_type" yaml:"data_type"`
	Columns  []records.ColumnMeta    `json:"columns" yaml:"columns"`
	Numeric  map[string]NumericStats `json:"numeric,omitempty" yaml:"numeric,omitempty"`
}

// ColumnByType returns the first column of the given type.
func (det *Detection) ColumnByType(t records.ColumnType) (records.ColumnMeta, bool) {
	for _, c := range det.Columns {
		if c.Type == t {
			return c, true
		}
	}
	return records.ColumnMeta{}, false
}

// Summary renders the detection for terminal output.
func (det *Detection) Summary() string {
	return stringpool.BuildString(func(b *stringpool.Builder) {
		b.WriteString(string(det.DataType))
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(len(det.Columns)))
		b.WriteString(" columns\n")
		for _, c := range det.Columns {
			b.WriteString("  [")
			b.WriteString(strconv.Itoa(c.Position))
			b.WriteString("] ")
			b.WriteString(c.Label)
			b.WriteString(" ")
			b.WriteString(string(c.Type))
			if st, ok := det.Numeric[c.Label]; ok && c.Type == records.ColDigit {
				b.WriteString(stringpool.Sprintf(" (max %.1f, stddev %.1f over %d rows)",
					st.Max, st.StdDev, st.Count))
			}
			b.WriteByte('\n')
		}
	})
}

// numericStats converts per-column stats to a label-keyed map for the
// detection result.
func (c *columnClasses) numericStats(header []string) map[string]NumericStats {
	if len(c.stats) == 0 {
		return nil
	}
	out := make(map[string]NumericStats, len(c.stats))
	for col, st := range c.stats {
		if col < len(header) {
			out[header[col]] = NumericStats{Max: st.max, StdDev: st.stddev, Count: st.count}
		}
	}
	return out
}

// parseNumeric parses a sampled value as a float, tolerating thousands
// separators.
func parseNumeric(val string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(val, ",", ""), 64)
}
