// Package schema detects the column layout of raw observation files.
//
// Providers ship thermostat cycle, indoor sensor and weather-station files
// with arbitrary column orders and labels. The detector examines a sample
// of parsed rows and works out which column carries the device ID, which
// carry timestamps, which holds the cycle mode, and how the remaining
// value columns should be typed. The resulting column metadata drives
// record building and is persisted alongside cached record sets.
package schema

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/records"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

const (
	// DefaultSampleSize is the number of rows examined for detection.
	DefaultSampleSize = 1000
	// cycleScanLimit bounds the search for the cycle-mode column.
	cycleScanLimit = 1000
	// idValueThreshold separates device IDs from observation values when
	// only digit columns remain: IDs run well above 150, temperatures in
	// any unit do not.
	idValueThreshold = 150
)

// DetectOptions configures column detection.
type DetectOptions struct {
	// SampleSize is the number of rows examined. Zero means
	// DefaultSampleSize.
	SampleSize int
	// CycleMode is the operating-mode literal (for example "Cool") used
	// to locate the mode column in cycle files. Required for cycle data.
	CycleMode string
	// TimeFormats are the timestamp layouts tried on candidate values.
	// Empty means the default layouts.
	TimeFormats []string
}

// Detector infers column metadata from sampled rows.
type Detector struct {
	opts   DetectOptions
	logger *zap.Logger
}

// NewDetector creates a detector. A nil logger falls back to the global one.
func NewDetector(opts DetectOptions, log *zap.Logger) *Detector {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if log == nil {
		log = logger.Get()
	}
	return &Detector{opts: opts, logger: log}
}

// Detect examines the sampled rows and returns the detected column layout
// for the given data type. The rows must be valid (field count matching
// the header); the first rows up to SampleSize are used.
func (d *Detector) Detect(rows [][]string, header []string, dt records.DataType) (*Detection, error) {
	if !dt.Valid() {
		return nil, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("unknown data type %q", string(dt)))
	}
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrorTypeData, "no data rows to sample")
	}
	sample := rows
	if len(sample) > d.opts.SampleSize {
		sample = sample[:d.opts.SampleSize]
	}

	cycleCol := -1
	if dt == records.Cycles {
		if d.opts.CycleMode == "" {
			return nil, errors.New(errors.ErrorTypeConfig,
				"cycle column detection requires a cycle mode literal")
		}
		col, err := DetectCycleCol(rows, d.opts.CycleMode)
		if err != nil {
			return nil, err
		}
		cycleCol = col
	}

	timeCols := d.detectTimeCols(sample[0])
	var start, end, timeCol int
	var classifyTimes []int
	switch dt {
	case records.Cycles:
		if len(timeCols) < 2 {
			return nil, errors.New(errors.ErrorTypeDetect,
				"cycle data requires start and end timestamp columns")
		}
		start, end = timeCols[0], timeCols[1]
		classifyTimes = []int{start, end}
	default:
		if len(timeCols) < 1 {
			return nil, errors.New(errors.ErrorTypeDetect, "no timestamp column detected")
		}
		timeCol = timeCols[0]
		classifyTimes = []int{timeCol}
	}

	cols := d.classifyColumns(sample, classifyTimes, cycleCol)
	idCol, err := d.detectIDCol(sample, header, cols, classifyTimes, cycleCol)
	if err != nil {
		return nil, err
	}

	det := &Detection{DataType: dt, Numeric: cols.numericStats(header)}
	det.Columns = append(det.Columns, records.ColumnMeta{
		Label: header[idCol], Position: idCol, Type: records.ColID,
	})
	if dt == records.Cycles {
		det.Columns = append(det.Columns,
			records.ColumnMeta{Label: header[cycleCol], Position: cycleCol, Type: records.ColOpsTime},
			records.ColumnMeta{Label: header[start], Position: start, Type: records.ColTime},
			records.ColumnMeta{Label: header[end], Position: end, Type: records.ColTime})
	} else {
		det.Columns = append(det.Columns,
			records.ColumnMeta{Label: header[timeCol], Position: timeCol, Type: records.ColTime})
	}
	for _, c := range cols.digitOnly {
		if c != idCol {
			det.Columns = append(det.Columns,
				records.ColumnMeta{Label: header[c], Position: c, Type: records.ColDigit})
		}
	}
	for _, c := range cols.alphanumeric {
		if c != idCol {
			det.Columns = append(det.Columns,
				records.ColumnMeta{Label: header[c], Position: c, Type: records.ColAlnum})
		}
	}

	d.logger.Debug("columns detected",
		zap.String("datatype", string(dt)),
		zap.Int("id_col", idCol),
		zap.Ints("time_cols", timeCols),
		zap.Int("cycle_col", cycleCol),
		zap.Int("sampled_rows", len(sample)))

	return det, nil
}

// DetectCycleCol finds the column holding the given operating-mode
// literal by scanning the first rows. The search is bounded; a cycles
// file whose mode never shows up early is not a cycles file.
func DetectCycleCol(rows [][]string, mode string) (int, error) {
	limit := len(rows)
	if limit > cycleScanLimit {
		limit = cycleScanLimit
	}
	for i := 0; i < limit; i++ {
		for col, val := range rows[i] {
			if val == mode {
				return col, nil
			}
		}
	}
	return -1, errors.New(errors.ErrorTypeData,
		stringpool.Sprintf("no column found containing value %q in the first %d rows",
			mode, cycleScanLimit))
}

// detectTimeCols returns the positions of up to two timestamp columns in
// the first sampled row. A value qualifies when it contains ':' or '/'
// and parses with one of the configured layouts.
func (d *Detector) detectTimeCols(first []string) []int {
	var cols []int
	for col, val := range first {
		if !stringpool.Contains(val, ":") && !stringpool.Contains(val, "/") {
			continue
		}
		if _, err := records.ParseTime(val, d.opts.TimeFormats); err != nil {
			continue
		}
		cols = append(cols, col)
		if len(cols) == 2 {
			break
		}
	}
	return cols
}

// columnClasses is the outcome of classifying non-key columns.
type columnClasses struct {
	digitOnly    []int
	alphanumeric []int
	stats        map[int]*colStats
	maxVal       float64
	maxValCol    int
	maxStd       float64
	maxStdCol    int
}

type colStats struct {
	max    float64
	stddev float64
	count  int
}

// classifyColumns types every column outside the timestamp and cycle-mode
// positions from the first sampled row: a value that is all digits and
// not zero-padded marks a digit-only column, anything else (decimals,
// zero-padded codes, mixed strings) an alphanumeric one. Digit-only
// columns also get max and standard deviation over the whole sample for
// the ID fallback.
func (d *Detector) classifyColumns(sample [][]string, timeCols []int, cycleCol int) *columnClasses {
	cols := &columnClasses{
		stats:     make(map[int]*colStats),
		maxValCol: -1,
		maxStdCol: -1,
	}

	first := sample[0]
	for col, val := range first {
		if containsInt(timeCols, col) || col == cycleCol {
			continue
		}
		val = strings.ReplaceAll(val, ",", "")
		if stringpool.IsDigits(val) && !(len(val) > 1 && val[0] == '0') {
			cols.digitOnly = append(cols.digitOnly, col)
			st := d.columnStats(sample, col)
			cols.stats[col] = st
			if st.max > cols.maxVal {
				cols.maxVal = st.max
				cols.maxValCol = col
			}
			if st.stddev > cols.maxStd {
				cols.maxStd = st.stddev
				cols.maxStdCol = col
			}
		} else {
			cols.alphanumeric = append(cols.alphanumeric, col)
		}
	}
	return cols
}

// columnStats computes max and population standard deviation of a digit
// column over the sample. Values that fail to parse are skipped.
func (d *Detector) columnStats(sample [][]string, col int) *colStats {
	vals := make([]float64, 0, len(sample))
	max := math.Inf(-1)
	sum := 0.0
	for _, row := range sample {
		if col >= len(row) {
			continue
		}
		v, err := parseNumeric(row[col])
		if err != nil {
			continue
		}
		vals = append(vals, v)
		sum += v
		if v > max {
			max = v
		}
	}
	st := &colStats{count: len(vals)}
	if len(vals) == 0 {
		return st
	}
	st.max = max

	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		diff := v - mean
		sq += diff * diff
	}
	st.stddev = math.Sqrt(sq / float64(len(vals)))
	return st
}

// detectIDCol locates the device ID column.
//
// Label candidates come first: when the two leftmost header labels both
// contain "Id" or "ID", the column with more distinct sampled values wins
// (ties favor the left); a lone leading ID label takes column 0. A label
// candidate that collides with a timestamp or cycle-mode column is
// discarded. Failing labels, the first alphanumeric column with an ID
// label, then the first alphanumeric column whose value looks like an
// identifier, are tried. As a last resort the digit columns decide:
// values above the ID threshold pick the column with the largest value,
// otherwise the column with the largest spread.
func (d *Detector) detectIDCol(sample [][]string, header []string, cols *columnClasses, timeCols []int, cycleCol int) (int, error) {
	idCol := -1
	if len(header) >= 2 && LabelHasID(header[0]) && LabelHasID(header[1]) {
		idCol = PrimaryIDColumn(sample)
	} else if len(header) >= 1 && LabelHasID(header[0]) {
		idCol = 0
	}
	if idCol >= 0 && (containsInt(timeCols, idCol) || idCol == cycleCol) {
		idCol = -1
	}

	if idCol < 0 {
		for _, c := range cols.alphanumeric {
			if LabelHasID(header[c]) {
				idCol = c
				break
			}
		}
	}
	if idCol < 0 {
		for _, c := range cols.alphanumeric {
			if c < len(sample[0]) && idLikeValue(sample[0][c]) {
				idCol = c
				break
			}
		}
	}
	if idCol < 0 {
		if cols.maxVal > idValueThreshold {
			idCol = cols.maxValCol
		} else {
			idCol = cols.maxStdCol
		}
	}
	if idCol < 0 {
		return -1, errors.New(errors.ErrorTypeDetect, "no identifier column detected")
	}
	return idCol, nil
}

// PrimaryIDColumn resolves two leading ID-labeled columns: device files
// repeat the device ID far less than a type or location code, so the
// column with more distinct sampled values is the primary ID. Ties favor
// column 0. Metadata loading shares this rule for device files.
func PrimaryIDColumn(sample [][]string) int {
	if distinctValues(sample, 0) >= distinctValues(sample, 1) {
		return 0
	}
	return 1
}

func distinctValues(sample [][]string, col int) int {
	seen := make(map[string]struct{}, len(sample))
	for _, row := range sample {
		if col < len(row) {
			seen[row[col]] = struct{}{}
		}
	}
	return len(seen)
}

// LabelHasID reports whether a header label names an identifier column
// ("ThermostatId", "LOCATION_ID").
func LabelHasID(label string) bool {
	return stringpool.Contains(label, "Id") || stringpool.Contains(label, "ID")
}

// idLikeValue reports whether a sampled value looks like a device
// identifier: it mixes digits with letters, or is a digit string with a
// leading zero. Decimal observations and bare numbers do not qualify.
func idLikeValue(val string) bool {
	if !stringpool.ContainsDigit(val) {
		return false
	}
	if stringpool.ContainsLetter(val) {
		return true
	}
	return len(val) > 1 && val[0] == '0' && !strings.HasPrefix(val, "0.")
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
