// Package timeseries aligns thermostat cycles and temperature
// observations onto fixed-frequency time grids.
//
// A grid spans [from, to] inclusive at a caller-supplied frequency such
// as "1min30s". Cycle intervals become int8 on/off vectors, observation
// frames become float64 vectors with NaN in empty slots, and both can be
// stacked column-wise over the time range the observation frames share.
package timeseries

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/frame"
	"github.com/ajitpratap0/caar/pkg/metadata"
	"github.com/ajitpratap0/caar/pkg/records"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// ParseFreq parses a frequency spec such as "5min", "1min30s" or "45s"
// into a duration. The minute count may be omitted ("min30s" is one
// minute thirty seconds) and a bare number is taken as seconds.
func ParseFreq(s string) (time.Duration, error) {
	spec := strings.TrimSpace(s)
	if spec == "" {
		return 0, errors.New(errors.ErrorTypeConfig, "frequency is empty")
	}

	var mins, secs int64
	secPart := spec
	if i := strings.Index(spec, "min"); i >= 0 {
		mins = 1
		if i > 0 {
			v, err := strconv.ParseInt(spec[:i], 10, 64)
			if err != nil {
				return 0, errors.New(errors.ErrorTypeConfig,
					stringpool.Sprintf("invalid frequency %q", s))
			}
			mins = v
		}
		secPart = spec[i+len("min"):]
	}
	if secPart != "" {
		// Seconds are the digits before the first 's'; anything after
		// it is ignored, so "30s" and "30sec" both mean thirty seconds.
		digits := secPart
		if j := strings.IndexByte(secPart, 's'); j >= 0 {
			digits = secPart[:j]
		}
		v, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, errors.New(errors.ErrorTypeConfig,
				stringpool.Sprintf("invalid frequency %q", s))
		}
		secs = v
	}

	freq := time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second
	if freq <= 0 {
		return 0, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("frequency %q must be positive", s))
	}
	return freq, nil
}

// grid returns the slot labels spanning [from, to]. The end label is
// included only when the range is a whole number of slots.
func grid(from, to time.Time, freq time.Duration) []time.Time {
	times := make([]time.Time, 0, int(to.Sub(from)/freq)+1)
	for t := from; !t.After(to); t = t.Add(freq) {
		times = append(times, t)
	}
	return times
}

func slotFloor(t, from time.Time, freq time.Duration) int {
	return int(t.Sub(from) / freq)
}

func slotCeil(t, from time.Time, freq time.Duration) int {
	d := t.Sub(from)
	n := int(d / freq)
	if d%freq != 0 {
		n++
	}
	return n
}

func slotNearest(t, from time.Time, freq time.Duration) int {
	return int((t.Sub(from) + freq/2) / freq)
}

// OnOffStatus marks which slots of the [from, to] grid fall inside a
// cycle of the given device. Cycle starts round down to the grid and
// ends round up, so a slot is 1 when any part of it overlaps a cycle.
// Only cycles starting inside the range are considered; a cycle already
// running at from does not contribute.
func OnOffStatus(cycles *frame.Frame, id uint64, from, to time.Time, freq string) ([]int8, []time.Time, error) {
	step, err := ParseFreq(freq)
	if err != nil {
		return nil, nil, err
	}
	if cycles == nil || cycles.DataType() != records.Cycles {
		return nil, nil, errors.New(errors.ErrorTypeConfig, "on/off status requires a cycles frame")
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, nil, errors.New(errors.ErrorTypeConfig, "a start and an end time are required")
	}

	times := grid(from, to, step)
	status := make([]int8, len(times))
	for _, r := range cycles.SelectRange(id, from, to).Rows() {
		lo := slotFloor(r.Time, from, step)
		hi := slotCeil(r.End, from, step)
		if lo < 0 {
			lo = 0
		}
		if hi > len(status)-1 {
			hi = len(status) - 1
		}
		for i := lo; i <= hi; i++ {
			status[i] = 1
		}
	}
	return status, times, nil
}

// ObsByFreq places the device's observations onto the [from, to] grid.
// Each observation lands in the nearest slot, later ones overwriting
// earlier ones, and slots with no observation hold NaN. With actualsOnly
// the NaN slots are dropped and only observed values return.
func ObsByFreq(obs *frame.Frame, id uint64, from, to time.Time, freq string, actualsOnly bool) ([]float64, []time.Time, error) {
	step, err := ParseFreq(freq)
	if err != nil {
		return nil, nil, err
	}
	if obs == nil || obs.DataType() == records.Cycles {
		return nil, nil, errors.New(errors.ErrorTypeConfig, "observations require a sensors or geospatial frame")
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, nil, errors.New(errors.ErrorTypeConfig, "a start and an end time are required")
	}

	times := grid(from, to, step)
	values := make([]float64, len(times))
	for i := range values {
		values[i] = math.NaN()
	}
	for _, r := range obs.SelectRange(id, from, to).Rows() {
		if slot := slotNearest(r.Time, from, step); slot >= 0 && slot < len(values) {
			values[slot] = r.Value
		}
	}
	if !actualsOnly {
		return values, times, nil
	}

	outValues := make([]float64, 0, len(values))
	outTimes := make([]time.Time, 0, len(times))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		outValues = append(outValues, v)
		outTimes = append(outTimes, times[i])
	}
	return outValues, outTimes, nil
}

// Stacked is a column-stacked view of one device over a shared grid:
// thermostat on/off status alongside the indoor and outdoor temperatures
// observed in each slot. Sensor and Geo are nil when the corresponding
// frame was not provided.
type Stacked struct {
	Times  []time.Time
	OnOff  []int8
	Sensor []float64
	Geo    []float64
}

// CyclingAndObs stacks the device's on/off status with its indoor and
// outdoor observations. The grid covers the intersection of the
// observation frames' time spans; a caller-supplied from or to narrows
// it further, and zero values leave the shared range in place. Outdoor
// observations are looked up under the location the devices table maps
// the thermostat to.
func CyclingAndObs(cycles, sensors, geo *frame.Frame, devices *metadata.Devices, deviceID uint64, from, to time.Time, freq string) (*Stacked, error) {
	if sensors == nil && geo == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "at least one observations frame is required alongside cycles")
	}
	if geo != nil && devices == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "a devices table is required to resolve the location for geospatial data")
	}

	commonFrom, commonTo, err := commonRange(sensors, geo)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || from.Before(commonFrom) {
		from = commonFrom
	}
	if to.IsZero() || to.After(commonTo) {
		to = commonTo
	}
	if to.Before(from) {
		return nil, errors.New(errors.ErrorTypeData, "no overlapping time range for the requested observations")
	}

	status, times, err := OnOffStatus(cycles, deviceID, from, to, freq)
	if err != nil {
		return nil, err
	}
	stacked := &Stacked{Times: times, OnOff: status}
	if sensors != nil {
		stacked.Sensor, _, err = ObsByFreq(sensors, deviceID, from, to, freq, false)
		if err != nil {
			return nil, err
		}
	}
	if geo != nil {
		locationID, err := devices.LocationOf(deviceID)
		if err != nil {
			return nil, err
		}
		stacked.Geo, _, err = ObsByFreq(geo, locationID, from, to, freq, false)
		if err != nil {
			return nil, err
		}
	}
	return stacked, nil
}

// commonRange intersects the time spans of the provided frames: the
// latest first observation to the earliest last one.
func commonRange(frames ...*frame.Frame) (time.Time, time.Time, error) {
	var from, to time.Time
	for _, f := range frames {
		if f == nil {
			continue
		}
		min, max, ok := f.TimeBounds()
		if !ok {
			return time.Time{}, time.Time{}, errors.New(errors.ErrorTypeData, "an observations frame has no records")
		}
		if from.IsZero() || min.After(from) {
			from = min
		}
		if to.IsZero() || max.Before(to) {
			to = max
		}
	}
	return from, to, nil
}
