// Package summary reports how much usable data a frame holds per
// device: distinct days on record, observation counts by day, streaks of
// consecutive days shared across data types, and the full-day boundaries
// of a frame's time span.
package summary

import (
	"sort"
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/frame"
	"github.com/ajitpratap0/caar/pkg/metadata"
	"github.com/ajitpratap0/caar/pkg/records"
	"github.com/ajitpratap0/caar/pkg/timeseries"
)

// day truncates a timestamp to midnight UTC.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysOfDataByID counts the distinct calendar days each device has at
// least one record on.
func DaysOfDataByID(f *frame.Frame) map[uint64]int {
	out := make(map[uint64]int)
	if f == nil {
		return out
	}
	seen := make(map[uint64]map[time.Time]struct{})
	for _, r := range f.Rows() {
		days := seen[r.ID]
		if days == nil {
			days = make(map[time.Time]struct{})
			seen[r.ID] = days
		}
		days[day(r.Time)] = struct{}{}
	}
	for id, days := range seen {
		out[id] = len(days)
	}
	return out
}

// DailyCounts tallies records per device per calendar day. Day keys are
// midnight UTC.
func DailyCounts(f *frame.Frame) map[uint64]map[time.Time]int {
	counts := make(map[uint64]map[time.Time]int)
	if f == nil {
		return counts
	}
	for _, r := range f.Rows() {
		byDay := counts[r.ID]
		if byDay == nil {
			byDay = make(map[time.Time]int)
			counts[r.ID] = byDay
		}
		byDay[day(r.Time)]++
	}
	return counts
}

// CountsByID tallies the total records per device.
func CountsByID(f *frame.Frame) map[uint64]int {
	counts := make(map[uint64]int)
	if f == nil {
		return counts
	}
	for _, r := range f.Rows() {
		counts[r.ID]++
	}
	return counts
}

// CountForID returns the total records for one device.
func CountForID(f *frame.Frame, id uint64) int {
	if f == nil {
		return 0
	}
	return f.SelectIDs(id).Len()
}

// JointDay is one calendar day on which every joined frame observed the
// device, with the per-frame record counts for that day.
type JointDay struct {
	Day       time.Time
	CycleObs  int
	SensorObs int
	GeoObs    int
}

// DailyJointCounts inner-joins the per-day record counts of the device's
// cycles and indoor observations, plus outdoor observations when a geo
// frame is given. Geo records are looked up under the location the
// devices table maps the thermostat to, and GeoObs stays zero when no
// geo frame is provided. Days return in chronological order.
func DailyJointCounts(id uint64, devices *metadata.Devices, cycles, sensors, geo *frame.Frame) ([]JointDay, error) {
	if cycles == nil || cycles.DataType() != records.Cycles {
		return nil, errors.New(errors.ErrorTypeConfig, "a cycles frame is required")
	}
	if sensors == nil || sensors.DataType() != records.Sensors {
		return nil, errors.New(errors.ErrorTypeConfig, "a sensors frame is required")
	}
	var geoDays map[time.Time]int
	if geo != nil {
		if devices == nil {
			return nil, errors.New(errors.ErrorTypeConfig, "a devices table is required to resolve the location for geospatial data")
		}
		locationID, err := devices.LocationOf(id)
		if err != nil {
			return nil, err
		}
		geoDays = dailyCountsFor(geo, locationID)
	}

	cycleDays := dailyCountsFor(cycles, id)
	sensorDays := dailyCountsFor(sensors, id)
	joint := make([]JointDay, 0, len(cycleDays))
	for d, cycleCount := range cycleDays {
		sensorCount, ok := sensorDays[d]
		if !ok {
			continue
		}
		jd := JointDay{Day: d, CycleObs: cycleCount, SensorObs: sensorCount}
		if geo != nil {
			geoCount, ok := geoDays[d]
			if !ok {
				continue
			}
			jd.GeoObs = geoCount
		}
		joint = append(joint, jd)
	}
	sort.Slice(joint, func(i, j int) bool { return joint[i].Day.Before(joint[j].Day) })
	return joint, nil
}

func dailyCountsFor(f *frame.Frame, id uint64) map[time.Time]int {
	counts := make(map[time.Time]int)
	for _, r := range f.SelectIDs(id).Rows() {
		counts[day(r.Time)]++
	}
	return counts
}

// Streak is an unbroken run of consecutive days on which every joined
// frame observed the device.
type Streak struct {
	ID    uint64
	First time.Time
	Last  time.Time
	Days  int
}

// ConsecutiveDays finds the device's streaks of consecutive days with
// records in every joined frame. The first and last days on record are
// usually partial, so they are dropped unless includeFirstLast is set;
// that trim needs at least three joint days to leave anything behind.
func ConsecutiveDays(id uint64, devices *metadata.Devices, cycles, sensors, geo *frame.Frame, includeFirstLast bool) ([]Streak, error) {
	joint, err := DailyJointCounts(id, devices, cycles, sensors, geo)
	if err != nil {
		return nil, err
	}
	if !includeFirstLast {
		if len(joint) < 3 {
			return nil, errors.New(errors.ErrorTypeData, "fewer than three days of joint observations")
		}
		joint = joint[1 : len(joint)-1]
	}
	if len(joint) == 0 {
		return nil, nil
	}

	streaks := make([]Streak, 0, 4)
	first := joint[0].Day
	days := 1
	for i := 1; i < len(joint); i++ {
		if joint[i].Day.Equal(joint[i-1].Day.AddDate(0, 0, 1)) {
			days++
			continue
		}
		streaks = append(streaks, Streak{ID: id, First: first, Last: joint[i-1].Day, Days: days})
		first = joint[i].Day
		days = 1
	}
	streaks = append(streaks, Streak{ID: id, First: first, Last: joint[len(joint)-1].Day, Days: days})
	return streaks, nil
}

// FirstFullDay returns midnight of the first complete calendar day in
// the frame, the day after the earliest record. ok is false for an
// empty frame.
func FirstFullDay(f *frame.Frame) (time.Time, bool) {
	if f == nil {
		return time.Time{}, false
	}
	min, _, ok := f.TimeBounds()
	if !ok {
		return time.Time{}, false
	}
	return day(min).AddDate(0, 0, 1), true
}

// LastFullDay returns midnight of the last complete calendar day in the
// frame, the day before the latest record. ok is false for an empty
// frame.
func LastFullDay(f *frame.Frame) (time.Time, bool) {
	if f == nil {
		return time.Time{}, false
	}
	_, max, ok := f.TimeBounds()
	if !ok {
		return time.Time{}, false
	}
	return day(max).AddDate(0, 0, -1), true
}

// IntervalsInRange counts how many whole freq intervals fit between the
// start of from's day and the end of to's day, the range being inclusive
// of both days.
func IntervalsInRange(from, to time.Time, freq string) (int, error) {
	step, err := timeseries.ParseFreq(freq)
	if err != nil {
		return 0, err
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0, errors.New(errors.ErrorTypeConfig, "a start and an end time are required")
	}
	total := to.Sub(from) + 24*time.Hour
	return int(total / step), nil
}
