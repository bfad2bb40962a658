package cache

import (
	"time"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/records"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// payload is the serialized form of a record set. The keyed maps flatten
// to row slices because struct keys do not encode; timestamps flatten to
// Unix nanoseconds so both codecs share one representation.
type payload struct {
	DataType records.DataType     `json:"data_type"`
	Columns  []records.ColumnMeta `json:"columns"`
	Cycles   []cycleRow           `json:"cycles,omitempty"`
	Sensors  []sensorRow          `json:"sensors,omitempty"`
	Geo      []geoRow             `json:"geo,omitempty"`
}

type cycleRow struct {
	DeviceID uint64   `json:"device_id"`
	Mode     string   `json:"mode"`
	Start    int64    `json:"start"`
	End      int64    `json:"end"`
	Extra    []string `json:"extra,omitempty"`
}

type sensorRow struct {
	SensorID  uint64   `json:"sensor_id"`
	Timestamp int64    `json:"timestamp"`
	Degrees   float64  `json:"degrees"`
	Extra     []string `json:"extra,omitempty"`
}

type geoRow struct {
	LocationID uint64   `json:"location_id"`
	Timestamp  int64    `json:"timestamp"`
	Degrees    float64  `json:"degrees"`
	Extra      []string `json:"extra,omitempty"`
}

func toPayload(set *records.Set) *payload {
	pl := &payload{DataType: set.DataType, Columns: set.Columns}
	switch set.DataType {
	case records.Cycles:
		pl.Cycles = make([]cycleRow, 0, len(set.Cycles))
		for k, v := range set.Cycles {
			pl.Cycles = append(pl.Cycles, cycleRow{
				DeviceID: k.DeviceID,
				Mode:     k.Mode,
				Start:    k.Start.UnixNano(),
				End:      v.End.UnixNano(),
				Extra:    v.Extra,
			})
		}
	case records.Sensors:
		pl.Sensors = make([]sensorRow, 0, len(set.Sensors))
		for k, v := range set.Sensors {
			pl.Sensors = append(pl.Sensors, sensorRow{
				SensorID:  k.SensorID,
				Timestamp: k.Timestamp.UnixNano(),
				Degrees:   v.Degrees,
				Extra:     v.Extra,
			})
		}
	case records.Geospatial:
		pl.Geo = make([]geoRow, 0, len(set.Geo))
		for k, v := range set.Geo {
			pl.Geo = append(pl.Geo, geoRow{
				LocationID: k.LocationID,
				Timestamp:  k.Timestamp.UnixNano(),
				Degrees:    v.Degrees,
				Extra:      v.Extra,
			})
		}
	}
	return pl
}

func fromPayload(pl *payload) (*records.Set, error) {
	if !pl.DataType.Valid() {
		return nil, errors.New(errors.ErrorTypeCache,
			stringpool.Sprintf("cache payload has unknown data type %q", pl.DataType))
	}
	set := records.NewSet(pl.DataType)
	set.Columns = pl.Columns
	switch pl.DataType {
	case records.Cycles:
		for _, r := range pl.Cycles {
			key := records.CycleKey{
				DeviceID: r.DeviceID,
				Mode:     r.Mode,
				Start:    time.Unix(0, r.Start).UTC(),
			}
			set.Cycles[key] = records.CycleValue{
				End:   time.Unix(0, r.End).UTC(),
				Extra: r.Extra,
			}
		}
	case records.Sensors:
		for _, r := range pl.Sensors {
			key := records.SensorKey{
				SensorID:  r.SensorID,
				Timestamp: time.Unix(0, r.Timestamp).UTC(),
			}
			set.Sensors[key] = records.SensorValue{
				Degrees: r.Degrees,
				Extra:   r.Extra,
			}
		}
	case records.Geospatial:
		for _, r := range pl.Geo {
			key := records.GeoKey{
				LocationID: r.LocationID,
				Timestamp:  time.Unix(0, r.Timestamp).UTC(),
			}
			set.Geo[key] = records.GeoValue{
				Degrees: r.Degrees,
				Extra:   r.Extra,
			}
		}
	}
	return set, nil
}
