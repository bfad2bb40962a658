package cache

import (
	"bytes"
	"sync"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/records"
)

// avroSchema describes the whole payload as one Avro record so an
// artifact is a single-record OCF stream. Compression happens in the
// outer envelope, so the OCF block codec stays null.
const avroSchema = `{
  "type": "record",
  "name": "RecordSet",
  "namespace": "caar.cache",
  "fields": [
    {"name": "data_type", "type": "string"},
    {"name": "columns", "type": {"type": "array", "items": {
      "type": "record", "name": "Column", "fields": [
        {"name": "label", "type": "string"},
        {"name": "position", "type": "int"},
        {"name": "type", "type": "string"}
      ]}}},
    {"name": "cycles", "type": {"type": "array", "items": {
      "type": "record", "name": "Cycle", "fields": [
        {"name": "device_id", "type": "long"},
        {"name": "mode", "type": "string"},
        {"name": "start", "type": "long"},
        {"name": "end", "type": "long"},
        {"name": "extra", "type": {"type": "array", "items": "string"}}
      ]}}},
    {"name": "sensors", "type": {"type": "array", "items": {
      "type": "record", "name": "Sensor", "fields": [
        {"name": "sensor_id", "type": "long"},
        {"name": "timestamp", "type": "long"},
        {"name": "degrees", "type": "double"},
        {"name": "extra", "type": {"type": "array", "items": "string"}}
      ]}}},
    {"name": "geo", "type": {"type": "array", "items": {
      "type": "record", "name": "Geo", "fields": [
        {"name": "location_id", "type": "long"},
        {"name": "timestamp", "type": "long"},
        {"name": "degrees", "type": "double"},
        {"name": "extra", "type": {"type": "array", "items": "string"}}
      ]}}}
  ]
}`

var (
	avroCodecOnce sync.Once
	avroCodec     *goavro.Codec
	avroCodecErr  error
)

func getAvroCodec() (*goavro.Codec, error) {
	avroCodecOnce.Do(func() {
		avroCodec, avroCodecErr = goavro.NewCodec(avroSchema)
	})
	if avroCodecErr != nil {
		return nil, errors.Wrap(avroCodecErr, errors.ErrorTypeInternal,
			"failed to compile cache avro schema")
	}
	return avroCodec, nil
}

func encodeAvro(pl *payload) ([]byte, error) {
	codec, err := getAvroCodec()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               &buf,
		Codec:           codec,
		CompressionName: goavro.CompressionNullLabel,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to create avro writer")
	}
	if err := ocf.Append([]interface{}{payloadToNative(pl)}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to encode cache payload")
	}
	return buf.Bytes(), nil
}

func decodeAvro(data []byte) (*payload, error) {
	ocf, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to open avro payload")
	}
	if !ocf.Scan() {
		if err := ocf.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to scan avro payload")
		}
		return nil, errors.New(errors.ErrorTypeCache, "avro cache payload is empty")
	}
	datum, err := ocf.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to decode cache payload")
	}
	return nativeToPayload(datum)
}

func payloadToNative(pl *payload) map[string]interface{} {
	columns := make([]interface{}, len(pl.Columns))
	for i, c := range pl.Columns {
		columns[i] = map[string]interface{}{
			"label":    c.Label,
			"position": int32(c.Position),
			"type":     string(c.Type),
		}
	}
	cycles := make([]interface{}, len(pl.Cycles))
	for i, r := range pl.Cycles {
		cycles[i] = map[string]interface{}{
			"device_id": int64(r.DeviceID),
			"mode":      r.Mode,
			"start":     r.Start,
			"end":       r.End,
			"extra":     stringsToNative(r.Extra),
		}
	}
	sensors := make([]interface{}, len(pl.Sensors))
	for i, r := range pl.Sensors {
		sensors[i] = map[string]interface{}{
			"sensor_id": int64(r.SensorID),
			"timestamp": r.Timestamp,
			"degrees":   r.Degrees,
			"extra":     stringsToNative(r.Extra),
		}
	}
	geo := make([]interface{}, len(pl.Geo))
	for i, r := range pl.Geo {
		geo[i] = map[string]interface{}{
			"location_id": int64(r.LocationID),
			"timestamp":   r.Timestamp,
			"degrees":     r.Degrees,
			"extra":       stringsToNative(r.Extra),
		}
	}
	return map[string]interface{}{
		"data_type": string(pl.DataType),
		"columns":   columns,
		"cycles":    cycles,
		"sensors":   sensors,
		"geo":       geo,
	}
}

func nativeToPayload(datum interface{}) (*payload, error) {
	m, ok := datum.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeCache, "malformed avro cache record")
	}

	pl := &payload{DataType: records.DataType(nativeString(m["data_type"]))}
	for _, c := range nativeSlice(m["columns"]) {
		cm, ok := c.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeCache, "malformed column metadata in cache payload")
		}
		pl.Columns = append(pl.Columns, records.ColumnMeta{
			Label:    nativeString(cm["label"]),
			Position: int(nativeLong(cm["position"])),
			Type:     records.ColumnType(nativeString(cm["type"])),
		})
	}
	for _, c := range nativeSlice(m["cycles"]) {
		cm, ok := c.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeCache, "malformed cycle record in cache payload")
		}
		pl.Cycles = append(pl.Cycles, cycleRow{
			DeviceID: uint64(nativeLong(cm["device_id"])),
			Mode:     nativeString(cm["mode"]),
			Start:    nativeLong(cm["start"]),
			End:      nativeLong(cm["end"]),
			Extra:    nativeStrings(cm["extra"]),
		})
	}
	for _, c := range nativeSlice(m["sensors"]) {
		cm, ok := c.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeCache, "malformed sensor record in cache payload")
		}
		pl.Sensors = append(pl.Sensors, sensorRow{
			SensorID:  uint64(nativeLong(cm["sensor_id"])),
			Timestamp: nativeLong(cm["timestamp"]),
			Degrees:   nativeDouble(cm["degrees"]),
			Extra:     nativeStrings(cm["extra"]),
		})
	}
	for _, c := range nativeSlice(m["geo"]) {
		cm, ok := c.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeCache, "malformed geospatial record in cache payload")
		}
		pl.Geo = append(pl.Geo, geoRow{
			LocationID: uint64(nativeLong(cm["location_id"])),
			Timestamp:  nativeLong(cm["timestamp"]),
			Degrees:    nativeDouble(cm["degrees"]),
			Extra:      nativeStrings(cm["extra"]),
		})
	}
	return pl, nil
}

func stringsToNative(values []string) []interface{} {
	native := make([]interface{}, len(values))
	for i, v := range values {
		native[i] = v
	}
	return native
}

func nativeString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func nativeSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func nativeLong(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}

func nativeDouble(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}

func nativeStrings(v interface{}) []string {
	items := nativeSlice(v)
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, nativeString(item))
	}
	return out
}
