package frame

import (
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/caar/pkg/errors"
	jsonpool "github.com/ajitpratap0/caar/pkg/json"
	"github.com/ajitpratap0/caar/pkg/records"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// Format identifies an export encoding.
type Format string

const (
	// FormatArrow is the Arrow IPC file format.
	FormatArrow Format = "arrow"
	// FormatParquet is Parquet with snappy-compressed pages.
	FormatParquet Format = "parquet"
	// FormatAvro is an Avro OCF stream, one record per row.
	FormatAvro Format = "avro"
	// FormatCSV is comma-separated text with a header row.
	FormatCSV Format = "csv"
)

// ParseFormat parses an export format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatArrow, FormatParquet, FormatAvro, FormatCSV:
		return Format(s), nil
	}
	return "", errors.New(errors.ErrorTypeConfig,
		stringpool.Sprintf("unknown export format %q (expected arrow, parquet, avro or csv)", s))
}

// exportBatchSize bounds the rows accumulated per written batch.
const exportBatchSize = 4096

// timeLayout renders exported timestamps the way the raw files carry them.
const timeLayout = "2006-01-02 15:04:05"

// Export writes the frame to w in the given format.
func (f *Frame) Export(w io.Writer, format Format) error {
	switch format {
	case FormatArrow:
		return f.WriteArrow(w)
	case FormatParquet:
		return f.WriteParquet(w)
	case FormatAvro:
		return f.WriteAvro(w)
	case FormatCSV:
		return f.WriteCSV(w)
	}
	return errors.New(errors.ErrorTypeConfig,
		stringpool.Sprintf("unknown export format %q", format))
}

// arrowSchema maps the frame's columns to Arrow fields: uint64 ID,
// strings for mode and extras, nanosecond timestamps, float64 readings.
func (f *Frame) arrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(f.index)+len(f.values))
	fields = append(fields, arrow.Field{Name: f.index[0], Type: arrow.PrimitiveTypes.Uint64})
	if f.dataType == records.Cycles {
		fields = append(fields, arrow.Field{Name: f.index[1], Type: arrow.BinaryTypes.String})
		fields = append(fields, arrow.Field{Name: f.index[2], Type: arrow.FixedWidthTypes.Timestamp_ns})
		fields = append(fields, arrow.Field{Name: f.values[0], Type: arrow.FixedWidthTypes.Timestamp_ns})
	} else {
		fields = append(fields, arrow.Field{Name: f.index[1], Type: arrow.FixedWidthTypes.Timestamp_ns})
		fields = append(fields, arrow.Field{Name: f.values[0], Type: arrow.PrimitiveTypes.Float64})
	}
	for _, label := range f.values[1:] {
		fields = append(fields, arrow.Field{Name: label, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

func (f *Frame) appendArrowRow(b *array.RecordBuilder, r Row) {
	col := 0
	b.Field(col).(*array.Uint64Builder).Append(r.ID)
	col++
	if f.dataType == records.Cycles {
		b.Field(col).(*array.StringBuilder).Append(r.Mode)
		col++
		b.Field(col).(*array.TimestampBuilder).Append(arrow.Timestamp(r.Time.UnixNano()))
		col++
		b.Field(col).(*array.TimestampBuilder).Append(arrow.Timestamp(r.End.UnixNano()))
		col++
	} else {
		b.Field(col).(*array.TimestampBuilder).Append(arrow.Timestamp(r.Time.UnixNano()))
		col++
		b.Field(col).(*array.Float64Builder).Append(r.Value)
		col++
	}
	for i := 0; i < len(f.values)-1; i++ {
		sb := b.Field(col).(*array.StringBuilder)
		if i < len(r.Extra) {
			sb.Append(r.Extra[i])
		} else {
			sb.AppendNull()
		}
		col++
	}
}

// WriteArrow writes the frame as an Arrow IPC file.
func (f *Frame) WriteArrow(w io.Writer) error {
	schema := f.arrowSchema()
	pool := memory.NewGoAllocator()

	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create arrow writer")
	}

	flush := func() error {
		rec := builder.NewRecord()
		defer rec.Release()
		return fw.Write(rec)
	}

	batch := 0
	for _, r := range f.rows {
		f.appendArrowRow(builder, r)
		if batch++; batch >= exportBatchSize {
			if err := flush(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to write arrow batch")
			}
			batch = 0
		}
	}
	if batch > 0 {
		if err := flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write arrow batch")
		}
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close arrow writer")
	}
	return nil
}

// WriteParquet writes the frame as a Parquet file with snappy pages.
func (f *Frame) WriteParquet(w io.Writer) error {
	schema := f.arrowSchema()
	pool := memory.NewGoAllocator()

	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool))
	fw, err := pqarrow.NewFileWriter(schema, w, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create parquet writer")
	}

	flush := func() error {
		rec := builder.NewRecord()
		defer rec.Release()
		return fw.WriteBuffered(rec)
	}

	batch := 0
	for _, r := range f.rows {
		f.appendArrowRow(builder, r)
		if batch++; batch >= exportBatchSize {
			if err := flush(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to write parquet batch")
			}
			batch = 0
		}
	}
	if batch > 0 {
		if err := flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write parquet batch")
		}
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close parquet writer")
	}
	return nil
}

// avroSchema builds the per-row record schema with sanitized field names
// aligned to the frame's columns. Timestamps export as long Unix
// nanoseconds.
func (f *Frame) avroSchema() (string, []string, error) {
	labels := append(f.IndexColumns(), f.values...)
	names := make([]string, len(labels))
	seen := make(map[string]bool, len(labels))
	for i, label := range labels {
		name := avroName(label)
		for n := 2; seen[name]; n++ {
			name = stringpool.Concat(avroName(label), "_", strconv.Itoa(n))
		}
		seen[name] = true
		names[i] = name
	}

	types := make([]string, 0, len(names))
	types = append(types, "long")
	if f.dataType == records.Cycles {
		types = append(types, "string", "long", "long")
	} else {
		types = append(types, "long", "double")
	}
	for range f.values[1:] {
		types = append(types, "string")
	}

	fields := make([]map[string]interface{}, len(names))
	for i, name := range names {
		fields[i] = map[string]interface{}{"name": name, "type": types[i]}
	}

	recordName := "Sensors"
	switch f.dataType {
	case records.Cycles:
		recordName = "Cycles"
	case records.Geospatial:
		recordName = "Geospatial"
	}
	schemaMap := map[string]interface{}{
		"type":      "record",
		"name":      recordName,
		"namespace": "caar.frame",
		"fields":    fields,
	}

	schemaBytes, err := jsonpool.Marshal(schemaMap)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build avro schema")
	}
	return stringpool.BytesToString(schemaBytes), names, nil
}

func (f *Frame) avroNative(names []string, r Row) map[string]interface{} {
	m := make(map[string]interface{}, len(names))
	col := 0
	m[names[col]] = int64(r.ID)
	col++
	if f.dataType == records.Cycles {
		m[names[col]] = r.Mode
		col++
		m[names[col]] = r.Time.UnixNano()
		col++
		m[names[col]] = r.End.UnixNano()
		col++
	} else {
		m[names[col]] = r.Time.UnixNano()
		col++
		m[names[col]] = r.Value
		col++
	}
	for i := 0; i < len(f.values)-1; i++ {
		if i < len(r.Extra) {
			m[names[col]] = r.Extra[i]
		} else {
			m[names[col]] = ""
		}
		col++
	}
	return m
}

// WriteAvro writes the frame as a snappy-compressed Avro OCF stream.
func (f *Frame) WriteAvro(w io.Writer) error {
	schemaJSON, names, err := f.avroSchema()
	if err != nil {
		return err
	}
	codec, err := goavro.NewCodec(schemaJSON)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to compile avro schema")
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: goavro.CompressionSnappyLabel,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create avro writer")
	}

	batch := make([]interface{}, 0, exportBatchSize)
	for _, r := range f.rows {
		batch = append(batch, f.avroNative(names, r))
		if len(batch) >= exportBatchSize {
			if err := ocf.Append(batch); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to write avro batch")
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := ocf.Append(batch); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write avro batch")
		}
	}
	return nil
}

// WriteCSV writes the frame as comma-separated text with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cols := len(f.index) + len(f.values)
	cb := stringpool.NewCSVBuilder(len(f.rows)+1, cols)
	defer cb.Close()

	cb.WriteHeader(append(f.IndexColumns(), f.values...))

	fields := make([]string, 0, cols)
	for _, r := range f.rows {
		fields = fields[:0]
		fields = append(fields, strconv.FormatUint(r.ID, 10))
		if f.dataType == records.Cycles {
			fields = append(fields, r.Mode, r.Time.Format(timeLayout), r.End.Format(timeLayout))
		} else {
			fields = append(fields,
				r.Time.Format(timeLayout),
				strconv.FormatFloat(r.Value, 'g', -1, 64))
		}
		for i := 0; i < len(f.values)-1; i++ {
			if i < len(r.Extra) {
				fields = append(fields, r.Extra[i])
			} else {
				fields = append(fields, "")
			}
		}
		cb.WriteRow(fields)
	}

	if _, err := io.WriteString(w, cb.String()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write csv")
	}
	return nil
}

// avroName maps a raw header label to a legal Avro field name.
func avroName(label string) string {
	b := make([]byte, 0, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
			b = append(b, c)
		case c >= '0' && c <= '9':
			if len(b) == 0 {
				b = append(b, '_')
			}
			b = append(b, c)
		default:
			b = append(b, '_')
		}
	}
	if len(b) == 0 {
		return "_"
	}
	return string(b)
}
