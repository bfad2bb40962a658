// Package cache reads and writes the binary artifacts that hold cleaned
// record sets between runs. Re-parsing a season of raw cycle files takes
// minutes; loading the cache takes seconds.
//
// The artifact is a small framed envelope: the CAAR magic, a format
// version, the codec and compression identifiers, then a single
// length-prefixed payload. The payload is the record set encoded as JSON
// or Avro OCF and optionally compressed. Round-trips preserve the column
// metadata and every record; key order is not preserved, record sets are
// keyed maps.
package cache

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/ajitpratap0/caar/pkg/compression"
	"github.com/ajitpratap0/caar/pkg/errors"
	jsonpool "github.com/ajitpratap0/caar/pkg/json"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/records"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// Ext is the cache artifact file extension.
const Ext = ".caar"

const (
	magic         = "CAAR"
	formatVersion = 1

	// maxPayloadSize bounds the decoded payload allocation so a corrupt
	// length prefix cannot exhaust memory.
	maxPayloadSize = 1 << 32
)

// Codec identifies the payload encoding.
type Codec string

const (
	// CodecJSON encodes the payload with goccy JSON. Larger but
	// greppable; useful when inspecting a cache by hand.
	CodecJSON Codec = "json"
	// CodecAvro encodes the payload as a single-record Avro OCF stream.
	CodecAvro Codec = "avro"
)

// ParseCodec parses a codec name from configuration.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecAvro:
		return CodecAvro, nil
	case CodecJSON:
		return CodecJSON, nil
	}
	return "", errors.New(errors.ErrorTypeConfig,
		stringpool.Sprintf("unknown cache codec %q (expected json or avro)", s))
}

// Options controls how a cache artifact is written.
type Options struct {
	// Codec selects the payload encoding. Empty means Avro.
	Codec Codec `json:"codec" yaml:"codec"`
	// Compression selects the payload compression. Empty means Snappy;
	// compression.None disables it.
	Compression compression.Algorithm `json:"compression" yaml:"compression"`
	// Level is the compression level. Zero means the default level.
	Level compression.Level `json:"level" yaml:"level"`
	// Workers is the compression parallelism. Zero means one per CPU.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultOptions returns the production defaults: Avro payload with
// snappy compression.
func DefaultOptions() Options {
	return Options{
		Codec:       CodecAvro,
		Compression: compression.Snappy,
		Level:       compression.Default,
	}
}

func (o Options) withDefaults() Options {
	if o.Codec == "" {
		o.Codec = CodecAvro
	}
	if o.Compression == "" {
		o.Compression = compression.Snappy
	}
	if o.Level == 0 {
		o.Level = compression.Default
	}
	return o
}

// Write encodes the record set and writes the framed artifact to w.
func Write(w io.Writer, set *records.Set, opts Options) error {
	if set == nil || !set.DataType.Valid() {
		return errors.New(errors.ErrorTypeConfig, "cannot cache an invalid record set")
	}
	opts = opts.withDefaults()
	log := logger.Get()

	compByte, err := compressionByte(opts.Compression)
	if err != nil {
		return err
	}

	encoded, err := encodePayload(toPayload(set), opts.Codec)
	if err != nil {
		return err
	}

	data := encoded
	if opts.Compression != compression.None {
		pc := compression.NewParallelCompressor(compression.ParallelConfig{
			Algorithm:  opts.Compression,
			Level:      opts.Level,
			NumWorkers: opts.Workers,
		}, log)
		defer pc.Stop()
		if data, err = pc.CompressData(encoded); err != nil {
			return errors.Wrap(err, errors.ErrorTypeCache, "failed to compress cache payload")
		}
	}

	header := make([]byte, 0, len(magic)+3+binary.MaxVarintLen64)
	header = append(header, magic...)
	header = append(header, formatVersion, codecByte(opts.Codec), compByte)
	var lenBuf [binary.MaxVarintLen64]byte
	header = append(header, lenBuf[:binary.PutUvarint(lenBuf[:], uint64(len(data)))]...)

	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCache, "failed to write cache header")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCache, "failed to write cache payload")
	}

	log.Debug("cache written",
		zap.String("data_type", set.DataType.String()),
		zap.Int("records", set.Len()),
		zap.String("codec", string(opts.Codec)),
		zap.String("compression", string(opts.Compression)),
		zap.Int("encoded_bytes", len(encoded)),
		zap.Int("stored_bytes", len(data)))
	return nil
}

// Read parses a framed cache artifact and rebuilds the record set.
func Read(r io.Reader) (*records.Set, error) {
	br := bufio.NewReader(r)

	head := make([]byte, len(magic)+3)
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to read cache header")
	}
	if string(head[:len(magic)]) != magic {
		return nil, errors.New(errors.ErrorTypeCache, "not a caar cache file")
	}
	if version := head[len(magic)]; version != formatVersion {
		return nil, errors.New(errors.ErrorTypeCache,
			stringpool.Sprintf("unsupported cache format version %d", version))
	}
	codec, err := codecFromByte(head[len(magic)+1])
	if err != nil {
		return nil, err
	}
	algorithm, err := compressionFromByte(head[len(magic)+2])
	if err != nil {
		return nil, err
	}

	size, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to read cache payload length")
	}
	if size > maxPayloadSize {
		return nil, errors.New(errors.ErrorTypeCache,
			stringpool.Sprintf("cache payload length %d exceeds limit", size))
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, "truncated cache payload")
	}

	if algorithm != compression.None {
		pc := compression.NewParallelCompressor(compression.ParallelConfig{
			Algorithm: algorithm,
		}, logger.Get())
		defer pc.Stop()
		if data, err = pc.DecompressData(data); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to decompress cache payload")
		}
	}

	pl, err := decodePayload(data, codec)
	if err != nil {
		return nil, err
	}
	return fromPayload(pl)
}

// WriteFile writes the record set to a cache file at path.
func WriteFile(path string, set *records.Set, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to create %s", path))
	}
	if err := Write(f, set, opts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to close %s", path))
	}
	return nil
}

// ReadFile loads a record set from a cache file at path.
func ReadFile(path string) (*records.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to open %s", path))
	}
	defer f.Close()
	return Read(f)
}

// Filename returns the conventional cache file name for a record set
// filtered to the given states: the sorted states joined by underscores,
// the data type, and the cache extension. An empty state list names the
// unfiltered artifact.
func Filename(states []string, dt records.DataType) string {
	if len(states) == 0 {
		return stringpool.Concat("all_states_", dt.String(), Ext)
	}
	sorted := make([]string, 0, len(states))
	for _, s := range states {
		if s = stringpool.TrimSpace(s); s != "" {
			sorted = append(sorted, s)
		}
	}
	sort.Strings(sorted)
	return stringpool.Concat(stringpool.Join(sorted, "_"), "_", dt.String(), Ext)
}

func encodePayload(pl *payload, codec Codec) ([]byte, error) {
	switch codec {
	case CodecJSON:
		data, err := jsonpool.Marshal(pl)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to encode cache payload")
		}
		return data, nil
	case CodecAvro:
		return encodeAvro(pl)
	}
	return nil, errors.New(errors.ErrorTypeConfig,
		stringpool.Sprintf("unknown cache codec %q", codec))
}

func decodePayload(data []byte, codec Codec) (*payload, error) {
	switch codec {
	case CodecJSON:
		pl := &payload{}
		if err := jsonpool.Unmarshal(data, pl); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCache, "failed to decode cache payload")
		}
		return pl, nil
	case CodecAvro:
		return decodeAvro(data)
	}
	return nil, errors.New(errors.ErrorTypeCache,
		stringpool.Sprintf("unknown cache codec %q", codec))
}

func codecByte(c Codec) byte {
	if c == CodecJSON {
		return 1
	}
	return 2
}

func codecFromByte(b byte) (Codec, error) {
	switch b {
	case 1:
		return CodecJSON, nil
	case 2:
		return CodecAvro, nil
	}
	return "", errors.New(errors.ErrorTypeCache,
		stringpool.Sprintf("unknown cache codec byte 0x%02x", b))
}

// The compression byte matches the chunked-payload algorithm numbering.
func compressionByte(a compression.Algorithm) (byte, error) {
	switch a {
	case compression.None:
		return 0, nil
	case compression.Gzip:
		return 1, nil
	case compression.Snappy:
		return 2, nil
	case compression.LZ4:
		return 3, nil
	case compression.Zstd:
		return 4, nil
	case compression.S2:
		return 5, nil
	}
	return 0, errors.New(errors.ErrorTypeConfig,
		stringpool.Sprintf("compression algorithm %q is not supported for cache artifacts", a))
}

func compressionFromByte(b byte) (compression.Algorithm, error) {
	switch b {
	case 0:
		return compression.None, nil
	case 1:
		return compression.Gzip, nil
	case 2:
		return compression.Snappy, nil
	case 3:
		return compression.LZ4, nil
	case 4:
		return compression.Zstd, nil
	case 5:
		return compression.S2, nil
	}
	return "", errors.New(errors.ErrorTypeCache,
		stringpool.Sprintf("unknown cache compression byte 0x%02x", b))
}
