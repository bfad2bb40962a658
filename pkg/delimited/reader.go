package delimited

import (
	"bufio"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/mmap"
	"github.com/ajitpratap0/caar/pkg/pool"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// DefaultSampleSize is the number of valid rows used for column detection.
const DefaultSampleSize = 1000

// ReadStats counts what happened to each line of a raw file.
type ReadStats struct {
	Lines     int64 // data lines seen (header excluded)
	Rows      int64 // valid rows returned
	NoDigits  int64 // lines skipped for carrying no digits
	Malformed int64 // digit lines rejected by field count or empty fields
}

// ReaderConfig controls how raw files are read.
type ReaderConfig struct {
	// UseMmap enables the memory-mapped parallel path for large unquoted
	// files. Quoted files always use the buffered path.
	UseMmap bool
	// MmapMinSize is the file size, in bytes, below which the buffered
	// path is used even when UseMmap is set.
	MmapMinSize int64
	// Workers is the parallelism of the memory-mapped path. Zero means
	// one worker per CPU.
	Workers int
	// MaxLineSize bounds a single line on the buffered path.
	MaxLineSize int
	// Lenient keeps rows with empty fields as long as the field count
	// matches the header. Metadata files carry optional columns;
	// observation files do not.
	Lenient bool
}

// DefaultReaderConfig returns the production defaults: memory mapping for
// unquoted files of 1MB or more, CPU-count workers, 1MB line limit.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		UseMmap:     true,
		MmapMinSize: 1 << 20,
		MaxLineSize: 1 << 20,
	}
}

// Reader streams valid rows from a raw file. It skips the header row,
// drops lines without digits and rejects rows whose field count does not
// match the header or that contain empty fields, mirroring ReadStats.
type Reader struct {
	scanner *bufio.Scanner
	dialect *Dialect
	buf     []byte
	header  bool
	lenient bool
	stats   ReadStats
}

// NewReader wraps r, which must be positioned at the header row.
func NewReader(r io.Reader, d *Dialect, config ReaderConfig) *Reader {
	maxLine := config.MaxLineSize
	if maxLine <= 0 {
		maxLine = 1 << 20
	}
	scanner := bufio.NewScanner(r)
	buf := pool.GlobalBufferPool.Get(64 * 1024)
	scanner.Buffer(buf[:0], maxLine)

	return &Reader{
		scanner: scanner,
		dialect: d,
		buf:     buf,
		lenient: config.Lenient,
	}
}

// Read returns the next valid row, or io.EOF when the file is exhausted.
// The returned fields are freshly allocated and safe to retain.
func (r *Reader) Read() ([]string, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if !r.header {
			r.header = true
			continue
		}
		r.stats.Lines++

		if !ContainsDigits(line) {
			r.stats.NoDigits++
			continue
		}

		// Copy the line out of the scanner's buffer before splitting;
		// the fields share the one copied string.
		fields := splitAndClean(string(line), r.dialect.Delimiter, r.dialect.Quote)
		if r.lenient {
			if len(fields) != r.dialect.NumColumns() {
				r.stats.Malformed++
				continue
			}
		} else if !ValidRow(fields, r.dialect.NumColumns()) {
			r.stats.Malformed++
			continue
		}
		r.stats.Rows++
		return fields, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read data row")
	}
	return nil, io.EOF
}

// ReadAll drains the reader into a row slice.
func (r *Reader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		fields, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, fields)
	}
}

// Stats returns the line accounting so far.
func (r *Reader) Stats() ReadStats {
	return r.stats
}

// Close returns the scan buffer to the pool. The reader must not be used
// afterwards.
func (r *Reader) Close() error {
	if r.buf != nil {
		pool.GlobalBufferPool.Put(r.buf)
		r.buf = nil
	}
	return nil
}

// FileRows holds the parsed rows of one raw file. On the memory-mapped
// path the fields alias the mapping, so the rows are only valid until
// Close; copy anything kept longer. Record building already copies what
// it retains.
type FileRows struct {
	rows   [][]string
	stats  ReadStats
	mapped bool
	closer io.Closer
}

// Rows returns the valid data rows in file order.
func (f *FileRows) Rows() [][]string { return f.rows }

// Stats returns the line accounting for the whole file.
func (f *FileRows) Stats() ReadStats { return f.stats }

// Mapped reports whether the rows alias a memory mapping.
func (f *FileRows) Mapped() bool { return f.mapped }

// Close releases the mapping, if any. The rows must not be used after.
func (f *FileRows) Close() error {
	f.rows = nil
	if f.closer != nil {
		c := f.closer
		f.closer = nil
		return c.Close()
	}
	return nil
}

// ReadFile parses a whole raw file according to the dialect. Large
// unquoted files take the memory-mapped parallel path; everything else
// streams through the buffered reader. Failures on the mapped path fall
// back to the buffered one.
func ReadFile(path string, d *Dialect, config ReaderConfig) (*FileRows, error) {
	log := logger.Get()

	if config.UseMmap && d.Quote == 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile,
				stringpool.Sprintf("failed to stat %s", path))
		}
		if info.Size() >= config.MmapMinSize {
			fr, err := readFileMmap(path, d, config)
			if err == nil {
				log.Debug("raw file parsed via mmap",
					zap.String("path", path),
					zap.Int64("rows", fr.stats.Rows),
					zap.Int64("malformed", fr.stats.Malformed))
				return fr, nil
			}
			log.Warn("mmap path failed, falling back to buffered read",
				zap.String("path", path), zap.Error(err))
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to open %s", path))
	}
	defer f.Close()

	r := NewReader(f, d, config)
	defer r.Close()

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return &FileRows{rows: rows, stats: r.Stats()}, nil
}

// readFileMmap parses via the memory-mapped parallel row reader. Rows
// come back split but untrimmed and unfiltered, so the header, digit and
// validity rules are applied here.
func readFileMmap(path string, d *Dialect, config ReaderConfig) (*FileRows, error) {
	prr, err := mmap.NewParallelRowReader(path, d.Delimiter, config.Workers)
	if err != nil {
		return nil, err
	}

	raw, err := prr.ReadAll()
	if err != nil {
		prr.Close()
		return nil, err
	}

	var stats ReadStats
	rows := make([][]string, 0, len(raw))
	for i, fields := range raw {
		if i == 0 {
			continue // header row
		}
		stats.Lines++
		for j, f := range fields {
			fields[j] = stringpool.TrimSpace(f)
		}
		if !RowContainsDigits(fields) {
			stats.NoDigits++
			continue
		}
		if config.Lenient {
			if len(fields) != d.NumColumns() {
				stats.Malformed++
				continue
			}
		} else if !ValidRow(fields, d.NumColumns()) {
			stats.Malformed++
			continue
		}
		stats.Rows++
		rows = append(rows, fields)
	}

	return &FileRows{rows: rows, stats: stats, mapped: true, closer: prr}, nil
}

// Sample returns the first n valid rows for column detection, or all rows
// when the file is smaller. n defaults to DefaultSampleSize.
func Sample(rows [][]string, n int) [][]string {
	if n <= 0 {
		n = DefaultSampleSize
	}
	if len(rows) < n {
		return rows
	}
	return rows[:n]
}
