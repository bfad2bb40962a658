package delimited

import (
	"bufio"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/pool"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// DefaultQuoteScanWindow is how many data lines the sniffer inspects for
// a quote character before concluding the file is unquoted.
const DefaultQuoteScanWindow = 100

// SnifferConfig controls dialect detection. A zero value means detect
// automatically; setting Delimiter or Quote pins that part of the dialect
// and skips its detection.
type SnifferConfig struct {
	Delimiter       byte
	Quote           byte
	QuoteScanWindow int
}

// Sniffer detects the dialect of a raw file from its first lines.
//
// The header is parsed with its own detected delimiter. The data
// delimiter and quote are then detected from the first digit-bearing data
// lines, because providers occasionally label headers differently from
// the rows (a space inside a header label must not turn a pipe file into
// a space file).
type Sniffer struct {
	config SnifferConfig
	logger *zap.Logger
}

// NewSniffer creates a sniffer. A nil logger falls back to the global one.
func NewSniffer(config SnifferConfig, log *zap.Logger) *Sniffer {
	if config.QuoteScanWindow <= 0 {
		config.QuoteScanWindow = DefaultQuoteScanWindow
	}
	if log == nil {
		log = logger.Get()
	}
	return &Sniffer{config: config, logger: log}
}

// SniffFile opens the file and detects its dialect from the head.
func (s *Sniffer) SniffFile(path string) (*Dialect, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to open %s", path))
	}
	defer f.Close()

	dialect, err := s.Sniff(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDetect,
			stringpool.Sprintf("failed to sniff %s", path))
	}
	return dialect, nil
}

// Sniff reads the header and up to QuoteScanWindow data lines from r and
// returns the detected dialect. The reader is consumed; callers reopen
// the input for the full parse.
func (s *Sniffer) Sniff(r io.Reader) (*Dialect, error) {
	scanner := bufio.NewScanner(r)
	buf := pool.GlobalBufferPool.Get(64 * 1024)
	defer pool.GlobalBufferPool.Put(buf)
	scanner.Buffer(buf[:0], 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read header row")
		}
		return nil, errors.New(errors.ErrorTypeFile, "file is empty")
	}
	headerLine := scanner.Bytes()

	headerDelim := s.config.Delimiter
	if headerDelim == 0 {
		var err error
		headerDelim, err = DetectDelimiter(headerLine)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDetect, "header row has no delimiter")
		}
	}
	header := ParseHeader(headerLine, headerDelim)

	// Data rows get their own detection pass. Lines without digits carry
	// no observations and are ignored, but still count against the scan
	// window.
	delimiter := s.config.Delimiter
	quote := s.config.Quote
	quoteSeen := quote != 0
	for i := 0; scanner.Scan(); i++ {
		line := scanner.Bytes()
		if ContainsDigits(line) {
			if delimiter == 0 {
				delimiter, _ = DetectDelimiter(line)
			}
			if !quoteSeen {
				quote = DetectQuote(line)
				quoteSeen = quote != 0
			}
			if delimiter != 0 && quoteSeen {
				break
			}
		}
		if i >= s.config.QuoteScanWindow {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to scan data rows")
	}
	if delimiter == 0 {
		// Header-only file or no digit-bearing rows in the window; fall
		// back to the header's delimiter so downstream yields an empty
		// set instead of failing.
		delimiter = headerDelim
	}

	d := &Dialect{Delimiter: delimiter, Quote: quote, Header: header}
	s.logger.Debug("dialect detected",
		zap.String("dialect", d.String()),
		zap.Strings("header", header))
	return d, nil
}
