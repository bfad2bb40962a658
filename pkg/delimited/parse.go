package delimited

import (
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// ParseHeader parses the first line of a raw file into column labels.
// Trailing separators and line endings are dropped first, so a header such
// as "a,b,c,\n" yields three labels. The header detects its own quote
// character because providers sometimes quote labels but not data.
func ParseHeader(line []byte, delimiter byte) []string {
	end := len(line)
	for end > 0 {
		b := line[end-1]
		if b == '\n' || b == '\r' || b == delimiter {
			end--
			continue
		}
		break
	}
	// Copy once so the labels survive the caller's read buffer.
	s := string(line[:end])
	quote := DetectQuote(stringpool.StringToBytes(s))
	return splitAndClean(s, delimiter, quote)
}

// ParseLine splits a data row into fields according to the dialect.
// Line endings are stripped, fields are whitespace-trimmed, and symmetric
// quotes are removed. The returned fields alias the line's backing array;
// callers that keep them past the next read must copy.
func (d *Dialect) ParseLine(line []byte) []string {
	end := len(line)
	for end > 0 && (line[end-1] == '\n' || line[end-1] == '\r') {
		end--
	}
	return splitAndClean(stringpool.BytesToString(line[:end]), d.Delimiter, d.Quote)
}

// split on the delimiter, trim surrounding whitespace, then strip the
// quote when it wraps the whole field. Whitespace inside quotes is data
// and survives.
func splitAndClean(s string, delimiter, quote byte) []string {
	fields := stringpool.SplitByte(s, delimiter)
	for i, f := range fields {
		f = stringpool.TrimSpace(f)
		if quote != 0 && len(f) >= 2 && f[0] == quote && f[len(f)-1] == quote {
			f = f[1 : len(f)-1]
		}
		fields[i] = f
	}
	return fields
}

// ValidRow reports whether a parsed row can enter the record set: the
// field count must match the header and every field must be non-empty.
func ValidRow(fields []string, numColumns int) bool {
	if len(fields) != numColumns {
		return false
	}
	for _, f := range fields {
		if f == "" {
			return false
		}
	}
	return true
}

// RowContainsDigits reports whether any field of an already-split row
// holds a digit. It is the per-row equivalent of ContainsDigits for
// readers that split before filtering.
func RowContainsDigits(fields []string) bool {
	for _, f := range fields {
		if stringpool.ContainsDigit(f) {
			return true
		}
	}
	return false
}
