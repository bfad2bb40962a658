// Package delimited reads the delimited text files produced by thermostat
// and weather-station data providers. The files carry a single header row
// followed by data rows; the separator, quoting and column layout vary by
// provider, so the package sniffs the dialect from the file head instead of
// assuming CSV.
//
// Detection follows the conventions of the raw archives: delimiter
// candidates are tried in precedence order (comma, tab, pipe, then
// space) and the first one present anywhere in the row wins, a quote is
// a double or single quote immediately followed by a non-digit, and a
// row only counts as data when it contains at least one digit.
package delimited

import (
	"github.com/ajitpratap0/caar/pkg/errors"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// Delimiter candidates in precedence order. Space comes last so that a
// pipe-delimited file whose timestamps contain spaces, or a comma header
// with spaces inside labels, still resolves to the stronger separator.
var delimiterCandidates = [...]byte{',', '\t', '|', ' '}

// quoteCandidates are tried in order; a double quote wins over a single
// quote when both would match, which keeps apostrophes inside fields from
// being mistaken for quoting.
var quoteCandidates = [...]byte{'"', '\''}

// Dialect describes how a raw file is laid out: the field separator, the
// optional quote character (0 when fields are unquoted) and the parsed
// header labels.
type Dialect struct {
	Delimiter byte     `json:"delimiter" yaml:"delimiter"`
	Quote     byte     `json:"quote,omitempty" yaml:"quote,omitempty"`
	Header    []string `json:"header" yaml:"header"`
}

// NumColumns returns the number of header labels. Data rows must carry
// exactly this many fields to be accepted.
func (d *Dialect) NumColumns() int {
	return len(d.Header)
}

// String renders the dialect for logs and the detect command output.
func (d *Dialect) String() string {
	quote := "none"
	if d.Quote != 0 {
		quote = string(d.Quote)
	}
	return stringpool.Sprintf("delimiter=%q quote=%s columns=%d",
		string(d.Delimiter), quote, len(d.Header))
}

// DetectDelimiter returns the first candidate separator present anywhere
// in the line, trying comma, tab, pipe and space in that order.
func DetectDelimiter(line []byte) (byte, error) {
	for _, cand := range delimiterCandidates {
		for _, b := range line {
			if b == cand {
				return cand, nil
			}
		}
	}
	return 0, errors.New(errors.ErrorTypeDetect,
		"no delimiter found: expected comma, tab, pipe or space")
}

// DetectQuote returns the quote character in use on the line, or 0 when
// fields are unquoted. A candidate only counts when it is immediately
// followed by a non-digit byte; that rules out inch-style notation such
// as 5'10 while still matching a quote that closes a field. End of line
// counts as a non-digit follower, so a quoted numeric last field is
// still detected.
func DetectQuote(line []byte) byte {
	for _, q := range quoteCandidates {
		for i := 0; i < len(line); i++ {
			if line[i] == q && (i+1 == len(line) || !isASCIIDigit(line[i+1])) {
				return q
			}
		}
	}
	return 0
}

// ContainsDigits reports whether the line holds at least one ASCII digit.
// Rows without digits carry no observations and are skipped everywhere.
func ContainsDigits(line []byte) bool {
	return stringpool.ContainsDigit(stringpool.BytesToString(line))
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
