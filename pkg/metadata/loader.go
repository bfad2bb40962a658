package metadata

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/caar/pkg/delimited"
	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/schema"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// LoadDevices parses a devices metadata file. The dialect is sniffed the
// same way raw observation files are. Rows whose device ID or zip code
// cannot be read are skipped; empty optional columns are kept.
func LoadDevices(path string, config Config, log *zap.Logger) (*Devices, error) {
	if log == nil {
		log = logger.Get()
	}
	header, rows, err := readMetadataFile(path, log)
	if err != nil {
		return nil, err
	}

	idCol, err := deviceIDColumn(header, rows, path, config.DeviceID)
	if err != nil {
		return nil, err
	}
	zipCol, err := column(header, path, config.Zip, "zip")
	if err != nil {
		return nil, err
	}
	if zipCol < 0 {
		return nil, errors.New(errors.ErrorTypeDetect,
			stringpool.Sprintf("no zip code column found in %s", path))
	}
	locCol, err := column(header, path, config.Location, "location")
	if err != nil {
		return nil, err
	}

	devices := &Devices{
		byID:        make(map[uint64]Device, len(rows)),
		hasLocation: locCol >= 0,
	}
	var skipped int
	for _, row := range rows {
		id, err := strconv.ParseUint(row[idCol], 10, 64)
		if err != nil || row[zipCol] == "" {
			skipped++
			continue
		}
		dev := Device{ID: id, Zip: PadZip(row[zipCol])}
		if locCol >= 0 {
			loc, err := strconv.ParseUint(row[locCol], 10, 64)
			if err != nil {
				skipped++
				continue
			}
			dev.Location = loc
		}
		devices.byID[id] = dev
	}

	log.Debug("devices file loaded",
		zap.String("path", path),
		zap.Int("devices", devices.Len()),
		zap.Int("skipped", skipped),
		zap.String("id_label", header[idCol]),
		zap.String("zip_label", header[zipCol]))
	return devices, nil
}

// LoadPostal parses a postal code file mapping zip codes to states. Zips
// are left-padded to five digits; a zip repeated across rows keeps every
// state it appears with.
func LoadPostal(path string, config Config, log *zap.Logger) (*Postal, error) {
	if log == nil {
		log = logger.Get()
	}
	header, rows, err := readMetadataFile(path, log)
	if err != nil {
		return nil, err
	}

	zipCol, err := column(header, path, config.PostalZip, "zip", "post")
	if err != nil {
		return nil, err
	}
	if zipCol < 0 {
		return nil, errors.New(errors.ErrorTypeDetect,
			stringpool.Sprintf("no zip or postal code column found in %s", path))
	}
	stateCol, err := column(header, path, config.State, "state")
	if err != nil {
		return nil, err
	}
	if stateCol < 0 {
		return nil, errors.New(errors.ErrorTypeDetect,
			stringpool.Sprintf("no state column found in %s", path))
	}

	p := &Postal{zipStates: make(map[string][]string, len(rows))}
	var skipped int
	for _, row := range rows {
		zip, state := row[zipCol], row[stateCol]
		if zip == "" || state == "" {
			skipped++
			continue
		}
		zip = PadZip(zip)
		if !containsString(p.zipStates[zip], state) {
			p.zipStates[zip] = append(p.zipStates[zip], state)
		}
	}

	log.Debug("postal file loaded",
		zap.String("path", path),
		zap.Int("zips", p.Len()),
		zap.Int("skipped", skipped),
		zap.String("zip_label", header[zipCol]),
		zap.String("state_label", header[stateCol]))
	return p, nil
}

// readMetadataFile sniffs the dialect and reads every well-formed row.
// Metadata files are small, so they take the buffered lenient path.
func readMetadataFile(path string, log *zap.Logger) ([]string, [][]string, error) {
	dialect, err := delimited.NewSniffer(delimited.SnifferConfig{}, log).SniffFile(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to open %s", path))
	}
	defer f.Close()

	r := delimited.NewReader(f, dialect, delimited.ReaderConfig{Lenient: true})
	defer r.Close()
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return dialect.Header, rows, nil
}

// deviceIDColumn locates the device ID column. Two leading ID-labeled
// columns are resolved by distinct sampled values, the way raw-file
// detection resolves them; otherwise the first label containing 'id',
// 'Id' or 'ID' wins.
func deviceIDColumn(header []string, rows [][]string, path, pinned string) (int, error) {
	if pinned != "" {
		if col := labelIndex(header, pinned); col >= 0 {
			return col, nil
		}
		return -1, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("%s has no column labeled %q", path, pinned))
	}
	if len(header) >= 2 && schema.LabelHasID(header[0]) && schema.LabelHasID(header[1]) {
		return schema.PrimaryIDColumn(delimited.Sample(rows, 0)), nil
	}
	if col := labelSearch(header, "id"); col >= 0 {
		return col, nil
	}
	return -1, errors.New(errors.ErrorTypeDetect,
		stringpool.Sprintf("no device column found in %s with a label containing 'id', 'Id' or 'ID'", path))
}

// column resolves a metadata column. A pinned label must be present
// exactly; an empty pin searches the words in case variants and returns
// -1 when nothing matches.
func column(header []string, path, pinned string, words ...string) (int, error) {
	if pinned != "" {
		if col := labelIndex(header, pinned); col >= 0 {
			return col, nil
		}
		return -1, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("%s has no column labeled %q", path, pinned))
	}
	for _, w := range words {
		if col := labelSearch(header, w); col >= 0 {
			return col, nil
		}
	}
	return -1, nil
}

func labelIndex(header []string, label string) int {
	for i, l := range header {
		if l == label {
			return i
		}
	}
	return -1
}

// labelSearch returns the index of the first header label containing the
// word in lower, Title or UPPER form ("zip", "Zip", "ZIP"), or -1.
func labelSearch(header []string, word string) int {
	variants := [3]string{word, titleWord(word), strings.ToUpper(word)}
	for i, label := range header {
		for _, v := range variants {
			if stringpool.Contains(label, v) {
				return i
			}
		}
	}
	return -1
}

func titleWord(word string) string {
	if word == "" || word[0] < 'a' || word[0] > 'z' {
		return word
	}
	b := []byte(word)
	b[0] -= 'a' - 'A'
	return string(b)
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
