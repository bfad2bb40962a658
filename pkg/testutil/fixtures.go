package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Raw-file headers matching the column labels the detector and the
// metadata loaders recognize out of the box.
const (
	CyclesHeader  = "ThermostatId,CycleType,StartTime,EndTime"
	SensorsHeader = "ThermostatId,TimeStamp,Degrees"
	GeoHeader     = "LocationId,TimeStamp,Degrees"
)

// DevicesCSV and PostalCSV are small metadata tables wired together:
// device 100 sits in a New York zip and device 102 in a California zip,
// at locations 9001 and 9002.
const (
	DevicesCSV = "ThermostatId,LocationId,ZipCode\n" +
		"100,9001,00501\n" +
		"102,9002,90210\n"

	PostalCSV = "Zip,City,State\n" +
		"00501,Holtsville,NY\n" +
		"90210,Beverly Hills,CA\n"
)

var fixtureEpoch = time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)

// CyclesCSV renders a cycles file with rowsPerDevice cooling cycles for
// each of numDevices thermostats, fifteen minutes on and fifteen off,
// device IDs counting up from 100.
func CyclesCSV(numDevices, rowsPerDevice int) string {
	var b strings.Builder
	b.WriteString(CyclesHeader)
	b.WriteByte('\n')
	for d := 0; d < numDevices; d++ {
		cycleRows(&b, 100+d, rowsPerDevice)
	}
	return b.String()
}

func cycleRows(b *strings.Builder, id, rows int) {
	for r := 0; r < rows; r++ {
		start := fixtureEpoch.Add(time.Duration(r) * 30 * time.Minute)
		end := start.Add(15 * time.Minute)
		fmt.Fprintf(b, "%d,Cool,%s,%s\n", id,
			start.Format("2006-01-02 15:04:05"),
			end.Format("2006-01-02 15:04:05"))
	}
}

// SensorsCSV renders an indoor-readings file with rowsPerDevice readings
// five minutes apart for each of numDevices thermostats.
func SensorsCSV(numDevices, rowsPerDevice int) string {
	var b strings.Builder
	b.WriteString(SensorsHeader)
	b.WriteByte('\n')
	for d := 0; d < numDevices; d++ {
		for r := 0; r < rowsPerDevice; r++ {
			ts := fixtureEpoch.Add(time.Duration(r) * 5 * time.Minute)
			fmt.Fprintf(&b, "%d,%s,%.1f\n", 100+d,
				ts.Format("2006-01-02 15:04:05"),
				68.0+float64(r%8)*0.5)
		}
	}
	return b.String()
}

// GeoCSV renders an outdoor-readings file with rowsPerLocation readings
// fifteen minutes apart for each of numLocations weather stations,
// location IDs counting up from 9001.
func GeoCSV(numLocations, rowsPerLocation int) string {
	var b strings.Builder
	b.WriteString(GeoHeader)
	b.WriteByte('\n')
	for l := 0; l < numLocations; l++ {
		for r := 0; r < rowsPerLocation; r++ {
			ts := fixtureEpoch.Add(time.Duration(r) * 15 * time.Minute)
			fmt.Fprintf(&b, "%d,%s,%.1f\n", 9001+l,
				ts.Format("2006-01-02 15:04:05"),
				41.5+float64(r%10))
		}
	}
	return b.String()
}

// CreateCycleFiles writes numFiles cycles CSVs under dir, one device per
// file with rowsPerFile cycles each, and returns their paths.
func CreateCycleFiles(t *testing.T, dir string, numFiles, rowsPerFile int) []string {
	t.Helper()
	files := make([]string, 0, numFiles)
	for i := 0; i < numFiles; i++ {
		var b strings.Builder
		b.WriteString(CyclesHeader)
		b.WriteByte('\n')
		cycleRows(&b, 100+i, rowsPerFile)

		path := filepath.Join(dir, fmt.Sprintf("cycles_%d.csv", i))
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
		files = append(files, path)
	}
	return files
}

// IntegrationTest skips t under -short. End-to-end conversions touch the
// filesystem and real codecs, so they stay out of quick runs.
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
