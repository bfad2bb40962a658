// Package metadata loads the device and postal lookup files that tie
// thermostats to locations and zip codes, and builds the state filters
// used to restrict record sets geographically.
//
// Device files map a thermostat ID to a location ID and a zip code.
// Postal files map zip codes to two-letter states. Filtering a cycles or
// sensors file to a set of states keeps the devices whose zip code sits
// in one of those states; filtering a geospatial file keeps the location
// IDs those devices report against.
package metadata

import (
	"sort"

	"github.com/ajitpratap0/caar/pkg/errors"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// ZipWidth is the canonical zip code width. Raw files drop leading
// zeros, so both sides of the join are left-padded before matching.
const ZipWidth = 5

// Config pins the column labels of the metadata files. Empty fields are
// located by label search, the way raw-file column detection works.
type Config struct {
	// DeviceID is the device identifier column of the devices file.
	DeviceID string `json:"device_id" yaml:"device_id"`
	// Location is the location identifier column of the devices file.
	Location string `json:"location" yaml:"location"`
	// Zip is the zip code column of the devices file.
	Zip string `json:"zip" yaml:"zip"`
	// PostalZip is the zip code column of the postal file.
	PostalZip string `json:"postal_zip" yaml:"postal_zip"`
	// State is the two-letter state column of the postal file.
	State string `json:"state" yaml:"state"`
}

// Device is one row of the devices file after cleaning.
type Device struct {
	ID       uint64
	Location uint64
	Zip      string // left-padded to ZipWidth
}

// Devices holds the parsed device metadata keyed by device ID. A later
// row with the same ID replaces the earlier one.
type Devices struct {
	byID        map[uint64]Device
	hasLocation bool
}

// Len returns the number of devices.
func (d *Devices) Len() int { return len(d.byID) }

// Zip returns the padded zip code of a device.
func (d *Devices) Zip(id uint64) (string, bool) {
	dev, ok := d.byID[id]
	return dev.Zip, ok
}

// LocationOf returns the location ID a device reports against. Sensor
// readings are keyed by device, weather observations by location; this
// is the bridge between the two.
func (d *Devices) LocationOf(id uint64) (uint64, error) {
	if !d.hasLocation {
		return 0, errors.New(errors.ErrorTypeNotFound, "devices file has no location column")
	}
	dev, ok := d.byID[id]
	if !ok {
		return 0, errors.New(errors.ErrorTypeNotFound,
			stringpool.Sprintf("device %d not in devices file", id))
	}
	return dev.Location, nil
}

// IDs returns the device IDs in ascending order.
func (d *Devices) IDs() []uint64 {
	ids := make([]uint64, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InStates inner-joins the devices against the postal table and returns
// the IDs of devices whose zip code lies in one of the states. A nil or
// empty states list means no filtering and returns nil.
func (d *Devices) InStates(p *Postal, states []string) map[uint64]bool {
	if len(states) == 0 {
		return nil
	}
	zips := p.ZipsInStates(states)
	ids := make(map[uint64]bool)
	for id, dev := range d.byID {
		if zips[dev.Zip] {
			ids[id] = true
		}
	}
	return ids
}

// LocationsInStates returns the distinct location IDs of devices whose
// zip code lies in one of the states. Geospatial files are keyed by
// location rather than device, so their state filter goes through this
// join. A nil or empty states list means no filtering and returns nil.
func (d *Devices) LocationsInStates(p *Postal, states []string) (map[uint64]bool, error) {
	if len(states) == 0 {
		return nil, nil
	}
	if !d.hasLocation {
		return nil, errors.New(errors.ErrorTypeDetect,
			"devices file has no location column to filter geospatial data with")
	}
	zips := p.ZipsInStates(states)
	locs := make(map[uint64]bool)
	for _, dev := range d.byID {
		if zips[dev.Zip] {
			locs[dev.Location] = true
		}
	}
	return locs, nil
}

// Postal holds the zip-to-state table. A zip appearing on several rows
// keeps every state it was seen with.
type Postal struct {
	zipStates map[string][]string
}

// Len returns the number of distinct zips.
func (p *Postal) Len() int { return len(p.zipStates) }

// States returns the states recorded for a zip code, padding it first.
func (p *Postal) States(zip string) []string {
	return p.zipStates[PadZip(zip)]
}

// ZipsInStates returns the set of padded zips lying in any of the given
// states. State matching is exact, the way the raw files spell them.
func (p *Postal) ZipsInStates(states []string) map[string]bool {
	wanted := make(map[string]bool, len(states))
	for _, s := range states {
		wanted[stringpool.TrimSpace(s)] = true
	}
	zips := make(map[string]bool)
	for zip, sts := range p.zipStates {
		for _, s := range sts {
			if wanted[s] {
				zips[zip] = true
				break
			}
		}
	}
	return zips
}

// PadZip left-pads a zip code with zeros to the canonical width.
func PadZip(zip string) string {
	return stringpool.PadLeft(zip, ZipWidth, '0')
}
