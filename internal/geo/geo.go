// Package geo resolves IP addresses to countries from an optional MaxMind
// country database.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

const Unknown = "UNKNOWN"

// Location is a country as reported by the database.
type Location struct {
	ISO  string
	Name string
}

type countryRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// Reader wraps an open database. A nil *Reader is valid and resolves nothing.
type Reader struct {
	db *maxminddb.Reader
}

func Open(path string) (*Reader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Country looks up ip. ok is false when no database is loaded, the address
// is malformed, or the database has no country for it.
func (r *Reader) Country(ip string) (Location, bool) {
	if r == nil || r.db == nil {
		return Location{}, false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, false
	}
	var rec countryRecord
	if err := r.db.Lookup(parsed, &rec); err != nil || rec.Country.ISOCode == "" {
		return Location{}, false
	}
	return Location{ISO: rec.Country.ISOCode, Name: rec.Country.Names["en"]}, true
}

// Describe renders a country for display, preferring the database name and
// falling back to the ISO code the service reported.
func (r *Reader) Describe(ip, iso string) string {
	if loc, ok := r.Country(ip); ok {
		if iso == "" {
			iso = loc.ISO
		}
		if loc.Name != "" {
			return fmt.Sprintf("%s (%s)", loc.Name, iso)
		}
	}
	if iso == "" {
		return Unknown
	}
	return iso
}
