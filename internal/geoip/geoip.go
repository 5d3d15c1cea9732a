// Package geoip resolves a viewer's country from an IP address. Without a
// database every lookup returns "".
package geoip

import (
	"net"

	"github.com/oschwald/maxminddb-golang"
	"github.com/rs/zerolog"
)

type Resolver struct {
	db *maxminddb.Reader
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// New opens the MaxMind database at dbPath. A missing or unreadable file
// disables lookups instead of failing startup.
func New(dbPath string, logger zerolog.Logger) *Resolver {
	if dbPath == "" {
		return &Resolver{}
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", dbPath).Msg("failed to open geoip database, geolocation disabled")
		return &Resolver{}
	}
	logger.Info().Str("path", dbPath).Msg("loaded geoip database")
	return &Resolver{db: db}
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

// Country returns the ISO 3166-1 alpha-2 code for ip, or "".
func (r *Resolver) Country(ip string) string {
	if !r.Enabled() || ip == "" {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	var record countryRecord
	if err := r.db.Lookup(parsed, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

func (r *Resolver) Close() error {
	if r.Enabled() {
		return r.db.Close()
	}
	return nil
}
