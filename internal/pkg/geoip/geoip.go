// Package geoip resolves client network addresses to a country and city
// using a local GeoLite2 database. Lookups degrade to Unknown rather than
// failing callers: the database is optional at runtime.
package geoip

import (
	"errors"
	"log/slog"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when no GeoLite2 database is loaded.
var ErrUnavailable = errors.New("geoip: database not available")

// Location is the result of a successful lookup. Either field may be empty
// when the database has no record for it.
type Location struct {
	Country string
	City    string
}

// Resolver answers IP-to-location queries against a GeoLite2 city database.
type Resolver struct {
	reader *geoip2.Reader
	logger *slog.Logger
}

// NewResolver opens the GeoLite2 database at path. A missing or unreadable
// database yields a resolver whose lookups return ErrUnavailable; collector
// creation treats that as empty geo fields.
func NewResolver(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{logger: logger}

	if path == "" {
		logger.Debug("GeoIP database path not configured - geo lookups disabled")
		return r
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - geo lookups disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return r
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return r
	}

	logger.Info("GeoLite2 database initialized successfully", slog.String("path", path))
	r.reader = reader
	return r
}

// Resolve looks up the country and city for ipAddress.
func (r *Resolver) Resolve(ipAddress string) (Location, error) {
	if r.reader == nil {
		return Location{}, ErrUnavailable
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return Location{}, errors.New("geoip: invalid IP address " + ipAddress)
	}

	record, err := r.reader.City(ip)
	if err != nil {
		r.logger.Warn("GeoIP lookup failed",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return Location{}, err
	}

	loc := Location{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}

	r.logger.Debug("Resolved IP to location",
		slog.String("ip_address", ipAddress),
		slog.String("country", loc.Country),
		slog.String("city", loc.City))

	return loc, nil
}

// Close releases the underlying database reader.
func (r *Resolver) Close() error {
	if r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
