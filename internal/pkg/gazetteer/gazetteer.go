// Package gazetteer resolves city names to coordinates using a geonames
// cities dump, with country centroids as fallback for cities the dump does
// not carry.
package gazetteer

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// geonames TSV column layout, see https://download.geonames.org/export/dump/
const (
	columnName      = 1
	columnASCIIName = 2
	columnLatitude  = 4
	columnLongitude = 5
	minColumns      = 6
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Gazetteer answers coordinate lookups from an in-memory index keyed by
// lowercased city name. Lookups are cached, including misses, because the
// same handful of cities dominates traffic.
type Gazetteer struct {
	logger    *slog.Logger
	countries *gountries.Query
	caser     cases.Caser

	mu     sync.RWMutex
	cities map[string]Coordinates
	cache  map[string]*Coordinates
}

// New loads the cities file at path. A missing or unreadable file is not
// fatal: city lookups will fall back to country centroids.
func New(path string, logger *slog.Logger) *Gazetteer {
	g := &Gazetteer{
		logger:    logger,
		countries: gountries.New(),
		caser:     cases.Title(language.AmericanEnglish),
		cities:    make(map[string]Coordinates),
		cache:     make(map[string]*Coordinates),
	}

	if err := g.load(path); err != nil {
		logger.Warn("City gazetteer unavailable, using country centroids only",
			slog.String("path", path),
			slog.Any("error", err))
	}

	return g
}

func (g *Gazetteer) load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open cities file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	loaded := 0
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) < minColumns {
			continue
		}

		lat, latErr := strconv.ParseFloat(parts[columnLatitude], 64)
		lon, lonErr := strconv.ParseFloat(parts[columnLongitude], 64)
		if latErr != nil || lonErr != nil {
			continue
		}

		coords := Coordinates{Latitude: lat, Longitude: lon}
		for _, name := range []string{parts[columnName], parts[columnASCIIName]} {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				continue
			}
			// First entry wins: the dump lists larger cities first.
			if _, exists := g.cities[key]; !exists {
				g.cities[key] = coords
			}
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read cities file: %w", err)
	}

	g.logger.Info("City gazetteer loaded", slog.Int("cities", loaded))
	return nil
}

// Locate returns coordinates for a city, falling back to the centroid of
// the country when the city is unknown. It returns nil when neither can be
// resolved.
func (g *Gazetteer) Locate(city, country string) *Coordinates {
	key := strings.ToLower(strings.TrimSpace(city)) + "|" + strings.ToLower(strings.TrimSpace(country))

	g.mu.RLock()
	if cached, exists := g.cache[key]; exists {
		g.mu.RUnlock()
		return cached
	}
	g.mu.RUnlock()

	coords := g.resolve(city, country)

	g.mu.Lock()
	g.cache[key] = coords
	g.mu.Unlock()

	return coords
}

func (g *Gazetteer) resolve(city, country string) *Coordinates {
	if name := strings.ToLower(strings.TrimSpace(city)); name != "" {
		g.mu.RLock()
		coords, exists := g.cities[name]
		g.mu.RUnlock()
		if exists {
			return &coords
		}
	}

	name := strings.TrimSpace(country)
	if name == "" {
		return nil
	}
	found, err := g.countries.FindCountryByName(name)
	if err != nil {
		g.logger.Debug("Unknown country in gazetteer lookup", slog.String("country", name))
		return nil
	}
	return &Coordinates{
		Latitude:  found.Coordinates.Latitude,
		Longitude: found.Coordinates.Longitude,
	}
}

// DisplayName normalizes a place name for presentation.
func (g *Gazetteer) DisplayName(name string) string {
	return g.caser.String(strings.TrimSpace(name))
}
