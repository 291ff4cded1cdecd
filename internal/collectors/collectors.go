// Package collectors manages the identity records incoming events attach to.
// A collector is created once per browsing session and snapshots the
// client's origin, geo location and device at creation time; it is never
// mutated afterwards.
package collectors

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"tally/internal/pkg/geoip"
	"tally/internal/pkg/useragent"
)

// Collector is one resolved client identity. Geo and device fields describe
// the session that created it, not any individual event.
type Collector struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Origin    string    `gorm:"index;not null" json:"origin"`
	Country   string    `json:"country"`
	City      string    `json:"city"`
	OS        string    `json:"os"`
	Browser   string    `json:"browser"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// OriginNotAllowedError indicates a creation request from an origin outside
// the configured allow-list.
type OriginNotAllowedError struct {
	Origin string
}

func (e *OriginNotAllowedError) Error() string {
	return fmt.Sprintf("origin %q is not allowed", e.Origin)
}

// NewOriginNotAllowedError creates an OriginNotAllowedError for the given origin.
func NewOriginNotAllowedError(origin string) *OriginNotAllowedError {
	return &OriginNotAllowedError{Origin: origin}
}

// NotFoundError indicates a lookup for a collector id that does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("collector %q not found", e.ID)
}

// NewNotFoundError creates a NotFoundError for the given collector id.
func NewNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

// GeoResolver resolves a client address to a location. The geoip package
// provides the production implementation.
type GeoResolver interface {
	Resolve(ipAddress string) (geoip.Location, error)
}

// CreateInput defines the input required to create a collector.
type CreateInput struct {
	Origin    string
	IPAddress string
	UserAgent string
}

// Registry creates and looks up collectors.
type Registry struct {
	dbManager cartridge.DBManager
	geo       GeoResolver
	logger    *slog.Logger
	allowed   map[string]struct{}
}

// NewRegistry creates a Registry restricted to the given origin allow-list.
func NewRegistry(dbManager cartridge.DBManager, geo GeoResolver, logger *slog.Logger, allowedOrigins []string) *Registry {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &Registry{
		dbManager: dbManager,
		geo:       geo,
		logger:    logger,
		allowed:   allowed,
	}
}

// Create resolves the client's identity and persists a new collector.
// Geo lookup failures degrade to empty fields; an origin outside the
// allow-list is the only rejection.
func (r *Registry) Create(input CreateInput) (*Collector, error) {
	if _, ok := r.allowed[input.Origin]; !ok {
		r.logger.Warn("Rejected collector creation for origin outside allow-list",
			slog.String("origin", input.Origin))
		return nil, NewOriginNotAllowedError(input.Origin)
	}

	var country, city string
	loc, err := r.geo.Resolve(input.IPAddress)
	if err != nil {
		// Availability over completeness: the collector is still created.
		r.logger.Warn("Geo lookup failed, storing empty geo fields",
			slog.String("ip_address", input.IPAddress),
			slog.Any("error", err))
	} else {
		country = loc.Country
		city = loc.City
	}

	ua := useragent.Parse(input.UserAgent)

	collector := &Collector{
		ID:        uuid.NewString(),
		Origin:    input.Origin,
		Country:   country,
		City:      city,
		OS:        ua.OS,
		Browser:   ua.Browser,
		Timestamp: time.Now().UTC(),
	}

	db := r.dbManager.GetConnection()
	err = sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return tx.Create(collector).Error
	})
	if err != nil {
		r.logger.Error("Failed to store collector", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store collector: %w", err)
	}

	r.logger.Info("Collector created",
		slog.String("id", collector.ID),
		slog.String("origin", collector.Origin),
		slog.String("country", collector.Country),
		slog.String("city", collector.City))

	return collector, nil
}

// Lookup fetches a collector by id, returning NotFoundError when absent.
func (r *Registry) Lookup(id string) (Collector, error) {
	return Lookup(r.dbManager.GetConnection(), id)
}

// Exists reports whether a collector with the given id is stored.
func (r *Registry) Exists(id string) (bool, error) {
	var count int64
	err := r.dbManager.GetConnection().
		Model(&Collector{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check collector existence: %w", err)
	}
	return count > 0, nil
}

// Lookup fetches a collector by id from the given connection.
func Lookup(db *gorm.DB, id string) (Collector, error) {
	var collector Collector
	err := db.Where("id = ?", id).First(&collector).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Collector{}, NewNotFoundError(id)
	}
	if err != nil {
		return Collector{}, fmt.Errorf("failed to look up collector: %w", err)
	}
	return collector, nil
}

// Recent returns the most recently created collectors, newest first.
func Recent(db *gorm.DB, limit int) ([]Collector, error) {
	var result []Collector
	err := db.Order("timestamp DESC").Limit(limit).Find(&result).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent collectors: %w", err)
	}
	return result, nil
}
