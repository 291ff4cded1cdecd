package stats

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tally/internal/pkg/gazetteer"
)

// MapPoint is one plotted city on the session map. Size is the number of
// sessions attributed to that city in the window.
type MapPoint struct {
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Size      int64   `json:"size"`
}

// GetCityRollup groups sessions by city over the trailing 7 days and
// attaches coordinates. Cities missing from the gazetteer fall back to
// their country centroid; rows that resolve to neither are dropped from
// the map rather than plotted at (0, 0).
func GetCityRollup(ctx context.Context, db *gorm.DB, g *gazetteer.Gazetteer) ([]MapPoint, error) {
	var rawResults []struct {
		City    string
		Country string
		Count   int64
	}

	query := `
    SELECT
        city,
        country,
        COUNT(*) AS count
    FROM collectors
    WHERE timestamp > ?
    AND city IS NOT NULL AND city != ''
    GROUP BY city, country
    ORDER BY count DESC, city ASC
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-7*24*time.Hour)).
		Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching city rollup: %w", err)
	}

	points := make([]MapPoint, 0, len(rawResults))
	for _, r := range rawResults {
		coords := g.Locate(r.City, r.Country)
		if coords == nil {
			continue
		}
		points = append(points, MapPoint{
			City:      g.DisplayName(r.City),
			Country:   r.Country,
			Latitude:  coords.Latitude,
			Longitude: coords.Longitude,
			Size:      r.Count,
		})
	}

	return points, nil
}
