package stats_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tally/internal/collectors"
	"tally/internal/pkg/gazetteer"
	"tally/internal/stats"
	"tally/internal/testsupport"
)

func insertGeoCollector(t *testing.T, db *gorm.DB, city, country string, ts time.Time) {
	t.Helper()
	collector := collectors.Collector{
		ID:        uuid.NewString(),
		Origin:    "https://example.com",
		Country:   country,
		City:      city,
		Timestamp: ts.UTC(),
	}
	require.NoError(t, db.Create(&collector).Error)
}

func TestGetCityRollup(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	citiesPath := filepath.Join(t.TempDir(), "cities.txt")
	require.NoError(t, os.WriteFile(citiesPath,
		[]byte("2950159\tBerlin\tBerlin\t\t52.52437\t13.41053\n"), 0o644))
	g := gazetteer.New(citiesPath, testsupport.GetLogger())

	ts := time.Now().UTC().Add(-time.Hour)
	insertGeoCollector(t, db, "Berlin", "Germany", ts)
	insertGeoCollector(t, db, "Berlin", "Germany", ts)
	// Not in the cities file, resolved through the country centroid.
	insertGeoCollector(t, db, "Marseille", "France", ts)
	// Resolves to nothing, must be omitted from the map.
	insertGeoCollector(t, db, "Nowhere", "Atlantis", ts)
	// Geo lookup failed at creation, no city to plot.
	insertGeoCollector(t, db, "", "", ts)
	// Outside the 7 day window.
	insertGeoCollector(t, db, "Berlin", "Germany", ts.Add(-8*24*time.Hour))

	points, err := stats.GetCityRollup(context.Background(), db, g)
	require.NoError(t, err)
	require.Len(t, points, 2)

	// Largest rollup first.
	assert.Equal(t, "Berlin", points[0].City)
	assert.Equal(t, "Germany", points[0].Country)
	assert.Equal(t, int64(2), points[0].Size)
	assert.InDelta(t, 52.52437, points[0].Latitude, 0.0001)
	assert.InDelta(t, 13.41053, points[0].Longitude, 0.0001)

	assert.Equal(t, "Marseille", points[1].City)
	assert.Equal(t, "France", points[1].Country)
	assert.Equal(t, int64(1), points[1].Size)
	assert.InDelta(t, 46, points[1].Latitude, 3)
}
