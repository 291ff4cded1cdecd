package gazetteer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/pkg/gazetteer"
	"tally/internal/testsupport"
)

func writeCitiesFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cities.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestLocate(t *testing.T) {
	// geonames tab-separated layout: id, name, asciiname, alternatenames,
	// lat, lon, ...
	path := writeCitiesFile(t,
		"2950159\tBerlin\tBerlin\t\t52.52437\t13.41053\n"+
			"3117735\tMálaga\tMalaga\t\t36.72016\t-4.42034\n"+
			"malformed line without tabs\n")

	g := gazetteer.New(path, testsupport.GetLogger())

	t.Run("exact city match", func(t *testing.T) {
		coords := g.Locate("Berlin", "Germany")
		require.NotNil(t, coords)
		assert.InDelta(t, 52.52437, coords.Latitude, 0.0001)
		assert.InDelta(t, 13.41053, coords.Longitude, 0.0001)
	})

	t.Run("match is case-insensitive", func(t *testing.T) {
		coords := g.Locate("berlin", "Germany")
		require.NotNil(t, coords)
		assert.InDelta(t, 52.52437, coords.Latitude, 0.0001)
	})

	t.Run("ascii alias resolves accented city", func(t *testing.T) {
		coords := g.Locate("Malaga", "Spain")
		require.NotNil(t, coords)
		assert.InDelta(t, 36.72016, coords.Latitude, 0.0001)
	})

	t.Run("unknown city falls back to country centroid", func(t *testing.T) {
		coords := g.Locate("Kleinstadt", "Germany")
		require.NotNil(t, coords)
		// Germany's centroid, not any city from the file.
		assert.InDelta(t, 51, coords.Latitude, 2)
		assert.InDelta(t, 9, coords.Longitude, 2)
	})

	t.Run("unresolvable place yields nil", func(t *testing.T) {
		assert.Nil(t, g.Locate("Nowhere", "Atlantis"))
		assert.Nil(t, g.Locate("", ""))
	})

	t.Run("cached lookups stay consistent", func(t *testing.T) {
		first := g.Locate("Berlin", "Germany")
		second := g.Locate("Berlin", "Germany")
		assert.Equal(t, first, second)
	})
}

func TestLocateWithoutCitiesFile(t *testing.T) {
	g := gazetteer.New(filepath.Join(t.TempDir(), "missing.txt"), testsupport.GetLogger())

	coords := g.Locate("Berlin", "Germany")
	require.NotNil(t, coords)
	assert.InDelta(t, 51, coords.Latitude, 2)
}

func TestDisplayName(t *testing.T) {
	g := gazetteer.New(filepath.Join(t.TempDir(), "missing.txt"), testsupport.GetLogger())

	assert.Equal(t, "New York", g.DisplayName(" new york "))
	assert.Equal(t, "Berlin", g.DisplayName("BERLIN"))
}
