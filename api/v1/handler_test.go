// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tally/internal/collectors"
	"tally/internal/events"
	"tally/internal/pkg/geoip"
	"tally/internal/testsupport"
)

func setupAPI(t *testing.T, queueCapacity int) (*fiber.App, *gorm.DB, *events.Queue) {
	t.Helper()

	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	registry := collectors.NewRegistry(dbManager, geoip.NewResolver("", logger), logger,
		[]string{"https://example.com"})
	writer := events.NewWriter(dbManager, logger, 2, time.Millisecond)
	queue := events.NewQueue(registry, writer, logger, queueCapacity, time.Hour)

	app := testsupport.CreateMinimalTestApp(t, db, registry, queue)
	return app, db, queue
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func TestCreateCollectorHandler(t *testing.T) {
	t.Run("creates a collector for an allowed origin", func(t *testing.T) {
		app, db, _ := setupAPI(t, 10)

		req := httptest.NewRequest("POST", "/api/v1/collectors", nil)
		req.Header.Set("Origin", "https://example.com")
		req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0")
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		req.Header.Set("Sec-Fetch-Site", "cross-site")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		payload := decodeJSON(t, resp)
		id, ok := payload["id"].(string)
		require.True(t, ok)
		require.NotEmpty(t, id)

		stored, err := collectors.Lookup(db, id)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", stored.Origin)
		assert.Equal(t, "MacOS", stored.OS)
		assert.Equal(t, "Firefox", stored.Browser)
		// No GeoLite2 database in tests, so geo fields degrade to empty.
		assert.Empty(t, stored.Country)
		assert.Empty(t, stored.City)
	})

	t.Run("rejects an origin outside the allow-list", func(t *testing.T) {
		app, db, _ := setupAPI(t, 10)

		req := httptest.NewRequest("POST", "/api/v1/collectors", nil)
		req.Header.Set("Origin", "https://not-registered.com")
		req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")
		req.Header.Set("Sec-Fetch-Site", "cross-site")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		payload := decodeJSON(t, resp)
		assert.Equal(t, "ORIGIN_NOT_ALLOWED", payload["code"])

		var count int64
		require.NoError(t, db.Model(&collectors.Collector{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("falls back to Referer when Origin header is missing", func(t *testing.T) {
		app, _, _ := setupAPI(t, 10)

		req := httptest.NewRequest("POST", "/api/v1/collectors", nil)
		req.Header.Set("Referer", "https://example.com")
		req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")
		req.Header.Set("Sec-Fetch-Site", "cross-site")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}

func TestGetCollectorHandler(t *testing.T) {
	t.Run("returns a stored collector", func(t *testing.T) {
		app, db, _ := setupAPI(t, 10)
		stored := testsupport.CreateTestCollector(t, db, "https://example.com", time.Now())

		req := httptest.NewRequest("GET", "/api/v1/collectors/"+stored.ID, nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		payload := decodeJSON(t, resp)
		assert.Equal(t, stored.ID, payload["id"])
		assert.Equal(t, "https://example.com", payload["origin"])
		assert.Equal(t, "Germany", payload["country"])
	})

	t.Run("returns 404 for an unknown id", func(t *testing.T) {
		app, _, _ := setupAPI(t, 10)

		req := httptest.NewRequest("GET", "/api/v1/collectors/no-such-id", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		payload := decodeJSON(t, resp)
		assert.Equal(t, "COLLECTOR_NOT_FOUND", payload["code"])
	})
}

func TestCollectEventHandler(t *testing.T) {
	collectURL := func(params url.Values) string {
		return "/api/v1/collect?" + params.Encode()
	}

	t.Run("accepts a valid event and leaves it buffered", func(t *testing.T) {
		app, db, queue := setupAPI(t, 10)
		collector := testsupport.CreateTestCollector(t, db, "https://example.com", time.Now())

		params := url.Values{}
		params.Set("collector_id", collector.ID)
		params.Set("name", "visit")
		params.Set("url", "https://example.com/pricing")

		resp, err := app.Test(httptest.NewRequest("GET", collectURL(params), nil), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		payload := decodeJSON(t, resp)
		assert.Equal(t, "Event accepted", payload["message"])
		assert.Equal(t, float64(http.StatusAccepted), payload["status"])

		// The handler only enqueues; nothing reaches storage until a drain.
		assert.Equal(t, 1, queue.Len())
		var count int64
		require.NoError(t, db.Model(&events.Event{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("rejects a submission without a url", func(t *testing.T) {
		app, db, _ := setupAPI(t, 10)
		collector := testsupport.CreateTestCollector(t, db, "https://example.com", time.Now())

		params := url.Values{}
		params.Set("collector_id", collector.ID)

		resp, err := app.Test(httptest.NewRequest("GET", collectURL(params), nil), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		payload := decodeJSON(t, resp)
		assert.Equal(t, "MISSING_FIELD", payload["code"])
	})

	t.Run("rejects an unknown collector", func(t *testing.T) {
		app, _, _ := setupAPI(t, 10)

		params := url.Values{}
		params.Set("collector_id", "no-such-collector")
		params.Set("url", "https://example.com/page")

		resp, err := app.Test(httptest.NewRequest("GET", collectURL(params), nil), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		payload := decodeJSON(t, resp)
		assert.Equal(t, "UNKNOWN_COLLECTOR", payload["code"])
	})

	t.Run("acknowledges a drop at capacity with 202", func(t *testing.T) {
		app, db, queue := setupAPI(t, 1)
		collector := testsupport.CreateTestCollector(t, db, "https://example.com", time.Now())

		submit := func(path string) *http.Response {
			params := url.Values{}
			params.Set("collector_id", collector.ID)
			params.Set("name", "visit")
			params.Set("url", "https://example.com"+path)

			resp, err := app.Test(httptest.NewRequest("GET", collectURL(params), nil), 30000)
			require.NoError(t, err)
			return resp
		}

		first := submit("/kept")
		assert.Equal(t, http.StatusAccepted, first.StatusCode)

		// The buffer is full; the overflow event is lost but the client
		// still gets the same acknowledgment.
		second := submit("/overflow")
		assert.Equal(t, http.StatusAccepted, second.StatusCode)

		payload := decodeJSON(t, second)
		assert.Equal(t, "Event accepted", payload["message"])

		assert.Equal(t, 1, queue.Len())
		assert.Equal(t, uint64(1), queue.DroppedCount())
	})
}
