// Package stats computes read-side aggregates over collectors and events.
// Everything here is derived at query time from the two base tables; no
// aggregate state is persisted.
package stats

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tally/internal/pkg/async"
)

// TopLimit bounds every top-N listing.
const TopLimit = 25

// PercentCap stands in for an infinite increase (previous window empty,
// current window not) so JSON payloads stay finite.
const PercentCap = float64(1000)

// MetricCountResult is a generic key-count pair for query results.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// OSBrowserCount counts sessions per (os, browser) combination.
type OSBrowserCount struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Count   int64  `json:"count"`
}

// TimeBucket is one point of a bucketed time series. Bucket is a UTC
// 'YYYY-MM-DD HH:MM:SS' key truncated to the series resolution.
type TimeBucket struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// HeatmapCell holds the event count for one weekday/hour combination.
// Day follows sqlite's %w convention: 0 is Sunday, 6 is Saturday.
type HeatmapCell struct {
	Day   int   `json:"day"`
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// Summary carries the live traffic counters.
type Summary struct {
	EventsLastFiveMinutes int64 `json:"events_in_last_five_minutes"`
	EventsLastHour        int64 `json:"events_in_last_hour"`
	EventsLastDay         int64 `json:"events_in_last_twenty_four_hours"`
	CollectorsLastDay     int64 `json:"sessions_in_last_twenty_four_hours"`
}

// PercentChanges compares trailing traffic windows against the windows
// immediately before them.
type PercentChanges struct {
	Day   float64 `json:"day"`
	Week  float64 `json:"week"`
	Month float64 `json:"month"`
}

// GetSummary runs the four counter queries concurrently through the pool.
func GetSummary(ctx context.Context, db *gorm.DB, pool *async.Pool) (Summary, error) {
	db = db.WithContext(ctx)
	now := time.Now().UTC()

	countSince := func(table string, since time.Time) func() (interface{}, error) {
		return func() (interface{}, error) {
			var count int64
			err := db.Raw(
				fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE timestamp >= ?", table),
				since,
			).Scan(&count).Error
			return count, err
		}
	}

	tasks := []async.Task{
		{Name: "events_5m", Execute: countSince("events", now.Add(-5*time.Minute))},
		{Name: "events_1h", Execute: countSince("events", now.Add(-time.Hour))},
		{Name: "events_24h", Execute: countSince("events", now.Add(-24*time.Hour))},
		{Name: "collectors_24h", Execute: countSince("collectors", now.Add(-24*time.Hour))},
	}

	results := pool.Execute(ctx, tasks)

	counter := func(name string) (int64, error) {
		result, exists := results[name]
		if !exists {
			return 0, fmt.Errorf("summary counter %s was not computed: %w", name, ctx.Err())
		}
		if result.Err != nil {
			return 0, fmt.Errorf("error computing summary counter %s: %w", name, result.Err)
		}
		return result.Data.(int64), nil
	}

	var summary Summary
	var err error
	if summary.EventsLastFiveMinutes, err = counter("events_5m"); err != nil {
		return Summary{}, err
	}
	if summary.EventsLastHour, err = counter("events_1h"); err != nil {
		return Summary{}, err
	}
	if summary.EventsLastDay, err = counter("events_24h"); err != nil {
		return Summary{}, err
	}
	if summary.CollectorsLastDay, err = counter("collectors_24h"); err != nil {
		return Summary{}, err
	}

	return summary, nil
}

// GetHourlyBuckets returns event counts per hour over the trailing 24 hours.
func GetHourlyBuckets(ctx context.Context, db *gorm.DB) ([]TimeBucket, error) {
	var results []TimeBucket

	query := `
    SELECT
        strftime('%Y-%m-%d %H:00:00', timestamp) AS bucket,
        COUNT(*) AS count
    FROM events
    WHERE timestamp > ?
    GROUP BY strftime('%Y-%m-%d %H', timestamp)
    ORDER BY bucket ASC
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-24*time.Hour)).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching hourly buckets: %w", err)
	}
	if results == nil {
		results = []TimeBucket{}
	}

	return results, nil
}

// GetMinuteBuckets returns event counts per minute over the trailing 24
// hours, feeding the five-minute view.
func GetMinuteBuckets(ctx context.Context, db *gorm.DB) ([]TimeBucket, error) {
	var results []TimeBucket

	query := `
    SELECT
        strftime('%Y-%m-%d %H:%M:00', timestamp) AS bucket,
        COUNT(*) AS count
    FROM events
    WHERE timestamp > ?
    GROUP BY strftime('%Y-%m-%d %H:%M', timestamp)
    ORDER BY bucket ASC
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-24*time.Hour)).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching minute buckets: %w", err)
	}
	if results == nil {
		results = []TimeBucket{}
	}

	return results, nil
}

// GetWeeklyHeatmap returns event counts per weekday/hour cell over the
// trailing 7 days.
func GetWeeklyHeatmap(ctx context.Context, db *gorm.DB) ([]HeatmapCell, error) {
	var results []HeatmapCell

	query := `
    SELECT
        CAST(strftime('%w', timestamp) AS INTEGER) AS day,
        CAST(strftime('%H', timestamp) AS INTEGER) AS hour,
        COUNT(*) AS count
    FROM events
    WHERE timestamp >= ?
    GROUP BY day, hour
    ORDER BY day ASC, hour ASC
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-7*24*time.Hour)).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching weekly heatmap: %w", err)
	}
	if results == nil {
		results = []HeatmapCell{}
	}

	return results, nil
}

// GetTopURLs fetches the most visited URLs over the trailing 7 days.
// Ties break lexically so the ordering is stable.
func GetTopURLs(ctx context.Context, db *gorm.DB) ([]MetricCountResult, error) {
	var results []MetricCountResult

	query := `
    SELECT
        url AS name,
        COUNT(*) AS count
    FROM events
    WHERE timestamp > ?
    GROUP BY url
    ORDER BY count DESC, name ASC
    LIMIT ?
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-7*24*time.Hour), TopLimit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top URLs: %w", err)
	}
	if results == nil {
		results = []MetricCountResult{}
	}

	return results, nil
}

// GetTopReferrers fetches referrer hosts over the trailing 7 days. Empty
// referrers roll up under 'direct'; everything else is grouped by the host
// part after the scheme separator.
func GetTopReferrers(ctx context.Context, db *gorm.DB) ([]MetricCountResult, error) {
	var results []MetricCountResult

	query := `
    SELECT
        CASE
            WHEN referrer IS NULL OR referrer = '' THEN 'direct'
            ELSE COALESCE(NULLIF(SUBSTR(referrer, INSTR(referrer, '//') + 2), ''), referrer)
        END AS name,
        COUNT(*) AS count
    FROM events
    WHERE timestamp > ?
    GROUP BY name
    ORDER BY count DESC, name ASC
    LIMIT ?
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-7*24*time.Hour), TopLimit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top referrers: %w", err)
	}
	if results == nil {
		results = []MetricCountResult{}
	}

	return results, nil
}

// GetTopBrowsers counts sessions per browser over the trailing 7 days.
// Browser comes from the collector snapshot taken at session creation.
func GetTopBrowsers(ctx context.Context, db *gorm.DB) ([]MetricCountResult, error) {
	var results []MetricCountResult

	query := `
    SELECT
        browser AS name,
        COUNT(*) AS count
    FROM collectors
    WHERE timestamp > ?
    AND browser IS NOT NULL AND browser != ''
    GROUP BY browser
    ORDER BY count DESC, name ASC
    LIMIT ?
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-7*24*time.Hour), TopLimit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top browsers: %w", err)
	}
	if results == nil {
		results = []MetricCountResult{}
	}

	return results, nil
}

// GetTopOSBrowsers counts sessions per (os, browser) pair over the trailing
// 7 days.
func GetTopOSBrowsers(ctx context.Context, db *gorm.DB) ([]OSBrowserCount, error) {
	var results []OSBrowserCount

	query := `
    SELECT
        os,
        browser,
        COUNT(*) AS count
    FROM collectors
    WHERE timestamp > ?
    AND os IS NOT NULL AND os != ''
    AND browser IS NOT NULL AND browser != ''
    GROUP BY os, browser
    ORDER BY count DESC, os ASC, browser ASC
    LIMIT ?
    `

	err := db.WithContext(ctx).
		Raw(query, time.Now().UTC().Add(-7*24*time.Hour), TopLimit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top OS/browser pairs: %w", err)
	}
	if results == nil {
		results = []OSBrowserCount{}
	}

	return results, nil
}

// PercentChange compares two window counts. An empty previous window with
// traffic in the current one reports PercentCap rather than +Inf.
func PercentChange(current, previous int64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return PercentCap
	}
	return (float64(current) - float64(previous)) / float64(previous) * 100
}

// GetPercentChanges compares the trailing day, week and month of event
// traffic against the periods immediately before them. Window boundaries
// are computed from now so the comparison windows never overlap; a month is
// a fixed 30 days.
func GetPercentChanges(ctx context.Context, db *gorm.DB, now time.Time) (PercentChanges, error) {
	db = db.WithContext(ctx)
	now = now.UTC()

	change := func(span time.Duration) (float64, error) {
		var window struct {
			CurrentCount  int64
			PreviousCount int64
		}

		query := `
        SELECT
            (SELECT COUNT(*) FROM events WHERE timestamp >= ?) AS current_count,
            (SELECT COUNT(*) FROM events WHERE timestamp >= ? AND timestamp < ?) AS previous_count
        `

		currentFrom := now.Add(-span)
		previousFrom := now.Add(-2 * span)
		err := db.Raw(query, currentFrom, previousFrom, currentFrom).Scan(&window).Error
		if err != nil {
			return 0, fmt.Errorf("error fetching traffic change window: %w", err)
		}

		return PercentChange(window.CurrentCount, window.PreviousCount), nil
	}

	var changes PercentChanges
	var err error
	if changes.Day, err = change(24 * time.Hour); err != nil {
		return PercentChanges{}, err
	}
	if changes.Week, err = change(7 * 24 * time.Hour); err != nil {
		return PercentChanges{}, err
	}
	if changes.Month, err = change(30 * 24 * time.Hour); err != nil {
		return PercentChanges{}, err
	}

	return changes, nil
}
