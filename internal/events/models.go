package events

import (
	"net/url"
	"strings"
	"time"
)

// Event is one tracked action tied to a collector. Events are immutable
// once written; the timestamp is stamped at ingestion, never client-supplied.
type Event struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	URL         string    `gorm:"index;not null" json:"url"`
	Referrer    string    `json:"referrer"`
	Name        string    `gorm:"index;not null" json:"name"`
	Timestamp   time.Time `gorm:"index;not null" json:"timestamp"`
	CollectorID string    `gorm:"index;not null" json:"collector_id"`
}

// SubmitInput defines the input required to submit an event for ingestion.
type SubmitInput struct {
	CollectorID string
	Name        string
	URL         string
	Referrer    string
}

// NormalizeURL strips the query string, the fragment and trailing slashes
// from a tracked URL so page counts group cleanly. Unparseable URLs are
// kept as-is apart from trailing-slash removal.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/")
}
