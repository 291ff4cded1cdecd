// Package sessions derives visit sessions from stored events. Sessions are
// never persisted: they are reconstructed on read by splitting a
// collector's timestamp-ordered events at inactivity gaps.
package sessions

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tally/internal/collectors"
	"tally/internal/events"
)

// Session is a maximal run of one collector's events in which no
// consecutive pair is further apart than the inactivity gap.
type Session struct {
	Collector collectors.Collector `json:"collector"`
	Events    []events.Event       `json:"events"`
}

// Duration returns the time between the first and last event of the
// session; a one-event session has zero duration.
func (s Session) Duration() time.Duration {
	if len(s.Events) < 2 {
		return 0
	}
	return s.Events[len(s.Events)-1].Timestamp.Sub(s.Events[0].Timestamp)
}

// Reconstruct walks evts once and starts a new session whenever the gap to
// the previous event exceeds gap. evts must be ordered by timestamp
// ascending; an empty slice yields no session.
func Reconstruct(collector collectors.Collector, evts []events.Event, gap time.Duration) []Session {
	if len(evts) == 0 {
		return nil
	}

	var result []Session
	current := Session{Collector: collector, Events: []events.Event{evts[0]}}

	for _, ev := range evts[1:] {
		previous := current.Events[len(current.Events)-1]
		if ev.Timestamp.Sub(previous.Timestamp) > gap {
			result = append(result, current)
			current = Session{Collector: collector, Events: []events.Event{ev}}
			continue
		}
		current.Events = append(current.Events, ev)
	}

	return append(result, current)
}

// ForRecentCollectors reconstructs sessions for the most recently created
// collectors, newest collector first. Each collector's events are fetched
// in one ordered query, so the split is a single linear pass.
func ForRecentCollectors(ctx context.Context, db *gorm.DB, gap time.Duration, limit int) ([]Session, error) {
	db = db.WithContext(ctx)

	recent, err := collectors.Recent(db, limit)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return []Session{}, nil
	}

	ids := make([]string, len(recent))
	for i, c := range recent {
		ids[i] = c.ID
	}

	var evts []events.Event
	err = db.Where("collector_id IN ?", ids).
		Order("timestamp ASC").
		Find(&evts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load events for sessions: %w", err)
	}

	byCollector := make(map[string][]events.Event, len(recent))
	for _, ev := range evts {
		byCollector[ev.CollectorID] = append(byCollector[ev.CollectorID], ev)
	}

	result := make([]Session, 0, len(recent))
	for _, c := range recent {
		result = append(result, Reconstruct(c, byCollector[c.ID], gap)...)
	}

	return result, nil
}
