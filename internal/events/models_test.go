package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tally/internal/events"
)

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{"strips query string", "https://example.com/docs?utm_source=mail", "https://example.com/docs"},
		{"strips fragment", "https://example.com/docs#install", "https://example.com/docs"},
		{"strips trailing slash", "https://example.com/docs/", "https://example.com/docs"},
		{"strips repeated trailing slashes", "https://example.com/docs///", "https://example.com/docs"},
		{"strips everything at once", "https://example.com/docs/?page=2#top", "https://example.com/docs"},
		{"bare origin loses its slash", "https://example.com/", "https://example.com"},
		{"plain url unchanged", "https://example.com/docs", "https://example.com/docs"},
		{"unparseable url keeps content", "http://%zz/broken/", "http://%zz/broken"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, events.NormalizeURL(tc.raw))
		})
	}
}
