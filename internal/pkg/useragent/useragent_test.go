package useragent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tally/internal/pkg/useragent"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		os      string
		browser string
	}{
		{
			name:    "firefox on macos",
			raw:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:127.0) Gecko/20100101 Firefox/127.0",
			os:      "MacOS",
			browser: "Firefox",
		},
		{
			name:    "chrome on windows",
			raw:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			os:      "Windows",
			browser: "Chrome",
		},
		{
			name:    "edge reports before chrome",
			raw:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
			os:      "Windows",
			browser: "Edge",
		},
		{
			name:    "safari on iphone",
			raw:     "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			os:      "iOS",
			browser: "Safari",
		},
		{
			name:    "chrome on android",
			raw:     "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			os:      "Android",
			browser: "Chrome",
		},
		{
			name:    "opera identified by opr token",
			raw:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 OPR/112.0.0.0",
			os:      "Linux",
			browser: "Opera",
		},
		{
			name:    "empty agent",
			raw:     "",
			os:      "",
			browser: "",
		},
		{
			name:    "unrecognized agent",
			raw:     "curl/8.5.0",
			os:      "",
			browser: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := useragent.Parse(tc.raw)
			assert.Equal(t, tc.os, parsed.OS)
			assert.Equal(t, tc.browser, parsed.Browser)
		})
	}
}
