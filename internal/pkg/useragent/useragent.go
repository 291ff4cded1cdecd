// Package useragent extracts a best-effort OS and browser name from a
// User-Agent header. Unrecognized agents yield empty fields, never errors.
package useragent

import "strings"

// UserAgent holds the parsed components of a User-Agent header.
type UserAgent struct {
	OS      string
	Browser string
}

// Parse inspects the raw User-Agent string. The match order matters:
// several browsers embed competitor tokens for compatibility (every
// Chrome UA contains "Safari", Edge contains "Chrome").
func Parse(raw string) UserAgent {
	if raw == "" {
		return UserAgent{}
	}

	lower := strings.ToLower(raw)

	return UserAgent{
		OS:      parseOS(lower),
		Browser: parseBrowser(lower),
	}
}

func parseOS(lower string) string {
	switch {
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "iphone os"), strings.Contains(lower, "like mac os x"):
		return "iOS"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"), strings.Contains(lower, "darwin"):
		return "MacOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "cros"):
		return "ChromeOS"
	case strings.Contains(lower, "linux"):
		return "Linux"
	default:
		return ""
	}
}

func parseBrowser(lower string) string {
	switch {
	case strings.Contains(lower, "edg/"), strings.Contains(lower, "edge/"):
		return "Edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		return "Opera"
	case strings.Contains(lower, "samsungbrowser"):
		return "Samsung Internet"
	case strings.Contains(lower, "firefox/"):
		return "Firefox"
	case strings.Contains(lower, "chromium/"):
		return "Chromium"
	case strings.Contains(lower, "chrome/"), strings.Contains(lower, "crios/"):
		return "Chrome"
	case strings.Contains(lower, "safari/"):
		return "Safari"
	case strings.Contains(lower, "msie"), strings.Contains(lower, "trident/"):
		return "IE"
	default:
		return ""
	}
}
