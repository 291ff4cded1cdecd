package v1

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectPreferredIP(t *testing.T) {
	testCases := []struct {
		name     string
		values   []string
		expected string
	}{
		{"public ipv4 wins", []string{"203.0.113.7"}, "203.0.113.7"},
		{"skips private addresses", []string{"192.168.1.10", "10.0.0.1", "203.0.113.7"}, "203.0.113.7"},
		{"ipv4 preferred over ipv6", []string{"2001:db8::1", "203.0.113.7"}, "203.0.113.7"},
		{"falls back to public ipv6", []string{"192.168.1.10", "2001:db8::1"}, "2001:db8::1"},
		{"handles whitespace from forwarded lists", []string{" 203.0.113.7 ", "198.51.100.3"}, "203.0.113.7"},
		{"nothing usable", []string{"192.168.1.10", "garbage", ""}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, selectPreferredIP(tc.values))
		})
	}
}

func TestNormalizeIP(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain ipv4", "203.0.113.7", "203.0.113.7"},
		{"ipv4 with port", "203.0.113.7:8443", "203.0.113.7"},
		{"quoted value", `"203.0.113.7"`, "203.0.113.7"},
		{"bracketed ipv6 with port", "[2001:db8::1]:443", "2001:db8::1"},
		{"ipv6 zone stripped", "fe80::1%eth0", "fe80::1"},
		{"ipv4 mapped ipv6 unmapped", "::ffff:203.0.113.7", "203.0.113.7"},
		{"empty", "", ""},
		{"garbage", "not-an-ip", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clean, parsed := normalizeIP(tc.raw)
			assert.Equal(t, tc.expected, clean)
			if tc.expected != "" {
				assert.NotNil(t, parsed)
			} else {
				assert.Nil(t, parsed)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("10.1.2.3")))
	assert.True(t, isPrivateIP(net.ParseIP("192.168.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("172.16.5.5")))
	assert.True(t, isPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("fe80::1")))
	assert.False(t, isPrivateIP(net.ParseIP("203.0.113.7")))
	assert.False(t, isPrivateIP(net.ParseIP("2001:db8::1")))
	assert.False(t, isPrivateIP(nil))
}
