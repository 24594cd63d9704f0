package jsonlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		format string
		value  string
		want   string
	}{
		{"date-time", "2020-01-31T12:30:00Z", ""},
		{"date-time", "2020-01-31t12:30:00.5+02:00", ""},
		{"date-time", "2020-13-01T00:00:00Z", "String is not a RFC3339 date-time."},
		{"date", "2020-02-29", ""},
		{"date", "2020-2-29", "String is not a RFC3339 date."},
		{"time", "23:59:60Z", ""},
		{"time", "24:00:00Z", "String is not a RFC3339 time."},
		{"email", "user@example.com", ""},
		{"email", `"odd name"@example.com`, ""},
		{"email", "user@", "String is not an e-mail address."},
		{"hostname", "example.com", ""},
		{"hostname", "Example.COM.", ""},
		{"hostname", "-bad.example", "String is not a hostname."},
		{"ipv4", "192.168.0.1", ""},
		{"ipv4", "256.1.1.1", "String is not an IPv4 address."},
		{"ipv6", "::1", ""},
		{"ipv6", "2001:db8::8a2e:370:7334", ""},
		{"ipv6", "127.0.0.1", "String is not an IPv6 address."},
		{"ipv6", "fe80::1%eth0", "String is not an IPv6 address."},
		{"color-hex", "#fff", ""},
		{"color-hex", "#ff00ff80", ""},
		{"color-hex", "#ff00f", "Invalid color format. Use #RGB, #RGBA, #RRGGBB or #RRGGBBAA."},
		{"uri", "https://example.com/a?b#c", ""},
		{"uri", "relative/path", "String is not a URI: URI with a scheme is expected."},
		{"uri", "", "String is not a URI: URI expected."},
		{"uri-reference", "relative/path", ""},
		{"unknown", "anything", ""},
	}
	for _, tt := range tests {
		t.Run(tt.format+" "+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, checkFormat(tt.format, tt.value))
		})
	}
}

func TestExtendedRegexp(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		input   string
		want    bool
	}{
		{"plain", `^a+$`, "aaa", true},
		{"ignore case prefix", `(?i)^abc$`, "AbC", true},
		{"lookahead", `^(?!x)`, "xyz", false},
		{"lookbehind", `(?<=a)b`, "ab", true},
		{"unicode class", `^\p{L}+$`, "héllo", true},
		{"backreference", `^(a)\1$`, "aa", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := extendedRegexp(tt.pattern)
			require.NotNil(t, re)
			assert.Equal(t, tt.want, re.MatchString(tt.input))
		})
	}
}

func TestExtendedRegexp_Invalid(t *testing.T) {
	assert.Nil(t, extendedRegexp(`(`))
	// Cached failures stay failures.
	assert.Nil(t, extendedRegexp(`(`))
}

func TestExtendedRegexp_Cached(t *testing.T) {
	first := extendedRegexp(`^cached$`)
	require.NotNil(t, first)
	assert.Equal(t, first, extendedRegexp(`^cached$`))
}
