package jsonlang

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

type stringFormat struct {
	errorMessage string
	pattern      *regexp2.Regexp
}

func mustFormat(pattern string, opts regexp2.RegexOptions, message string) stringFormat {
	re := regexp2.MustCompile(pattern, opts|regexp2.ECMAScript)
	re.MatchTimeout = patternMatchTimeout
	return stringFormat{errorMessage: message, pattern: re}
}

var formats = map[string]stringFormat{
	"color-hex": mustFormat(`^#([0-9A-Fa-f]{3,4}|([0-9A-Fa-f]{2}){3,4})$`, 0,
		"Invalid color format. Use #RGB, #RGBA, #RRGGBB or #RRGGBBAA."),
	"date-time": mustFormat(`^(\d{4})-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])T([01][0-9]|2[0-3]):([0-5][0-9]):([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)([01][0-9]|2[0-3]):([0-5][0-9]))$`, regexp2.IgnoreCase,
		"String is not a RFC3339 date-time."),
	"date": mustFormat(`^(\d{4})-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`, regexp2.IgnoreCase,
		"String is not a RFC3339 date."),
	"time": mustFormat(`^([01][0-9]|2[0-3]):([0-5][0-9]):([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)([01][0-9]|2[0-3]):([0-5][0-9]))$`, regexp2.IgnoreCase,
		"String is not a RFC3339 time."),
	"email": mustFormat(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}])|(([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}))$`, 0,
		"String is not an e-mail address."),
	"hostname": mustFormat(`^(?=.{1,253}\.?$)[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[-0-9a-z]{0,61}[0-9a-z])?)*\.?$`, regexp2.IgnoreCase,
		"String is not a hostname."),
	"ipv4": mustFormat(`^(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)$`, 0,
		"String is not an IPv4 address."),
}

var uriPattern = regexp.MustCompile(`^(([^:/?#]+?):)?(//([^/?#]*))?([^?#]*)(\?([^#]*))?(#(.*))?`)

// checkFormat returns the problem message for value under format, or ""
// when the value conforms or the format is unknown.
func checkFormat(format, value string) string {
	switch format {
	case "uri", "uri-reference":
		if value == "" {
			return "String is not a URI: URI expected."
		}
		m := uriPattern.FindStringSubmatch(value)
		if m == nil {
			return "String is not a URI: URI is expected."
		}
		if m[2] == "" && format == "uri" {
			return "String is not a URI: URI with a scheme is expected."
		}
		return ""
	case "ipv6":
		if addr, err := netip.ParseAddr(value); err != nil || !addr.Is6() || strings.Contains(value, "%") {
			return "String is not an IPv6 address."
		}
		return ""
	}
	f, ok := formats[format]
	if !ok {
		return ""
	}
	if value == "" {
		return f.errorMessage
	}
	if ok, err := f.pattern.MatchString(value); err != nil || !ok {
		return f.errorMessage
	}
	return ""
}
