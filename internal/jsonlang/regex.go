package jsonlang

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// patternMatchTimeout bounds a single match of a schema pattern.
const patternMatchTimeout = time.Second

// matcher is a compiled schema pattern.
type matcher interface {
	MatchString(s string) bool
}

type ecmaMatcher struct {
	re *regexp2.Regexp
}

// MatchString treats a match timeout as a miss.
func (m ecmaMatcher) MatchString(s string) bool {
	ok, err := m.re.MatchString(s)
	return err == nil && ok
}

type invalidPattern struct{}

func (invalidPattern) MatchString(string) bool { return false }

var patternCache sync.Map // map[string]matcher

// extendedRegexp compiles a schema pattern with ECMAScript semantics. A
// leading "(?i)" makes it case-insensitive. Patterns regexp2 rejects in
// ECMAScript mode are retried in its default mode and then with Go's RE2
// syntax. It returns nil when no engine accepts the pattern.
func extendedRegexp(pattern string) matcher {
	if cached, ok := patternCache.Load(pattern); ok {
		if _, bad := cached.(invalidPattern); bad {
			return nil
		}
		return cached.(matcher)
	}

	m := compilePattern(pattern)
	if m == nil {
		patternCache.Store(pattern, invalidPattern{})
		return nil
	}
	patternCache.Store(pattern, m)
	return m
}

func compilePattern(pattern string) matcher {
	source := pattern
	var opts regexp2.RegexOptions
	ignoreCase := false
	if strings.HasPrefix(source, "(?i)") {
		source = source[len("(?i)"):]
		opts |= regexp2.IgnoreCase
		ignoreCase = true
	}

	if re, err := regexp2.Compile(source, opts|regexp2.ECMAScript); err == nil {
		re.MatchTimeout = patternMatchTimeout
		return ecmaMatcher{re: re}
	}
	if re, err := regexp2.Compile(source, opts); err == nil {
		re.MatchTimeout = patternMatchTimeout
		return ecmaMatcher{re: re}
	}
	if ignoreCase {
		source = "(?i)" + source
	}
	if re, err := regexp.Compile(source); err == nil {
		return re
	}
	return nil
}
