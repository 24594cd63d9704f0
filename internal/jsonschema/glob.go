package jsonschema

import (
	"net/url"
	"regexp"
	"strings"
)

// globToRegexp compiles an extended glob into an anchored regular
// expression. `**` between separators matches any number of path segments
// and a trailing `/**` matches the directory too,
// `*` and `?` never cross a '/', `{a,b}` is alternation and `[...]` is a
// character class.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	inGroup := false
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '/':
			if glob[i+1:] == "**" {
				// A trailing "/**" also matches the directory itself.
				b.WriteString(`(?:/((?:[^/]*(?:/|$))*))?`)
				i += 2
				continue
			}
			b.WriteString(`\/`)
		case '$', '^', '+', '.', '(', ')', '=', '!', '|', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '?':
			b.WriteString("[^/]")
		case '[', ']':
			b.WriteByte(c)
		case '{':
			inGroup = true
			b.WriteByte('(')
		case '}':
			inGroup = false
			b.WriteByte(')')
		case ',':
			if inGroup {
				b.WriteByte('|')
			} else {
				b.WriteString("\\,")
			}
		case '*':
			starCount := 1
			for i+1 < len(glob) && glob[i+1] == '*' {
				starCount++
				i++
			}
			prevSep := i-starCount < 0 || glob[i-starCount] == '/'
			nextSep := i+1 >= len(glob) || glob[i+1] == '/'
			if starCount > 1 && prevSep && nextSep {
				b.WriteString(`((?:[^/]*(?:/|$))*)`)
				if i+1 < len(glob) {
					i++
				}
			} else {
				b.WriteString(`([^/]*)`)
			}
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

type globWrapper struct {
	re      *regexp.Regexp
	include bool
}

// patternAssociation binds file patterns to schema URIs. A pattern starting
// with '!' excludes; patterns are relative to any directory.
type patternAssociation struct {
	globs     []globWrapper
	folderURI string
	uris      []string
}

func newPatternAssociation(patterns []string, folderURI string, uris []string) *patternAssociation {
	a := &patternAssociation{uris: uris}
	for _, p := range patterns {
		include := !strings.HasPrefix(p, "!")
		if !include {
			p = p[1:]
		}
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(p, "/")
		re, err := globToRegexp("**/" + p)
		if err != nil {
			// An invalid pattern disables the whole association.
			return &patternAssociation{}
		}
		a.globs = append(a.globs, globWrapper{re: re, include: include})
	}
	if folderURI != "" {
		folderURI = normalizeResourceForMatching(folderURI)
		if !strings.HasSuffix(folderURI, "/") {
			folderURI += "/"
		}
		a.folderURI = folderURI
	}
	return a
}

// matches evaluates every pattern in order; the last matching pattern
// decides.
func (a *patternAssociation) matches(resource string) bool {
	if a.folderURI != "" && !strings.HasPrefix(resource, a.folderURI) {
		return false
	}
	match := false
	for _, g := range a.globs {
		if g.re.MatchString(resource) {
			match = g.include
		}
	}
	return match
}

// normalizeResourceForMatching drops the query and fragment of a URI.
func normalizeResourceForMatching(resource string) string {
	u, err := url.Parse(resource)
	if err != nil {
		if i := strings.IndexAny(resource, "?#"); i >= 0 {
			return resource[:i]
		}
		return resource
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// normalizeID canonicalizes a schema identifier: a trailing '#' is dropped
// and the scheme is lower-cased.
func normalizeID(id string) string {
	id = strings.TrimSuffix(id, "#")
	if i := strings.Index(id, ":"); i > 0 {
		scheme := id[:i]
		if isScheme(scheme) {
			id = strings.ToLower(scheme) + id[i:]
		}
	}
	return id
}

func isScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}

// hasScheme reports whether uri is absolute (`scheme:...`).
func hasScheme(uri string) bool {
	i := strings.Index(uri, ":")
	return i > 1 && isScheme(uri[:i])
}

// resolveRelative resolves ref against base when ref has no scheme.
func resolveRelative(ref, base string) string {
	if hasScheme(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
