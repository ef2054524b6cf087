// Package pattern implements AWS wildcard-pattern matching and the
// literal-covers-wildcard containment approximation used throughout the
// permission algebra.
package pattern

import (
	"regexp"
	"strings"
	"sync"

	"github.com/mpvl/unique"
)

// Pattern is an AWS wildcard string such as "arn:aws:s3:::bucket/*".
// '*' matches any run of any characters (including none); '?' matches
// exactly one character. Matching is case-sensitive.
type Pattern string

var (
	compileMu sync.RWMutex
	compiled  = make(map[Pattern]*regexp.Regexp)
)

func regexFor(p Pattern) *regexp.Regexp {
	compileMu.RLock()
	re, ok := compiled[p]
	compileMu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile("^" + toRegex(string(p)) + "$")

	compileMu.Lock()
	compiled[p] = re
	compileMu.Unlock()
	return re
}

// toRegex escapes every regex metacharacter in p, then substitutes the
// AWS wildcards '*' and '?' for their regex equivalents.
func toRegex(p string) string {
	var b strings.Builder
	for _, r := range p {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// Matches reports whether s can be produced by substituting any-length
// strings for each '*' and single characters for each '?' in p.
func Matches(p Pattern, s string) bool {
	return regexFor(p).MatchString(s)
}

// Covers reports whether every string matching b also matches a. This is
// implemented as Matches(a, literalTextOf(b)): exact when b contains no
// wildcards, and a sound over-approximation otherwise. Callers must only
// rely on the literal-covers-wildcard direction.
func Covers(a, b Pattern) bool {
	return Matches(a, string(b))
}

// Equal reports exact (case-sensitive) pattern-string equality.
func Equal(a, b Pattern) bool {
	return a == b
}

// HasWildcard reports whether p contains '*' or '?'.
func HasWildcard(p Pattern) bool {
	return strings.ContainsAny(string(p), "*?")
}

// Dedup returns ps sorted with exact duplicates removed.
func Dedup(ps []Pattern) []Pattern {
	ss := make([]string, len(ps))
	for i, p := range ps {
		ss[i] = string(p)
	}
	unique.Strings(&ss)

	out := make([]Pattern, len(ss))
	for i, s := range ss {
		out[i] = Pattern(s)
	}
	return out
}
