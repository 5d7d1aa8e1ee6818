// Package version implements a lenient ordering over free-form version
// strings. The upstream catalog carries versions that follow no single
// scheme (semver, PEP 440 qualifiers, dates), so the comparison has to
// accept anything and still stay deterministic.
package version

import "strings"

// Compare returns -1, 0 or 1 ordering a against b.
//
// Both strings are tokenized on runs of non-alphanumeric characters.
// Tokens consisting only of digits compare numerically; all other
// tokens compare lexicographically; a numeric token sorts before a
// non-numeric one. The shorter token sequence is padded with zero
// tokens, so "1.0" compares equal to "1.0.0".
func Compare(a, b string) int {
	ta := tokenize(a)
	tb := tokenize(b)

	n := len(ta)
	if len(tb) > n {
		n = len(tb)
	}

	for i := range n {
		va := zeroToken
		vb := zeroToken
		if i < len(ta) {
			va = ta[i]
		}
		if i < len(tb) {
			vb = tb[i]
		}
		if c := compareToken(va, vb); c != 0 {
			return c
		}
	}
	return 0
}

// Less is a strict total order over distinct strings: semantic
// comparison first, raw string comparison as the tie breaker. Use this
// wherever a deterministic maximum has to be picked.
func Less(a, b string) bool {
	if c := Compare(a, b); c != 0 {
		return c < 0
	}
	return a < b
}

// Max returns the maximum of versions by Less, or "" for an empty slice.
func Max(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if Less(best, v) {
			best = v
		}
	}
	return best
}

type token struct {
	text    string
	numeric bool
}

var zeroToken = token{text: "0", numeric: true}

func tokenize(s string) []token {
	var tokens []token
	start := -1
	for i := 0; i < len(s); i++ {
		if isAlnum(s[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, newToken(s[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(s[start:]))
	}
	return tokens
}

func newToken(text string) token {
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return token{text: text}
		}
	}
	return token{text: text, numeric: true}
}

func compareToken(a, b token) int {
	switch {
	case a.numeric && b.numeric:
		return compareNumeric(a.text, b.text)
	case a.numeric:
		return -1
	case b.numeric:
		return 1
	default:
		return strings.Compare(a.text, b.text)
	}
}

// compareNumeric compares two digit strings without parsing, so date-like
// versions far beyond int range still order correctly.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
