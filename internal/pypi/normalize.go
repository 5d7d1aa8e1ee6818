package pypi

import (
	"net/url"
	"strings"
)

// NormalizeName canonicalizes a package name per index convention:
// runs of characters outside [A-Za-z0-9.] collapse to a single dash,
// and the result is lowercased.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	dash := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '.' {
			b.WriteByte(c)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}

// PackageURL derives the index page URL for a package name.
func PackageURL(server, name string) string {
	base := server
	if base == "" {
		base = DefaultServer
	}
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(name)
}
