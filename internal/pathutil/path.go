// Package pathutil normalizes and classifies namespace keys.
//
// The namespace has no tree index: hierarchy is derived from key strings.
// Directory keys end in "/", file keys do not, and every key starts with "/".
// None of these functions touch the store. Empty input is not a valid path.
package pathutil

import (
	"path"
	"strings"
)

// Separator divides path segments.
const Separator = "/"

// Root is the implicit top-level directory. It never has a marker entry.
const Root = Separator

// NormalizeFile prefixes "/" when absent. A trailing "/" is preserved.
func NormalizeFile(p string) string {
	if !strings.HasPrefix(p, Separator) {
		p = Separator + p
	}
	return p
}

// NormalizeDir prefixes and suffixes "/" when absent. It is idempotent.
func NormalizeDir(p string) string {
	p = NormalizeFile(p)
	if !strings.HasSuffix(p, Separator) {
		p += Separator
	}
	return p
}

// Dirname returns everything before the final "/" of p, like path.Dir but
// without collapsing a trailing separator into its parent:
// "/a/b" -> "/a", "/a/b/" -> "/a/b", "/a" -> "/".
func Dirname(p string) string {
	i := strings.LastIndex(p, Separator)
	switch {
	case i < 0:
		return ""
	case i == 0:
		return Root
	}
	return p[:i]
}

// Basename returns the last element of p, ignoring one trailing "/".
func Basename(p string) string {
	if p == Root {
		return Root
	}
	return path.Base(p)
}

// IsDirectChild reports whether candidate is exactly one segment below dir,
// optionally with a trailing "/" (a directory marker). dir must already be
// in directory form. A segment is any non-empty run of characters other
// than "/", so names like "a.txt" or "v1-final" are listed.
func IsDirectChild(dir, candidate string) bool {
	rest, ok := strings.CutPrefix(candidate, dir)
	if !ok || rest == "" {
		return false
	}
	rest = strings.TrimSuffix(rest, Separator)
	return rest != "" && !strings.Contains(rest, Separator)
}

// Ancestors splits a directory into its cumulative prefixes, outermost
// first: "/a/b/c/" -> ["/a/", "/a/b/", "/a/b/c/"]. The root has none.
func Ancestors(dir string) []string {
	dir = NormalizeDir(dir)
	var out []string
	for i := 1; i < len(dir); i++ {
		if dir[i] == '/' && dir[i-1] != '/' {
			out = append(out, dir[:i+1])
		}
	}
	return out
}

// ReplacePrefix rewrites the first occurrence of from in key with to.
func ReplacePrefix(key, from, to string) string {
	return strings.Replace(key, from, to, 1)
}

// IsDir reports whether key names a directory marker.
func IsDir(key string) bool {
	return strings.HasSuffix(key, Separator)
}
