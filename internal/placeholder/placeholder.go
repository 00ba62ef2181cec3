// Package placeholder locates {{vault:handle[.field]}} references inside
// arbitrary text. Callers use it to discover which credentials a document
// depends on; it never touches secret values.
package placeholder

import (
	"regexp"
	"strings"
	"sync"
)

// DefaultPrefix is the reference namespace used in documents.
const DefaultPrefix = "vault"

// knownFields is the closed set of recognized field suffixes. A trailing
// ".xyz" outside this set belongs to the handle itself, so handles like
// "aws_prod.access_key" keep their dot.
var knownFields = map[string]struct{}{
	"username": {},
	"user":     {},
	"password": {},
	"secret":   {},
	"value":    {},
	"token":    {},
	"api_key":  {},
}

// Ref names a vault item and optionally one of its fields.
type Ref struct {
	Handle string
	Field  string
}

// Match is one located placeholder: the raw matched text and the parsed
// reference.
type Match struct {
	Raw string
	Ref Ref
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func pattern(prefix string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[prefix]; ok {
		return re
	}
	re := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(prefix) + `:([^}]+?)\s*\}\}`)
	patternCache[prefix] = re
	return re
}

// ParseRef parses the inner part of a placeholder as "handle" or
// "handle.field". The dot is only significant when the suffix is a known
// field name. Returns false for an empty reference.
func ParseRef(inner string) (Ref, bool) {
	raw := strings.TrimSpace(inner)
	if raw == "" {
		return Ref{}, false
	}

	if idx := strings.LastIndexByte(raw, '.'); idx >= 0 {
		field := raw[idx+1:]
		if _, ok := knownFields[field]; ok {
			handle := raw[:idx]
			if handle == "" {
				return Ref{}, false
			}
			return Ref{Handle: handle, Field: field}, true
		}
	}
	return Ref{Handle: raw}, true
}

// Find scans text for placeholders with the default "vault" prefix.
func Find(text string) []Match {
	return FindWithPrefix(text, DefaultPrefix)
}

// FindWithPrefix scans text for {{ prefix:inner }} references,
// whitespace-tolerant. Stateless: nothing is shared across calls beyond
// the compiled pattern.
func FindWithPrefix(text, prefix string) []Match {
	var out []Match
	for _, m := range pattern(prefix).FindAllStringSubmatch(text, -1) {
		ref, ok := ParseRef(m[1])
		if !ok {
			continue
		}
		out = append(out, Match{Raw: m[0], Ref: ref})
	}
	return out
}
