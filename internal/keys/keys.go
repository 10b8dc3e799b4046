// Package keys builds and parses the key-value store key layout:
//
//	<kind>:<id>                  hash of field -> value
//	<kind>                       set of entity keys
//	<kind>:<id>:<field>:<value>  index entry
//	<kind>:meta:count            entity counter
//
// Kind and field names never contain ':', but ids and values may. SCAN
// patterns escape glob characters in the literal segments.
package keys

import "strings"

// Sep separates key segments.
const Sep = ":"

// Sentinel is the value stored under every index entry.
const Sentinel = "1"

// Entity returns the key of an entity's hash.
func Entity(kind, id string) string {
	return kind + Sep + id
}

// Members returns the key of a kind's membership set.
func Members(kind string) string {
	return kind
}

// Index returns the key of one index entry.
func Index(kind, id, field, value string) string {
	return kind + Sep + id + Sep + field + Sep + value
}

// Count returns the key of a kind's entity counter.
func Count(kind string) string {
	return kind + Sep + "meta" + Sep + "count"
}

// IndexPattern returns a SCAN pattern matching every index entry of a field.
func IndexPattern(kind, field string) string {
	return EscapeGlob(kind) + Sep + "*" + Sep + EscapeGlob(field) + Sep + "*"
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

// EscapeGlob escapes the characters Redis glob patterns treat specially.
func EscapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// IndexEntry is one way of splitting an index key into id and value.
type IndexEntry struct {
	ID    string
	Value string
}

// ParseIndex splits an index key of the given kind and field. When the id
// or value itself contains ":<field>:" the split is ambiguous, so every
// candidate is returned in order of id length. Callers verify candidates
// against the stored entity. It returns nil for keys of another kind.
func ParseIndex(key, kind, field string) []IndexEntry {
	rest, ok := strings.CutPrefix(key, kind+Sep)
	if !ok {
		return nil
	}
	marker := Sep + field + Sep
	var out []IndexEntry
	for offset := 0; ; {
		i := strings.Index(rest[offset:], marker)
		if i < 0 {
			return out
		}
		i += offset
		if i > 0 {
			out = append(out, IndexEntry{ID: rest[:i], Value: rest[i+len(marker):]})
		}
		offset = i + 1
	}
}

// EntityID returns the id encoded in an entity key of the given kind.
func EntityID(key, kind string) (string, bool) {
	id, ok := strings.CutPrefix(key, kind+Sep)
	return id, ok && id != ""
}
