package cache

import "strings"

// Key identifies one cached server query result as an ordered tuple of
// segments, e.g. ["budget", "2026", "08"]. A shorter key acts as a prefix
// pattern: invalidating ["budget"] marks every budget month stale.
type Key []string

// NewKey builds a Key from its segments.
func NewKey(parts ...string) Key {
	return Key(parts)
}

// String renders the key in its canonical slash-joined form.
func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether pattern is a segment-wise prefix of k.
// An empty pattern matches nothing rather than everything; a blanket
// invalidation must be spelled out per key root.
func (k Key) HasPrefix(pattern Key) bool {
	if len(pattern) == 0 || len(pattern) > len(k) {
		return false
	}
	for i, seg := range pattern {
		if k[i] != seg {
			return false
		}
	}
	return true
}

// ParseKey splits a canonical slash-joined form back into a Key.
func ParseKey(s string) Key {
	if s == "" {
		return nil
	}
	return Key(strings.Split(s, "/"))
}
