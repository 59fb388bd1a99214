package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Key names a capability a member can hold.
type Key string

const (
	KeyFriend  Key = "friend"
	KeyPatron  Key = "patron"
	KeyPartner Key = "partner"

	KeyPlayAlbum Key = "play_album"
	KeyAdmin     Key = "admin"

	// KeyAlbumShareGrant overrides an embargo when scoped to the embargoed resource.
	KeyAlbumShareGrant Key = "album_share_grant"
)

var knownKeys = map[Key]struct{}{
	KeyFriend:          {},
	KeyPatron:          {},
	KeyPartner:         {},
	KeyPlayAlbum:       {},
	KeyAdmin:           {},
	KeyAlbumShareGrant: {},
}

// AllKeys returns the vocabulary in a stable order.
func AllKeys() []Key {
	return []Key{KeyFriend, KeyPatron, KeyPartner, KeyPlayAlbum, KeyAdmin, KeyAlbumShareGrant}
}

// ParseKey validates s against the vocabulary.
func ParseKey(s string) (Key, error) {
	k := Key(strings.TrimSpace(s))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, s)
	}
	return k, nil
}

// ParseKeys validates every entry of ss.
func ParseKeys(ss []string) ([]Key, error) {
	keys := make([]Key, 0, len(ss))
	for _, s := range ss {
		k, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Valid reports whether k belongs to the vocabulary.
func (k Key) Valid() bool {
	_, ok := knownKeys[k]
	return ok
}

func (k Key) String() string { return string(k) }

// KeySet is an unordered set of keys.
type KeySet map[Key]struct{}

// NewKeySet builds a set from keys.
func NewKeySet(keys ...Key) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts k.
func (s KeySet) Add(k Key) { s[k] = struct{}{} }

// Has reports whether k is in the set. A nil set holds nothing.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// HasAny reports whether the set intersects keys.
func (s KeySet) HasAny(keys []Key) bool {
	for _, k := range keys {
		if s.Has(k) {
			return true
		}
	}
	return false
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted keys as strings.
func (s KeySet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, k := range sorted {
		out[i] = string(k)
	}
	return out
}
