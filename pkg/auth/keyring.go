package auth

import (
	"bytes"
	"sort"
)

// KeyRing is an immutable snapshot of an issuer's signing keys, indexed by
// key ID. A refetch produces a new KeyRing; an existing one never changes.
type KeyRing struct {
	issuer string
	keys   map[string][]byte
}

// NewKeyRing copies keys into a new ring.
func NewKeyRing(issuer string, keys map[string][]byte) *KeyRing {
	cp := make(map[string][]byte, len(keys))
	for kid, der := range keys {
		cp[kid] = bytes.Clone(der)
	}
	return &KeyRing{issuer: issuer, keys: cp}
}

// Issuer returns the issuer the keys belong to.
func (r *KeyRing) Issuer() string { return r.issuer }

// Key returns a copy of the DER public key for kid.
func (r *KeyRing) Key(kid string) ([]byte, bool) {
	der, ok := r.keys[kid]
	if !ok {
		return nil, false
	}
	return bytes.Clone(der), true
}

// Len returns the number of keys.
func (r *KeyRing) Len() int { return len(r.keys) }

// KeyIDs returns the key IDs in sorted order.
func (r *KeyRing) KeyIDs() []string {
	ids := make([]string, 0, len(r.keys))
	for kid := range r.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}
