// Package policy holds the access lists consulted before a login is
// verified: name bans, IP bans and the whitelist.
//
// Lists are immutable snapshots. The login path reads the current snapshot
// from a [Holder] without blocking; a [RedisStore] persists the lists and
// produces fresh snapshots with [RedisStore.Load].
package policy

import (
	"strings"
	"sync/atomic"
	"time"
)

// BanEntry is a single ban. Target is a lowercased player name or an IP
// address.
type BanEntry struct {
	Target  string     `json:"target"`
	Reason  string     `json:"reason,omitempty"`
	Source  string     `json:"source,omitempty"`
	Created time.Time  `json:"created"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Expired reports whether the ban has lapsed at now.
func (b BanEntry) Expired(now time.Time) bool {
	return b.Expires != nil && !now.Before(*b.Expires)
}

// Lists is an immutable snapshot of the access lists.
type Lists struct {
	nameBans         map[string]BanEntry
	ipBans           map[string]BanEntry
	whitelist        map[string]struct{}
	whitelistEnabled bool
}

// NewLists builds a snapshot. Names are matched case-insensitively.
func NewLists(nameBans, ipBans []BanEntry, whitelist []string, whitelistEnabled bool) *Lists {
	l := &Lists{
		nameBans:         make(map[string]BanEntry, len(nameBans)),
		ipBans:           make(map[string]BanEntry, len(ipBans)),
		whitelist:        make(map[string]struct{}, len(whitelist)),
		whitelistEnabled: whitelistEnabled,
	}
	for _, b := range nameBans {
		b.Target = normalizeName(b.Target)
		l.nameBans[b.Target] = b
	}
	for _, b := range ipBans {
		l.ipBans[b.Target] = b
	}
	for _, name := range whitelist {
		l.whitelist[normalizeName(name)] = struct{}{}
	}
	return l
}

// Empty returns a snapshot with no bans and the whitelist disabled.
func Empty() *Lists {
	return NewLists(nil, nil, nil, false)
}

// NameBan returns the active ban for a player name.
func (l *Lists) NameBan(name string, now time.Time) (BanEntry, bool) {
	b, ok := l.nameBans[normalizeName(name)]
	if !ok || b.Expired(now) {
		return BanEntry{}, false
	}
	return b, true
}

// IPBan returns the active ban for an IP address.
func (l *Lists) IPBan(ip string, now time.Time) (BanEntry, bool) {
	b, ok := l.ipBans[ip]
	if !ok || b.Expired(now) {
		return BanEntry{}, false
	}
	return b, true
}

// IsWhitelisted reports whether name may join. Everyone may join while the
// whitelist is disabled.
func (l *Lists) IsWhitelisted(name string) bool {
	if !l.whitelistEnabled {
		return true
	}
	_, ok := l.whitelist[normalizeName(name)]
	return ok
}

// WhitelistEnabled reports whether the whitelist is enforced.
func (l *Lists) WhitelistEnabled() bool { return l.whitelistEnabled }

// Counts returns the sizes of the name ban, IP ban and whitelist sets.
func (l *Lists) Counts() (nameBans, ipBans, whitelist int) {
	return len(l.nameBans), len(l.ipBans), len(l.whitelist)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Holder publishes the current snapshot. It is safe for concurrent use: a
// reload goroutine may Store while the main loop reads.
type Holder struct {
	p atomic.Pointer[Lists]
}

// NewHolder returns a holder starting with initial, or [Empty] if nil.
func NewHolder(initial *Lists) *Holder {
	h := &Holder{}
	if initial == nil {
		initial = Empty()
	}
	h.p.Store(initial)
	return h
}

// Lists returns the current snapshot.
func (h *Holder) Lists() *Lists { return h.p.Load() }

// Store replaces the current snapshot. A nil snapshot is ignored.
func (h *Holder) Store(l *Lists) {
	if l != nil {
		h.p.Store(l)
	}
}
