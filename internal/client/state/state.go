// Package state holds the client-local mirror of a Loult room: the roster of
// present personas, the mute set, and the rendered timeline. It is mutated
// only by the dispatcher, from a single goroutine.
package state

import (
	"time"

	"github.com/loult-family/loultcli/internal/client/protocol"
)

// Persona is one roster entry.
type Persona struct {
	UserID    string
	Name      string
	Adjective string
	Color     string
	Img       string
	IsSelf    bool
	Profile   protocol.Profile

	// Order disambiguates personas sharing the same name; the first carries
	// 0, the next 1, and so on. Used as the attack order index.
	Order int
}

// Store is the session state: who is present and who is muted.
type Store struct {
	users  map[string]*Persona
	order  []string
	muted  map[string]bool
	selfID string
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]*Persona),
		muted: make(map[string]bool),
	}
}

// UpsertPersona adds a persona to the roster. A userid already present is left
// untouched (the server never redefines a persona mid-session); the returned
// bool reports whether the entry was added.
func (s *Store) UpsertPersona(userID string, params protocol.PersonaParams, profile protocol.Profile) bool {
	if _, ok := s.users[userID]; ok {
		return false
	}

	order := 0
	for _, u := range s.users {
		if u.Name == params.Name {
			order++
		}
	}

	s.users[userID] = &Persona{
		UserID:    userID,
		Name:      params.Name,
		Adjective: params.Adjective,
		Color:     params.Color,
		Img:       params.Img,
		IsSelf:    params.You,
		Profile:   profile,
		Order:     order,
	}
	s.order = append(s.order, userID)
	if params.You {
		s.selfID = userID
	}
	return true
}

// RemovePersona drops a roster entry. Unknown userids are a no-op, which
// absorbs duplicate or late disconnect events.
func (s *Store) RemovePersona(userID string) bool {
	if _, ok := s.users[userID]; !ok {
		return false
	}
	delete(s.users, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.selfID == userID {
		s.selfID = ""
	}
	return true
}

// ResetRoster flushes every persona. Used on connection close and before
// applying a fresh userlist snapshot.
func (s *Store) ResetRoster() {
	s.users = make(map[string]*Persona)
	s.order = nil
	s.selfID = ""
}

// Persona returns the roster entry for userid, or nil.
func (s *Store) Persona(userID string) *Persona {
	return s.users[userID]
}

// Roster returns the personas in arrival order.
func (s *Store) Roster() []*Persona {
	out := make([]*Persona, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.users[id])
	}
	return out
}

func (s *Store) RosterSize() int { return len(s.users) }

// CurrentUserID returns the userid flagged as self, or "".
func (s *Store) CurrentUserID() string { return s.selfID }

// Mute and mute bookkeeping. Mute state is keyed by the per-connection userid:
// a returning user gets a fresh id, so mutes do not survive that user's
// reconnect. Known limitation, kept on purpose.

func (s *Store) Mute(userID string)   { s.muted[userID] = true }
func (s *Store) Unmute(userID string) { delete(s.muted, userID) }

// ToggleMute flips the mute state and returns the new value.
func (s *Store) ToggleMute(userID string) bool {
	if s.muted[userID] {
		delete(s.muted, userID)
		return false
	}
	s.muted[userID] = true
	return true
}

func (s *Store) IsMuted(userID string) bool { return s.muted[userID] }

// MutedIDs returns the muted userids, for preference persistence.
func (s *Store) MutedIDs() []string {
	out := make([]string, 0, len(s.muted))
	for id := range s.muted {
		out = append(out, id)
	}
	return out
}

// Line is one body of text inside a timeline entry.
type Line struct {
	Text string
	Time time.Time
}

// Entry is one visual bubble in the timeline: an author header and one or
// more lines merged under it.
type Entry struct {
	// MergeKey groups consecutive messages from the same sender. System
	// lines carry an empty key and never merge.
	MergeKey string
	Class    string
	Author   string
	Color    string
	Img      string
	Lines    []Line
}

// Timeline is the ordered sequence of rendered entries. Append-only, except
// that a message whose merge key matches the previous entry's joins that
// entry instead of opening a new one.
type Timeline struct {
	entries []Entry
	lastKey string
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Append adds text under the given merge key, merging into the previous entry
// when the key matches. An empty key always opens a new entry and resets the
// merge cursor. Returns true when the line was merged.
func (t *Timeline) Append(e Entry, text string, at time.Time) bool {
	line := Line{Text: text, Time: at}
	if e.MergeKey != "" && e.MergeKey == t.lastKey && len(t.entries) > 0 {
		last := &t.entries[len(t.entries)-1]
		last.Lines = append(last.Lines, line)
		return true
	}
	e.Lines = []Line{line}
	t.entries = append(t.entries, e)
	t.lastKey = e.MergeKey
	return false
}

// Entries returns the timeline contents in order.
func (t *Timeline) Entries() []Entry {
	return t.entries
}

func (t *Timeline) Len() int { return len(t.entries) }

// Last returns the most recent entry, or nil for an empty timeline.
func (t *Timeline) Last() *Entry {
	if len(t.entries) == 0 {
		return nil
	}
	return &t.entries[len(t.entries)-1]
}
