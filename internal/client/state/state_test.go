package state

import (
	"testing"
	"time"

	"github.com/loult-family/loultcli/internal/client/protocol"
)

func params(name string, you bool) protocol.PersonaParams {
	return protocol.PersonaParams{Name: name, Adjective: "sauvage", Color: "#112233", You: you}
}

func TestUpsertPersonaIdempotent(t *testing.T) {
	s := NewStore()
	if !s.UpsertPersona("u1", params("Pikachu", false), protocol.Profile{}) {
		t.Fatal("Expected first upsert to add")
	}
	if s.UpsertPersona("u1", params("Rattata", false), protocol.Profile{}) {
		t.Error("Expected duplicate upsert to be a no-op")
	}
	if s.RosterSize() != 1 {
		t.Errorf("Expected roster size 1, got %d", s.RosterSize())
	}
	if s.Persona("u1").Name != "Pikachu" {
		t.Errorf("Expected first write to win, got %q", s.Persona("u1").Name)
	}
}

func TestRemovePersona(t *testing.T) {
	s := NewStore()
	s.UpsertPersona("u1", params("Pikachu", false), protocol.Profile{})

	if s.RemovePersona("nope") {
		t.Error("Expected removing unknown userid to be a no-op")
	}
	if !s.RemovePersona("u1") {
		t.Error("Expected removal to succeed")
	}
	if s.RemovePersona("u1") {
		t.Error("Expected second removal to be a no-op")
	}
	if s.RosterSize() != 0 {
		t.Errorf("Expected empty roster, got %d", s.RosterSize())
	}
}

func TestSelfTracking(t *testing.T) {
	s := NewStore()
	s.UpsertPersona("u1", params("Pikachu", false), protocol.Profile{})
	s.UpsertPersona("u2", params("Miaouss", true), protocol.Profile{})

	if s.CurrentUserID() != "u2" {
		t.Errorf("Expected self u2, got %q", s.CurrentUserID())
	}
	s.RemovePersona("u2")
	if s.CurrentUserID() != "" {
		t.Errorf("Expected no self after removal, got %q", s.CurrentUserID())
	}
}

func TestOrderIndexForDuplicateNames(t *testing.T) {
	s := NewStore()
	s.UpsertPersona("u1", params("Miaouss", false), protocol.Profile{})
	s.UpsertPersona("u2", params("Miaouss", false), protocol.Profile{})
	s.UpsertPersona("u3", params("Pikachu", false), protocol.Profile{})

	if got := s.Persona("u1").Order; got != 0 {
		t.Errorf("Expected first Miaouss order 0, got %d", got)
	}
	if got := s.Persona("u2").Order; got != 1 {
		t.Errorf("Expected second Miaouss order 1, got %d", got)
	}
	if got := s.Persona("u3").Order; got != 0 {
		t.Errorf("Expected Pikachu order 0, got %d", got)
	}
}

func TestResetRoster(t *testing.T) {
	s := NewStore()
	s.UpsertPersona("u1", params("Pikachu", true), protocol.Profile{})
	s.ResetRoster()

	if s.RosterSize() != 0 || s.CurrentUserID() != "" {
		t.Error("Expected reset to flush roster and self")
	}
}

func TestMuteLifecycleIndependentOfRoster(t *testing.T) {
	s := NewStore()
	s.UpsertPersona("u1", params("Pikachu", false), protocol.Profile{})

	if !s.ToggleMute("u1") {
		t.Error("Expected toggle to mute")
	}
	if !s.IsMuted("u1") {
		t.Error("Expected u1 muted")
	}

	s.RemovePersona("u1")
	if !s.IsMuted("u1") {
		t.Error("Expected mute to survive roster removal")
	}

	if s.ToggleMute("u1") {
		t.Error("Expected toggle to unmute")
	}
}

func TestTimelineMergesConsecutiveSameKey(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()

	merged := tl.Append(Entry{MergeKey: "u1", Class: "msg", Author: "Pikachu"}, "salut", now)
	if merged {
		t.Error("Expected first append not merged")
	}
	merged = tl.Append(Entry{MergeKey: "u1", Class: "msg", Author: "Pikachu"}, "ça va ?", now)
	if !merged {
		t.Error("Expected second append from same key to merge")
	}

	if tl.Len() != 1 {
		t.Fatalf("Expected one entry, got %d", tl.Len())
	}
	lines := tl.Last().Lines
	if len(lines) != 2 || lines[0].Text != "salut" || lines[1].Text != "ça va ?" {
		t.Errorf("Expected both bodies in order, got %v", lines)
	}
}

func TestTimelineDifferentKeysDoNotMerge(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()

	tl.Append(Entry{MergeKey: "u1", Class: "msg"}, "salut", now)
	merged := tl.Append(Entry{MergeKey: "u2", Class: "msg"}, "yo", now)
	if merged {
		t.Error("Expected different key not to merge")
	}
	if tl.Len() != 2 {
		t.Errorf("Expected two entries, got %d", tl.Len())
	}
}

func TestTimelineSystemLineResetsMergeCursor(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()

	tl.Append(Entry{MergeKey: "u1", Class: "msg"}, "salut", now)
	tl.Append(Entry{Class: "log"}, "Un Rattata sauvage apparaît !", now)
	merged := tl.Append(Entry{MergeKey: "u1", Class: "msg"}, "re", now)
	if merged {
		t.Error("Expected no merge across an intervening system line")
	}
	if tl.Len() != 3 {
		t.Errorf("Expected three entries, got %d", tl.Len())
	}
}

func TestTimelineEmptyKeysNeverMerge(t *testing.T) {
	tl := NewTimeline()
	now := time.Now()

	tl.Append(Entry{Class: "log"}, "un", now)
	merged := tl.Append(Entry{Class: "log"}, "deux", now)
	if merged {
		t.Error("Expected consecutive system lines not to merge")
	}
}
