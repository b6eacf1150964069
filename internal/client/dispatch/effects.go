package dispatch

import (
	"time"

	"github.com/loult-family/loultcli/internal/client/protocol"
	"github.com/loult-family/loultcli/internal/client/state"
)

// Effect is one display- or connection-affecting consequence of applying an
// event. The render sink consumes them in order.
type Effect interface {
	isEffect()
}

// AppendLine adds a line to the timeline view. Merged means the line joined
// the previous bubble instead of opening a new one.
type AppendLine struct {
	Author string
	Color  string
	Img    string
	Text   string
	Class  string
	Time   time.Time
	Merged bool
}

// UserJoined adds a persona to the roster view.
type UserJoined struct {
	Persona state.Persona
}

// UserLeft removes a persona from the roster view.
type UserLeft struct {
	UserID string
}

// RosterReset flushes the roster view before a resync or after a close.
type RosterReset struct{}

// SetInventory replaces the displayed item list for one owner scope.
type SetInventory struct {
	Owner string // "user" or "bank"
	Items []protocol.Item
}

// TitleBadge updates the unseen-message counter in the window title.
// Count 0 clears it.
type TitleBadge struct {
	Count int
}

// CloseConnection tears down the connection with no reconnect. Emitted only
// on a terminal ban.
type CloseConnection struct{}

// Schedule arms a keyed timer that re-applies Event when it fires, through
// the same single-writer dispatch path.
type Schedule struct {
	Key   string
	Delay time.Duration
	Event protocol.Event
}

// Theme switches the local display theme. Purely a view concern.
type Theme struct {
	Name string
}

func (AppendLine) isEffect()      {}
func (Theme) isEffect()           {}
func (UserJoined) isEffect()      {}
func (UserLeft) isEffect()        {}
func (RosterReset) isEffect()     {}
func (SetInventory) isEffect()    {}
func (TitleBadge) isEffect()      {}
func (CloseConnection) isEffect() {}
func (Schedule) isEffect()        {}

// EffectExpiredEvent is the synthetic event a status-effect countdown fires.
type EffectExpiredEvent struct {
	Effect string
	At     time.Time
}

func (EffectExpiredEvent) EventType() string { return "effect_expired" }

// PunishTickEvent drives the repeating punishment line burst while banned.
type PunishTickEvent struct{}

func (PunishTickEvent) EventType() string { return "punish_tick" }
