// Package protocol defines the JSON envelopes exchanged with a Loult server:
// inbound events demultiplexed by their "type" discriminator and outbound
// intents produced by user commands.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is any inbound server event. Concrete types live in this package;
// synthetic client-local events may implement it elsewhere.
type Event interface {
	EventType() string
}

// Timestamp decodes the server's "date" field, which is either an epoch in
// milliseconds or an RFC3339 string depending on the server version. A zero
// Timestamp means the field was absent.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		t.Time = time.UnixMilli(int64(ms))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// PersonaParams is the server-assigned display identity of a connection.
type PersonaParams struct {
	Name      string `json:"name"`
	Adjective string `json:"adjective"`
	Color     string `json:"color"`
	Img       string `json:"img"`
	You       bool   `json:"you"`
}

// Profile is display-only persona flavor, opaque to the client core.
type Profile struct {
	City        string `json:"city"`
	Departement string `json:"departement"`
	Age         int    `json:"age"`
	Orientation string `json:"orientation"`
	Job         string `json:"job"`
}

type MsgEvent struct {
	Type   string    `json:"type"` // "msg" or "bot"
	UserID string    `json:"userid"`
	Msg    string    `json:"msg"`
	Date   Timestamp `json:"date"`
}

func (e MsgEvent) EventType() string { return e.Type }

type MeEvent struct {
	UserID string    `json:"userid"`
	Msg    string    `json:"msg"`
	Date   Timestamp `json:"date"`
}

func (MeEvent) EventType() string { return "me" }

type ConnectEvent struct {
	UserID  string        `json:"userid"`
	Params  PersonaParams `json:"params"`
	Profile Profile       `json:"profile"`
	Date    Timestamp     `json:"date"`
}

func (ConnectEvent) EventType() string { return "connect" }

type DisconnectEvent struct {
	UserID string    `json:"userid"`
	Date   Timestamp `json:"date"`
}

func (DisconnectEvent) EventType() string { return "disconnect" }

// UserlistEntry is one roster entry of an authoritative snapshot.
type UserlistEntry struct {
	UserID  string        `json:"userid"`
	Params  PersonaParams `json:"params"`
	Profile Profile       `json:"profile"`
}

type UserlistEvent struct {
	Users []UserlistEntry `json:"users"`
}

func (UserlistEvent) EventType() string { return "userlist" }

// AttackEvent covers the whole combat sub-protocol; Event selects the phase
// (attack, dice, effect, invalid, nothing).
type AttackEvent struct {
	Event         string    `json:"event"`
	Date          Timestamp `json:"date"`
	AttackerID    string    `json:"attacker_id"`
	DefenderID    string    `json:"defender_id"`
	AttackerDice  int       `json:"attacker_dice"`
	AttackerBonus int       `json:"attacker_bonus"`
	DefenderDice  int       `json:"defender_dice"`
	DefenderBonus int       `json:"defender_bonus"`
	TargetID      string    `json:"target_id"`
	Effect        string    `json:"effect"`
	TimeoutSec    float64   `json:"timeout"`
}

func (AttackEvent) EventType() string { return "attack" }

type AntifloodEvent struct {
	Event     string    `json:"event"` // "banned" or "flood_warning"
	FlooderID string    `json:"flooder_id"`
	Date      Timestamp `json:"date"`
}

func (AntifloodEvent) EventType() string { return "antiflood" }

// BacklogMsg is one historical message replayed on join.
type BacklogMsg struct {
	Type   string        `json:"type"` // "msg" or "me"
	UserID string        `json:"userid"`
	User   PersonaParams `json:"user"`
	Msg    string        `json:"msg"`
	Date   Timestamp     `json:"date"`
}

type BacklogEvent struct {
	Msgs []BacklogMsg `json:"msgs"`
}

func (BacklogEvent) EventType() string { return "backlog" }

type BannedEvent struct{}

func (BannedEvent) EventType() string { return "banned" }

type GiveEvent struct {
	Response string    `json:"response"` // "exchanged" or "invalid_target"
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	ObjName  string    `json:"obj_name"`
	Date     Timestamp `json:"date"`
}

func (GiveEvent) EventType() string { return "give" }

type ObjectEvent struct {
	Response   string `json:"response"` // object_trashed, object_taken, invalid_id
	ObjectName string `json:"object_name"`
}

func (ObjectEvent) EventType() string { return "object" }

// Item is an inventory entry, personal or room-shared.
type Item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type InventoryEvent struct {
	Owner string `json:"owner"` // "user" for personal, anything else is the bank
	Items []Item `json:"items"`
}

func (InventoryEvent) EventType() string { return "inventory" }

type NotificationEvent struct {
	Msg  string    `json:"msg"`
	Date Timestamp `json:"date"`
}

func (NotificationEvent) EventType() string { return "notification" }

type WaitEvent struct {
	Date Timestamp `json:"date"`
}

func (WaitEvent) EventType() string { return "wait" }

type PunishEvent struct {
	Event string `json:"event"` // "taser" or "cactus"
}

func (PunishEvent) EventType() string { return "punish" }

// ErrUnknownType marks an event whose discriminator the client does not
// recognize. Policy is to skip such events, not to fail.
type ErrUnknownType struct {
	Type string
}

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// Decode parses one inbound text frame into its typed event. Unknown
// discriminators return ErrUnknownType; malformed payloads return the
// unmarshalling error. Callers drop the frame in both cases.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var ev Event
	switch envelope.Type {
	case "msg", "bot":
		e := MsgEvent{}
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "me":
		ev = &MeEvent{}
	case "connect":
		ev = &ConnectEvent{}
	case "disconnect":
		ev = &DisconnectEvent{}
	case "userlist":
		ev = &UserlistEvent{}
	case "attack":
		ev = &AttackEvent{}
	case "antiflood":
		ev = &AntifloodEvent{}
	case "backlog":
		ev = &BacklogEvent{}
	case "banned":
		return BannedEvent{}, nil
	case "give":
		ev = &GiveEvent{}
	case "object":
		ev = &ObjectEvent{}
	case "inventory":
		ev = &InventoryEvent{}
	case "notification":
		ev = &NotificationEvent{}
	case "wait":
		ev = &WaitEvent{}
	case "punish":
		ev = &PunishEvent{}
	default:
		return nil, ErrUnknownType{Type: envelope.Type}
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	return deref(ev), nil
}

// deref returns the value behind the pointer handed to json.Unmarshal so the
// dispatcher can switch on value types.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *MeEvent:
		return *e
	case *ConnectEvent:
		return *e
	case *DisconnectEvent:
		return *e
	case *UserlistEvent:
		return *e
	case *AttackEvent:
		return *e
	case *AntifloodEvent:
		return *e
	case *BacklogEvent:
		return *e
	case *GiveEvent:
		return *e
	case *ObjectEvent:
		return *e
	case *InventoryEvent:
		return *e
	case *NotificationEvent:
		return *e
	case *WaitEvent:
		return *e
	case *PunishEvent:
		return *e
	}
	return ev
}
