// Package dispatch maps inbound server events to session-state transitions
// plus an ordered list of display effects. It is the protocol state machine;
// everything else is transport or view glue.
package dispatch

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/loult-family/loultcli/internal/client/protocol"
	"github.com/loult-family/loultcli/internal/client/state"
)

const punishTickInterval = 10 * time.Millisecond

// Dispatcher applies events in arrival order. It must only ever be called
// from one goroutine; the core loop guarantees that.
type Dispatcher struct {
	store    *state.Store
	timeline *state.Timeline
	log      zerolog.Logger

	now      func() time.Time
	focused  bool
	unseen   int
	automute bool
	banned   bool
}

func New(store *state.Store, timeline *state.Timeline, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		timeline: timeline,
		log:      log,
		now:      time.Now,
		focused:  true,
	}
}

// SetNow replaces the clock, for tests.
func (d *Dispatcher) SetNow(now func() time.Time) { d.now = now }

// SetAutomute enables muting every non-self arrival.
func (d *Dispatcher) SetAutomute(on bool) { d.automute = on }

// Banned reports whether a terminal ban was applied.
func (d *Dispatcher) Banned() bool { return d.banned }

// SetFocused records window focus. Gaining focus clears the unseen counter.
func (d *Dispatcher) SetFocused(focused bool) []Effect {
	d.focused = focused
	if focused && d.unseen > 0 {
		d.unseen = 0
		return []Effect{TitleBadge{Count: 0}}
	}
	return nil
}

// Apply runs one event through the transition table and returns its effects.
// Unknown event types are ignored.
func (d *Dispatcher) Apply(ev protocol.Event) []Effect {
	switch e := ev.(type) {
	case protocol.MsgEvent:
		return d.applyMsg(e, true)
	case protocol.MeEvent:
		return d.applyMe(e)
	case protocol.ConnectEvent:
		return d.applyConnect(e)
	case protocol.DisconnectEvent:
		return d.applyDisconnect(e)
	case protocol.UserlistEvent:
		return d.applyUserlist(e)
	case protocol.AttackEvent:
		return d.applyAttack(e)
	case protocol.AntifloodEvent:
		return d.applyAntiflood(e)
	case protocol.BacklogEvent:
		return d.applyBacklog(e)
	case protocol.BannedEvent:
		d.banned = true
		return []Effect{CloseConnection{}}
	case protocol.GiveEvent:
		return d.applyGive(e)
	case protocol.ObjectEvent:
		return d.applyObject(e)
	case protocol.InventoryEvent:
		owner := "bank"
		if e.Owner == "user" {
			owner = "user"
		}
		return []Effect{SetInventory{Owner: owner, Items: e.Items}}
	case protocol.NotificationEvent:
		at := e.Date.Time
		if at.IsZero() {
			at = d.now()
		}
		return d.infoLine(e.Msg, at, "info")
	case protocol.WaitEvent:
		return d.infoLine("La connection est en cours. Concentrez-vous quelques instants avant de dire des âneries.", d.eventTime(e.Date), "log")
	case protocol.PunishEvent:
		return d.applyPunish(e)
	case EffectExpiredEvent:
		return d.infoLine(fmt.Sprintf("L'effet %s est terminé.", e.Effect), e.At, "part")
	case PunishTickEvent:
		effects := d.infoLine("CIVILISE TOI FILS DE PUTE", d.now(), "kick")
		return append(effects, Schedule{Key: "punish", Delay: punishTickInterval, Event: PunishTickEvent{}})
	}

	d.log.Debug().Str("type", ev.EventType()).Msg("ignoring unhandled event")
	return nil
}

// LocalInfo appends a client-generated system line (help text, local
// warnings) through the same timeline path as server lines.
func (d *Dispatcher) LocalInfo(text, class string) []Effect {
	return d.infoLine(text, d.now(), class)
}

// ConnectionLost flushes the roster after a close and narrates either the
// reconnect wait or the ban aftermath.
func (d *Dispatcher) ConnectionLost() []Effect {
	d.store.ResetRoster()
	effects := []Effect{RosterReset{}}

	now := d.now()
	if d.banned {
		for i := 0; i < 500; i++ {
			effects = append(effects, d.appendLine(state.Entry{Class: "kick"}, "CIVILISE TOI.", now, false)...)
		}
		return effects
	}

	effects = append(effects, d.infoLine("Vous êtes déconnecté.", now, "part")...)
	effects = append(effects, d.infoLine("Nouvelle connexion en cours...", now, "part")...)
	return effects
}

func (d *Dispatcher) applyMsg(e protocol.MsgEvent, notify bool) []Effect {
	if d.store.IsMuted(e.UserID) {
		return nil
	}
	p := d.store.Persona(e.UserID)
	if p == nil {
		d.log.Debug().Str("userid", e.UserID).Msg("message from unknown persona")
		return nil
	}
	entry := state.Entry{
		MergeKey: e.UserID,
		Class:    e.Type,
		Author:   p.Name + " " + p.Adjective,
		Color:    p.Color,
		Img:      p.Img,
	}
	return d.appendLine(entry, e.Msg, d.eventTime(e.Date), notify)
}

// applyMe narrates an emote. Emotes never merge with the previous bubble and
// reset the merge cursor.
func (d *Dispatcher) applyMe(e protocol.MeEvent) []Effect {
	if d.store.IsMuted(e.UserID) {
		return nil
	}
	p := d.store.Persona(e.UserID)
	if p == nil {
		return nil
	}
	entry := state.Entry{
		Class: "me",
		Color: p.Color,
	}
	text := fmt.Sprintf("Le %s %s %s", p.Name, p.Adjective, e.Msg)
	return d.appendLine(entry, text, d.eventTime(e.Date), true)
}

func (d *Dispatcher) applyConnect(e protocol.ConnectEvent) []Effect {
	muted := d.store.IsMuted(e.UserID)
	if !d.store.UpsertPersona(e.UserID, e.Params, e.Profile) {
		return nil
	}
	p := d.store.Persona(e.UserID)

	var effects []Effect
	effects = append(effects, UserJoined{Persona: *p})

	if d.automute && !p.IsSelf && !muted {
		d.store.Mute(e.UserID)
	}

	if !p.IsSelf && !muted {
		text := fmt.Sprintf("Un %s %s apparaît !", e.Params.Name, e.Params.Adjective)
		effects = append(effects, d.infoLine(text, d.eventTime(e.Date), "log")...)
	}
	return effects
}

func (d *Dispatcher) applyDisconnect(e protocol.DisconnectEvent) []Effect {
	p := d.store.Persona(e.UserID)
	if p == nil {
		// Duplicate or late disconnect, nothing to undo.
		return nil
	}

	var effects []Effect
	if !d.store.IsMuted(e.UserID) {
		text := fmt.Sprintf("Le %s %s s'enfuit !", p.Name, p.Adjective)
		effects = append(effects, d.infoLine(text, d.eventTime(e.Date), "part")...)
	}
	d.store.RemovePersona(e.UserID)
	return append(effects, UserLeft{UserID: e.UserID})
}

// applyUserlist replaces the roster with the server's authoritative snapshot.
// Applying the same snapshot twice yields the same roster.
func (d *Dispatcher) applyUserlist(e protocol.UserlistEvent) []Effect {
	d.store.ResetRoster()
	effects := []Effect{RosterReset{}}

	for _, u := range e.Users {
		if !d.store.UpsertPersona(u.UserID, u.Params, u.Profile) {
			continue
		}
		p := d.store.Persona(u.UserID)
		if d.automute && !p.IsSelf && !d.store.IsMuted(u.UserID) {
			d.store.Mute(u.UserID)
		}
		effects = append(effects, UserJoined{Persona: *p})
	}
	return effects
}

func (d *Dispatcher) applyAttack(e protocol.AttackEvent) []Effect {
	at := d.eventTime(e.Date)
	switch e.Event {
	case "attack":
		text := fmt.Sprintf("%s attaque %s !", d.personaName(e.AttackerID), d.personaName(e.DefenderID))
		return d.infoLine(text, at, "log")

	case "dice":
		text := fmt.Sprintf("%s tire un %d + (%d), %s tire un %d + (%d) !",
			d.personaName(e.AttackerID), e.AttackerDice, e.AttackerBonus,
			d.personaName(e.DefenderID), e.DefenderDice, e.DefenderBonus)
		return d.infoLine(text, at, "log")

	case "effect":
		text := fmt.Sprintf("%s est maintenant affecté par l'effet %s !", d.personaName(e.TargetID), e.Effect)
		effects := d.infoLine(text, at, "log")

		if e.TargetID != "" && e.TargetID == d.store.CurrentUserID() {
			end := at.Add(time.Duration(e.TimeoutSec * float64(time.Second)))
			delay := end.Sub(d.now())
			if delay < 0 {
				delay = 0
			}
			effects = append(effects, Schedule{
				Key:   "expire:" + e.Effect,
				Delay: delay,
				Event: EffectExpiredEvent{Effect: e.Effect, At: end},
			})
		}
		return effects

	case "invalid":
		return d.infoLine("Impossible d'attaquer pour le moment, ou pokémon invalide", d.now(), "kick")

	case "nothing":
		return d.infoLine("Il ne se passe rien...", at, "log")
	}

	d.log.Debug().Str("event", e.Event).Msg("ignoring unknown attack phase")
	return nil
}

func (d *Dispatcher) applyAntiflood(e protocol.AntifloodEvent) []Effect {
	at := d.eventTime(e.Date)
	switch e.Event {
	case "banned":
		text := fmt.Sprintf("Le %s était trop faible. Il est libre maintenant.", d.personaTitle(e.FlooderID))
		return d.infoLine(text, at, "kick")
	case "flood_warning":
		return d.infoLine("Attention, la qualité de vos contributions semble en baisse. Prenez une grande inspiration.", at, "kick")
	}
	return nil
}

// applyBacklog replays history with the usual msg/me rendering but without
// title-badge side effects, then marks the session connected. Backlog senders
// may have left the room already, so every entry is rendered from the persona
// params it embeds, never from the roster.
func (d *Dispatcher) applyBacklog(e protocol.BacklogEvent) []Effect {
	var effects []Effect
	for _, m := range e.Msgs {
		if m.Type == "me" {
			entry := state.Entry{Class: "me", Color: m.User.Color}
			text := fmt.Sprintf("Le %s %s %s", m.User.Name, m.User.Adjective, m.Msg)
			effects = append(effects, d.appendLine(entry, text, d.orNow(m.Date.Time), false)...)
			continue
		}
		entry := state.Entry{
			MergeKey: m.UserID,
			Class:    "backlog " + m.Type,
			Author:   m.User.Name + " " + m.User.Adjective,
			Color:    m.User.Color,
			Img:      m.User.Img,
		}
		effects = append(effects, d.appendLine(entry, m.Msg, d.orNow(m.Date.Time), false)...)
	}
	return append(effects, d.appendLine(state.Entry{Class: "log"}, "Vous êtes connecté.", d.now(), false)...)
}

func (d *Dispatcher) applyGive(e protocol.GiveEvent) []Effect {
	switch e.Response {
	case "invalid_target":
		return d.infoLine("Utilisateur récepteur inexistant", d.now(), "kick")
	case "exchanged":
		text := fmt.Sprintf("%s donne %s à %s.", d.personaName(e.Sender), e.ObjName, d.personaName(e.Receiver))
		return d.infoLine(text, d.eventTime(e.Date), "log")
	}
	return nil
}

func (d *Dispatcher) applyObject(e protocol.ObjectEvent) []Effect {
	switch e.Response {
	case "invalid_id":
		return d.infoLine("Indice d'objet dans l'inventaire inexistant", d.now(), "log")
	case "object_trashed":
		return d.infoLine(fmt.Sprintf("L'objet %s a été jeté.", e.ObjectName), d.now(), "log")
	case "object_taken":
		return d.infoLine(fmt.Sprintf("L'objet %s a été pris dans l'inventaire commun.", e.ObjectName), d.now(), "log")
	}
	return nil
}

func (d *Dispatcher) applyPunish(e protocol.PunishEvent) []Effect {
	switch e.Event {
	case "taser":
		d.banned = true
		return []Effect{
			CloseConnection{},
			Schedule{Key: "punish", Delay: punishTickInterval, Event: PunishTickEvent{}},
		}
	case "cactus":
		d.banned = true
		effects := d.infoLine("Un cactus vous attend.", d.now(), "kick")
		return append(effects, CloseConnection{})
	}
	return nil
}

// appendLine pushes text through the timeline merge logic and emits the
// matching effect. notify gates the unseen-title counter; backlog replays
// pass false.
func (d *Dispatcher) appendLine(entry state.Entry, text string, at time.Time, notify bool) []Effect {
	merged := d.timeline.Append(entry, text, at)
	effects := []Effect{AppendLine{
		Author: entry.Author,
		Color:  entry.Color,
		Img:    entry.Img,
		Text:   text,
		Class:  entry.Class,
		Time:   at,
		Merged: merged,
	}}

	if notify && !d.focused && !merged {
		d.unseen++
		effects = append(effects, TitleBadge{Count: d.unseen})
	}
	return effects
}

// infoLine appends a system line. System lines carry no merge key, so they
// open a new bubble and reset the merge cursor.
func (d *Dispatcher) infoLine(text string, at time.Time, class string) []Effect {
	return d.appendLine(state.Entry{Class: class}, text, at, true)
}

func (d *Dispatcher) personaName(userID string) string {
	if p := d.store.Persona(userID); p != nil {
		return p.Name
	}
	return "???"
}

func (d *Dispatcher) personaTitle(userID string) string {
	if p := d.store.Persona(userID); p != nil {
		return p.Name + " " + p.Adjective
	}
	return "???"
}

func (d *Dispatcher) eventTime(ts protocol.Timestamp) time.Time {
	return d.orNow(ts.Time)
}

func (d *Dispatcher) orNow(at time.Time) time.Time {
	if at.IsZero() {
		return d.now()
	}
	return at
}
