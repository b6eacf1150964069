package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/loult-family/loultcli/internal/client/protocol"
	"github.com/loult-family/loultcli/internal/client/state"
)

var t0 = time.Date(2017, 7, 14, 2, 40, 0, 0, time.UTC)

type fixture struct {
	store    *state.Store
	timeline *state.Timeline
	d        *Dispatcher
}

func newFixture() *fixture {
	store := state.NewStore()
	timeline := state.NewTimeline()
	d := New(store, timeline, zerolog.Nop())
	d.SetNow(func() time.Time { return t0 })
	return &fixture{store: store, timeline: timeline, d: d}
}

func connectEvent(userID, name string, you bool) protocol.ConnectEvent {
	return protocol.ConnectEvent{
		UserID: userID,
		Params: protocol.PersonaParams{Name: name, Adjective: "sauvage", Color: "#aabbcc", You: you},
		Date:   protocol.Timestamp{Time: t0},
	}
}

func msgEvent(userID, text string) protocol.MsgEvent {
	return protocol.MsgEvent{Type: "msg", UserID: userID, Msg: text, Date: protocol.Timestamp{Time: t0}}
}

func lines(effects []Effect) []AppendLine {
	var out []AppendLine
	for _, e := range effects {
		if l, ok := e.(AppendLine); ok {
			out = append(out, l)
		}
	}
	return out
}

func schedules(effects []Effect) []Schedule {
	var out []Schedule
	for _, e := range effects {
		if s, ok := e.(Schedule); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestConnectAddsPersonaAndLine(t *testing.T) {
	f := newFixture()
	effects := f.d.Apply(connectEvent("u1", "Pikachu", false))

	if f.store.Persona("u1") == nil {
		t.Fatal("Expected persona in roster")
	}
	got := lines(effects)
	if len(got) != 1 || got[0].Text != "Un Pikachu sauvage apparaît !" {
		t.Errorf("Got lines %+v", got)
	}
}

func TestDuplicateConnectIsIdempotent(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	effects := f.d.Apply(connectEvent("u1", "Pikachu", false))

	if len(effects) != 0 {
		t.Errorf("Expected duplicate connect to be a no-op, got %d effects", len(effects))
	}
	if f.store.RosterSize() != 1 {
		t.Errorf("Expected roster size 1, got %d", f.store.RosterSize())
	}
}

func TestConnectSelfIsSilent(t *testing.T) {
	f := newFixture()
	effects := f.d.Apply(connectEvent("u1", "Pikachu", true))
	if len(lines(effects)) != 0 {
		t.Error("Expected no arrival line for self")
	}
	if f.store.CurrentUserID() != "u1" {
		t.Errorf("Expected self u1, got %q", f.store.CurrentUserID())
	}
}

func TestDisconnectRemovesAndNarrates(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	effects := f.d.Apply(protocol.DisconnectEvent{UserID: "u1"})

	got := lines(effects)
	if len(got) != 1 || got[0].Text != "Le Pikachu sauvage s'enfuit !" {
		t.Errorf("Got lines %+v", got)
	}
	if f.store.RosterSize() != 0 {
		t.Error("Expected persona removed")
	}
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	f := newFixture()
	effects := f.d.Apply(protocol.DisconnectEvent{UserID: "ghost"})
	if len(effects) != 0 {
		t.Errorf("Expected no effects, got %d", len(effects))
	}
}

func TestRosterNeverGoesNegative(t *testing.T) {
	f := newFixture()
	f.d.Apply(protocol.DisconnectEvent{UserID: "u1"})
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	f.d.Apply(protocol.DisconnectEvent{UserID: "u1"})
	f.d.Apply(protocol.DisconnectEvent{UserID: "u1"})

	if f.store.RosterSize() != 0 {
		t.Errorf("Expected empty roster, got %d", f.store.RosterSize())
	}
}

func userlist() protocol.UserlistEvent {
	return protocol.UserlistEvent{Users: []protocol.UserlistEntry{
		{UserID: "u1", Params: protocol.PersonaParams{Name: "Pikachu", You: true}},
		{UserID: "u2", Params: protocol.PersonaParams{Name: "Rattata"}},
	}}
}

func TestUserlistIsIdempotent(t *testing.T) {
	f := newFixture()
	f.d.Apply(userlist())
	first := f.store.RosterSize()
	f.d.Apply(userlist())

	if f.store.RosterSize() != first || first != 2 {
		t.Errorf("Expected stable roster of 2, got %d then %d", first, f.store.RosterSize())
	}
	if f.store.CurrentUserID() != "u1" {
		t.Errorf("Expected self u1, got %q", f.store.CurrentUserID())
	}
}

func TestUserlistResyncsAfterDrift(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("stale", "Magicarpe", false))
	effects := f.d.Apply(userlist())

	if f.store.Persona("stale") != nil {
		t.Error("Expected stale persona flushed by snapshot")
	}
	if _, ok := effects[0].(RosterReset); !ok {
		t.Errorf("Expected RosterReset first, got %T", effects[0])
	}
}

func TestConsecutiveMessagesMerge(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))

	first := lines(f.d.Apply(msgEvent("u1", "salut")))
	second := lines(f.d.Apply(msgEvent("u1", "ça va ?")))

	if first[0].Merged {
		t.Error("Expected first message to open a bubble")
	}
	if !second[0].Merged {
		t.Error("Expected second message from same sender to merge")
	}
	if f.timeline.Len() != 2 { // arrival line + one message bubble
		t.Fatalf("Expected 2 timeline entries, got %d", f.timeline.Len())
	}
	bubble := f.timeline.Last()
	if len(bubble.Lines) != 2 || bubble.Lines[0].Text != "salut" || bubble.Lines[1].Text != "ça va ?" {
		t.Errorf("Expected merged bodies in order, got %+v", bubble.Lines)
	}
}

func TestSystemLineBreaksMerge(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	f.d.Apply(msgEvent("u1", "salut"))
	f.d.Apply(protocol.NotificationEvent{Msg: "maintenance"})
	got := lines(f.d.Apply(msgEvent("u1", "re")))

	if got[0].Merged {
		t.Error("Expected no merge across a system line")
	}
}

func TestEmoteNeverMerges(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	f.d.Apply(msgEvent("u1", "salut"))

	me := lines(f.d.Apply(protocol.MeEvent{UserID: "u1", Msg: "danse", Date: protocol.Timestamp{Time: t0}}))
	if me[0].Merged {
		t.Error("Expected emote to open its own entry")
	}
	if me[0].Text != "Le Pikachu sauvage danse" {
		t.Errorf("Got %q", me[0].Text)
	}

	after := lines(f.d.Apply(msgEvent("u1", "re")))
	if after[0].Merged {
		t.Error("Expected emote to reset the merge cursor")
	}
}

func TestMutedSenderProducesNothing(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	f.store.Mute("u1")

	if effects := f.d.Apply(msgEvent("u1", "salut")); len(effects) != 0 {
		t.Errorf("Expected muted message dropped, got %d effects", len(effects))
	}

	f.store.Unmute("u1")
	if got := lines(f.d.Apply(msgEvent("u1", "re"))); len(got) != 1 {
		t.Errorf("Expected message after unmute, got %d lines", len(got))
	}
}

func TestAutomuteMutesArrivals(t *testing.T) {
	f := newFixture()
	f.d.SetAutomute(true)

	effects := f.d.Apply(connectEvent("u1", "Pikachu", false))
	if !f.store.IsMuted("u1") {
		t.Error("Expected arrival muted")
	}
	// The arrival line itself is still shown; the mute kicks in after.
	if len(lines(effects)) != 1 {
		t.Error("Expected arrival line despite automute")
	}

	f.d.Apply(connectEvent("u2", "Miaouss", true))
	if f.store.IsMuted("u2") {
		t.Error("Expected self never automuted")
	}
}

func TestSelfEffectSchedulesExpiry(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", true))

	effects := f.d.Apply(protocol.AttackEvent{
		Event:      "effect",
		TargetID:   "u1",
		Effect:     "poison",
		TimeoutSec: 5,
		Date:       protocol.Timestamp{Time: t0},
	})

	scheds := schedules(effects)
	if len(scheds) != 1 {
		t.Fatalf("Expected one schedule, got %d", len(scheds))
	}
	s := scheds[0]
	if s.Key != "expire:poison" {
		t.Errorf("Expected key expire:poison, got %q", s.Key)
	}
	if s.Delay != 5*time.Second {
		t.Errorf("Expected 5s delay from event date, got %v", s.Delay)
	}

	expired := lines(f.d.Apply(s.Event))
	if len(expired) != 1 || expired[0].Text != "L'effet poison est terminé." {
		t.Errorf("Got %+v", expired)
	}
}

func TestEffectOnOtherUserSchedulesNothing(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", true))
	f.d.Apply(connectEvent("u2", "Rattata", false))

	effects := f.d.Apply(protocol.AttackEvent{Event: "effect", TargetID: "u2", Effect: "poison", TimeoutSec: 5})
	if len(schedules(effects)) != 0 {
		t.Error("Expected no expiry timer for someone else's effect")
	}
}

func TestAttackNarration(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	f.d.Apply(connectEvent("u2", "Rattata", false))

	got := lines(f.d.Apply(protocol.AttackEvent{Event: "attack", AttackerID: "u1", DefenderID: "u2"}))
	if got[0].Text != "Pikachu attaque Rattata !" {
		t.Errorf("Got %q", got[0].Text)
	}

	got = lines(f.d.Apply(protocol.AttackEvent{
		Event: "dice", AttackerID: "u1", DefenderID: "u2",
		AttackerDice: 4, AttackerBonus: 1, DefenderDice: 6, DefenderBonus: 0,
	}))
	want := "Pikachu tire un 4 + (1), Rattata tire un 6 + (0) !"
	if got[0].Text != want {
		t.Errorf("Expected %q, got %q", want, got[0].Text)
	}
}

func TestBannedIsTerminal(t *testing.T) {
	f := newFixture()
	effects := f.d.Apply(protocol.BannedEvent{})

	if len(effects) != 1 {
		t.Fatalf("Expected one effect, got %d", len(effects))
	}
	if _, ok := effects[0].(CloseConnection); !ok {
		t.Errorf("Expected CloseConnection, got %T", effects[0])
	}
	if !f.d.Banned() {
		t.Error("Expected dispatcher to latch banned")
	}
}

func TestBacklogReplaysWithoutBadge(t *testing.T) {
	f := newFixture()
	f.d.SetFocused(false)

	effects := f.d.Apply(protocol.BacklogEvent{Msgs: []protocol.BacklogMsg{
		{Type: "msg", UserID: "u1", User: protocol.PersonaParams{Name: "Pikachu", Adjective: "sauvage"}, Msg: "avant"},
		{Type: "msg", UserID: "u1", User: protocol.PersonaParams{Name: "Pikachu", Adjective: "sauvage"}, Msg: "re-avant"},
	}})

	for _, e := range effects {
		if _, ok := e.(TitleBadge); ok {
			t.Error("Expected no badge increments during backlog replay")
		}
	}

	got := lines(effects)
	if len(got) != 3 {
		t.Fatalf("Expected 2 replayed lines + connected line, got %d", len(got))
	}
	if !got[1].Merged {
		t.Error("Expected backlog entries from same sender to merge")
	}
	if got[2].Text != "Vous êtes connecté." {
		t.Errorf("Expected terminal connected line, got %q", got[2].Text)
	}
}

func TestBacklogEmoteFromDepartedUser(t *testing.T) {
	f := newFixture()

	// The sender is not in the roster; the entry's embedded params carry
	// everything needed to narrate it.
	effects := f.d.Apply(protocol.BacklogEvent{Msgs: []protocol.BacklogMsg{
		{Type: "me", UserID: "gone", User: protocol.PersonaParams{Name: "Rattata", Adjective: "sauvage"}, Msg: "danse"},
	}})

	got := lines(effects)
	if len(got) != 2 {
		t.Fatalf("Expected emote + connected line, got %d: %+v", len(got), got)
	}
	if got[0].Text != "Le Rattata sauvage danse" {
		t.Errorf("Got %q", got[0].Text)
	}
	if got[0].Merged {
		t.Error("Expected emote to open its own entry")
	}
}

func TestTitleBadgeCountsUnseen(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	f.d.SetFocused(false)

	effects := f.d.Apply(msgEvent("u1", "un"))
	badge, ok := effects[len(effects)-1].(TitleBadge)
	if !ok || badge.Count != 1 {
		t.Fatalf("Expected badge count 1, got %+v", effects)
	}

	// Merged lines do not re-count.
	effects = f.d.Apply(msgEvent("u1", "deux"))
	for _, e := range effects {
		if _, ok := e.(TitleBadge); ok {
			t.Error("Expected no badge for merged line")
		}
	}

	cleared := f.d.SetFocused(true)
	if len(cleared) != 1 || cleared[0].(TitleBadge).Count != 0 {
		t.Errorf("Expected badge reset on focus, got %+v", cleared)
	}
}

func TestAntifloodLines(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))

	got := lines(f.d.Apply(protocol.AntifloodEvent{Event: "banned", FlooderID: "u1"}))
	if got[0].Text != "Le Pikachu sauvage était trop faible. Il est libre maintenant." {
		t.Errorf("Got %q", got[0].Text)
	}

	got = lines(f.d.Apply(protocol.AntifloodEvent{Event: "flood_warning"}))
	if !strings.Contains(got[0].Text, "qualité de vos contributions") {
		t.Errorf("Got %q", got[0].Text)
	}
}

func TestGiveAndObjectLines(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))
	f.d.Apply(connectEvent("u2", "Rattata", false))

	got := lines(f.d.Apply(protocol.GiveEvent{Response: "exchanged", Sender: "u1", Receiver: "u2", ObjName: "baie"}))
	if got[0].Text != "Pikachu donne baie à Rattata." {
		t.Errorf("Got %q", got[0].Text)
	}

	got = lines(f.d.Apply(protocol.ObjectEvent{Response: "object_trashed", ObjectName: "baie"}))
	if got[0].Text != "L'objet baie a été jeté." {
		t.Errorf("Got %q", got[0].Text)
	}
}

func TestInventoryOwnerScopes(t *testing.T) {
	f := newFixture()
	items := []protocol.Item{{ID: 1, Name: "baie", Icon: "baie.svg"}}

	effects := f.d.Apply(protocol.InventoryEvent{Owner: "user", Items: items})
	inv := effects[0].(SetInventory)
	if inv.Owner != "user" || len(inv.Items) != 1 {
		t.Errorf("Got %+v", inv)
	}

	effects = f.d.Apply(protocol.InventoryEvent{Owner: "channel", Items: nil})
	if inv := effects[0].(SetInventory); inv.Owner != "bank" {
		t.Errorf("Expected bank scope, got %q", inv.Owner)
	}
}

func TestPunishTaserLoops(t *testing.T) {
	f := newFixture()
	effects := f.d.Apply(protocol.PunishEvent{Event: "taser"})

	if !f.d.Banned() {
		t.Error("Expected taser to latch banned")
	}
	scheds := schedules(effects)
	if len(scheds) != 1 || scheds[0].Key != "punish" {
		t.Fatalf("Expected punish schedule, got %+v", effects)
	}

	tick := f.d.Apply(scheds[0].Event)
	if len(lines(tick)) != 1 {
		t.Error("Expected punishment line per tick")
	}
	if len(schedules(tick)) != 1 {
		t.Error("Expected tick to reschedule itself")
	}
}

func TestConnectionLostNarratesRetry(t *testing.T) {
	f := newFixture()
	f.d.Apply(connectEvent("u1", "Pikachu", false))

	effects := f.d.ConnectionLost()
	if _, ok := effects[0].(RosterReset); !ok {
		t.Fatalf("Expected roster flush first, got %T", effects[0])
	}
	got := lines(effects)
	if len(got) != 2 || got[0].Text != "Vous êtes déconnecté." || got[1].Text != "Nouvelle connexion en cours..." {
		t.Errorf("Got %+v", got)
	}
	if f.store.RosterSize() != 0 {
		t.Error("Expected roster cleared on close")
	}
}

func TestConnectionLostWhileBanned(t *testing.T) {
	f := newFixture()
	f.d.Apply(protocol.BannedEvent{})

	got := lines(f.d.ConnectionLost())
	if len(got) != 500 {
		t.Fatalf("Expected 500 punishment lines, got %d", len(got))
	}
	if got[0].Text != "CIVILISE TOI." {
		t.Errorf("Got %q", got[0].Text)
	}
}

func TestWaitNarratesConnecting(t *testing.T) {
	f := newFixture()
	if effects := f.d.Apply(protocol.WaitEvent{}); len(effects) != 1 {
		t.Errorf("Expected wait line, got %d effects", len(effects))
	}
}

func TestNotificationUsesNowWhenDateAbsent(t *testing.T) {
	f := newFixture()
	got := lines(f.d.Apply(protocol.NotificationEvent{Msg: "maintenance"}))
	if !got[0].Time.Equal(t0) {
		t.Errorf("Expected dispatcher clock, got %v", got[0].Time)
	}
}
