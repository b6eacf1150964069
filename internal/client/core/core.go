// Package core wires the connection manager, dispatcher, state store and
// timer scheduler into one session. All mutation runs on a single goroutine:
// network frames, timer fires and user input are funneled through one task
// queue, so none of the underlying state needs locking.
package core

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/loult-family/loultcli/internal/client/command"
	"github.com/loult-family/loultcli/internal/client/conn"
	"github.com/loult-family/loultcli/internal/client/dispatch"
	"github.com/loult-family/loultcli/internal/client/protocol"
	"github.com/loult-family/loultcli/internal/client/ratelimit"
	"github.com/loult-family/loultcli/internal/client/session"
	"github.com/loult-family/loultcli/internal/client/state"
	"github.com/loult-family/loultcli/internal/client/timer"
)

// AudioSink consumes raw audio payloads from binary frames. Decoding and
// playback are the sink's problem.
type AudioSink interface {
	Play(data []byte)
	SetVolume(level int)
}

// DiscardAudio drops all audio. Terminal clients without a playback path
// use it.
type DiscardAudio struct{}

func (DiscardAudio) Play([]byte)   {}
func (DiscardAudio) SetVolume(int) {}

// Config assembles a session.
type Config struct {
	ServerURL string
	Room      string
	Cookie    string
	Profile   string
	Prefs     session.Prefs
	Audio     AudioSink
	Log       zerolog.Logger
}

// Session is one client session for one room.
type Session struct {
	store     *state.Store
	timeline  *state.Timeline
	dispatch  *dispatch.Dispatcher
	scheduler *timer.Scheduler
	manager   *conn.Manager
	guard     *ratelimit.Guard
	audio     AudioSink
	log       zerolog.Logger

	profile string
	prefs   session.Prefs

	tasks   chan func()
	effects chan []dispatch.Effect
	done    chan struct{}
}

func NewSession(cfg Config) *Session {
	if cfg.Audio == nil {
		cfg.Audio = DiscardAudio{}
	}

	store := state.NewStore()
	timeline := state.NewTimeline()

	s := &Session{
		store:     store,
		timeline:  timeline,
		dispatch:  dispatch.New(store, timeline, cfg.Log),
		scheduler: timer.New(),
		guard:     ratelimit.New(),
		audio:     cfg.Audio,
		log:       cfg.Log,
		profile:   cfg.Profile,
		prefs:     cfg.Prefs,
		tasks:     make(chan func(), 64),
		effects:   make(chan []dispatch.Effect, 256),
		done:      make(chan struct{}),
	}

	s.dispatch.SetAutomute(cfg.Prefs.Automute)
	for _, id := range cfg.Prefs.MutedUsers {
		store.Mute(id)
	}
	s.audio.SetVolume(cfg.Prefs.Volume)

	header := http.Header{}
	header.Set("Cookie", "id="+cfg.Cookie)
	s.manager = conn.NewManager(
		conn.RoomURL(cfg.ServerURL, cfg.Room),
		header,
		(*connHandler)(s),
		cfg.Log,
		conn.WithMuteCheck(s.mutedForAudio),
	)

	return s
}

// Start runs the task loop and opens the connection.
func (s *Session) Start() {
	go s.loop()
	s.manager.Connect()
}

// Stop shuts the session down: connection closed, timers cancelled, loop
// drained.
func (s *Session) Stop() {
	s.manager.Close()
	s.scheduler.CancelAll()
	close(s.done)
}

// Effects delivers batches of display effects for the render sink.
func (s *Session) Effects() <-chan []dispatch.Effect {
	return s.effects
}

// Timeline exposes the rendered history. Read it only from the effect
// consumer, after draining pending effects.
func (s *Session) Timeline() *state.Timeline { return s.timeline }

// Roster returns a snapshot of present personas.
func (s *Session) Roster() []*state.Persona { return s.store.Roster() }

// ConnectionState reports the transport lifecycle state.
func (s *Session) ConnectionState() conn.State { return s.manager.State() }

func (s *Session) loop() {
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.done:
			return
		}
	}
}

func (s *Session) post(task func()) {
	select {
	case s.tasks <- task:
	case <-s.done:
	}
}

func (s *Session) emit(effects []dispatch.Effect) {
	if len(effects) == 0 {
		return
	}
	select {
	case s.effects <- effects:
	default:
		// A render sink that stopped draining should not wedge the
		// protocol loop.
		s.log.Warn().Int("count", len(effects)).Msg("dropping effects, sink not draining")
	}
}

// Input parses and executes one line of user input.
func (s *Session) Input(text string) {
	s.post(func() {
		cmd, ok := command.Parse(text, s.prefs.Lang)
		if !ok {
			return
		}

		switch c := cmd.(type) {
		case command.Send:
			if !s.guard.Allow() {
				s.emit(s.dispatch.LocalInfo("Doucement ! Attendez un instant avant de renvoyer un message.", "kick"))
				return
			}
			s.manager.Send(c.Intent)

		case command.SetVolume:
			s.prefs.Volume = c.Level
			s.audio.SetVolume(c.Level)
			s.savePrefs()

		case command.ShowHelp:
			var effects []dispatch.Effect
			for _, line := range command.HelpLines {
				effects = append(effects, s.dispatch.LocalInfo(line, "part")...)
			}
			s.emit(effects)

		case command.SetTheme:
			s.prefs.Theme = c.Name
			s.savePrefs()
			s.emit([]dispatch.Effect{dispatch.Theme{Name: c.Name}})
		}
	})
}

// ToggleMute flips the mute state for a userid and persists the list.
func (s *Session) ToggleMute(userID string) {
	s.post(func() {
		s.store.ToggleMute(userID)
		s.prefs.MutedUsers = s.store.MutedIDs()
		s.savePrefs()
	})
}

// SetAutomute toggles muting new arrivals and persists the preference.
func (s *Session) SetAutomute(on bool) {
	s.post(func() {
		s.prefs.Automute = on
		s.dispatch.SetAutomute(on)
		s.savePrefs()
	})
}

// SetLang switches the default message language and persists it.
func (s *Session) SetLang(lang string) {
	s.post(func() {
		s.prefs.Lang = lang
		s.savePrefs()
	})
}

// SetFocused records terminal focus for the title badge.
func (s *Session) SetFocused(focused bool) {
	s.post(func() {
		s.emit(s.dispatch.SetFocused(focused))
	})
}

// Attack sends an attack on the given persona, as the roster click handler.
func (s *Session) Attack(target string, order int) {
	s.post(func() {
		s.manager.Send(protocol.NewAttack(target, order))
	})
}

// Move repositions the client's own avatar (drag-enabled rooms).
func (s *Session) Move(x, y float64) {
	s.post(func() {
		id := s.store.CurrentUserID()
		if id == "" {
			return
		}
		s.manager.Send(protocol.NewMove(id, x, y))
	})
}

// RequestInventory asks the server for the personal item list.
func (s *Session) RequestInventory() {
	s.post(func() {
		s.manager.Send(protocol.NewInventory())
	})
}

func (s *Session) savePrefs() {
	if s.profile == "" {
		return
	}
	if err := session.SavePrefs(s.profile, s.prefs); err != nil {
		s.log.Warn().Err(err).Msg("saving preferences")
	}
}

// mutedForAudio runs on the read goroutine; mute lookups race against the
// loop only benignly (a frame more or less around a toggle).
func (s *Session) mutedForAudio(userID string) bool {
	return s.store.IsMuted(userID)
}

// process routes one batch of effects: timers armed, terminal bans applied,
// everything else forwarded to the render sink.
func (s *Session) process(effects []dispatch.Effect) {
	var display []dispatch.Effect
	for _, effect := range effects {
		switch e := effect.(type) {
		case dispatch.Schedule:
			ev := e.Event
			s.scheduler.Schedule(e.Key, e.Delay, func() {
				s.post(func() {
					s.process(s.dispatch.Apply(ev))
				})
			})
		case dispatch.CloseConnection:
			s.manager.Ban()
		default:
			display = append(display, effect)
		}
	}
	s.emit(display)
}

// connHandler adapts Session to the connection manager's callback interface.
// Every callback hops onto the task queue.
type connHandler Session

func (h *connHandler) HandleOpen() {
	s := (*Session)(h)
	s.log.Info().Msg("connected")
}

func (h *connHandler) HandleEvent(ev protocol.Event) {
	s := (*Session)(h)
	s.post(func() {
		s.process(s.dispatch.Apply(ev))
	})
}

func (h *connHandler) HandleBinary(data []byte) {
	s := (*Session)(h)
	s.audio.Play(data)
}

func (h *connHandler) HandleClose() {
	s := (*Session)(h)
	s.post(func() {
		s.process(s.dispatch.ConnectionLost())
	})
}
