// Package conn owns the single logical websocket connection to a Loult room.
// It reconnects automatically with exponential backoff after any closure that
// is not a terminal ban, discriminates text frames (JSON events) from binary
// frames (audio payloads), and notifies a Handler about lifecycle changes.
package conn

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/loult-family/loultcli/internal/client/protocol"
	"github.com/loult-family/loultcli/internal/client/timer"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 120 * time.Second
)

// State is the connection lifecycle state.
type State int

const (
	Connecting State = iota
	Open
	ClosedRetrying
	ClosedBanned
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case ClosedRetrying:
		return "closed-retrying"
	case ClosedBanned:
		return "closed-banned"
	default:
		return "unknown"
	}
}

// Handler receives connection lifecycle and frame notifications. Callbacks
// run on the manager's read goroutine; the core loop serializes them.
type Handler interface {
	HandleOpen()
	HandleEvent(ev protocol.Event)
	HandleBinary(data []byte)
	HandleClose()
}

// Conn is the subset of *websocket.Conn the manager needs; tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens one connection attempt.
type DialFunc func(url string, header http.Header) (Conn, error)

// Manager maintains exactly one logical connection.
type Manager struct {
	url     string
	header  http.Header
	handler Handler
	log     zerolog.Logger

	dial      DialFunc
	afterFunc timer.ArmFunc
	isMuted   func(userID string) bool

	mu        sync.Mutex
	conn      Conn
	state     State
	backoff   time.Duration
	banned    bool
	closed    bool
	reconnect timer.Stopper
}

// Option configures a Manager.
type Option func(*Manager)

// WithDial replaces the websocket dialer, for tests.
func WithDial(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithAfterFunc replaces the reconnect timer, for tests.
func WithAfterFunc(arm timer.ArmFunc) Option {
	return func(m *Manager) { m.afterFunc = arm }
}

// WithMuteCheck supplies the predicate deciding whether a binary frame from
// the most recent sender should be dropped.
func WithMuteCheck(isMuted func(userID string) bool) Option {
	return func(m *Manager) { m.isMuted = isMuted }
}

func NewManager(url string, header http.Header, handler Handler, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		url:     url,
		header:  header,
		handler: handler,
		log:     log,
		state:   ClosedRetrying,
		backoff: initialBackoff,
		dial: func(url string, header http.Header) (Conn, error) {
			c, _, err := websocket.DefaultDialer.Dial(url, header)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		afterFunc: func(d time.Duration, fn func()) timer.Stopper {
			return time.AfterFunc(d, fn)
		},
		isMuted: func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RoomURL derives the event-stream endpoint from the server origin and the
// room path, mirroring how the web client maps the page path to its socket.
func RoomURL(server, room string) string {
	server = strings.TrimSuffix(server, "/")
	server = strings.Replace(server, "http://", "ws://", 1)
	server = strings.Replace(server, "https://", "wss://", 1)
	return server + "/socket/" + strings.TrimPrefix(room, "/")
}

// Connect starts the first connection attempt.
func (m *Manager) Connect() {
	go m.attempt()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send serializes an intent and transmits it. Never blocks on connection
// state: when the connection is not open the send is silently dropped, a
// keystroke lost during a reconnect window.
func (m *Manager) Send(intent protocol.Intent) {
	m.mu.Lock()
	c := m.conn
	open := m.state == Open
	m.mu.Unlock()

	if !open || c == nil {
		m.log.Debug().Str("intent", intent.IntentType()).Msg("dropping send, connection not open")
		return
	}

	data, err := json.Marshal(intent)
	if err != nil {
		m.log.Error().Err(err).Msg("marshal intent")
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		m.log.Warn().Err(err).Msg("write failed")
	}
}

// Ban puts the manager in its terminal state: the connection is closed and no
// reconnect is ever scheduled again. Only a restart leaves this state.
func (m *Manager) Ban() {
	m.mu.Lock()
	m.banned = true
	m.state = ClosedBanned
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	c := m.conn
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

// Close shuts the manager down for good (user exit).
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	c := m.conn
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

func (m *Manager) attempt() {
	m.mu.Lock()
	if m.banned || m.closed {
		m.mu.Unlock()
		return
	}
	m.state = Connecting
	m.mu.Unlock()

	c, err := m.dial(m.url, m.header)
	if err != nil {
		m.log.Warn().Err(err).Str("url", m.url).Msg("dial failed")
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.banned || m.closed {
		m.mu.Unlock()
		c.Close()
		return
	}
	m.conn = c
	m.state = Open
	m.backoff = initialBackoff
	m.mu.Unlock()

	m.handler.HandleOpen()
	m.readLoop(c)
}

func (m *Manager) readLoop(c Conn) {
	// Binary audio frames carry no sender field; the sender is whoever the
	// previous text event named, so the mute decision trails it. Recomputed on
	// every text frame: a senderless event clears it.
	lastMuted := false

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			m.log.Debug().Err(err).Msg("read loop ended")
			break
		}

		switch messageType {
		case websocket.TextMessage:
			var envelope struct {
				UserID string `json:"userid"`
			}
			lastMuted = false
			if err := json.Unmarshal(data, &envelope); err == nil && envelope.UserID != "" {
				lastMuted = m.isMuted(envelope.UserID)
			}

			ev, err := protocol.Decode(data)
			if err != nil {
				// Malformed or unknown events are dropped, never fatal.
				m.log.Debug().Err(err).Msg("dropping event")
				continue
			}
			m.handler.HandleEvent(ev)

		case websocket.BinaryMessage:
			if !lastMuted {
				m.handler.HandleBinary(data)
			}
		}
	}

	m.mu.Lock()
	m.conn = nil
	terminal := m.banned || m.closed
	if m.banned {
		m.state = ClosedBanned
	} else {
		m.state = ClosedRetrying
	}
	m.mu.Unlock()

	m.handler.HandleClose()
	if !terminal {
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the single backoff timer, doubling the delay up to
// the cap. At most one attempt is ever pending.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.banned || m.closed {
		return
	}
	m.state = ClosedRetrying

	delay := m.backoff
	m.backoff *= 2
	if m.backoff > maxBackoff {
		m.backoff = maxBackoff
	}

	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	m.log.Info().Dur("delay", delay).Msg("reconnecting")
	m.reconnect = m.afterFunc(delay, m.attempt)
}
