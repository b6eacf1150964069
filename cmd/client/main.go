package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loult-family/loultcli/internal/client/core"
	"github.com/loult-family/loultcli/internal/client/dispatch"
	"github.com/loult-family/loultcli/internal/client/logx"
	"github.com/loult-family/loultcli/internal/client/session"
	"github.com/loult-family/loultcli/internal/client/state"
)

// --- Styles ---

var (
	infoColor  = lipgloss.Color("#9CA3AF")
	kickColor  = lipgloss.Color("#EF4444")
	selfColor  = lipgloss.Color("#10B981")
	titleColor = lipgloss.Color("#7C3AED")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(titleColor).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(infoColor)

	kickStyle = lipgloss.NewStyle().
			Foreground(kickColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(infoColor).
			Strikethrough(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(selfColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(infoColor).
			Italic(true)
)

// --- Messages ---

type effectsMsg struct {
	effects []dispatch.Effect
}

func listenEffects(ch <-chan []dispatch.Effect) tea.Cmd {
	return func() tea.Msg {
		effects, ok := <-ch
		if !ok {
			return nil
		}
		return effectsMsg{effects: effects}
	}
}

// --- Model ---

type rosterEntry struct {
	persona state.Persona
	muted   bool
}

type model struct {
	session *core.Session
	room    string

	chatLines []string
	roster    []rosterEntry
	selected  int
	inventory []string
	bank      []string
	badge     int
	theme     string

	input    textinput.Model
	chatView viewport.Model
	lastSent string

	width  int
	height int
}

func initialModel(sess *core.Session, room, theme string) model {
	input := textinput.New()
	input.Placeholder = "Dites quelque chose..."
	input.CharLimit = 500
	input.Width = 60
	input.Focus()

	return model{
		session:  sess,
		room:     room,
		theme:    theme,
		input:    input,
		chatView: viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		listenEffects(m.session.Effects()),
		tea.SetWindowTitle("Loult.family"),
	)
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			if m.input.Value() != "" {
				m.lastSent = m.input.Value()
				m.session.Input(m.input.Value())
				m.input.SetValue("")
			}
			return m, nil

		case "up":
			if m.input.Value() == "" && m.lastSent != "" {
				m.input.SetValue(m.lastSent)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			m.input.SetValue("")
			return m, nil

		case "ctrl+p":
			if len(m.roster) > 0 {
				m.selected = (m.selected + 1) % len(m.roster)
			}
			return m, nil

		case "ctrl+o":
			if m.selected < len(m.roster) {
				entry := m.roster[m.selected]
				if !entry.persona.IsSelf {
					m.roster[m.selected].muted = !entry.muted
					m.session.ToggleMute(entry.persona.UserID)
				}
			}
			return m, nil

		case "ctrl+a":
			if m.selected < len(m.roster) {
				p := m.roster[m.selected].persona
				m.session.Attack(p.Name, p.Order)
			}
			return m, nil

		case "pgup", "pgdown":
			m.chatView, _ = m.chatView.Update(msg)
			return m, nil
		}

	case tea.FocusMsg:
		m.badge = 0
		m.session.SetFocused(true)
		return m, tea.SetWindowTitle("Loult.family")

	case tea.BlurMsg:
		m.session.SetFocused(false)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatView.Width = msg.Width - 24
		m.chatView.Height = msg.Height - 5
		m.input.Width = msg.Width - 4

	case effectsMsg:
		var title tea.Cmd
		for _, effect := range msg.effects {
			if cmd := m.applyEffect(effect); cmd != nil {
				title = cmd
			}
		}
		m.refreshChat()
		cmds = append(cmds, listenEffects(m.session.Effects()))
		if title != nil {
			cmds = append(cmds, title)
		}
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)
	return m, tea.Batch(cmds...)
}

func (m *model) applyEffect(effect dispatch.Effect) tea.Cmd {
	switch e := effect.(type) {
	case dispatch.AppendLine:
		m.chatLines = append(m.chatLines, renderLine(e))

	case dispatch.UserJoined:
		m.roster = append(m.roster, rosterEntry{persona: e.Persona})

	case dispatch.UserLeft:
		for i, entry := range m.roster {
			if entry.persona.UserID == e.UserID {
				m.roster = append(m.roster[:i], m.roster[i+1:]...)
				break
			}
		}
		if m.selected >= len(m.roster) {
			m.selected = 0
		}

	case dispatch.RosterReset:
		m.roster = nil
		m.selected = 0

	case dispatch.SetInventory:
		items := make([]string, 0, len(e.Items))
		for _, item := range e.Items {
			items = append(items, fmt.Sprintf("%d. %s", item.ID, item.Name))
		}
		if len(items) == 0 {
			items = []string{"..."}
		}
		if e.Owner == "user" {
			m.inventory = items
		} else {
			m.bank = items
		}

	case dispatch.TitleBadge:
		m.badge = e.Count
		if e.Count == 0 {
			return tea.SetWindowTitle("Loult.family")
		}
		return tea.SetWindowTitle(fmt.Sprintf("(%d) Loult.family", e.Count))

	case dispatch.Theme:
		m.theme = e.Name
	}
	return nil
}

func renderLine(e dispatch.AppendLine) string {
	ts := e.Time.Format("15:04:05")
	if e.Merged {
		return "         " + e.Text
	}

	switch e.Class {
	case "kick":
		return fmt.Sprintf("%s %s", infoStyle.Render(ts), kickStyle.Render(e.Text))
	case "msg", "bot", "backlog msg", "backlog bot":
		author := lipgloss.NewStyle().Foreground(lipgloss.Color(e.Color)).Render(e.Author)
		return fmt.Sprintf("%s %s\n         %s", infoStyle.Render(ts), author, e.Text)
	case "me":
		styled := lipgloss.NewStyle().Foreground(lipgloss.Color(e.Color)).Italic(true).Render(e.Text)
		return fmt.Sprintf("%s %s", infoStyle.Render(ts), styled)
	default:
		return fmt.Sprintf("%s %s", infoStyle.Render(ts), infoStyle.Render(e.Text))
	}
}

func (m *model) refreshChat() {
	atBottom := m.chatView.AtBottom()
	m.chatView.SetContent(strings.Join(m.chatLines, "\n"))
	if atBottom {
		m.chatView.GotoBottom()
	}
}

// --- View ---

func (m model) View() string {
	header := titleStyle.Render(fmt.Sprintf("Loult.family %s [%s]", m.room, m.session.ConnectionState()))

	var users strings.Builder
	for i, entry := range m.roster {
		name := entry.persona.Name
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(entry.persona.Color))
		switch {
		case entry.muted:
			style = mutedStyle
		case entry.persona.IsSelf:
			style = selectedStyle
		}
		prefix := "  "
		if i == m.selected {
			prefix = "> "
		}
		users.WriteString(prefix + style.Render(name) + "\n")
	}
	if len(m.inventory) > 0 {
		users.WriteString("\n" + infoStyle.Render("Inventaire:") + "\n")
		for _, item := range m.inventory {
			users.WriteString("  " + item + "\n")
		}
	}
	if len(m.bank) > 0 {
		users.WriteString("\n" + infoStyle.Render("Banque:") + "\n")
		for _, item := range m.bank {
			users.WriteString("  " + item + "\n")
		}
	}

	sidebar := lipgloss.NewStyle().Width(20).Render(users.String())
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.chatView.View(), sidebar)

	footer := m.input.View() + "\n" +
		helpStyle.Render("Entrée envoyer • ^P utilisateur suivant • ^O muet • ^A attaque • /help commandes • Échap quitter")

	return header + "\n" + body + "\n" + footer
}

// --- Main ---

func main() {
	serverURL := os.Getenv("LOULT_SERVER")
	if serverURL == "" {
		serverURL = "https://loult.family"
	}
	room := os.Getenv("LOULT_ROOM")
	profile := os.Getenv("LOULT_PROFILE")
	if profile == "" {
		profile = "default"
	}

	log := logx.New(os.Getenv("LOULT_DEBUG") != "")

	identity := session.LoadIdentity(profile)
	if identity == nil || identity.ServerURL != serverURL || identity.Room != room {
		cookie, err := session.NewCookie()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		identity = &session.Identity{ServerURL: serverURL, Room: room, Cookie: cookie}
		if err := session.SaveIdentity(profile, *identity); err != nil {
			log.Warn().Err(err).Msg("saving identity")
		}
	}

	prefs := session.LoadPrefs(profile)

	sess := core.NewSession(core.Config{
		ServerURL: serverURL,
		Room:      room,
		Cookie:    identity.Cookie,
		Profile:   profile,
		Prefs:     prefs,
		Log:       log,
	})
	sess.Start()
	defer sess.Stop()

	p := tea.NewProgram(
		initialModel(sess, room, prefs.Theme),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
