// Package command turns raw input lines into outbound intents or local
// actions. The grammar is an ordered table of patterns; the first match wins
// and anything unmatched is sent verbatim as a plain chat message, leading
// slash included.
package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loult-family/loultcli/internal/client/protocol"
)

// Command is the parse result: either something to send or a local action.
type Command interface {
	isCommand()
}

// Send transmits an intent to the server.
type Send struct {
	Intent protocol.Intent
}

// SetVolume adjusts local playback volume, 0..100. No network send.
type SetVolume struct {
	Level int
}

// ShowHelp displays the static command help. No network send.
type ShowHelp struct{}

// SetTheme switches the local display theme. No network send.
type SetTheme struct {
	Name string
}

func (Send) isCommand()      {}
func (SetVolume) isCommand() {}
func (ShowHelp) isCommand()  {}
func (SetTheme) isCommand()  {}

var (
	attackRe = regexp.MustCompile(`(?i)^/at(?:k|q|ta(?:ck|que))\s`)
	langRe   = regexp.MustCompile(`(?i)^/(?:en|es|fr|de)\s`)
	bankRe   = regexp.MustCompile(`(?i)^/bank$`)
	listRe   = regexp.MustCompile(`(?i)^/(?:list|inv)$`)
	giveRe   = regexp.MustCompile(`(?i)^/give\s`)
	useRe    = regexp.MustCompile(`(?i)^/use\s`)
	takeRe   = regexp.MustCompile(`(?i)^/take\s`)
	trashRe  = regexp.MustCompile(`(?i)^/trash\s`)
	modRe    = regexp.MustCompile(`(?i)^/mod\s`)
	volRe    = regexp.MustCompile(`(?i)^/vol(?:ume)?\s(\d+)$`)
	helpRe   = regexp.MustCompile(`(?i)^/(?:help|aide)$`)
	meRe     = regexp.MustCompile(`(?i)^/me\s`)
	themeRe  = regexp.MustCompile(`(?i)^/(poker|flip|omg|drukqs|bisw)$`)
)

// Parse interprets one line of input. lang is the currently selected message
// language, used for the plain-message fallback. Input that is empty after
// trimming yields (nil, false).
func Parse(input, lang string) (Command, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, false
	}

	if !strings.HasPrefix(trimmed, "/") {
		return Send{Intent: protocol.NewMessage(trimmed, lang)}, true
	}

	switch {
	case attackRe.MatchString(trimmed):
		fields := strings.Fields(trimmed)
		return Send{Intent: protocol.NewAttack(field(fields, 1), atoi(field(fields, 2)))}, true

	case langRe.MatchString(trimmed):
		return Send{Intent: protocol.NewMessage(trimmed[4:], strings.ToLower(trimmed[1:3]))}, true

	case bankRe.MatchString(trimmed):
		return Send{Intent: protocol.NewChannelInventory()}, true

	case listRe.MatchString(trimmed):
		return Send{Intent: protocol.NewInventory()}, true

	case giveRe.MatchString(trimmed):
		fields := strings.Fields(trimmed)
		return Send{Intent: protocol.NewGive(atoi(field(fields, 1)), field(fields, 2), atoi(field(fields, 3)))}, true

	case useRe.MatchString(trimmed):
		fields := strings.Fields(trimmed)
		return Send{Intent: protocol.NewUse(atoi(field(fields, 1)), rest(fields, 2))}, true

	case takeRe.MatchString(trimmed):
		fields := strings.Fields(trimmed)
		return Send{Intent: protocol.NewTake(atoi(field(fields, 1)))}, true

	case trashRe.MatchString(trimmed):
		fields := strings.Fields(trimmed)
		return Send{Intent: protocol.NewTrash(atoi(field(fields, 1)))}, true

	case modRe.MatchString(trimmed):
		fields := strings.Fields(trimmed)
		return Send{Intent: protocol.NewMod(field(fields, 1), rest(fields, 2))}, true

	case volRe.MatchString(trimmed):
		m := volRe.FindStringSubmatch(trimmed)
		return SetVolume{Level: clampVolume(atoi(m[1]))}, true

	case helpRe.MatchString(trimmed):
		return ShowHelp{}, true

	case meRe.MatchString(trimmed):
		return Send{Intent: protocol.NewEmote(trimmed[4:])}, true

	case themeRe.MatchString(trimmed):
		m := themeRe.FindStringSubmatch(trimmed)
		return SetTheme{Name: strings.ToLower(m[1])}, true
	}

	// Unrecognized slash commands are sent as literal text, slash included.
	return Send{Intent: protocol.NewMessage(trimmed, lang)}, true
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func rest(fields []string, i int) []string {
	if i < len(fields) {
		return fields[i:]
	}
	return []string{}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// HelpLines is the static help shown for /help, one line per command.
var HelpLines = []string{
	"/attaque, /attack, /atq, /atk : Lancer une attaque sur quelqu'un. Exemple : /attaque Miaouss 2",
	"/en, /es, /fr, /de : Envoyer un message dans une autre langue. Exemple : /en Where is Pete Ravi?",
	"/volume, /vol : Régler le volume rapidement. Exemple : /volume 50",
	"/me : Réaliser une action. Exemple: /me essaie la commande /me.",
	"/use : Utiliser un objet de son inventaire. Exemple: /use 3 Miaouss 2",
	"/give : Donner un objet de son inventaire à quelqu'un d'autre. Exemple: /give 2 Tauros",
	"/list : Afficher son inventaire.",
	"/bank : Afficher l'inventaire public du salon",
	"/trash : Jeter un objet de son inventaire. Exemple: /trash 3",
	"/take : Prendre un objet dans l'inventaire public du salon. Exemple: /take 4",
	"> : Indique une citation. Exemple : >Je ne reviendrai plus ici !",
	"** ** : Masquer une partie d'un message. Exemple : Carapuce est un **chic type** !",
}
