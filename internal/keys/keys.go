// Package keys translates terminal key events into engine key notation and
// holds the front-end's own key bindings.
package keys

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap defines keys the front-end handles itself instead of forwarding.
type KeyMap struct {
	ToggleStatusBar key.Binding
}

// DefaultKeyMap returns the default front-end bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		ToggleStatusBar: key.NewBinding(
			key.WithKeys("alt+f12"),
			key.WithHelp("alt+f12", "toggle status bar"),
		),
	}
}

// Bindings is the active front-end key map.
var Bindings = DefaultKeyMap()

// named maps key types with a fixed engine name. Modifiers implied by the
// type (shift/ctrl arrows) are part of the name.
var named = map[tea.KeyType]string{
	tea.KeyEnter:     "CR",
	tea.KeyEscape:    "Esc",
	tea.KeyBackspace: "BS",
	tea.KeyTab:       "Tab",
	tea.KeyShiftTab:  "S-Tab",
	tea.KeySpace:     "Space",
	tea.KeyUp:        "Up",
	tea.KeyDown:      "Down",
	tea.KeyLeft:      "Left",
	tea.KeyRight:     "Right",
	tea.KeyHome:      "Home",
	tea.KeyEnd:       "End",
	tea.KeyPgUp:      "PageUp",
	tea.KeyPgDown:    "PageDown",
	tea.KeyInsert:    "Insert",
	tea.KeyDelete:    "Del",

	tea.KeyShiftUp:    "S-Up",
	tea.KeyShiftDown:  "S-Down",
	tea.KeyShiftLeft:  "S-Left",
	tea.KeyShiftRight: "S-Right",
	tea.KeyShiftHome:  "S-Home",
	tea.KeyShiftEnd:   "S-End",

	tea.KeyCtrlUp:     "C-Up",
	tea.KeyCtrlDown:   "C-Down",
	tea.KeyCtrlLeft:   "C-Left",
	tea.KeyCtrlRight:  "C-Right",
	tea.KeyCtrlHome:   "C-Home",
	tea.KeyCtrlEnd:    "C-End",
	tea.KeyCtrlPgUp:   "C-PageUp",
	tea.KeyCtrlPgDown: "C-PageDown",

	tea.KeyCtrlShiftUp:    "C-S-Up",
	tea.KeyCtrlShiftDown:  "C-S-Down",
	tea.KeyCtrlShiftLeft:  "C-S-Left",
	tea.KeyCtrlShiftRight: "C-S-Right",
	tea.KeyCtrlShiftHome:  "C-S-Home",
	tea.KeyCtrlShiftEnd:   "C-S-End",

	tea.KeyF1:  "F1",
	tea.KeyF2:  "F2",
	tea.KeyF3:  "F3",
	tea.KeyF4:  "F4",
	tea.KeyF5:  "F5",
	tea.KeyF6:  "F6",
	tea.KeyF7:  "F7",
	tea.KeyF8:  "F8",
	tea.KeyF9:  "F9",
	tea.KeyF10: "F10",
	tea.KeyF11: "F11",
	tea.KeyF12: "F12",

	tea.KeyCtrlAt:           "C-@",
	tea.KeyCtrlBackslash:    "C-\\",
	tea.KeyCtrlCloseBracket: "C-]",
	tea.KeyCtrlCaret:        "C-^",
	tea.KeyCtrlUnderscore:   "C-_",
}

// Translate converts a key event into the string nvim_input expects.
// ok is false for events with no engine equivalent.
func Translate(msg tea.KeyMsg) (string, bool) {
	k := tea.Key(msg)

	if k.Type == tea.KeyRunes {
		if len(k.Runes) == 0 {
			return "", false
		}
		if k.Paste {
			return pasted(k.Runes), true
		}
		var b strings.Builder
		for _, r := range k.Runes {
			b.WriteString(withAlt(runeName(r), k.Alt))
		}
		return b.String(), true
	}

	if name, ok := named[k.Type]; ok {
		return wrap(name, k.Alt), true
	}
	// Tab, Enter and Backspace share codes with ctrl letters and were
	// matched above.
	if k.Type >= tea.KeyCtrlA && k.Type <= tea.KeyCtrlZ {
		letter := rune('a' + int(k.Type-tea.KeyCtrlA))
		return wrap("C-"+string(letter), k.Alt), true
	}
	return "", false
}

// runeName returns the engine spelling of a typed character. Only "<"
// needs escaping; everything else is literal.
func runeName(r rune) string {
	if r == '<' {
		return "<lt>"
	}
	return string(r)
}

func withAlt(s string, alt bool) string {
	if !alt {
		return s
	}
	if s == "<lt>" {
		return "<M-lt>"
	}
	return "<M-" + s + ">"
}

func wrap(name string, alt bool) string {
	if alt {
		return "<M-" + name + ">"
	}
	return "<" + name + ">"
}

func pasted(runes []rune) string {
	var b strings.Builder
	for _, r := range runes {
		switch r {
		case '\n', '\r':
			b.WriteString("<CR>")
		case '\t':
			b.WriteString("<Tab>")
		default:
			b.WriteString(runeName(r))
		}
	}
	return b.String()
}
