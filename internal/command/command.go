// Package command defines the user-intent actions the front-end queues for
// the engine. Commands are immutable values; each knows how to execute
// itself against an rpc.Session.
package command

import (
	"fmt"
	"strings"

	"github.com/zjrosen/neovis/internal/rpc"
)

// Type identifies the kind of command for logging, tracing and coalescing.
type Type string

const (
	TypeResize      Type = "resize"
	TypeKeyboard    Type = "keyboard"
	TypeMouseButton Type = "mouse_button"
	TypeDrag        Type = "drag"
	TypeScroll      Type = "scroll"
	TypeFocusGained Type = "focus_gained"
	TypeFocusLost   Type = "focus_lost"
	TypeFileDrop    Type = "file_drop"
	TypeQuit        Type = "quit"
	TypeSetVariable Type = "set_variable"
)

func (t Type) String() string { return string(t) }

// Command is one queued user-intent action.
type Command interface {
	// Type returns the command kind.
	Type() Type
	// Execute issues the command's remote call(s). The returned error is
	// the engine's reply; callers log it and move on.
	Execute(s rpc.Session) error
}

// IsResize reports whether cmd participates in resize collapsing.
func IsResize(cmd Command) bool {
	return cmd != nil && cmd.Type() == TypeResize
}

// Position is a grid cell.
type Position struct {
	Col int
	Row int
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.Col, p.Row) }

// Resize asks the engine to resize the default grid.
type Resize struct {
	Width  int
	Height int
}

func (Resize) Type() Type { return TypeResize }

func (c Resize) Execute(s rpc.Session) error {
	return s.TryResizeUI(c.Width, c.Height)
}

func (c Resize) String() string { return fmt.Sprintf("Resize(%dx%d)", c.Width, c.Height) }

// Keyboard sends keys in engine key notation, e.g. "a" or "<C-w>".
type Keyboard struct {
	Keys string
}

func (Keyboard) Type() Type { return TypeKeyboard }

func (c Keyboard) Execute(s rpc.Session) error {
	_, err := s.Input(c.Keys)
	return err
}

func (c Keyboard) String() string { return fmt.Sprintf("Keyboard(%q)", c.Keys) }

// Mouse buttons understood by nvim_input_mouse.
const (
	ButtonLeft   = "left"
	ButtonMiddle = "middle"
	ButtonRight  = "right"
	ButtonWheel  = "wheel"
)

// Mouse actions understood by nvim_input_mouse.
const (
	ActionPress   = "press"
	ActionRelease = "release"
	ActionDrag    = "drag"
)

// Scroll directions understood by nvim_input_mouse for the wheel button.
const (
	ScrollUp    = "up"
	ScrollDown  = "down"
	ScrollLeft  = "left"
	ScrollRight = "right"
)

// MouseButton presses or releases a button at a cell.
type MouseButton struct {
	Button   string // defaults to ButtonLeft
	Action   string
	Position Position
}

func (MouseButton) Type() Type { return TypeMouseButton }

func (c MouseButton) Execute(s rpc.Session) error {
	button := c.Button
	if button == "" {
		button = ButtonLeft
	}
	return s.InputMouse(button, c.Action, "", 0, c.Position.Row, c.Position.Col)
}

func (c MouseButton) String() string {
	return fmt.Sprintf("MouseButton(%s %s %s)", c.Button, c.Action, c.Position)
}

// Drag moves the pointer with the left button held.
type Drag struct {
	Position Position
}

func (Drag) Type() Type { return TypeDrag }

func (c Drag) Execute(s rpc.Session) error {
	return s.InputMouse(ButtonLeft, ActionDrag, "", 0, c.Position.Row, c.Position.Col)
}

func (c Drag) String() string { return fmt.Sprintf("Drag%s", c.Position) }

// Scroll turns the wheel in Direction over a cell.
type Scroll struct {
	Direction string
	Position  Position
}

func (Scroll) Type() Type { return TypeScroll }

func (c Scroll) Execute(s rpc.Session) error {
	return s.InputMouse(ButtonWheel, c.Direction, "", 0, c.Position.Row, c.Position.Col)
}

func (c Scroll) String() string { return fmt.Sprintf("Scroll(%s %s)", c.Direction, c.Position) }

// FocusGained fires the FocusGained autocommand if one is defined.
type FocusGained struct{}

func (FocusGained) Type() Type { return TypeFocusGained }

func (FocusGained) Execute(s rpc.Session) error {
	return s.Command(autocmd("FocusGained"))
}

func (FocusGained) String() string { return "FocusGained" }

// FocusLost fires the FocusLost autocommand if one is defined.
type FocusLost struct{}

func (FocusLost) Type() Type { return TypeFocusLost }

func (FocusLost) Execute(s rpc.Session) error {
	return s.Command(autocmd("FocusLost"))
}

func (FocusLost) String() string { return "FocusLost" }

// FileDrop opens Path in the current window.
type FileDrop struct {
	Path string
}

func (FileDrop) Type() Type { return TypeFileDrop }

func (c FileDrop) Execute(s rpc.Session) error {
	return s.Command("execute 'edit' fnameescape(" + VimString(c.Path) + ")")
}

func (c FileDrop) String() string { return fmt.Sprintf("FileDrop(%q)", c.Path) }

// Quit closes every window without saving, which ends the engine.
type Quit struct{}

func (Quit) Type() Type { return TypeQuit }

func (Quit) Execute(s rpc.Session) error {
	return s.Command("qa!")
}

func (Quit) String() string { return "Quit" }

// SetVariable assigns a global variable in the engine.
type SetVariable struct {
	Name  string
	Value any
}

func (SetVariable) Type() Type { return TypeSetVariable }

func (c SetVariable) Execute(s rpc.Session) error {
	return s.SetVar(c.Name, c.Value)
}

func (c SetVariable) String() string { return fmt.Sprintf("SetVariable(g:%s=%v)", c.Name, c.Value) }

// VimString quotes s as a single-quoted Vim string literal.
func VimString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func autocmd(event string) string {
	return fmt.Sprintf("if exists('#%s') | doautocmd <nomodeline> %s | endif", event, event)
}
