package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/neovis/internal/command"
)

var buttons = map[tea.MouseButton]string{
	tea.MouseButtonLeft:   command.ButtonLeft,
	tea.MouseButtonMiddle: command.ButtonMiddle,
	tea.MouseButtonRight:  command.ButtonRight,
}

var wheel = map[tea.MouseButton]string{
	tea.MouseButtonWheelUp:    command.ScrollUp,
	tea.MouseButtonWheelDown:  command.ScrollDown,
	tea.MouseButtonWheelLeft:  command.ScrollLeft,
	tea.MouseButtonWheelRight: command.ScrollRight,
}

// handleMouse queues the command for a mouse event. Drags are only sent
// while a button is held and the pointer moved to another cell.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	pos := command.Position{Col: msg.X, Row: msg.Y}
	if msg.Y >= m.gridHeight() && m.held == "" {
		return
	}

	switch msg.Action {
	case tea.MouseActionPress:
		if dir, ok := wheel[msg.Button]; ok {
			m.bridge.Queue(command.Scroll{Direction: dir, Position: pos})
			return
		}
		button, ok := buttons[msg.Button]
		if !ok {
			return
		}
		m.held, m.lastPos = button, pos
		m.bridge.Queue(command.MouseButton{Button: button, Action: command.ActionPress, Position: pos})

	case tea.MouseActionRelease:
		if m.held == "" {
			return
		}
		m.bridge.Queue(command.MouseButton{Button: m.held, Action: command.ActionRelease, Position: pos})
		m.held = ""

	case tea.MouseActionMotion:
		if m.held == "" || pos == m.lastPos {
			return
		}
		m.lastPos = pos
		m.bridge.Queue(command.Drag{Position: pos})
	}
}
