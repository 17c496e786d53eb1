// Package ui is the terminal front-end: it turns bubbletea input into
// bridge commands and draws the editor grid.
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/neovis/internal/command"
	"github.com/zjrosen/neovis/internal/editor"
	"github.com/zjrosen/neovis/internal/keys"
	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/pubsub"
	"github.com/zjrosen/neovis/internal/settings"
)

// Bridge is the part of the command bridge the UI drives.
type Bridge interface {
	Queue(cmd command.Command)
	IsRunning() bool
}

// Screen supplies redraw frames.
type Screen interface {
	Snapshot() editor.Frame
	Broker() *pubsub.Broker[editor.Frame]
}

// Settings is the subset of the settings store the UI reads and toggles.
type Settings interface {
	Int(name string) int
	Bool(name string) bool
	Set(name string, value any) error
	Broker() *pubsub.Broker[settings.Change]
}

const defaultRefreshRate = 60

type tickMsg time.Time

// Model is the bubbletea model for the whole window.
type Model struct {
	bridge   Bridge
	screen   Screen
	settings Settings

	frameListener    *pubsub.ContinuousListener[editor.Frame]
	settingsListener *pubsub.ContinuousListener[settings.Change]
	logListener      *log.LogListener

	frame  editor.Frame
	width  int
	height int
	status string

	held    string
	lastPos command.Position
}

// New creates the model. Subscriptions live until ctx is done.
func New(ctx context.Context, b Bridge, screen Screen, s Settings) Model {
	return Model{
		bridge:           b,
		screen:           screen,
		settings:         s,
		frameListener:    pubsub.NewContinuousListener(ctx, screen.Broker()),
		settingsListener: pubsub.NewContinuousListener(ctx, s.Broker()),
		logListener:      log.NewListener(ctx),
		frame:            screen.Snapshot(),
	}
}

// Init starts the refresh tick and the listeners.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.tick(),
		m.frameListener.Listen(),
		m.settingsListener.Listen(),
		m.logListener.Listen(),
	}
	if m.settings.Bool(settings.Fullscreen) {
		cmds = append(cmds, tea.EnterAltScreen)
	}
	return tea.Batch(cmds...)
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if !m.bridge.IsRunning() {
			log.Debug(log.CatUI, "Engine stopped, quitting")
			return m, tea.Quit
		}
		if m.settings.Bool(settings.NoIdle) {
			m.frame = m.screen.Snapshot()
		}
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.queueResize()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Bindings.ToggleStatusBar) {
			if err := m.settings.Set(settings.StatusBar, !m.settings.Bool(settings.StatusBar)); err != nil {
				log.ErrorErr(log.CatUI, "Toggle status bar failed", err)
			}
			return m, nil
		}
		if text, ok := keys.Translate(msg); ok {
			m.bridge.Queue(command.Keyboard{Keys: text})
		}
		return m, nil

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case tea.FocusMsg:
		m.bridge.Queue(command.FocusGained{})
		return m, nil

	case tea.BlurMsg:
		m.bridge.Queue(command.FocusLost{})
		return m, nil

	case pubsub.Event[editor.Frame]:
		m.frame = msg.Payload
		cmds := []tea.Cmd{m.frameListener.Listen()}
		if msg.Type == pubsub.TitleEvent {
			cmds = append(cmds, tea.SetWindowTitle(msg.Payload.Title))
		}
		return m, tea.Batch(cmds...)

	case pubsub.Event[settings.Change]:
		return m, tea.Batch(m.applySetting(msg.Payload), m.settingsListener.Listen())

	case pubsub.Event[string]:
		m.status = msg.Payload
		return m, m.logListener.Listen()
	}
	return m, nil
}

func (m *Model) applySetting(c settings.Change) tea.Cmd {
	switch c.Name {
	case settings.Fullscreen:
		if on, _ := c.Value.(bool); on {
			return tea.EnterAltScreen
		}
		return tea.ExitAltScreen
	case settings.StatusBar:
		m.queueResize()
	}
	return nil
}

func (m Model) tick() tea.Cmd {
	rate := m.settings.Int(settings.RefreshRate)
	if rate <= 0 {
		rate = defaultRefreshRate
	}
	return tea.Tick(time.Second/time.Duration(rate), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// gridHeight is the number of rows left for the engine.
func (m Model) gridHeight() int {
	h := m.height
	if m.settings.Bool(settings.StatusBar) {
		h--
	}
	return max(h, 1)
}

func (m Model) queueResize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.bridge.Queue(command.Resize{Width: m.width, Height: m.gridHeight()})
}
