// Package editor decodes the engine's redraw notifications into a grid the
// UI can draw.
package editor

import (
	"strings"
	"sync"

	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/pubsub"
	"github.com/zjrosen/neovis/internal/rpc"
)

// RedrawMethod is the notification carrying UI events.
const RedrawMethod = "redraw"

// defaultGrid is the only grid drawn without ext_multigrid.
const defaultGrid = 1

// Frame is a point-in-time copy of the editor state.
type Frame struct {
	Width     int
	Height    int
	Rows      []string
	CursorRow int
	CursorCol int
	Title     string
}

// Editor holds the default grid.
type Editor struct {
	mu        sync.RWMutex
	width     int
	height    int
	cells     [][]string
	cursorRow int
	cursorCol int
	title     string

	broker *pubsub.Broker[Frame]
}

// New creates an empty editor.
func New() *Editor {
	return &Editor{broker: pubsub.NewBroker[Frame]()}
}

// Broker publishes FlushEvent after each completed redraw batch and
// TitleEvent on title changes.
func (e *Editor) Broker() *pubsub.Broker[Frame] { return e.broker }

// Register installs the redraw handler on s.
func (e *Editor) Register(s rpc.Session) error {
	return s.RegisterHandler(RedrawMethod, e.HandleRedraw)
}

// HandleRedraw applies one redraw notification. Each update is
// [name, args...] where every args entry is one call of that event.
func (e *Editor) HandleRedraw(updates ...[]any) {
	for _, update := range updates {
		if len(update) == 0 {
			continue
		}
		name, ok := update[0].(string)
		if !ok {
			continue
		}
		for _, raw := range update[1:] {
			args, _ := raw.([]any)
			e.apply(name, args)
		}
		// flush carries no args but must still fire.
		if name == "flush" && len(update) == 1 {
			e.apply(name, nil)
		}
	}
}

func (e *Editor) apply(name string, args []any) {
	switch name {
	case "grid_resize":
		if len(args) < 3 || toInt(args[0]) != defaultGrid {
			return
		}
		e.resize(toInt(args[1]), toInt(args[2]))
	case "grid_clear":
		if len(args) < 1 || toInt(args[0]) != defaultGrid {
			return
		}
		e.clear()
	case "grid_line":
		if len(args) < 4 || toInt(args[0]) != defaultGrid {
			return
		}
		cells, _ := args[3].([]any)
		e.line(toInt(args[1]), toInt(args[2]), cells)
	case "grid_scroll":
		if len(args) < 7 || toInt(args[0]) != defaultGrid {
			return
		}
		e.scroll(toInt(args[1]), toInt(args[2]), toInt(args[3]), toInt(args[4]), toInt(args[5]))
	case "grid_cursor_goto":
		if len(args) < 3 || toInt(args[0]) != defaultGrid {
			return
		}
		e.mu.Lock()
		e.cursorRow, e.cursorCol = toInt(args[1]), toInt(args[2])
		e.mu.Unlock()
	case "set_title":
		if len(args) < 1 {
			return
		}
		title, _ := args[0].(string)
		e.mu.Lock()
		e.title = title
		e.mu.Unlock()
		e.broker.Publish(pubsub.TitleEvent, e.Snapshot())
	case "flush":
		e.broker.Publish(pubsub.FlushEvent, e.Snapshot())
	default:
		log.Trace(log.CatRedraw, "Ignoring redraw event", "event", name)
	}
}

func (e *Editor) resize(width, height int) {
	if width < 0 || height < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cells := make([][]string, height)
	for r := range cells {
		cells[r] = blankRow(width)
		if r < len(e.cells) {
			copy(cells[r], e.cells[r])
		}
	}
	e.width, e.height, e.cells = width, height, cells
	log.Debug(log.CatRedraw, "Grid resized", "width", width, "height", height)
}

func (e *Editor) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for r := range e.cells {
		e.cells[r] = blankRow(e.width)
	}
}

// line writes cells starting at col. Each cell is [text, hl_id?, repeat?].
func (e *Editor) line(row, col int, cells []any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if row < 0 || row >= len(e.cells) {
		return
	}
	dst := e.cells[row]
	for _, raw := range cells {
		cell, _ := raw.([]any)
		if len(cell) == 0 {
			continue
		}
		text, _ := cell[0].(string)
		repeat := 1
		if len(cell) >= 3 {
			repeat = toInt(cell[2])
		}
		for i := 0; i < repeat && col < len(dst); i++ {
			dst[col] = text
			col++
		}
	}
}

// scroll moves the region [top, bot) x [left, right) up by rows (down if
// negative). Vacated rows keep stale content; the engine redraws them.
func (e *Editor) scroll(top, bot, left, right, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if top < 0 || bot > len(e.cells) || left < 0 || right > e.width || top >= bot {
		return
	}
	move := func(dst, src int) {
		copy(e.cells[dst][left:right], e.cells[src][left:right])
	}
	if rows > 0 {
		for r := top; r+rows < bot; r++ {
			move(r, r+rows)
		}
	} else if rows < 0 {
		for r := bot - 1; r+rows >= top; r-- {
			move(r, r+rows)
		}
	}
}

// Snapshot copies the current state.
func (e *Editor) Snapshot() Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rows := make([]string, len(e.cells))
	for r, cells := range e.cells {
		rows[r] = strings.Join(cells, "")
	}
	return Frame{
		Width:     e.width,
		Height:    e.height,
		Rows:      rows,
		CursorRow: e.cursorRow,
		CursorCol: e.cursorCol,
		Title:     e.title,
	}
}

func blankRow(width int) []string {
	row := make([]string, width)
	for i := range row {
		row[i] = " "
	}
	return row
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
