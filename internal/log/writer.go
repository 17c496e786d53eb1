package log

import (
	"bytes"
	"io"
	"sync"
)

// LineWriter turns a byte stream, such as a child process's stderr, into
// one log entry per line. A trailing partial line is held until its
// newline arrives or Flush is called.
type LineWriter struct {
	mu    sync.Mutex
	level Level
	cat   Category
	msg   string
	buf   []byte
}

var _ io.Writer = (*LineWriter)(nil)

// NewLineWriter logs each written line as msg with a line=<text> field.
func NewLineWriter(level Level, cat Category, msg string) *LineWriter {
	return &LineWriter{level: level, cat: cat, msg: msg}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	log(w.level, w.cat, w.msg, "line", string(line))
}
