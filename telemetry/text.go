package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pthm-cable/contagion/sim"
)

// TextSink writes each day as one line of `ID(<id>): <Status>  |  ` tokens
// in id order, flushed after every day. Days are written whole, so runs may
// share a TextSink.
type TextSink struct {
	mu    sync.Mutex
	w     *bufio.Writer
	owned io.Closer
}

// NewTextSink writes to w. The caller keeps ownership of w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: bufio.NewWriter(w)}
}

// CreateTextSink creates (or truncates) the file at path. Close closes it.
func CreateTextSink(path string) (*TextSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &TextSink{w: bufio.NewWriter(f), owned: f}, nil
}

// Emit implements sim.Sink.
func (t *TextSink) Emit(d sim.Day) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ind := range d.Individuals {
		if _, err := fmt.Fprintf(t.w, "ID(%d): %s  |  ", ind.ID, ind.Status); err != nil {
			return err
		}
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return err
	}
	return t.w.Flush()
}

// Close flushes pending output and closes the file opened by CreateTextSink.
func (t *TextSink) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.w.Flush()
	if t.owned != nil {
		if cerr := t.owned.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
