package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crimson-sun/ember/internal/model"
)

// Writer writes each payload's wire form as one line to an io.Writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer transport.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewStdout creates a Writer transport on stdout.
func NewStdout() *Writer {
	return NewWriter(os.Stdout)
}

func (t *Writer) Send(_ context.Context, p Payload) error {
	data, err := Encode(p)
	if err != nil {
		return fmt.Errorf("%w: writer: %v", model.ErrTransport, err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(data); err != nil {
		return fmt.Errorf("%w: writer: %v", model.ErrTransport, err)
	}
	return nil
}

func (t *Writer) Close() error {
	return nil
}
