package sshlaunch

import (
	"fmt"
	"io"
	"time"
)

// Listener is the only observability surface the launcher requires: an
// append-only text sink with an error-flavored variant.
type Listener interface {
	// Logger returns the sink for ordinary progress output.
	Logger() io.Writer

	// Error writes label as an error marker and returns the sink for any
	// detail that follows.
	Error(label string) io.Writer
}

// WriterListener adapts a single io.Writer into a Listener.
type WriterListener struct {
	W io.Writer
}

func (l WriterListener) Logger() io.Writer { return l.W }

func (l WriterListener) Error(label string) io.Writer {
	fmt.Fprintf(l.W, "ERROR: %s\n", label)

	return l.W
}

// DiscardListener swallows everything.
type DiscardListener struct{}

func (DiscardListener) Logger() io.Writer      { return io.Discard }
func (DiscardListener) Error(string) io.Writer { return io.Discard }

var (
	_ Listener = WriterListener{}
	_ Listener = DiscardListener{}
)

// logf writes one timestamped line to the listener, matching the launch log
// texture callers scan by eye.
func logf(l Listener, format string, args ...any) {
	fmt.Fprintf(l.Logger(), "[%s] %s\n", time.Now().Format("01/02 15:04:05"), fmt.Sprintf(format, args...))
}
