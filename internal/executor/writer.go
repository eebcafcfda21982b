package executor

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
)

// SwitchWriter forwards writes to a target that can be swapped at any time.
// Interpreters hand one to their guest as stdout and implement SetStdout
// with Swap.
type SwitchWriter struct {
	mu     sync.Mutex
	target io.Writer
}

// NewSwitchWriter returns a SwitchWriter writing to w (io.Discard if nil).
func NewSwitchWriter(w io.Writer) *SwitchWriter {
	if w == nil {
		w = io.Discard
	}
	return &SwitchWriter{target: w}
}

func (s *SwitchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.Write(p)
}

// Swap installs w and returns the previous target.
func (s *SwitchWriter) Swap(w io.Writer) io.Writer {
	if w == nil {
		w = io.Discard
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.target
	s.target = w
	return prev
}

// LogWriter is an io.Writer that turns each complete line into a debug log
// record. It is the default stdout of an interpreter and the original
// console sink of the script engine, so output produced outside a capture
// still shows up somewhere.
type LogWriter struct {
	logger *slog.Logger
	source string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogWriter logs lines under the given source name ("python", "console").
func NewLogWriter(logger *slog.Logger, source string) *LogWriter {
	return &LogWriter{logger: logger, source: source}
}

func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.logger.Debug("runtime output",
			slog.String("source", w.source),
			slog.String("line", line[:len(line)-1]),
		)
	}
	return len(p), nil
}

// Line logs a single already-split line.
func (w *LogWriter) Line(line string) {
	w.logger.Debug("runtime output",
		slog.String("source", w.source),
		slog.String("line", line),
	)
}
