package wasm

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

// Signals written by driver.py on the guest's stderr. Everything between
// signals is ordinary stderr text.
const (
	readySignal = "\x00SNIPPET_READY\x00"
	doneSignal  = "\x00SNIPPET_DONE\x00"
	errorPrefix = "\x00SNIPPET_ERROR:"
)

// protocol is the guest's stderr. It scans the stream for driver signals and
// reports each finished command on Done.
type protocol struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	stderr  bytes.Buffer
	ready   bool
	readyCh chan struct{}
	doneCh  chan error
}

func newProtocol() *protocol {
	return &protocol{
		readyCh: make(chan struct{}),
		doneCh:  make(chan error, 1),
	}
}

func (p *protocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	for p.scan() {
	}
	return len(data), nil
}

// scan consumes at most one signal from buf. It reports whether it did, so
// Write can loop until the buffer holds no complete signal.
func (p *protocol) scan() bool {
	content := p.buf.String()

	if idx := strings.Index(content, readySignal); idx != -1 {
		p.consume(content, idx, idx+len(readySignal))
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
		return true
	}

	if idx := strings.Index(content, doneSignal); idx != -1 {
		p.consume(content, idx, idx+len(doneSignal))
		p.finish(nil)
		return true
	}

	if idx := strings.Index(content, errorPrefix); idx != -1 {
		rest := content[idx+len(errorPrefix):]
		end := strings.IndexByte(rest, 0)
		if end == -1 {
			// Message still arriving.
			return false
		}
		msg := rest[:end]
		p.consume(content, idx, idx+len(errorPrefix)+end+1)
		if msg == "" {
			msg = "python execution failed"
		}
		p.finish(errors.New(msg))
		return true
	}

	// No signal; keep a possible partial marker (starts with NUL) buffered.
	if nul := strings.IndexByte(content, 0); nul != -1 {
		p.stderr.WriteString(content[:nul])
		p.buf.Reset()
		p.buf.WriteString(content[nul:])
		return false
	}
	p.stderr.WriteString(content)
	p.buf.Reset()
	return false
}

func (p *protocol) consume(content string, start, end int) {
	p.stderr.WriteString(content[:start])
	p.buf.Reset()
	p.buf.WriteString(content[end:])
}

func (p *protocol) finish(err error) {
	select {
	case p.doneCh <- err:
	default:
	}
}

// Ready is closed once the driver has started its command loop.
func (p *protocol) Ready() <-chan struct{} {
	return p.readyCh
}

// Done delivers the outcome of the current command.
func (p *protocol) Done() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

// Reset prepares for the next command.
func (p *protocol) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
	p.stderr.Reset()
}

// Stderr returns non-signal stderr text written since the last Reset.
func (p *protocol) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr.String()
}
