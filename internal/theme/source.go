package theme

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radovskyb/watcher"
)

// FileSource reads the class attribute from a file and polls it for
// changes. The site's theme toggle rewrites the file.
type FileSource struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
	active   atomic.Int32
}

// NewFileSource watches path, polling every interval.
func NewFileSource(path string, interval time.Duration, logger *slog.Logger) *FileSource {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &FileSource{path: path, interval: interval, logger: logger}
}

func (s *FileSource) Attribute() (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("theme: reading %s: %w", s.path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *FileSource) Watch(onChange func()) (func(), error) {
	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create, watcher.Rename, watcher.Move)

	if err := w.Add(s.path); err != nil {
		return nil, fmt.Errorf("theme: watching %s: %w", s.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-w.Event:
				onChange()
			case err := <-w.Error:
				s.logger.Warn("theme watcher", slog.String("error", err.Error()))
			case <-w.Closed:
				return
			}
		}
	}()

	go func() {
		if err := w.Start(s.interval); err != nil {
			s.logger.Error("theme watcher stopped", slog.String("error", err.Error()))
		}
	}()
	w.Wait()

	s.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			w.Close()
			<-done
			s.active.Add(-1)
		})
	}, nil
}

// Watchers reports how many watches are currently installed.
func (s *FileSource) Watchers() int {
	return int(s.active.Load())
}

// StaticSource is an in-memory attribute. Set notifies watchers, which makes
// it usable for tests and for servers without a theme file.
type StaticSource struct {
	mu       sync.Mutex
	attr     string
	watchers map[int]func()
	next     int
}

// NewStaticSource returns a source holding attr.
func NewStaticSource(attr string) *StaticSource {
	return &StaticSource{attr: attr, watchers: make(map[int]func())}
}

func (s *StaticSource) Attribute() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attr, nil
}

func (s *StaticSource) Watch(onChange func()) (func(), error) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = onChange
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

// Set replaces the attribute and notifies every watcher, even when the value
// did not change.
func (s *StaticSource) Set(attr string) {
	s.mu.Lock()
	s.attr = attr
	fns := make([]func(), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Watchers reports how many watches are currently installed.
func (s *StaticSource) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}
