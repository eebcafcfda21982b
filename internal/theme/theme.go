// Package theme tracks the site's light/dark mode.
//
// The mode is derived from a Source that exposes the root element's class
// attribute ("dark" in the class list means dark mode). An Observer reads it
// on Start, watches it while running in auto mode and publishes each change
// of mode exactly once.
package theme

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Mode is the effective color mode.
type Mode string

const (
	Light Mode = "light"
	Dark  Mode = "dark"
)

// EditorTheme maps a mode to the editor widget's theme name.
func (m Mode) EditorTheme() string {
	if m == Dark {
		return "vs-dark"
	}
	return "vs-light"
}

// Setting is the configured theme preference.
type Setting string

const (
	Auto       Setting = "auto"
	FixedLight Setting = "light"
	FixedDark  Setting = "dark"
)

// ParseSetting accepts auto, light and dark. Empty means auto.
func ParseSetting(s string) (Setting, error) {
	switch Setting(strings.ToLower(strings.TrimSpace(s))) {
	case "", Auto:
		return Auto, nil
	case FixedLight:
		return FixedLight, nil
	case FixedDark:
		return FixedDark, nil
	default:
		return "", fmt.Errorf("theme: unknown setting %q", s)
	}
}

// Normalize turns a class attribute into a Mode.
func Normalize(classAttr string) Mode {
	for _, class := range strings.Fields(classAttr) {
		if class == "dark" {
			return Dark
		}
	}
	return Light
}

// Current reads the mode once without watching. A fixed setting wins; an
// unreadable source counts as Light.
func Current(setting Setting, source Source) Mode {
	switch setting {
	case FixedLight:
		return Light
	case FixedDark:
		return Dark
	}
	if source == nil {
		return Light
	}
	attr, err := source.Attribute()
	if err != nil {
		return Light
	}
	return Normalize(attr)
}

// Source is where the theme signal lives. The observer only reads it.
type Source interface {
	// Attribute returns the current class attribute.
	Attribute() (string, error)
	// Watch calls onChange whenever the attribute may have changed until
	// stop is called.
	Watch(onChange func()) (stop func(), err error)
}

// Observer publishes the mode of one UI page.
type Observer struct {
	setting Setting
	source  Source
	publish func(Mode)
	logger  *slog.Logger

	// refreshMu makes read-then-publish atomic, so a late read can never
	// overwrite a newer one.
	refreshMu sync.Mutex

	mu        sync.Mutex
	last      Mode
	published bool
	stop      func()
	closed    bool
}

// NewObserver creates an observer. publish is called with the initial mode
// on Start and again on every change of mode.
func NewObserver(setting Setting, source Source, publish func(Mode), logger *slog.Logger) *Observer {
	return &Observer{
		setting: setting,
		source:  source,
		publish: publish,
		logger:  logger,
	}
}

// Start publishes the current mode and, in auto mode, starts watching the
// source. The watch is installed before the first read, so a change landing
// during Start is not lost. If the watch cannot be installed the current mode
// is still published once. Calling Start twice is a no-op.
func (o *Observer) Start() error {
	o.mu.Lock()
	if o.published || o.closed {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	switch o.setting {
	case FixedLight:
		o.observe(Light)
		return nil
	case FixedDark:
		o.observe(Dark)
		return nil
	}

	stop, err := o.source.Watch(o.refresh)
	if err != nil {
		o.refresh()
		return fmt.Errorf("theme: watching source: %w", err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		stop()
		return nil
	}
	o.stop = stop
	o.mu.Unlock()

	o.refresh()
	return nil
}

// Close releases the watcher. Nothing is published afterwards.
func (o *Observer) Close() {
	o.mu.Lock()
	o.closed = true
	stop := o.stop
	o.stop = nil
	o.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Mode returns the last published mode (Light before Start).
func (o *Observer) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.published {
		return Light
	}
	return o.last
}

func (o *Observer) refresh() {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	attr, err := o.source.Attribute()
	if err != nil {
		// Keep the last mode; the next change event tries again.
		o.logger.Warn("reading theme source", slog.String("error", err.Error()))
		o.mu.Lock()
		published := o.published
		o.mu.Unlock()
		if !published {
			o.observe(Light)
		}
		return
	}
	o.observe(Normalize(attr))
}

// observe publishes m if it differs from what was last published.
func (o *Observer) observe(m Mode) {
	o.mu.Lock()
	if o.closed || (o.published && o.last == m) {
		o.mu.Unlock()
		return
	}
	o.last = m
	o.published = true
	o.mu.Unlock()

	o.publish(m)
}
