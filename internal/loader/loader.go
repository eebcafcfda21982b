// Package loader provides a process-wide, lazily initialised resource holder.
//
// A Loader owns one expensive resource (the embedded interpreter, the editor
// asset bundle). Many independent UI instances share it:
//
//	interp, err := runtimeLoader.Get(ctx)      // blocks until loaded
//	stop := runtimeLoader.Subscribe(func(in executor.Interpreter) {
//	    // runs once, as soon as the interpreter is ready
//	})
//	defer stop()
//
// LIFECYCLE:
//
//	Unloaded ──Get/Preload──▶ Loading ──ok──▶ Ready (terminal)
//	    ▲                        │
//	    └────────── failed ──────┘  (error goes to every Get waiter)
//
// At most one factory call is in flight at any time, however many goroutines
// call Get concurrently, and once Ready the factory is never called again.
// The state only moves backwards from Loading to Unloaded on failure, so a
// later Get retries instead of staying stuck.
//
// Tests build a fresh Loader per case with New; production code builds one
// per resource in the composition root (server.New) and shares the pointer.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Get after Shutdown.
var ErrClosed = errors.New("loader: closed")

// Factory builds the resource. It runs at most once concurrently and never
// again after it has succeeded.
type Factory[T any] func(ctx context.Context) (T, error)

// State is the lifecycle position of a Loader.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	// StateFailed is reported by Status for a loader whose last attempt
	// failed and which has not been asked to retry yet.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state as its name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateUnloaded, StateLoading, StateReady, StateFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("loader: unknown state %q", text)
}

// Status is a point-in-time view of a Loader for readiness reporting.
type Status struct {
	Name     string        `json:"name"`
	State    State         `json:"state"`
	Attempts int           `json:"attempts"`
	LastErr  string        `json:"lastError,omitempty"`
	LoadTime time.Duration `json:"loadTime,omitempty"`
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	onFailure func(error)
	timeout   time.Duration
}

// WithFailureHook registers fn to be called after every failed attempt.
//
// Subscribers only ever hear about success; the hook is how passive
// observers (the WebSocket event stream) learn that a load failed.
func WithFailureHook(fn func(error)) Option {
	return func(o *options) {
		o.onFailure = fn
	}
}

// WithLoadTimeout bounds a single factory call. Zero means no bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Loader is a single-flight cache for one resource. The zero value is not
// usable; build one with New.
type Loader[T any] struct {
	name    string
	factory Factory[T]
	logger  *slog.Logger
	opts    options

	group singleflight.Group

	// mu guards everything below. Subscribe checks the state and registers
	// under the same lock that load holds while flipping to Ready, so a
	// subscriber can never miss the transition.
	mu       sync.Mutex
	state    State
	value    T
	lastErr  error
	attempts int
	loadTime time.Duration
	closed   bool
	subs     map[uint64]func(T)
	nextSub  uint64
}

// New creates a Loader. name shows up in logs and status reports.
func New[T any](name string, factory Factory[T], logger *slog.Logger, opts ...Option) *Loader[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[T]{
		name:    name,
		factory: factory,
		logger:  logger.With(slog.String("resource", name)),
		opts:    o,
		subs:    make(map[uint64]func(T)),
	}
}

// Name returns the resource name given to New.
func (l *Loader[T]) Name() string {
	return l.name
}

// Get returns the resource, loading it first if needed.
//
//   - Ready: returns the cached value immediately.
//   - Loading: waits for the in-flight load; no second load starts.
//   - Unloaded (or after a failure): starts a load and waits for it.
//
// If ctx ends first, Get returns ctx.Err() but the load keeps going for the
// other waiters; loads cannot be cancelled.
func (l *Loader[T]) Get(ctx context.Context) (T, error) {
	var zero T

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return zero, ErrClosed
	}
	if l.state == StateReady {
		v := l.value
		l.mu.Unlock()
		return v, nil
	}
	l.mu.Unlock()

	ch := l.group.DoChan(l.name, func() (any, error) {
		return l.load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Preload starts a load in the background if none is running and the
// resource is not ready yet. It never blocks.
func (l *Loader[T]) Preload() {
	l.mu.Lock()
	skip := l.closed || l.state == StateReady || l.state == StateLoading
	l.mu.Unlock()
	if skip {
		return
	}

	go func() {
		// Errors are already logged and sent to the failure hook by load.
		_, _ = l.Get(context.Background())
	}()
}

// Subscribe registers fn to receive the resource once it is ready.
//
// If the resource is already Ready, fn runs before Subscribe returns.
// Otherwise fn runs exactly once, on the Ready transition. fn is never called
// for a failed attempt. The returned function removes the subscription; it is
// safe to call more than once and after fn has fired.
func (l *Loader[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	l.mu.Lock()
	if l.state == StateReady {
		v := l.value
		l.mu.Unlock()
		fn(v)
		return func() {}
	}

	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// Ready reports whether the resource has been loaded.
func (l *Loader[T]) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateReady
}

// Status returns a snapshot for readiness endpoints.
func (l *Loader[T]) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{
		Name:     l.name,
		State:    l.state,
		Attempts: l.attempts,
		LoadTime: l.loadTime,
	}
	if l.state == StateUnloaded && l.lastErr != nil {
		st.State = StateFailed
	}
	if l.lastErr != nil && l.state != StateReady {
		st.LastErr = l.lastErr.Error()
	}
	return st
}

// Shutdown is process teardown. It closes the resource with closeFn if it was
// loaded and makes every later Get fail with ErrClosed. Pending subscribers
// are dropped without being called.
func (l *Loader[T]) Shutdown(closeFn func(T) error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ready := l.state == StateReady
	v := l.value
	l.subs = make(map[uint64]func(T))
	l.mu.Unlock()

	if !ready || closeFn == nil {
		return nil
	}
	if err := closeFn(v); err != nil {
		return fmt.Errorf("loader: closing %s: %w", l.name, err)
	}
	return nil
}

// load runs inside the singleflight group, so only one load executes at a
// time. The Ready re-check covers a Get that read the state just before a
// previous load finished.
func (l *Loader[T]) load(ctx context.Context) (T, error) {
	var zero T

	l.mu.Lock()
	if l.state == StateReady {
		v := l.value
		l.mu.Unlock()
		return v, nil
	}
	if l.closed {
		l.mu.Unlock()
		return zero, ErrClosed
	}
	l.state = StateLoading
	l.attempts++
	attempt := l.attempts
	l.mu.Unlock()

	if l.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.timeout)
		defer cancel()
	}

	l.logger.Info("loading resource", slog.Int("attempt", attempt))
	start := time.Now()

	v, err := l.factory(ctx)
	elapsed := time.Since(start)

	if err != nil {
		l.mu.Lock()
		l.state = StateUnloaded
		l.lastErr = err
		l.mu.Unlock()

		l.logger.Error("resource failed to load",
			slog.Int("attempt", attempt),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		if l.opts.onFailure != nil {
			l.opts.onFailure(err)
		}
		return zero, err
	}

	l.mu.Lock()
	l.state = StateReady
	l.value = v
	l.lastErr = nil
	l.loadTime = elapsed
	subs := make([]func(T), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.subs = make(map[uint64]func(T))
	l.mu.Unlock()

	l.logger.Info("resource ready",
		slog.Duration("elapsed", elapsed),
		slog.Int("subscribers", len(subs)),
	)

	for _, fn := range subs {
		fn(v)
	}
	return v, nil
}
