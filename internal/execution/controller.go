// Package execution runs snippets for UI instances.
//
// Every editor widget on a page is one Controller. It holds the widget's
// Python and JavaScript sources and the result of the last run, and it runs
// a snippet on one of two shared runtimes:
//
//   - Python on the process-wide interpreter, obtained through the runtime
//     loader (this blocks while the interpreter is still loading; the run
//     timeout starts once the interpreter is in hand);
//   - JavaScript on the host script engine.
//
// STATE MACHINE:
//
//	Idle ──Run──▶ Running ──ok──▶ Done
//	               │  ▲    └─fail─▶ Errored
//	               │  └──────Run────┘ (from Done or Errored)
//	               └─Run while Running: ignored, not queued
//
// Both runtimes have process-wide output plumbing, so a run holds the
// runtime's lock from redirecting output until restoring it. Runs from
// different controllers never interleave their captured output.
package execution

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/snippet"
	"github.com/sakif/js2py-docs/internal/theme"
)

// Runtime is the shared interpreter as seen by a controller.
// *loader.Loader[executor.Interpreter] implements it.
type Runtime interface {
	Get(ctx context.Context) (executor.Interpreter, error)
	Subscribe(fn func(executor.Interpreter)) (unsubscribe func())
	Preload()
}

// State is a controller's position in the run cycle.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateErrored State = "errored"
)

// RunStatus tells the caller what a Run request did.
type RunStatus string

const (
	// RunCompleted means a run happened; its outcome is the new result.
	RunCompleted RunStatus = "completed"
	// RunSkipped means the source was empty and nothing changed.
	RunSkipped RunStatus = "skipped"
	// RunIgnored means another run of this controller was in progress.
	RunIgnored RunStatus = "ignored"
)

// Snapshot is the controller state shown to the UI.
type Snapshot struct {
	ID         string                 `json:"id"`
	State      State                  `json:"state"`
	Ready      bool                   `json:"ready"`
	Python     string                 `json:"python"`
	JavaScript string                 `json:"javascript"`
	Result     *model.ExecutionResult `json:"result"`
	Theme      theme.Mode             `json:"theme"`
	ReadOnly   bool                   `json:"readOnly"`
}

// Controller is one UI instance.
type Controller struct {
	id      string
	python  Runtime
	js      executor.ScriptEngine
	timeout time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	sources     snippet.Set
	state       State
	result      *model.ExecutionResult
	ready       bool
	mode        theme.Mode
	readOnly    bool
	unsubscribe func()
	closed      bool
}

// NewController mounts an instance. It subscribes to the interpreter's
// readiness; Close undoes that.
func NewController(id string, sources snippet.Set, python Runtime, js executor.ScriptEngine, timeout time.Duration, logger *slog.Logger) *Controller {
	c := &Controller{
		id:      id,
		python:  python,
		js:      js,
		timeout: timeout,
		logger:  logger.With(slog.String("instance", id)),
		sources: sources,
		state:   StateIdle,
		mode:    theme.Light,
	}

	unsubscribe := python.Subscribe(func(executor.Interpreter) {
		c.mu.Lock()
		c.ready = true
		c.mu.Unlock()
	})

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return c
}

// ID returns the instance id.
func (c *Controller) ID() string {
	return c.id
}

// Run executes the source of lang.
//
// An empty (or whitespace-only) source is skipped without touching the
// previous result. A run requested while another is in progress is ignored.
// Execution failures are not errors: they become an error result. Run only
// returns an error for an unsupported language.
func (c *Controller) Run(ctx context.Context, lang model.Language) (RunStatus, error) {
	if lang != model.Python && lang != model.JavaScript {
		return "", apperror.ValidationFailed("language", "unsupported language: "+string(lang))
	}

	c.mu.Lock()
	src := c.sources.Source(lang)
	if strings.TrimSpace(src) == "" {
		c.mu.Unlock()
		return RunSkipped, nil
	}
	if c.state == StateRunning {
		c.mu.Unlock()
		return RunIgnored, nil
	}
	c.state = StateRunning
	if lang == model.Python {
		c.result = nil
	}
	c.mu.Unlock()

	var res *model.ExecutionResult
	switch lang {
	case model.Python:
		res = c.runPython(ctx, src)
	case model.JavaScript:
		res = c.runJavaScript(ctx, src)
	}

	c.mu.Lock()
	c.result = res
	if res.OK {
		c.state = StateDone
	} else {
		c.state = StateErrored
	}
	c.mu.Unlock()

	c.logger.Info("snippet executed",
		slog.String("language", string(lang)),
		slog.Bool("ok", res.OK),
		slog.Duration("duration", res.Duration),
	)
	return RunCompleted, nil
}

func (c *Controller) runPython(ctx context.Context, src string) *model.ExecutionResult {
	start := time.Now()

	// The wait for the shared load is not part of the run: only the
	// caller's own context can end it.
	interp, err := c.python.Get(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return model.Failure(model.Python, "run canceled while the python runtime was loading: "+err.Error(), time.Since(start))
		}
		return model.Failure(model.Python, apperror.InitializationFailed("python runtime", err).Error(), time.Since(start))
	}

	interp.Lock()
	defer interp.Unlock()

	var buf bytes.Buffer
	prev := interp.SetStdout(&buf)
	defer interp.SetStdout(prev)

	runCtx, cancel := c.withRunTimeout(ctx)
	defer cancel()

	if err := interp.Exec(runCtx, src); err != nil {
		return model.Failure(model.Python, err.Error(), time.Since(start))
	}
	return model.Success(model.Python, buf.String(), time.Since(start))
}

func (c *Controller) runJavaScript(ctx context.Context, src string) *model.ExecutionResult {
	start := time.Now()

	c.js.Lock()
	defer c.js.Unlock()

	var lines []string
	restore := c.js.InterceptConsole(func(line string) {
		lines = append(lines, line)
	})
	defer restore()

	runCtx, cancel := c.withRunTimeout(ctx)
	defer cancel()

	if err := c.js.EvalUnsafe(runCtx, src); err != nil {
		return model.Failure(model.JavaScript, err.Error(), time.Since(start))
	}
	return model.Success(model.JavaScript, strings.Join(lines, "\n"), time.Since(start))
}

// withRunTimeout bounds one execution by RUN_TIMEOUT. A zero timeout leaves
// ctx as is.
func (c *Controller) withRunTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// MakeReadOnly freezes the instance's sources. It cannot be undone.
func (c *Controller) MakeReadOnly() {
	c.mu.Lock()
	c.readOnly = true
	c.mu.Unlock()
}

// SetSource replaces the source of lang. A run already in progress keeps
// the source it started with. A read-only instance refuses with
// apperror.ErrForbidden.
func (c *Controller) SetSource(lang model.Language, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readOnly {
		return apperror.Forbidden("instance " + c.id + " is read-only")
	}

	switch lang {
	case model.Python:
		c.sources.Python = text
	case model.JavaScript:
		c.sources.JavaScript = text
	default:
		return apperror.ValidationFailed("language", "unsupported language: "+string(lang))
	}
	return nil
}

// SetTheme records the mode the instance's page currently shows.
func (c *Controller) SetTheme(mode theme.Mode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ID:         c.id,
		State:      c.state,
		Ready:      c.ready,
		Python:     c.sources.Python,
		JavaScript: c.sources.JavaScript,
		Result:     c.result,
		Theme:      c.mode,
		ReadOnly:   c.readOnly,
	}
}

// Ready reports whether the shared interpreter has loaded.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Close unmounts the instance: the readiness subscription is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
