// Package jsengine is the host script engine: a single shared goja runtime
// with a console object whose output can be intercepted.
//
// CONSOLE ROUTING:
//
//	console.log(...)  ──▶ capture (if intercepted) ──▶ original sink
//	console.warn(...) ──▶ original sink
//
// The original sink is the process log. Only console.log is captured, which
// matches what a snippet's "output" means on the documentation pages.
package jsengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/sakif/js2py-docs/internal/executor"
)

// MaxCallStackSize bounds JavaScript call depth. Runaway recursion fails
// with a RangeError instead of growing until the run times out.
const MaxCallStackSize = 10000

// Engine is an executor.ScriptEngine. Build one with New and share it.
type Engine struct {
	mu sync.Mutex
	vm *goja.Runtime

	sink    *executor.LogWriter
	sinkMu  sync.Mutex
	capture func(line string)

	// eval is the engine's global eval function. Calling it through a
	// function value makes it an indirect eval: the source runs in global
	// scope and its let/const bindings stay local to that evaluation.
	eval goja.Callable
}

var _ executor.ScriptEngine = (*Engine)(nil)

// New creates an engine whose console writes to logger.
func New(logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		vm:   goja.New(),
		sink: executor.NewLogWriter(logger, "console"),
	}
	e.vm.SetMaxCallStackSize(MaxCallStackSize)

	console := e.vm.NewObject()
	for _, method := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(method, e.consoleMethod(method)); err != nil {
			return nil, fmt.Errorf("jsengine: installing console.%s: %w", method, err)
		}
	}
	if err := e.vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("jsengine: installing console: %w", err)
	}

	eval, ok := goja.AssertFunction(e.vm.Get("eval"))
	if !ok {
		return nil, errors.New("jsengine: global eval is not callable")
	}
	e.eval = eval
	return e, nil
}

// Lock acquires exclusive use of the engine.
func (e *Engine) Lock() { e.mu.Lock() }

// Unlock releases the engine.
func (e *Engine) Unlock() { e.mu.Unlock() }

func (e *Engine) consoleMethod(method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = joinable(arg)
		}
		line := strings.Join(parts, " ")

		e.sinkMu.Lock()
		capture := e.capture
		e.sinkMu.Unlock()

		if method == "log" && capture != nil {
			capture(line)
		}
		e.sink.Line(line)
		return goja.Undefined()
	}
}

// joinable renders a value the way Array.prototype.join does.
func joinable(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// InterceptConsole tees console.log lines to fn until restore is called.
func (e *Engine) InterceptConsole(fn func(line string)) (restore func()) {
	e.sinkMu.Lock()
	prev := e.capture
	e.capture = fn
	e.sinkMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sinkMu.Lock()
			e.capture = prev
			e.sinkMu.Unlock()
		})
	}
}

// EvalUnsafe evaluates src unescaped through the global eval. Callers hold
// the lock. If ctx ends while the script runs, the script is interrupted.
func (e *Engine) EvalUnsafe(ctx context.Context, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		e.vm.Interrupt(ctx.Err())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
		e.vm.ClearInterrupt()
	}()

	_, err := e.eval(goja.Undefined(), e.vm.ToValue(src))
	if err == nil {
		return nil
	}
	return errorMessage(err)
}

// errorMessage reduces an evaluation error to what the page shows: the
// thrown object's message, or the thrown value itself.
func errorMessage(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("execution interrupted: %w", cause)
		}
		return errors.New("execution interrupted")
	}

	// Uncatchable in goja and without a message, so it is named the way
	// browsers name it.
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return errors.New("RangeError: Maximum call stack size exceeded")
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		val := exc.Value()
		if obj, ok := val.(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) && !goja.IsNull(msg) {
				if s := msg.String(); s != "" {
					return errors.New(s)
				}
			}
		}
		if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
			return errors.New(val.String())
		}
		return errors.New("")
	}
	return err
}
