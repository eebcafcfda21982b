// Package executor defines the runtimes a snippet can execute on.
//
// Two kinds of runtime exist:
//
//   - Interpreter: an embedded interpreter for a second language (Python).
//     It is expensive to start, so one instance is loaded per process
//     (see internal/loader) and shared by every UI instance.
//   - ScriptEngine: the host's own script engine (JavaScript), evaluated
//     in-process.
//
// Both expose process-wide mutable output plumbing (the interpreter's stdout
// target, the engine's console sink). Callers hold the runtime's lock for the
// whole redirect → execute → restore sequence; see internal/execution.
//
// Backends live in sub-packages: wasm (embedded Python on wazero), docker
// (Python in pre-warmed containers) and jsengine (goja).
package executor

import (
	"context"
	"io"
	"sync"
)

// Interpreter is a long-lived embedded interpreter.
//
// Lock/Unlock give the caller exclusive use of the interpreter. While holding
// the lock, SetStdout swaps the stdout target and returns the previous one so
// the caller can put it back.
type Interpreter interface {
	sync.Locker

	// SetStdout redirects everything the interpreter prints and returns the
	// target that was active before the call.
	SetStdout(w io.Writer) (previous io.Writer)

	// Exec runs source text in the interpreter's global scope. A non-nil
	// error carries the user-facing message of the raised exception.
	Exec(ctx context.Context, code string) error

	// Close stops the interpreter. Only process teardown calls it.
	Close(ctx context.Context) error
}

// ScriptEngine is the host script engine.
//
// EvalUnsafe evaluates arbitrary source text as-is: nothing is escaped,
// validated or sandboxed. Only documentation snippets the site itself serves
// are meant to reach it.
type ScriptEngine interface {
	sync.Locker

	// InterceptConsole tees every console line to fn while still delivering
	// it to the current sink. The returned function restores the sink.
	InterceptConsole(fn func(line string)) (restore func())

	// EvalUnsafe evaluates src. A non-nil error carries the thrown message.
	EvalUnsafe(ctx context.Context, src string) error
}
