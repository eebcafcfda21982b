package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/executor/jsengine"
	"github.com/sakif/js2py-docs/internal/loader"
)

// fakeInterpreter understands just enough Python for the tests:
// print("...") statements separated by ";" or newlines, "1/0", and
// "block" (waits until release is closed).
type fakeInterpreter struct {
	sync.Mutex

	original io.Writer
	stdout   io.Writer
	entered  chan struct{}
	release  chan struct{}
	execs    atomic.Int32
}

var printStmt = regexp.MustCompile(`^print\("([^"]*)"\)$`)

func newFakeInterpreter() *fakeInterpreter {
	f := &fakeInterpreter{
		original: io.Discard,
		entered:  make(chan struct{}, 16),
		release:  make(chan struct{}),
	}
	f.stdout = f.original
	return f
}

func (f *fakeInterpreter) SetStdout(w io.Writer) io.Writer {
	prev := f.stdout
	f.stdout = w
	return prev
}

func (f *fakeInterpreter) Exec(ctx context.Context, code string) error {
	f.execs.Add(1)
	for _, stmt := range strings.FieldsFunc(code, func(r rune) bool { return r == ';' || r == '\n' }) {
		stmt = strings.TrimSpace(stmt)
		switch {
		case stmt == "":
		case stmt == "1/0":
			return errors.New("ZeroDivisionError: division by zero")
		case stmt == "block":
			f.entered <- struct{}{}
			select {
			case <-f.release:
			case <-ctx.Done():
				return ctx.Err()
			}
		case printStmt.MatchString(stmt):
			text := printStmt.FindStringSubmatch(stmt)[1]
			// Write in two halves so interleaving would show.
			half := len(text) / 2
			fmt.Fprint(f.stdout, text[:half])
			runtime.Gosched()
			fmt.Fprint(f.stdout, text[half:]+"\n")
		default:
			return fmt.Errorf("SyntaxError: invalid syntax: %s", stmt)
		}
	}
	return nil
}

func (f *fakeInterpreter) Close(context.Context) error { return nil }

var _ executor.Interpreter = (*fakeInterpreter)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires a real loader around the fake interpreter and a real
// script engine.
type fixture struct {
	interp    *fakeInterpreter
	python    *loader.Loader[executor.Interpreter]
	js        *jsengine.Engine
	loads     atomic.Int32
	loadErr   atomic.Pointer[error]
	loadGate  chan struct{}
	gateLoads bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fx := &fixture{
		interp:   newFakeInterpreter(),
		loadGate: make(chan struct{}),
	}
	fx.python = loader.New("python", func(ctx context.Context) (executor.Interpreter, error) {
		fx.loads.Add(1)
		if fx.gateLoads {
			<-fx.loadGate
		}
		if errp := fx.loadErr.Load(); errp != nil {
			return nil, *errp
		}
		return fx.interp, nil
	}, quietLogger())

	js, err := jsengine.New(quietLogger())
	require.NoError(t, err)
	fx.js = js
	return fx
}

func (fx *fixture) failLoads(err error) {
	fx.loadErr.Store(&err)
}

func (fx *fixture) succeedLoads() {
	fx.loadErr.Store(nil)
}
