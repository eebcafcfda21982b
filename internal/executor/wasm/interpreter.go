// Package wasm runs a WASI build of CPython on wazero as a long-lived,
// in-process interpreter.
//
// One guest process is started per Interpreter. It runs driver.py, which
// reads JSON commands from stdin and executes them in a single global
// namespace, so definitions from one run are visible to the next (the same
// way a browser-hosted interpreter behaves). Completion is signalled on the
// guest's stderr:
//
//	host ──stdin──▶ {"type":"exec","code":"print(1)"}\n
//	guest ─stdout─▶ 1\n                        (to the current stdout target)
//	guest ─stderr─▶ \x00SNIPPET_DONE\x00       (or \x00SNIPPET_ERROR:msg\x00)
//
// Starting the guest compiles a multi-megabyte module, so an Interpreter is
// built once through internal/loader and shared.
package wasm

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/sakif/js2py-docs/internal/executor"
)

//go:embed driver.py
var driver string

// ErrClosed is returned by Exec after Close.
var ErrClosed = errors.New("wasm: interpreter closed")

// Config tunes the guest.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages. Zero keeps the
	// wazero default.
	MemoryLimitPages uint32
	// CacheDir enables wazero's on-disk compilation cache.
	CacheDir string
	// StdlibDir is a host directory holding the Python standard library.
	// It is mounted read-only at /usr/local/lib inside the guest.
	StdlibDir string
	// StartTimeout bounds how long the guest may take to reach its command
	// loop.
	StartTimeout time.Duration
}

// DefaultConfig mirrors the settings used in production.
func DefaultConfig() Config {
	return Config{
		StartTimeout: 30 * time.Second,
	}
}

// Interpreter is an executor.Interpreter backed by a wazero guest.
type Interpreter struct {
	logger *slog.Logger

	runtime wazero.Runtime
	cache   wazero.CompilationCache
	cancel  context.CancelFunc

	stdin    *io.PipeWriter
	stdinR   *io.PipeReader
	out      *guestStdout
	protocol *protocol

	exited  chan struct{}
	exitErr error

	// mu is the interpreter lock handed out through Lock/Unlock.
	mu sync.Mutex
	// abandoned is set when a caller stopped waiting for a run; the next
	// Exec waits for that run to finish before sending a new command.
	abandoned bool
	closed    atomic.Bool
}

var _ executor.Interpreter = (*Interpreter)(nil)

// guestStdout routes guest stdout to the current target, or to the log
// while an abandoned run is still printing.
type guestStdout struct {
	target   *executor.SwitchWriter
	fallback io.Writer
	draining atomic.Bool
}

func (g *guestStdout) Write(p []byte) (int, error) {
	if g.draining.Load() {
		return g.fallback.Write(p)
	}
	return g.target.Write(p)
}

// Start compiles module (a WASI python.wasm) and boots the driver. It returns
// once the guest is ready for commands.
func Start(ctx context.Context, module []byte, cfg Config, logger *slog.Logger) (*Interpreter, error) {
	if len(module) == 0 {
		return nil, errors.New("wasm: empty python module")
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultConfig().StartTimeout
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("wasm: creating compilation cache: %w", err)
		}
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.MemoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	// The guest outlives the caller's context; Close cancels it.
	guestCtx, cancel := context.WithCancel(context.Background())
	rt := wazero.NewRuntimeWithConfig(guestCtx, rtConfig)

	in := &Interpreter{
		logger:   logger,
		runtime:  rt,
		cache:    cache,
		cancel:   cancel,
		protocol: newProtocol(),
		exited:   make(chan struct{}),
	}
	in.out = &guestStdout{
		target:   executor.NewSwitchWriter(executor.NewLogWriter(logger, "python")),
		fallback: executor.NewLogWriter(logger, "python"),
	}

	if _, err := wasi_snapshot_preview1.Instantiate(guestCtx, rt); err != nil {
		in.teardown()
		return nil, fmt.Errorf("wasm: instantiating WASI: %w", err)
	}

	compileStart := time.Now()
	compiled, err := rt.CompileModule(ctx, module)
	if err != nil {
		in.teardown()
		return nil, fmt.Errorf("wasm: compiling python module: %w", err)
	}
	logger.Info("python module compiled",
		slog.Int("bytes", len(module)),
		slog.Duration("elapsed", time.Since(compileStart)),
	)

	in.stdinR, in.stdin = io.Pipe()

	modConfig := wazero.NewModuleConfig().
		WithStdout(in.out).
		WithStderr(in.protocol).
		WithStdin(in.stdinR).
		WithArgs("python", "-c", driver).
		WithEnv("PYTHONUNBUFFERED", "1").
		WithEnv("PYTHONDONTWRITEBYTECODE", "1").
		WithSysWalltime().
		WithSysNanotime().
		WithName("")

	if cfg.StdlibDir != "" {
		modConfig = modConfig.
			WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(cfg.StdlibDir, "/usr/local/lib")).
			WithEnv("PYTHONHOME", "/usr/local")
	}

	go func() {
		// Blocks until the driver loop ends.
		_, err := rt.InstantiateModule(guestCtx, compiled, modConfig)
		in.exitErr = err
		close(in.exited)
	}()

	timer := time.NewTimer(cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-in.protocol.Ready():
		return in, nil
	case <-in.exited:
		err := in.exitErr
		if err == nil {
			err = errors.New("guest exited before ready")
		}
		in.teardown()
		return nil, fmt.Errorf("wasm: starting python: %w: %s", err, in.protocol.Stderr())
	case <-timer.C:
		in.teardown()
		return nil, fmt.Errorf("wasm: python did not start within %s", cfg.StartTimeout)
	case <-ctx.Done():
		in.teardown()
		return nil, ctx.Err()
	}
}

// Lock acquires exclusive use of the interpreter.
func (in *Interpreter) Lock() { in.mu.Lock() }

// Unlock releases the interpreter.
func (in *Interpreter) Unlock() { in.mu.Unlock() }

// SetStdout swaps the guest's stdout target. Callers hold the lock.
func (in *Interpreter) SetStdout(w io.Writer) io.Writer {
	return in.out.target.Swap(w)
}

type command struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// Exec runs code in the guest's global namespace. Callers hold the lock.
//
// If ctx ends first Exec returns its error and leaves the run going; the
// guest cannot be interrupted mid-statement. Output of that run goes to the
// log, and the next Exec waits for it before sending its own code.
func (in *Interpreter) Exec(ctx context.Context, code string) error {
	if in.closed.Load() {
		return ErrClosed
	}

	if in.abandoned {
		select {
		case <-in.protocol.Done():
			in.abandoned = false
			in.out.draining.Store(false)
		case <-in.exited:
			return fmt.Errorf("wasm: python exited: %v", in.exitErr)
		case <-ctx.Done():
			return fmt.Errorf("wasm: previous run still executing: %w", ctx.Err())
		}
	}

	in.protocol.Reset()

	line, err := json.Marshal(command{Type: "exec", Code: code})
	if err != nil {
		return fmt.Errorf("wasm: encoding command: %w", err)
	}
	if _, err := in.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("wasm: sending command: %w", err)
	}

	select {
	case err := <-in.protocol.Done():
		if stderr := in.protocol.Stderr(); stderr != "" {
			in.logger.Debug("python stderr", slog.String("text", stderr))
		}
		return err
	case <-in.exited:
		return fmt.Errorf("wasm: python exited: %v", in.exitErr)
	case <-ctx.Done():
		in.abandoned = true
		in.out.draining.Store(true)
		in.logger.Warn("abandoning python run", slog.String("error", ctx.Err().Error()))
		return ctx.Err()
	}
}

// Close stops the guest and releases the runtime.
func (in *Interpreter) Close(ctx context.Context) error {
	if in.closed.Swap(true) {
		return nil
	}

	// EOF on stdin ends the driver loop; a guest stuck in user code is
	// stopped by cancelling its context.
	in.stdin.Close()
	select {
	case <-in.exited:
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
	return in.teardown()
}

func (in *Interpreter) teardown() error {
	in.cancel()
	if in.stdinR != nil {
		in.stdinR.Close()
	}

	ctx := context.Background()
	var errs []error
	if err := in.runtime.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wasm: closing runtime: %w", err))
	}
	if in.cache != nil {
		if err := in.cache.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wasm: closing cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
