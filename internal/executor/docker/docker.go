// Package docker is the alternate Python backend: each snippet runs with
// `python -c` inside a pre-warmed, network-less container.
//
// Unlike the wasm backend it keeps no state between runs; every Exec gets a
// fresh container that is removed afterwards.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/js2py-docs/internal/executor"
)

// Interpreter implements executor.Interpreter on top of the Docker API.
type Interpreter struct {
	mu     sync.Mutex
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *pool
	out    *executor.SwitchWriter
}

var _ executor.Interpreter = (*Interpreter)(nil)

// New connects to the daemon from the environment, pulls the image and
// starts warming containers. It is the loader factory for this backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Interpreter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, cfg.PullTimeout)
	defer cancel()

	logger.Info("pulling python image", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(pullCtx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: pulling %s: %w", cfg.Image, err)
	}
	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, reader)
	reader.Close()
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: pulling %s: %w", cfg.Image, err)
	}

	in := &Interpreter{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   newPool(cli, cfg, logger),
		out:    executor.NewSwitchWriter(executor.NewLogWriter(logger, "python")),
	}
	in.pool.start()
	return in, nil
}

// Lock acquires exclusive use of the interpreter.
func (in *Interpreter) Lock() { in.mu.Lock() }

// Unlock releases the interpreter.
func (in *Interpreter) Unlock() { in.mu.Unlock() }

// SetStdout swaps where container stdout is copied to.
func (in *Interpreter) SetStdout(w io.Writer) io.Writer {
	return in.out.Swap(w)
}

// Exec runs code in a warm container. A non-zero exit becomes an error
// carrying the last stderr line (the exception summary for a traceback).
func (in *Interpreter) Exec(ctx context.Context, code string) error {
	id, err := in.pool.take(ctx)
	if err != nil {
		return fmt.Errorf("docker: acquiring container: %w", err)
	}
	defer in.pool.remove(id)

	created, err := in.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"python", "-c", code},
	})
	if err != nil {
		return fmt.Errorf("docker: exec create: %w", err)
	}

	attached, err := in.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return fmt.Errorf("docker: exec attach: %w", err)
	}
	defer attached.Close()

	// Removing the container (deferred) ends the process on timeout.
	stderr, err := copyOutput(ctx, in.out, attached.Reader, func() { attached.Close() })
	if err != nil {
		return err
	}

	inspect, err := in.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("docker: exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		return exitError(inspect.ExitCode, stderr)
	}
	return nil
}

// gatedWriter forwards to w until detached. Detach waits for a write in
// progress, so nothing reaches w once Detach has returned.
type gatedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.w == nil {
		return len(p), nil
	}
	return g.w.Write(p)
}

func (g *gatedWriter) Detach() {
	g.mu.Lock()
	g.w = nil
	g.mu.Unlock()
}

// copyOutput demultiplexes an exec stream into stdout and returns the
// collected stderr. If ctx ends first it detaches stdout, closes the stream
// and waits for the copy to stop before returning: the caller swaps stdout
// to the next run's buffer right after, and late output must not land there.
func copyOutput(ctx context.Context, stdout io.Writer, src io.Reader, closeSrc func()) (string, error) {
	gate := &gatedWriter{w: stdout}
	var stderr bytes.Buffer

	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(gate, &stderr, src)
		copied <- err
	}()

	select {
	case err := <-copied:
		if err != nil {
			return "", fmt.Errorf("docker: reading output: %w", err)
		}
		return stderr.String(), nil
	case <-ctx.Done():
		gate.Detach()
		closeSrc()
		<-copied
		return "", ctx.Err()
	}
}

// Close stops the pool and the client.
func (in *Interpreter) Close(ctx context.Context) error {
	in.pool.shutdown()
	return in.cli.Close()
}

func exitError(code int, stderr string) error {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return fmt.Errorf("python exited with status %d", code)
	}
	return errors.New(last)
}
