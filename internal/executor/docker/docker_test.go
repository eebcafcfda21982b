package docker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   string
	}{
		{
			name:   "traceback keeps the summary line",
			stderr: "Traceback (most recent call last):\n  File \"<string>\", line 1, in <module>\nZeroDivisionError: division by zero\n",
			want:   "ZeroDivisionError: division by zero",
		},
		{
			name:   "empty stderr falls back to the status",
			stderr: "",
			want:   "python exited with status 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, exitError(3, tt.stderr), tt.want)
		})
	}
}

// frame writes one multiplexed exec frame, as the daemon does.
func frame(t *testing.T, w io.Writer, stream stdcopy.StdType, text string) {
	t.Helper()
	_, err := stdcopy.NewStdWriter(w, stream).Write([]byte(text))
	require.NoError(t, err)
}

func TestCopyOutput_SplitsStreams(t *testing.T) {
	var raw bytes.Buffer
	frame(t, &raw, stdcopy.Stdout, "a\n")
	frame(t, &raw, stdcopy.Stderr, "Traceback...\nValueError: bad\n")
	frame(t, &raw, stdcopy.Stdout, "b\n")

	var stdout bytes.Buffer
	stderr, err := copyOutput(context.Background(), &stdout, &raw, func() {})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", stdout.String())
	assert.Equal(t, "Traceback...\nValueError: bad\n", stderr)
}

// blockingWriter holds every Write until release is closed.
type blockingWriter struct {
	entered chan struct{}
	release chan struct{}
	buf     bytes.Buffer
}

func (b *blockingWriter) Write(p []byte) (int, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.buf.Write(p)
}

func TestCopyOutput_TimeoutWaitsForWriteInFlight(t *testing.T) {
	pr, pw := io.Pipe()
	target := &blockingWriter{entered: make(chan struct{}, 1), release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan error, 1)
	go func() {
		_, err := copyOutput(ctx, target, pr, func() { pr.Close() })
		returned <- err
	}()

	go func() {
		// Fails once the stream is closed; the test does not need the result.
		_, _ = stdcopy.NewStdWriter(pw, stdcopy.Stdout).Write([]byte("late\n"))
	}()
	<-target.entered
	cancel()

	select {
	case <-returned:
		t.Fatal("copyOutput returned while a write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(target.release)
	select {
	case err := <-returned:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("copyOutput did not return after the write finished")
	}

	// The stream is closed: nothing more can be copied anywhere.
	_, err := pw.Write([]byte("more"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestGatedWriter_DropsAfterDetach(t *testing.T) {
	var buf bytes.Buffer
	g := &gatedWriter{w: &buf}

	_, _ = g.Write([]byte("kept"))
	g.Detach()
	n, err := g.Write([]byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "kept", buf.String())
}

func TestDockerInterpreter(t *testing.T) {
	if os.Getenv("CI") != "" || os.Getenv("DOCKER_TESTS") == "" {
		t.Skip("set DOCKER_TESTS=1 to run against a local daemon")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := DefaultConfig()
	cfg.PoolSize = 1

	in, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer in.Close(context.Background())

	run := func(code string) (string, error) {
		in.Lock()
		defer in.Unlock()

		var buf bytes.Buffer
		prev := in.SetStdout(&buf)
		defer in.SetStdout(prev)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := in.Exec(ctx, code)
		return buf.String(), err
	}

	t.Run("captures stdout", func(t *testing.T) {
		out, err := run(`print("a"); print("b")`)
		require.NoError(t, err)
		assert.Equal(t, "a\nb\n", out)
	})

	t.Run("syntax error", func(t *testing.T) {
		out, err := run(`print("Missing parenthesis"`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SyntaxError")
		assert.Empty(t, out)
	})

	t.Run("multiline logic", func(t *testing.T) {
		out, err := run(strings.Join([]string{
			"def fib(n):",
			"    if n <= 1: return n",
			"    return fib(n-1) + fib(n-2)",
			"print(fib(5))",
		}, "\n"))
		require.NoError(t, err)
		assert.Equal(t, "5\n", out)
	})
}
