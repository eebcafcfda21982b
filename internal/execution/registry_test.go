package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/snippet"
)

func TestRegistry_MountGetUnmount(t *testing.T) {
	fx := newFixture(t)
	r, err := NewRegistry(4, fx.python, fx.js, time.Second, quietLogger())
	require.NoError(t, err)

	c := r.Mount(snippet.Set{Python: `print("hi")`})
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)

	// Mount preloads the interpreter.
	assert.Eventually(t, fx.python.Ready, time.Second, time.Millisecond)

	require.NoError(t, r.Unmount(c.ID()))
	_, err = r.Get(c.ID())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, r.Unmount(c.ID()), apperror.ErrNotFound)
}

func TestRegistry_EvictionClosesController(t *testing.T) {
	fx := newFixture(t)
	fx.gateLoads = true
	r, err := NewRegistry(1, fx.python, fx.js, time.Second, quietLogger())
	require.NoError(t, err)

	first := r.Mount(snippet.Set{})
	second := r.Mount(snippet.Set{})

	_, err = r.Get(first.ID())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	close(fx.loadGate)
	assert.Eventually(t, second.Ready, time.Second, time.Millisecond)
	assert.False(t, first.Ready(), "evicted instance must be unsubscribed")

	r.Purge()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RunOnce(t *testing.T) {
	fx := newFixture(t)
	r, err := NewRegistry(4, fx.python, fx.js, time.Second, quietLogger())
	require.NoError(t, err)

	res, status, err := r.RunOnce(context.Background(), model.JavaScript, `console.log(6 * 7)`)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, status)
	assert.Equal(t, "42", res.Output)

	res, status, err = r.RunOnce(context.Background(), model.Python, "   ")
	require.NoError(t, err)
	assert.Equal(t, RunSkipped, status)
	assert.Nil(t, res)

	assert.Equal(t, 0, r.Len(), "one-shot runs are never registered")
}

func TestNewRegistry_InvalidSize(t *testing.T) {
	fx := newFixture(t)
	_, err := NewRegistry(0, fx.python, fx.js, time.Second, quietLogger())
	assert.Error(t, err)
}
