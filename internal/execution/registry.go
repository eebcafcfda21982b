package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/xid"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/snippet"
)

// Registry holds the mounted instances. It is bounded: mounting beyond the
// limit unmounts the least recently used instance.
type Registry struct {
	instances *lru.Cache[string, *Controller]
	python    Runtime
	js        executor.ScriptEngine
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRegistry creates a registry for at most size instances.
func NewRegistry(size int, python Runtime, js executor.ScriptEngine, timeout time.Duration, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		python:  python,
		js:      js,
		timeout: timeout,
		logger:  logger,
	}

	cache, err := lru.NewWithEvict(size, func(id string, c *Controller) {
		c.Close()
		r.logger.Debug("instance unmounted", slog.String("instance", id))
	})
	if err != nil {
		return nil, fmt.Errorf("execution: creating registry: %w", err)
	}
	r.instances = cache
	return r, nil
}

// Mount creates an instance for sources and starts loading the interpreter
// in the background if it is not loaded yet.
func (r *Registry) Mount(sources snippet.Set) *Controller {
	id := xid.New().String()
	c := NewController(id, sources, r.python, r.js, r.timeout, r.logger)
	r.instances.Add(id, c)
	r.python.Preload()

	r.logger.Debug("instance mounted", slog.String("instance", id))
	return c
}

// Get returns a mounted instance.
func (r *Registry) Get(id string) (*Controller, error) {
	c, ok := r.instances.Get(id)
	if !ok {
		return nil, apperror.NotFound("instance", id)
	}
	return c, nil
}

// Unmount removes an instance and closes it.
func (r *Registry) Unmount(id string) error {
	if !r.instances.Remove(id) {
		return apperror.NotFound("instance", id)
	}
	return nil
}

// Len reports the number of mounted instances.
func (r *Registry) Len() int {
	return r.instances.Len()
}

// Purge unmounts every instance.
func (r *Registry) Purge() {
	r.instances.Purge()
}

// RunOnce runs code through a throwaway controller that is never
// registered.
func (r *Registry) RunOnce(ctx context.Context, lang model.Language, code string) (*model.ExecutionResult, RunStatus, error) {
	var sources snippet.Set
	switch lang {
	case model.Python:
		sources.Python = code
	case model.JavaScript:
		sources.JavaScript = code
	}

	c := NewController(xid.New().String(), sources, r.python, r.js, r.timeout, r.logger)
	defer c.Close()

	status, err := c.Run(ctx, lang)
	if err != nil {
		return nil, "", err
	}
	return c.Snapshot().Result, status, nil
}
