package handler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/assets"
	"github.com/sakif/js2py-docs/internal/auth"
	"github.com/sakif/js2py-docs/internal/editor"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/executor/jsengine"
	"github.com/sakif/js2py-docs/internal/handler"
	"github.com/sakif/js2py-docs/internal/loader"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/repository"
	"github.com/sakif/js2py-docs/internal/service"
	"github.com/sakif/js2py-docs/internal/theme"
)

// echoInterpreter prints "py: <code>" and fails on "raise".
type echoInterpreter struct {
	sync.Mutex
	stdout io.Writer
}

func (e *echoInterpreter) SetStdout(w io.Writer) io.Writer {
	prev := e.stdout
	e.stdout = w
	return prev
}

func (e *echoInterpreter) Exec(_ context.Context, code string) error {
	if strings.TrimSpace(code) == "raise" {
		return errors.New("RuntimeError: No active exception to reraise")
	}
	_, err := fmt.Fprintf(e.stdout, "py: %s\n", code)
	return err
}

func (e *echoInterpreter) Close(context.Context) error { return nil }

// memStore is an assets.Store over a map.
type memStore map[string]string

func (m memStore) Fetch(_ context.Context, name string) ([]byte, error) {
	body, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, assets.ErrNotFound)
	}
	return []byte(body), nil
}

func (m memStore) Location() string { return "memory" }

// memRepo is an in-memory repository.DocumentRepository.
type memRepo struct {
	mu   sync.Mutex
	docs map[string]model.Document
}

func (r *memRepo) Upsert(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.Slug] = *doc
	return nil
}

func (r *memRepo) GetBySlug(_ context.Context, slug string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[slug]
	if !ok {
		return nil, apperror.NotFound("document", slug)
	}
	return &d, nil
}

func (r *memRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Document, 0, len(r.docs))
	for _, d := range r.docs {
		d.Body = ""
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	if opts.Offset >= len(out) {
		return []model.Document{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *memRepo) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs), nil
}

func (r *memRepo) DeleteExcept(_ context.Context, keep []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	n := 0
	for slug := range r.docs {
		if !keepSet[slug] {
			delete(r.docs, slug)
			n++
		}
	}
	return n, nil
}

const loopsBody = "# Loops\n\nA `for` loop in both languages.\n\n" +
	"<PythonEditor title=\"Counting\" compare>\n" +
	"```python\nfor i in range(3):\n    print(i)\n```\n" +
	"```javascript\nfor (let i = 0; i < 3; i++) console.log(i);\n```\n" +
	"</PythonEditor>\n"

type fixture struct {
	router     http.Handler
	python     *loader.Loader[executor.Interpreter]
	bundles    *loader.Loader[*editor.Bundle]
	playground *service.PlaygroundService
	tokens     *auth.TokenService
	hub        *handler.Hub
	theme      *theme.StaticSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()

	python := loader.New("python", func(context.Context) (executor.Interpreter, error) {
		return &echoInterpreter{stdout: io.Discard}, nil
	}, logger)
	bundles := loader.New("editor", editor.Factory(memStore{
		"min/vs/loader.js": "var require = {};",
	}, []string{"min/vs/loader.js"}), logger)

	js, err := jsengine.New(logger)
	require.NoError(t, err)

	registry, err := execution.NewRegistry(16, python, js, 5*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(registry.Purge)

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	repo := &memRepo{docs: map[string]model.Document{
		"basics/loops": {ID: "d1", Slug: "basics/loops", Title: "Loops", Body: loopsBody},
	}}
	docs := service.NewDocumentService(repo, logger)
	playground := service.NewPlaygroundService(registry, docs, tokens,
		[]service.StatusReporter{python, bundles}, logger)

	hub := handler.NewHub()
	source := theme.NewStaticSource("dark")

	pages, err := handler.NewPlaygroundHandler(docs, theme.Auto, source, logger)
	require.NoError(t, err)
	docsH := handler.NewDocsHandler(docs, logger)
	instances := handler.NewInstanceHandler(playground, logger)
	exec := handler.NewExecuteHandler(playground, logger)
	runtime := handler.NewRuntimeHandler(playground)
	editorH := handler.NewEditorHandler(bundles)
	ws := handler.NewWSHandler(playground, python, bundles, hub, theme.Auto, source, logger)

	r := chi.NewRouter()
	r.Get("/", pages.HandleIndex)
	r.Get("/docs/*", pages.HandleDoc)
	r.Get("/editor/*", editorH.HandleFile)
	r.With(auth.RequireInstance(tokens)).Get("/ws", ws.HandleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/docs", docsH.HandleList)
		r.Get("/docs/*", docsH.HandleGet)
		r.Get("/runtime", runtime.HandleStatus)
		r.Post("/execute", exec.HandleExecute)
		r.Post("/instances", instances.HandleMount)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireInstance(tokens))
			r.Get("/instances/{id}", instances.HandleGet)
			r.Put("/instances/{id}/source", instances.HandleSetSource)
			r.Post("/instances/{id}/run", instances.HandleRun)
			r.Delete("/instances/{id}", instances.HandleUnmount)
		})
	})

	return &fixture{
		router:     r,
		python:     python,
		bundles:    bundles,
		playground: playground,
		tokens:     tokens,
		hub:        hub,
		theme:      source,
	}
}
