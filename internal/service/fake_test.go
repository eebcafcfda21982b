package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/auth"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/executor/jsengine"
	"github.com/sakif/js2py-docs/internal/loader"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/repository"
)

// fakeDocRepo is an in-memory repository.DocumentRepository.
type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]model.Document
	err  error
}

func newFakeDocRepo(docs ...model.Document) *fakeDocRepo {
	r := &fakeDocRepo{docs: make(map[string]model.Document)}
	for _, d := range docs {
		r.docs[d.Slug] = d
	}
	return r
}

func (r *fakeDocRepo) Upsert(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.Slug] = *doc
	return nil
}

func (r *fakeDocRepo) GetBySlug(_ context.Context, slug string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[slug]
	if !ok {
		return nil, apperror.NotFound("document", slug)
	}
	return &d, nil
}

func (r *fakeDocRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

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

func (r *fakeDocRepo) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs), nil
}

func (r *fakeDocRepo) DeleteExcept(_ context.Context, keep []string) (int, error) {
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

// echoInterpreter prints "ran <code>" for every Exec and fails on "raise".
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
	_, err := fmt.Fprintf(e.stdout, "ran %s\n", code)
	return err
}

func (e *echoInterpreter) Close(context.Context) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type playgroundFixture struct {
	svc    *PlaygroundService
	docs   *DocumentService
	python *loader.Loader[executor.Interpreter]
	tokens *auth.TokenService
}

func newPlaygroundFixture(t *testing.T, docs ...model.Document) *playgroundFixture {
	t.Helper()

	python := loader.New("python", func(context.Context) (executor.Interpreter, error) {
		return &echoInterpreter{stdout: io.Discard}, nil
	}, quietLogger())

	js, err := jsengine.New(quietLogger())
	require.NoError(t, err)

	registry, err := execution.NewRegistry(8, python, js, 5*time.Second, quietLogger())
	require.NoError(t, err)
	t.Cleanup(registry.Purge)

	tokens, err := auth.NewTokenService("service-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	docSvc := NewDocumentService(newFakeDocRepo(docs...), quietLogger())
	return &playgroundFixture{
		svc:    NewPlaygroundService(registry, docSvc, tokens, []StatusReporter{python}, quietLogger()),
		docs:   docSvc,
		python: python,
		tokens: tokens,
	}
}
