// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It connects the shared runtimes,
// services, handlers, middleware and routes, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB                     → DocumentService → DocsHandler, PlaygroundHandler
//	  Loader[Interpreter] (python)  ┐
//	  Loader[*Bundle] (editor)      ├→ Registry → PlaygroundService → InstanceHandler, ...
//	  jsengine.Engine               ┘
//
// This is the "composition root" pattern: every dependency is built in one
// place, and nothing below this package reaches for globals.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/js2py-docs/internal/assets"
	"github.com/sakif/js2py-docs/internal/auth"
	"github.com/sakif/js2py-docs/internal/config"
	"github.com/sakif/js2py-docs/internal/content"
	"github.com/sakif/js2py-docs/internal/editor"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/executor/docker"
	"github.com/sakif/js2py-docs/internal/executor/jsengine"
	"github.com/sakif/js2py-docs/internal/executor/wasm"
	"github.com/sakif/js2py-docs/internal/handler"
	"github.com/sakif/js2py-docs/internal/loader"
	"github.com/sakif/js2py-docs/internal/middleware"
	sqliteRepo "github.com/sakif/js2py-docs/internal/repository/sqlite"
	"github.com/sakif/js2py-docs/internal/service"
	"github.com/sakif/js2py-docs/internal/theme"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database, the two shared runtime loaders and the
// instance registry. Shutdown releases them in reverse order of use.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	python   *loader.Loader[executor.Interpreter]
	editor   *loader.Loader[*editor.Bundle]
	registry *execution.Registry
	hub      *handler.Hub
	theme    theme.Source
	docs     *service.DocumentService
}

// New creates a Server from cfg. Nothing heavy happens here: the runtimes
// load on Start (with Preload) or on the first mounted instance.
//
// IMPORT ALIAS:
// repository/sqlite is imported as `sqliteRepo` to keep it apart from the
// modernc.org/sqlite driver.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		hub:    handler.NewHub(),
	}

	if err := s.setup(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup() error {
	cfg := s.config

	pythonFactory, err := NewPythonFactory(cfg.Python, cfg.S3, s.logger.With(slog.String("runtime", "python")))
	if err != nil {
		return fmt.Errorf("configuring python runtime: %w", err)
	}
	s.python = loader.New("python", pythonFactory,
		s.logger.With(slog.String("loader", "python")),
		loader.WithFailureHook(s.broadcastFailure("python")),
		loader.WithLoadTimeout(cfg.Python.LoadTimeout),
	)

	editorStore, err := assets.Open(cfg.Editor.AssetBase, cfg.S3)
	if err != nil {
		return fmt.Errorf("configuring editor assets: %w", err)
	}
	s.editor = loader.New("editor", editor.Factory(editorStore, cfg.Editor.Files),
		s.logger.With(slog.String("loader", "editor")),
		loader.WithFailureHook(s.broadcastFailure("editor")),
	)

	js, err := jsengine.New(s.logger.With(slog.String("runtime", "javascript")))
	if err != nil {
		return fmt.Errorf("creating script engine: %w", err)
	}

	s.registry, err = execution.NewRegistry(cfg.MaxInstances, s.python, js, cfg.RunTimeout, s.logger)
	if err != nil {
		return err
	}

	secret := cfg.TokenSecret
	if secret == "" {
		secret = randomSecret()
		s.logger.Warn("TOKEN_SECRET not set: using a random secret, instance tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenService(secret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	if cfg.Theme.File != "" {
		s.theme = theme.NewFileSource(cfg.Theme.File, cfg.Theme.Poll, s.logger)
	} else {
		s.theme = theme.NewStaticSource(cfg.Theme.StaticAttr)
	}

	s.docs = service.NewDocumentService(s.db, s.logger)
	playground := service.NewPlaygroundService(s.registry, s.docs, tokens,
		[]service.StatusReporter{s.python, s.editor}, s.logger)

	return s.setupRoutes(tokens, playground)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                              → document index (HTML)
// GET    /docs/*                        → document page with playgrounds (HTML)
// GET    /editor/*                      → editor bundle files
// GET    /ws?instance=&token=           → event stream (token required)
// GET    /api/docs                      → list documents (JSON)
// GET    /api/docs/*                    → one document, split into sections
// GET    /api/runtime                   → loader statuses
// POST   /api/execute                   → one-shot run
// POST   /api/instances                 → mount an instance, returns a token
// GET    /api/instances/{id}            → snapshot          (token required)
// PUT    /api/instances/{id}/source     → edit a source     (token required)
// POST   /api/instances/{id}/run        → run a source      (token required)
// DELETE /api/instances/{id}            → unmount           (token required)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (logged by Logger)
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes(tokens *auth.TokenService, playground *service.PlaygroundService) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	pages, err := handler.NewPlaygroundHandler(s.docs, s.config.Theme.Setting, s.theme, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	docsHandler := handler.NewDocsHandler(s.docs, s.logger)
	instanceHandler := handler.NewInstanceHandler(playground, s.logger)
	executeHandler := handler.NewExecuteHandler(playground, s.logger)
	runtimeHandler := handler.NewRuntimeHandler(playground)
	editorHandler := handler.NewEditorHandler(s.editor)
	wsHandler := handler.NewWSHandler(playground, s.python, s.editor, s.hub,
		s.config.Theme.Setting, s.theme, s.logger)

	requireInstance := auth.RequireInstance(tokens)

	s.router.Get("/", pages.HandleIndex)
	s.router.Get("/docs/*", pages.HandleDoc)
	s.router.Get("/editor/*", editorHandler.HandleFile)
	s.router.With(requireInstance).Get("/ws", wsHandler.HandleWS)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/docs", docsHandler.HandleList)
		r.Get("/docs/*", docsHandler.HandleGet)
		r.Get("/runtime", runtimeHandler.HandleStatus)
		r.Post("/execute", executeHandler.HandleExecute)
		r.Post("/instances", instanceHandler.HandleMount)

		r.Group(func(r chi.Router) {
			r.Use(requireInstance)
			r.Get("/instances/{id}", instanceHandler.HandleGet)
			r.Put("/instances/{id}/source", instanceHandler.HandleSetSource)
			r.Post("/instances/{id}/run", instanceHandler.HandleRun)
			r.Delete("/instances/{id}", instanceHandler.HandleUnmount)
		})
	})

	return nil
}

// Handler returns the router. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ImportContent loads the content directory into the document store. A
// missing directory is not an error: the site simply has no pages.
func (s *Server) ImportContent(ctx context.Context) (int, error) {
	dir := s.config.ContentDir
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("content directory not found", slog.String("dir", dir))
		return 0, nil
	}
	return content.NewImporter(s.db, s.logger).Import(ctx, os.DirFS(dir))
}

// Preload starts both runtime loads concurrently and waits for them. The
// two loaders are independent: one failing leaves the other loading.
func (s *Server) Preload(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := s.python.Get(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.editor.Get(ctx)
		return err
	})
	return g.Wait()
}

// Start imports the content, starts the HTTP server and blocks until
// SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := s.ImportContent(ctx); err != nil {
		s.Close(context.Background())
		return fmt.Errorf("importing content: %w", err)
	}

	if s.config.Preload {
		go func() {
			start := time.Now()
			if err := s.Preload(ctx); err != nil {
				// Each loader already logged its failure; the next request retries.
				s.logger.Warn("runtime preload incomplete", slog.String("error", err.Error()))
				return
			}
			s.logger.Info("runtimes ready", slog.Duration("elapsed", time.Since(start)))
		}()
	}

	// A run may wait for the interpreter to load, so responses can take up
	// to the run timeout.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("python_backend", s.config.Python.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.Close(context.Background())
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Close(shutdownCtx)
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := s.Close(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Close unmounts every instance, tears down the runtimes and closes the
// database.
func (s *Server) Close(ctx context.Context) error {
	s.registry.Purge()

	errs := []error{
		s.python.Shutdown(func(in executor.Interpreter) error { return in.Close(ctx) }),
		s.editor.Shutdown(nil),
		s.db.Close(),
	}
	return errors.Join(errs...)
}

// broadcastFailure pushes a failed load attempt to every open page.
func (s *Server) broadcastFailure(runtime string) func(error) {
	return func(err error) {
		s.hub.Broadcast(handler.Event{
			Type:    handler.EventRuntimeFailed,
			Runtime: runtime,
			Error:   err.Error(),
		})
	}
}

// NewPythonFactory returns the loader factory for the configured backend.
// cmd/snippet builds its interpreter with it too.
func NewPythonFactory(cfg config.PythonConfig, s3 assets.S3Config, logger *slog.Logger) (loader.Factory[executor.Interpreter], error) {
	switch cfg.Backend {
	case config.BackendDocker:
		dcfg := docker.Config{
			Image:       cfg.DockerImage,
			MemoryLimit: cfg.DockerMemory,
			CPULimit:    cfg.DockerCPU,
			PoolSize:    cfg.DockerPool,
			PullTimeout: cfg.DockerTimeout,
		}
		return func(ctx context.Context) (executor.Interpreter, error) {
			in, err := docker.New(ctx, dcfg, logger)
			if err != nil {
				return nil, err
			}
			return in, nil
		}, nil

	default:
		store, err := assets.Open(cfg.AssetBase, s3)
		if err != nil {
			return nil, err
		}
		wcfg := wasm.Config{
			MemoryLimitPages: cfg.MemoryLimitPages,
			CacheDir:         cfg.CacheDir,
			StdlibDir:        cfg.StdlibDir,
			StartTimeout:     cfg.StartTimeout,
		}
		return func(ctx context.Context) (executor.Interpreter, error) {
			module, err := store.Fetch(ctx, cfg.WasmFile)
			if err != nil {
				return nil, fmt.Errorf("fetching %s from %s: %w", cfg.WasmFile, store.Location(), err)
			}
			in, err := wasm.Start(ctx, module, wcfg, logger)
			if err != nil {
				return nil, err
			}
			return in, nil
		}, nil
	}
}

// randomSecret returns 32 random bytes, hex encoded.
func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("server: reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}
