// Package handler contains HTTP request handlers for the documentation site.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc: a function with the right signature
// that automatically satisfies the Handler interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, headers)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers should NOT contain business logic. They are the glue between HTTP
// and the services.
package handler

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/service"
	"github.com/sakif/js2py-docs/internal/theme"
)

//go:embed templates/*.html
var templateFS embed.FS

// PlaygroundHandler renders the documentation pages with their playgrounds.
// Templates are parsed once at startup.
type PlaygroundHandler struct {
	index   *template.Template
	doc     *template.Template
	docs    DocumentReader
	setting theme.Setting
	source  theme.Source
	logger  *slog.Logger
}

// NewPlaygroundHandler parses the embedded templates.
//
// TEMPLATE COMPOSITION:
// base.html defines the page frame with a {{template "content" .}}
// placeholder; index.html and doc.html each define "content". Because both
// define the same name they are parsed into separate template sets.
func NewPlaygroundHandler(docs DocumentReader, setting theme.Setting, source theme.Source, logger *slog.Logger) (*PlaygroundHandler, error) {
	index, err := template.ParseFS(templateFS, "templates/base.html", "templates/index.html")
	if err != nil {
		return nil, err
	}
	doc, err := template.ParseFS(templateFS, "templates/base.html", "templates/doc.html")
	if err != nil {
		return nil, err
	}

	return &PlaygroundHandler{
		index:   index,
		doc:     doc,
		docs:    docs,
		setting: setting,
		source:  source,
		logger:  logger,
	}, nil
}

// HandleIndex lists every document.
//
// HTTP: GET /
func (h *PlaygroundHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	docs, _, err := h.docs.List(r.Context(), service.MaxListLimit, 0)
	if err != nil {
		h.logger.Error("failed to list documents", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.render(w, h.index, http.StatusOK, map[string]any{
		"Title":     "Documentation",
		"Theme":     h.mode(),
		"Documents": docs,
	})
}

// HandleDoc renders one document. Playground blocks become editor widgets
// that mount an instance each through the JSON API.
//
// HTTP: GET /docs/{slug...}
func (h *PlaygroundHandler) HandleDoc(w http.ResponseWriter, r *http.Request) {
	page, err := h.docs.Page(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrValidation):
			http.NotFound(w, r)
		default:
			h.logger.Error("failed to load document", slog.String("error", err.Error()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	mode := h.mode()
	h.render(w, h.doc, http.StatusOK, map[string]any{
		"Title":       page.Document.Title,
		"Theme":       mode,
		"EditorTheme": mode.EditorTheme(),
		"Page":        page,
	})
}

func (h *PlaygroundHandler) mode() theme.Mode {
	return theme.Current(h.setting, h.source)
}

func (h *PlaygroundHandler) render(w http.ResponseWriter, t *template.Template, status int, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		// The status line is already sent; all we can do is log.
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
	}
}

var _ DocumentReader = (*service.DocumentService)(nil)
