package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/service"
)

// DocumentReader is the read side of the documentation.
// *service.DocumentService implements it.
type DocumentReader interface {
	List(ctx context.Context, limit, offset int) ([]model.Document, int, error)
	Get(ctx context.Context, slug string) (*model.Document, error)
	Page(ctx context.Context, slug string) (*service.Page, error)
}

// DocumentList is the body of GET /api/docs.
type DocumentList struct {
	Documents []model.Document `json:"documents"`
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}

// DocsHandler serves documents as JSON.
type DocsHandler struct {
	docs   DocumentReader
	logger *slog.Logger
}

func NewDocsHandler(docs DocumentReader, logger *slog.Logger) *DocsHandler {
	return &DocsHandler{docs: docs, logger: logger}
}

// HandleList returns a page of documents without their bodies.
//
// HTTP: GET /api/docs?limit=50&offset=0
func (h *DocsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	docs, total, err := h.docs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentList{
		Documents: docs,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

// HandleGet returns one document split into sections.
//
// HTTP: GET /api/docs/{slug...}. Slugs contain slashes, so the route is a
// wildcard.
func (h *DocsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	page, err := h.docs.Page(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// queryInt reads an integer query parameter; a missing or malformed value
// gives def.
func queryInt(r *http.Request, name string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
