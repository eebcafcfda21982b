package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/editor"
)

// BundleSource hands out the editor bundle, loading it on first use.
// *loader.Loader[*editor.Bundle] implements it.
type BundleSource interface {
	Get(ctx context.Context) (*editor.Bundle, error)
}

// EditorHandler serves the editor widget's files from the shared bundle.
type EditorHandler struct {
	bundles BundleSource
}

func NewEditorHandler(bundles BundleSource) *EditorHandler {
	return &EditorHandler{bundles: bundles}
}

// HandleFile serves one bundle file.
//
// HTTP: GET /editor/{name...}
//
// CONDITIONAL REQUESTS:
// Every file carries a content-hash ETag. A browser that already has the
// file sends it back in If-None-Match and gets 304 Not Modified with no body.
func (h *EditorHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.bundles.Get(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, apperror.Unavailable("editor bundle"))
			return
		}
		writeError(w, apperror.InitializationFailed("editor bundle", err))
		return
	}

	name := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	f, ok := bundle.Lookup(name)
	if !ok {
		writeError(w, apperror.NotFound("editor file", name))
		return
	}

	w.Header().Set("ETag", f.ETag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, f.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(f.Body)
	}
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
