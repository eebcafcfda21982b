package handler

import (
	"net/http"

	"github.com/sakif/js2py-docs/internal/loader"
)

// RuntimeReporter reports the shared runtime loaders.
// *service.PlaygroundService implements it.
type RuntimeReporter interface {
	Runtimes() []loader.Status
}

// RuntimeHandler exposes the loaders' readiness.
type RuntimeHandler struct {
	runtimes RuntimeReporter
}

func NewRuntimeHandler(runtimes RuntimeReporter) *RuntimeHandler {
	return &RuntimeHandler{runtimes: runtimes}
}

// HandleStatus returns every loader's state, attempt count and last error.
//
// HTTP: GET /api/runtime
func (h *RuntimeHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runtimes": h.runtimes.Runtimes()})
}
