package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js2py-docs/internal/auth"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/service"
)

// InstanceService is the playground service as the instance API sees it.
// *service.PlaygroundService implements it.
type InstanceService interface {
	Mount(ctx context.Context, req service.MountRequest) (*service.Mounted, error)
	Authorize(tokenInstance, id string) error
	Get(id string) (execution.Snapshot, error)
	SetSource(id, language, text string) (execution.Snapshot, error)
	Run(ctx context.Context, id, language string) (*service.RunOutcome, error)
	Unmount(id string) error
}

// SourceRequest is the body of PUT /api/instances/{id}/source.
type SourceRequest struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// RunRequest is the body of POST /api/instances/{id}/run.
type RunRequest struct {
	Language string `json:"language"`
}

// InstanceHandler exposes UI instances: one per editor widget on a page.
//
// Mounting is open; every other route sits behind auth.RequireInstance and
// additionally checks that the token was issued for the {id} in the URL.
type InstanceHandler struct {
	svc    InstanceService
	logger *slog.Logger
}

func NewInstanceHandler(svc InstanceService, logger *slog.Logger) *InstanceHandler {
	return &InstanceHandler{svc: svc, logger: logger}
}

// HandleMount creates an instance.
//
// HTTP: POST /api/instances
// REQUEST BODY: {"document": "basics/lists", "block": 0}
// or raw sources: {"python": "print(1)", "javascript": "console.log(1)"}
//
// RESPONSE: 201 {"instance": {...}, "token": "...", "block": {...}}
func (h *InstanceHandler) HandleMount(w http.ResponseWriter, r *http.Request) {
	var req service.MountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	mounted, err := h.svc.Mount(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mounted)
}

// HandleGet returns an instance's snapshot.
//
// HTTP: GET /api/instances/{id}
func (h *InstanceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	snap, err := h.svc.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleSetSource replaces the Python or JavaScript source.
//
// HTTP: PUT /api/instances/{id}/source
func (h *InstanceHandler) HandleSetSource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req SourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.svc.SetSource(id, req.Language, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleRun runs one of the instance's sources and answers with the new
// state. A run already in progress makes this one "ignored"; an empty
// source makes it "skipped".
//
// HTTP: POST /api/instances/{id}/run
func (h *InstanceHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.svc.Run(r.Context(), id, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUnmount removes an instance.
//
// HTTP: DELETE /api/instances/{id}
func (h *InstanceHandler) HandleUnmount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r)
	if !ok {
		return
	}

	if err := h.svc.Unmount(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorized reads {id} and checks it against the token's instance. On
// failure the error response is already written.
func (h *InstanceHandler) authorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	tokenInstance, _ := auth.InstanceIDFromContext(r.Context())

	if err := h.svc.Authorize(tokenInstance, id); err != nil {
		h.logger.Warn("instance token mismatch",
			slog.String("instance", id),
			slog.String("token_instance", tokenInstance),
		)
		writeError(w, err)
		return "", false
	}
	return id, true
}
