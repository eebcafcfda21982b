package handler

// RESPONSE HELPERS:
// Every JSON endpoint (documents, instances, one-shot execution, runtime
// status) answers through writeJSON and writeError, so the browser script in
// doc.html only ever has two shapes to handle:
//
//	success: whatever the endpoint documents
//	failure: {"error": "not_found", "message": "...", "field": "..."}
//
// The page routes (/, /docs/*) render HTML instead and map errors themselves.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/js2py-docs/internal/apperror"
)

// maxBodyBytes bounds every JSON request body. Sources are capped well below
// this by the service layer.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // shown to the reader as is
	Field   string `json:"field,omitempty"` // set for validation errors
}

// errorKinds maps the apperror sentinels to HTTP. Order matters only in that
// the first match wins; the sentinels are disjoint in practice.
//
// The two 503 kinds differ for the client: "initialization_failed" means a
// runtime load failed and the next request retries it, "unavailable" means
// the server is shutting down or out of capacity.
var errorKinds = []struct {
	target error
	status int
	kind   string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrInitialization, http.StatusServiceUnavailable, "initialization_failed"},
	{apperror.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// writeJSON sends data as JSON. Headers and status go out before the body;
// once Encode writes, the status can no longer change, so an encoding
// failure is only logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError translates a service error into a status and an ErrorResponse.
//
// errors.As finds the *AppError anywhere in the chain for its message, and
// errors.Is finds the sentinel it wraps for the status:
//
//	service returns: fmt.Errorf("running %s: %w", id, apperror.InitializationFailed("python", cause))
//	errors.As:       -> *AppError{Message: "python failed to initialize: ..."}
//	errors.Is:       -> ErrInitialization -> 503 "initialization_failed"
//
// Anything that is not an AppError is a bug or an infrastructure failure.
// The client gets a generic 500 and the detail goes to the log only, since
// it may carry file paths or SQL.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, kind := http.StatusInternalServerError, "internal_error"
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			status, kind = k.status, k.kind
			break
		}
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON request body into v. A malformed or oversized body
// is reported as a validation error so writeError answers 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	return nil
}
