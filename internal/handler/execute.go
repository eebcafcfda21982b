package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/model"
)

// Executor runs a snippet once. *service.PlaygroundService implements it.
type Executor interface {
	Execute(ctx context.Context, language, code string) (*model.ExecutionResult, execution.RunStatus, error)
}

// ExecuteRequest is the body of POST /api/execute.
type ExecuteRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ExecuteResponse carries the run status and, unless the code was empty,
// the result. Failed snippets are still 200: the failure is in the result.
type ExecuteResponse struct {
	Status execution.RunStatus    `json:"status"`
	Result *model.ExecutionResult `json:"result"`
}

// ExecuteHandler handles stateless one-shot runs.
type ExecuteHandler struct {
	exec   Executor
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(exec Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleExecute runs the posted code on the runtime of its language.
//
// HTTP: POST /api/execute
// REQUEST BODY: {"language": "python", "code": "print('hi')"}
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	result, status, err := h.exec.Execute(r.Context(), req.Language, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExecuteResponse{Status: status, Result: result})
}
