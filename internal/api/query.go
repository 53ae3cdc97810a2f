package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ragweb/ragweb/internal/rag"
)

// queryHandler serves the question answering endpoint.
type queryHandler struct {
	service QAService
	logger  *slog.Logger
}

// queryRequest is the POST /api/query body.
type queryRequest struct {
	Question string `json:"question"`
}

// ask handles POST /api/query.
func (h *queryHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.service.Ask(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}
		h.logger.Error("answering question", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to answer question")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"answer":    answer.Text,
		"question":  req.Question,
		"sources":   answer.Sources,
		"timestamp": answer.Timestamp.Format(time.RFC3339),
	})
}
