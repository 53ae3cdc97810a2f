package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ragweb/ragweb/internal/knowledge"
	"github.com/ragweb/ragweb/internal/rag"
)

// createdAtFormat is the timestamp layout used in document listings.
const createdAtFormat = "2006-01-02 15:04:05"

// QAService is the slice of the answering system the handlers need.
type QAService interface {
	AddDocument(ctx context.Context, title, content string, metadata map[string]string) (int64, error)
	ListDocuments(ctx context.Context) ([]knowledge.Result, error)
	DeleteDocument(ctx context.Context, id int64) (bool, error)
	Ask(ctx context.Context, question string) (rag.Answer, error)
}

// documentHandler serves the document CRUD endpoints.
type documentHandler struct {
	service QAService
	logger  *slog.Logger
}

// documentView is the wire shape of a document. Embeddings are internal
// and never leave the API.
type documentView struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt string            `json:"created_at"`
}

// list handles GET /api/documents.
func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("listing documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	docs := make([]documentView, 0, len(results))
	for _, res := range results {
		metadata := res.Document.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		docs = append(docs, documentView{
			ID:        res.Document.ID,
			Title:     res.Document.Title,
			Content:   res.Document.Content,
			Metadata:  metadata,
			CreatedAt: res.Document.CreatedAt.Format(createdAtFormat),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
	})
}

// addDocumentRequest is the POST /api/documents body.
type addDocumentRequest struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// add handles POST /api/documents.
func (h *documentHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.service.AddDocument(r.Context(), req.Title, req.Content, req.Metadata)
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyTitle) || errors.Is(err, knowledge.ErrEmptyContent) {
			writeError(w, http.StatusBadRequest, "title and content are required")
			return
		}
		h.logger.Error("adding document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add document")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"document_id": id,
		"message":     "document added successfully",
	})
}

// delete handles DELETE /api/documents/{id}.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	deleted, err := h.service.DeleteDocument(r.Context(), id)
	if err != nil {
		h.logger.Error("deleting document", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "document deleted successfully",
	})
}
