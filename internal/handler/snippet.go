package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippetvault/internal/auth"
	"github.com/sakif/snippetvault/internal/model"
)

// SnippetService is what SnippetHandler needs from the service layer.
type SnippetService interface {
	Create(ctx context.Context, title, code, description, language, ownerID string) (*model.Snippet, error)
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, limit, offset int) ([]model.Snippet, error)
	Update(ctx context.Context, id, title, code, description, language, callerID, changeDescription string) (*model.Snippet, error)
	Delete(ctx context.Context, id, callerID string) error
}

// SnippetHandler serves snippet CRUD. It only parses HTTP and formats
// responses; validation and ownership live in the service.
type SnippetHandler struct {
	snippets SnippetService
	logger   *slog.Logger
}

func NewSnippetHandler(snippets SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, logger: logger}
}

type snippetRequest struct {
	Title             string `json:"title"`
	Code              string `json:"code"`
	Description       string `json:"description"`
	Language          string `json:"language"`
	ChangeDescription string `json:"changeDescription"` // update only
}

// HandleList returns a page of snippets, newest first.
//
// HTTP: GET /api/snippets?limit=20&offset=0
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	snippets, err := h.snippets.List(r.Context(), limit, offset)
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleCreate stores a new snippet owned by the caller (if any).
//
// HTTP: POST /api/snippets
// REQUEST BODY: {"title": "hello", "code": "print('hi')", "language": "python"}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ownerID, _ := auth.UserIDFromContext(r.Context())
	snippet, err := h.snippets.Create(r.Context(), req.Title, req.Code, req.Description, req.Language, ownerID)
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleUpdate replaces the snippet's content and records a new version.
//
// HTTP: PUT /api/snippets/{id}
// REQUEST BODY: {"title": "...", "code": "...", "changeDescription": "fix typo"}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	callerID, _ := auth.UserIDFromContext(r.Context())
	snippet, err := h.snippets.Update(r.Context(), chi.URLParam(r, "id"),
		req.Title, req.Code, req.Description, req.Language, callerID, req.ChangeDescription)
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes the snippet and its history.
//
// HTTP: DELETE /api/snippets/{id} → 204 No Content
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	callerID, _ := auth.UserIDFromContext(r.Context())
	if err := h.snippets.Delete(r.Context(), chi.URLParam(r, "id"), callerID); err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
