package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippetvault/internal/apperror"
	"github.com/sakif/snippetvault/internal/auth"
	"github.com/sakif/snippetvault/internal/model"
)

// VersionService is what VersionHandler needs from the service layer.
type VersionService interface {
	CreateVersion(ctx context.Context, snippetID, authorID, changeDescription string) (*model.Version, error)
	GetVersionHistory(ctx context.Context, snippetID string) ([]model.Version, error)
	GetVersion(ctx context.Context, versionID string) (*model.Version, error)
	GetVersionByNumber(ctx context.Context, snippetID string, number int) (*model.Version, error)
	RestoreVersion(ctx context.Context, snippetID, versionID, authorID string) (bool, error)
	CompareVersions(ctx context.Context, fromID, toID string) (*model.VersionComparison, error)
}

// VersionHandler exposes a snippet's history over HTTP.
type VersionHandler struct {
	versions VersionService
	logger   *slog.Logger
}

func NewVersionHandler(versions VersionService, logger *slog.Logger) *VersionHandler {
	return &VersionHandler{versions: versions, logger: logger}
}

// HandleHistory lists every version of a snippet, newest first.
//
// HTTP: GET /api/snippets/{id}/versions
func (h *VersionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.GetVersionHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// HandleCreate snapshots the snippet's current state.
//
// HTTP: POST /api/snippets/{id}/versions
// REQUEST BODY (optional): {"changeDescription": "before refactor"}
func (h *VersionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChangeDescription string `json:"changeDescription"`
	}
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	authorID, _ := auth.UserIDFromContext(r.Context())
	v, err := h.versions.CreateVersion(r.Context(), chi.URLParam(r, "id"), authorID, req.ChangeDescription)
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// HTTP: GET /api/snippets/{id}/versions/number/{number}
func (h *VersionHandler) HandleGetByNumber(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeError(w, apperror.ValidationFailed("number", "version number must be a positive integer"))
		return
	}

	v, err := h.versions.GetVersionByNumber(r.Context(), chi.URLParam(r, "id"), number)
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HTTP: GET /api/versions/{versionID}
func (h *VersionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.GetVersion(r.Context(), chi.URLParam(r, "versionID"))
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleRestore rolls the snippet back to an earlier version. The history
// keeps growing: a backup of the current state and the restored state are
// both appended.
//
// HTTP: POST /api/snippets/{id}/versions/{versionID}/restore
// RESPONSE: 200 {"restored": true}, or 404 when the version isn't one of
// this snippet's.
func (h *VersionHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	snippetID := chi.URLParam(r, "id")
	versionID := chi.URLParam(r, "versionID")
	authorID, _ := auth.UserIDFromContext(r.Context())

	restored, err := h.versions.RestoreVersion(r.Context(), snippetID, versionID, authorID)
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	if !restored {
		writeError(w, apperror.NotFound("version", versionID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"restored": true})
}

// HandleCompare diffs two versions of the same snippet.
//
// HTTP: GET /api/versions/compare?from={versionID}&to={versionID}
func (h *VersionHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, apperror.ValidationFailed("from", "both from and to version IDs are required"))
		return
	}

	cmp, err := h.versions.CompareVersions(r.Context(), from, to)
	if err != nil {
		failWith(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}
