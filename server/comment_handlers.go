package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"versionvibe/logger"
	"versionvibe/model"

	"github.com/gorilla/mux"
)

// CreateCommentRequest is the payload for posting a comment.
type CreateCommentRequest struct {
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
	ParentID  *string `json:"parentId,omitempty"`
}

// UpdateCommentRequest is the payload for editing a comment.
type UpdateCommentRequest struct {
	Content string `json:"content"`
}

// ListCommentsHandler returns one page of a version's comments, root
// threads newest first with their replies.
func (h *APIHandler) ListCommentsHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	versionID, err := strconv.ParseInt(mux.Vars(r)["version_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}

	projectID, err := h.projectRepo.ProjectIDForVersion(versionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	if !h.requireMembership(w, projectID, claims.UserID) {
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}

	items, total, err := h.commentRepo.ListByVersion(versionID, projectID, page, h.cfg.CommentPageSize)
	if err != nil {
		logger.Error("failed to list comments",
			logger.Int64("version", versionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":      items,
		"totalCount": total,
		"page":       page,
		"pageSize":   h.cfg.CommentPageSize,
	})
}

// CreateCommentHandler posts a comment on a version.
func (h *APIHandler) CreateCommentHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	versionID, err := strconv.ParseInt(mux.Vars(r)["version_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}

	projectID, err := h.projectRepo.ProjectIDForVersion(versionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	if !h.requireMembership(w, projectID, claims.UserID) {
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store := &commentStore{h: h}
	created, err := store.Create(r.Context(), &model.Comment{
		VersionID:    versionID,
		ProjectID:    projectID,
		AuthorID:     claims.UserID,
		ParentID:     req.ParentID,
		Content:      req.Content,
		Timestamp:    req.Timestamp,
		AuthorName:   claims.DisplayName,
		AuthorAvatar: claims.AvatarURL,
	})
	if err != nil {
		logger.Error("failed to create comment",
			logger.Int64("version", versionID),
			logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "failed to create comment")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateCommentHandler edits a comment's text. Only the author may
// edit.
func (h *APIHandler) UpdateCommentHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	commentID := mux.Vars(r)["comment_id"]

	existing, err := h.commentRepo.GetByID(commentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load comment")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}
	if existing.AuthorID != claims.UserID {
		writeError(w, http.StatusForbidden, "not the comment author")
		return
	}

	var req UpdateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store := &commentStore{h: h}
	if err := store.Update(r.Context(), commentID, req.Content); err != nil {
		logger.Error("failed to update comment",
			logger.String("comment", commentID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to update comment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteCommentHandler removes a comment and its replies. Only the
// author may delete.
func (h *APIHandler) DeleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	commentID := mux.Vars(r)["comment_id"]

	existing, err := h.commentRepo.GetByID(commentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load comment")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}
	if existing.AuthorID != claims.UserID {
		writeError(w, http.StatusForbidden, "not the comment author")
		return
	}

	store := &commentStore{h: h}
	if err := store.Delete(r.Context(), commentID); err != nil {
		logger.Error("failed to delete comment",
			logger.String("comment", commentID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
