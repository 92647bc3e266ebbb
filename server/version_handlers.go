package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"versionvibe/logger"
	"versionvibe/storage"

	"github.com/gorilla/mux"
)

// versionResponse decorates a version with its resolved playable URL.
type versionResponse struct {
	ID            int64   `json:"id"`
	TrackID       int64   `json:"trackId"`
	VersionNumber int     `json:"versionNumber"`
	Name          string  `json:"name"`
	Duration      float64 `json:"duration"`
	CommentCount  int64   `json:"commentCount"`
	CreatedAt     string  `json:"createdAt"`
	PlayableURL   string  `json:"playableUrl"`
}

// ListVersionsHandler returns a track's versions with playable URLs.
func (h *APIHandler) ListVersionsHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	trackID, err := strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	projectID, err := h.projectRepo.ProjectIDForTrack(trackID)
	if err != nil {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}
	if !h.requireMembership(w, projectID, claims.UserID) {
		return
	}

	versions, err := h.versionRepo.ListByTrack(trackID)
	if err != nil {
		logger.Error("failed to list versions",
			logger.Int64("track", trackID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list versions")
		return
	}

	out := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionResponse{
			ID:            v.ID,
			TrackID:       v.TrackID,
			VersionNumber: v.VersionNumber,
			Name:          v.Name,
			Duration:      v.Duration,
			CommentCount:  v.CommentCount,
			CreatedAt:     v.CreatedAt.Format(time.RFC3339),
			PlayableURL:   storage.PlayableURL(h.cfg, v.StoragePath),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": out})
}

// RenameVersionHandler updates a version's display name, the only
// mutable field besides its comment count.
func (h *APIHandler) RenameVersionHandler(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.versionRepo.Rename(versionID, req.Name); err != nil {
		logger.Error("failed to rename version",
			logger.Int64("version", versionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to rename version")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// DeleteVersionHandler removes a version: its audio object, then its
// row. Versions delete independently of their siblings.
func (h *APIHandler) DeleteVersionHandler(w http.ResponseWriter, r *http.Request) {
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

	version, err := h.versionRepo.GetByID(versionID)
	if err != nil || version == nil {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}

	if err := storage.DeleteAudio(r.Context(), h.cfg, version.StoragePath); err != nil {
		logger.Error("failed to delete audio object",
			logger.Int64("version", versionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to delete audio")
		return
	}

	if err := h.versionRepo.Delete(versionID); err != nil {
		logger.Error("failed to delete version",
			logger.Int64("version", versionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to delete version")
		return
	}

	h.sessions.Reload(version.TrackID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ResolveVersionURLHandler issues a short-lived presigned link for a
// version, used when the bucket is private.
func (h *APIHandler) ResolveVersionURLHandler(w http.ResponseWriter, r *http.Request) {
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

	version, err := h.versionRepo.GetByID(versionID)
	if err != nil || version == nil {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}

	url, err := storage.PresignedURL(r.Context(), h.cfg, version.StoragePath, 15*time.Minute)
	if err != nil {
		logger.Error("failed to presign version url",
			logger.Int64("version", versionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve url")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
