package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"versionvibe/config"
	"versionvibe/core/auth"
	"versionvibe/core/realtime"
	"versionvibe/logger"
	"versionvibe/repository"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// APIHandler handles all API requests.
type APIHandler struct {
	commentRepo repository.CommentRepository
	versionRepo repository.VersionRepository
	projectRepo repository.ProjectRepository
	userRepo    repository.UserRepository
	hub         *realtime.Hub
	sessions    *SessionManager
	cfg         *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	commentRepo repository.CommentRepository,
	versionRepo repository.VersionRepository,
	projectRepo repository.ProjectRepository,
	userRepo repository.UserRepository,
	hub *realtime.Hub,
	cfg *config.Config,
) *APIHandler {
	h := &APIHandler{
		commentRepo: commentRepo,
		versionRepo: versionRepo,
		projectRepo: projectRepo,
		userRepo:    userRepo,
		hub:         hub,
		cfg:         cfg,
	}
	h.sessions = NewSessionManager(h)
	return h
}

// AuthMiddleware validates the bearer token and stashes the claims in
// the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
		if err != nil {
			logger.Warn("token rejected", logger.ErrorField(err))
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// bearerToken extracts the token from the Authorization header, or
// from the token query parameter for websocket upgrades where custom
// headers are awkward.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims
}

// requireMembership checks the acting user belongs to the project.
func (h *APIHandler) requireMembership(w http.ResponseWriter, projectID, userID int64) bool {
	ok, err := h.projectRepo.IsMember(projectID, userID)
	if err != nil {
		logger.Error("membership check failed",
			logger.Int64("project", projectID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "membership check failed")
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a project member")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("failed to encode response", logger.ErrorField(err))
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
