package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"versionvibe/cache"
	"versionvibe/core/auth"
	"versionvibe/core/comments"
	"versionvibe/core/realtime"
	"versionvibe/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsCommand is one inbound session message.
type wsCommand struct {
	Type      string  `json:"type"`
	VersionID int64   `json:"versionId,omitempty"`
	Value     float64 `json:"value,omitempty"`
	At        float64 `json:"at,omitempty"`
	CommentID string  `json:"commentId,omitempty"`
	Content   string  `json:"content,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
	ParentID  *string `json:"parentId,omitempty"`
}

// sessionConn is one collaborator's connection into a session: the
// shared player engine plus a private comment view engine fed by the
// project's realtime scope.
type sessionConn struct {
	client   *realtime.Client
	session  *Session
	comments *comments.Engine
	claims   *auth.Claims
}

// ProjectEventsHandler upgrades to a websocket delivering the
// project's comment change events.
func (h *APIHandler) ProjectEventsHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	projectID, err := strconv.ParseInt(mux.Vars(r)["project_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	if !h.requireMembership(w, projectID, claims.UserID) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &realtime.Client{
		Hub:      h.hub,
		Conn:     conn,
		Send:     make(chan []byte, 64),
		Scope:    realtime.ProjectScope(projectID),
		UserID:   claims.UserID,
		Username: claims.Username,
	}
	h.hub.Register(client)

	go client.WritePump()
	// The request context is canceled as soon as this handler returns;
	// the pump must live as long as the socket does.
	go client.ReadPump(context.Background(), nil)
}

// SessionHandler upgrades to a websocket joining a track's live
// review session. Optional v and t query parameters deep-link into a
// version and timestamp, e.g. from a mention notification.
func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
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

	session, err := h.sessions.Join(r.Context(), trackID, projectID, claims.UserID)
	if err != nil {
		logger.Error("failed to join session",
			logger.Int64("track", trackID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to join session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sessions.Leave(trackID)
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &realtime.Client{
		Hub:      h.hub,
		Conn:     conn,
		Send:     make(chan []byte, 64),
		Scope:    realtime.SessionScope(trackID),
		UserID:   claims.UserID,
		Username: claims.Username,
	}
	h.hub.Register(client)

	sc := &sessionConn{
		client:  client,
		session: session,
		claims:  claims,
	}
	sc.comments = comments.NewEngine(comments.Config{
		Store:    &commentStore{h: h},
		PageSize: h.cfg.CommentPageSize,
		Identity: comments.Identity{
			UserID:      claims.UserID,
			DisplayName: claims.DisplayName,
			AvatarURL:   claims.AvatarURL,
		},
		OnCountDelta: func(versionID int64, delta int64) {
			sc.push(realtime.EntityComments, realtime.ActionCount, map[string]int64{
				"versionId": versionID,
				"delta":     delta,
			})
		},
		OnNotice: func(message string) {
			sc.push(realtime.EntityNotice, "error", map[string]string{"message": message})
		},
		OnChange: func() {
			sc.pushThreads()
		},
	})
	bridge := realtime.NewBridge(h.hub, realtime.ProjectScope(projectID), sc.comments)

	presence := cache.NewPresenceCache()
	scope := realtime.SessionScope(trackID)
	if err := presence.UpdateUserPresence(r.Context(), scope, claims.UserID); err != nil {
		logger.Warn("failed to record presence", logger.ErrorField(err))
	}

	// Point the comment view at the session's current version and
	// apply any deep link before the first snapshot.
	if v := r.URL.Query().Get("v"); v != "" {
		if versionID, err := strconv.ParseInt(v, 10, 64); err == nil {
			at := -1.0
			if t := r.URL.Query().Get("t"); t != "" {
				if parsed, err := strconv.ParseFloat(t, 64); err == nil {
					at = parsed
				}
			}
			session.Engine.ApplyDeepLink(versionID, at)
		}
	}
	sc.refreshCommentView(r.Context())
	sc.push(realtime.EntityPlayer, realtime.ActionState, session.Engine.Snapshot())

	go client.WritePump()
	go func() {
		client.ReadPump(context.Background(), func(ctx context.Context, _ *realtime.Client, data []byte) {
			h.handleSessionMessage(ctx, sc, data)
		})
		// Connection is gone.
		bridge.Close()
		if err := presence.RemoveUserPresence(context.Background(), scope, claims.UserID); err != nil {
			logger.Warn("failed to clear presence", logger.ErrorField(err))
		}
		h.sessions.Leave(trackID)
	}()
}

func (h *APIHandler) handleSessionMessage(ctx context.Context, sc *sessionConn, data []byte) {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		logger.Warn("invalid session message", logger.ErrorField(err))
		return
	}

	engine := sc.session.Engine

	switch cmd.Type {
	case "play":
		engine.Play()
	case "pause":
		engine.Pause()
	case "toggle":
		engine.TogglePlay()
	case "seek":
		engine.Seek(cmd.Value)
	case "select":
		engine.SelectVersion(cmd.VersionID)
		sc.refreshCommentView(ctx)
	case "volume":
		engine.SetVolume(cmd.Value)
	case "mute":
		engine.ToggleMute()
	case "deeplink":
		engine.ApplyDeepLink(cmd.VersionID, cmd.At)
		sc.refreshCommentView(ctx)

	case "comments_more":
		if err := sc.comments.LoadMore(ctx); err == nil {
			sc.pushThreads()
		}
		return
	case "comment_add":
		if err := sc.comments.Add(ctx, cmd.Content, cmd.Timestamp, cmd.ParentID); err == nil {
			sc.pushThreads()
		}
		return
	case "comment_update":
		if err := sc.comments.UpdateContent(ctx, cmd.CommentID, cmd.Content); err == nil {
			sc.pushThreads()
		}
		return
	case "comment_delete":
		if err := sc.comments.Remove(ctx, cmd.CommentID); err == nil {
			sc.pushThreads()
		}
		return

	case "ping":
		presence := cache.NewPresenceCache()
		if err := presence.UpdateUserPresence(ctx, sc.client.Scope, sc.claims.UserID); err != nil {
			logger.Warn("failed to refresh presence", logger.ErrorField(err))
		}
		return

	default:
		logger.Warn("unknown session command", logger.String("type", cmd.Type))
		return
	}

	// Transport commands broadcast the new state to every member.
	state, err := json.Marshal(engine.Snapshot())
	if err != nil {
		logger.Error("failed to marshal player state", logger.ErrorField(err))
		return
	}
	event := &realtime.Event{
		Entity:  realtime.EntityPlayer,
		Action:  realtime.ActionState,
		Payload: state,
	}
	if err := h.hub.Publish(sc.client.Scope, event, 0); err != nil {
		logger.Error("failed to publish player state", logger.ErrorField(err))
	}
}

// refreshCommentView repoints the connection's comment engine at the
// player's current version and loads page one.
func (sc *sessionConn) refreshCommentView(ctx context.Context) {
	versionID := sc.session.Engine.CurrentVersion()
	if versionID == 0 || versionID == sc.comments.Version() {
		return
	}
	sc.comments.SetVersion(versionID, sc.session.ProjectID)
	if err := sc.comments.Fetch(ctx); err == nil {
		sc.pushThreads()
	}
}

func (sc *sessionConn) pushThreads() {
	sc.push(realtime.EntityComments, realtime.ActionSnapshot, map[string]interface{}{
		"versionId": sc.comments.Version(),
		"threads":   sc.comments.Threads(),
		"hasMore":   sc.comments.HasMore(),
	})
}

// push sends a personal event to this connection only.
func (sc *sessionConn) push(entity, action string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal push payload", logger.ErrorField(err))
		return
	}
	event := realtime.Event{
		Entity:    entity,
		Action:    action,
		Payload:   data,
		Timestamp: time.Now().UnixMilli(),
	}
	frame, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal push event", logger.ErrorField(err))
		return
	}

	select {
	case sc.client.Send <- frame:
	default:
		// Buffer full; the write pump is stalled and the client will
		// be dropped on the next broadcast anyway.
	}
}
