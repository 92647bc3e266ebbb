package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"versionvibe/config"
	"versionvibe/core/auth"
	"versionvibe/core/realtime"
	"versionvibe/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memberProjectRepo struct{}

func (memberProjectRepo) GetByID(id int64) (*model.Project, error) {
	return &model.Project{ID: id, OwnerID: 7, Name: "demo"}, nil
}

func (memberProjectRepo) IsMember(projectID, userID int64) (bool, error) {
	return true, nil
}

func (memberProjectRepo) ProjectIDForTrack(trackID int64) (int64, error) {
	return 1, nil
}

func (memberProjectRepo) ProjectIDForVersion(versionID int64) (int64, error) {
	return 1, nil
}

func waitForClients(t *testing.T, hub *realtime.Hub, scope string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ScopeClientCount(scope) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("scope %s: expected %d clients, have %d", scope, want, hub.ScopeClientCount(scope))
}

// The HTTP request context is canceled the moment the handler returns,
// long before the websocket closes. The event feed must stay registered
// and keep delivering for the lifetime of the socket.
func TestProjectEventsFeedOutlivesHandlerReturn(t *testing.T) {
	hub := realtime.NewHub()
	go hub.Run()
	defer hub.Stop()

	h := NewAPIHandler(nil, nil, memberProjectRepo{}, nil, hub, &config.Config{})

	router := mux.NewRouter()
	router.HandleFunc("/api/ws/projects/{project_id}", func(w http.ResponseWriter, r *http.Request) {
		claims := &auth.Claims{UserID: 7, Username: "robin"}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		h.ProjectEventsHandler(w, r.WithContext(ctx))
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/projects/1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	scope := realtime.ProjectScope(1)
	waitForClients(t, hub, scope, 1)

	// The handler returned as soon as the upgrade finished. Give its
	// context cancellation time to propagate, then make sure the feed
	// did not tear itself down.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, hub.ScopeClientCount(scope))

	payload, err := json.Marshal(&model.Comment{ID: "c-1", VersionID: 3, ProjectID: 1})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(scope, &realtime.Event{
		Entity:  realtime.EntityComments,
		Action:  realtime.ActionInsert,
		Payload: payload,
	}, 0))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(frame), realtime.EntityComments)
}
