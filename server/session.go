package server

import (
	"context"
	"fmt"
	"sync"

	"versionvibe/cache"
	"versionvibe/core/player"
	"versionvibe/logger"
	"versionvibe/model"
)

// Session is one track's live review session: a shared player engine
// every connected collaborator drives and observes. The engine owns
// one timeline resource per version so switching versions mid-listen
// is a silent swap.
type Session struct {
	TrackID   int64
	ProjectID int64
	Engine    *player.Engine

	mu      sync.Mutex
	members int
}

// SessionManager creates sessions on first join and tears them down
// when the last member leaves.
type SessionManager struct {
	h        *APIHandler
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewSessionManager creates a session manager.
func NewSessionManager(h *APIHandler) *SessionManager {
	return &SessionManager{
		h:        h,
		sessions: make(map[int64]*Session),
	}
}

// Join returns the track's session, creating it if needed. The first
// joiner hosts: their persisted volume map seeds the engine.
func (m *SessionManager) Join(ctx context.Context, trackID, projectID, hostUserID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[trackID]; ok {
		session.mu.Lock()
		session.members++
		session.mu.Unlock()
		return session, nil
	}

	versions, err := m.h.versionRepo.ListByTrack(trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load versions for session: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("track %d has no versions", trackID)
	}

	engine := player.NewEngine(ctx, cache.NewVolumeCache(hostUserID))
	engine.SetVersions(sessionResources(versions))

	session := &Session{
		TrackID:   trackID,
		ProjectID: projectID,
		Engine:    engine,
		members:   1,
	}
	m.sessions[trackID] = session

	logger.Info("session created",
		logger.Int64("track", trackID),
		logger.Int("versions", len(versions)))
	return session, nil
}

// Leave drops a member; the last one out closes the engine.
func (m *SessionManager) Leave(trackID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[trackID]
	if !ok {
		return
	}

	session.mu.Lock()
	session.members--
	remaining := session.members
	session.mu.Unlock()

	if remaining <= 0 {
		session.Engine.Close()
		delete(m.sessions, trackID)
		logger.Info("session closed", logger.Int64("track", trackID))
	}
}

// Reload refreshes the session's version set, e.g. after an ingest
// confirmation or a version delete.
func (m *SessionManager) Reload(trackID int64) {
	m.mu.Lock()
	session, ok := m.sessions[trackID]
	m.mu.Unlock()
	if !ok {
		return
	}

	versions, err := m.h.versionRepo.ListByTrack(trackID)
	if err != nil {
		logger.Warn("failed to reload session versions",
			logger.Int64("track", trackID),
			logger.ErrorField(err))
		return
	}
	session.Engine.SetVersions(sessionResources(versions))
}

func sessionResources(versions []*model.Version) []player.VersionResource {
	resources := make([]player.VersionResource, 0, len(versions))
	for _, v := range versions {
		resources = append(resources, player.VersionResource{
			ID:       v.ID,
			Resource: player.NewTimelineResource(v.Duration),
		})
	}
	return resources
}
