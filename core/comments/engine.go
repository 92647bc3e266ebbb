package comments

import (
	"context"
	"strings"
	"sync"
	"time"

	"versionvibe/logger"
	"versionvibe/model"

	"github.com/google/uuid"
)

// tempIDPrefix namespaces locally generated placeholder identifiers
// so they can never collide with server-confirmed ones.
const tempIDPrefix = "temp-"

// NewTempID generates a placeholder comment identifier.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether an identifier is a local placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// Store is the comment persistence contract the engine writes
// through. Create returns the server-confirmed record.
type Store interface {
	List(ctx context.Context, versionID, projectID int64, page, pageSize int) ([]*model.Comment, int64, error)
	Create(ctx context.Context, comment *model.Comment) (*model.Comment, error)
	Update(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
}

// Identity is the acting user whose optimistic comments are
// synthesized locally before the server confirms them.
type Identity struct {
	UserID      int64
	DisplayName string
	AvatarURL   string
}

// Config wires an engine to its collaborators.
type Config struct {
	Store    Store
	PageSize int
	Identity Identity

	// OnCountDelta reports comment count changes for the active
	// version. Deltas are applied optimistically and compensated on
	// failure, symmetrically for adds and deletes.
	OnCountDelta func(versionID int64, delta int64)

	// OnNotice surfaces a transient user-facing failure notice. A
	// failed mutation rolls local state back and notifies; it never
	// propagates an error to the caller's view.
	OnNotice func(message string)

	// OnChange fires after a realtime change mutates the collection,
	// letting the owner re-render its view. Direct operations do not
	// fire it; their callers already know to re-render.
	OnChange func()
}

// Engine owns the in-memory comment collection for one version at a
// time: paginated fetch, optimistic mutation with rollback, and
// reconciliation of realtime change notifications. All insertion
// paths deduplicate by identifier, which is what keeps the direct
// response and the push stream from double-applying the same comment.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	versionID int64
	projectID int64

	collection  []*model.Comment
	page        int
	hasMore     bool
	loading     bool
	loadingMore bool
}

// NewEngine creates a comment engine.
func NewEngine(cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	return &Engine{cfg: cfg}
}

// SetVersion points the engine at a version, discarding any loaded
// state. Cross-version state is never retained; the caller refetches.
func (e *Engine) SetVersion(versionID, projectID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.versionID == versionID && e.projectID == projectID {
		return
	}
	e.versionID = versionID
	e.projectID = projectID
	e.collection = nil
	e.page = 1
	e.hasMore = false
	e.loading = false
	e.loadingMore = false
}

// Fetch loads page one for the active version, replacing the local
// collection. A response that arrives after the engine has been
// pointed at a different version is discarded.
func (e *Engine) Fetch(ctx context.Context) error {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return nil
	}
	e.loading = true
	versionID, projectID := e.versionID, e.projectID
	pageSize := e.cfg.PageSize
	e.mu.Unlock()

	items, _, err := e.cfg.Store.List(ctx, versionID, projectID, 1, pageSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.versionID != versionID || e.projectID != projectID {
		// Stale response for a version the user has left.
		return nil
	}
	e.loading = false

	if err != nil {
		e.notice("Failed to load comments")
		return err
	}

	e.collection = dedupeByID(items)
	e.page = 1
	e.hasMore = countRoots(items) >= pageSize
	return nil
}

// LoadMore appends the next page. Idempotent under rapid repeated
// invocation: a second call while one is in flight, or once hasMore
// is false, is a no-op.
func (e *Engine) LoadMore(ctx context.Context) error {
	e.mu.Lock()
	if e.loading || e.loadingMore || !e.hasMore {
		e.mu.Unlock()
		return nil
	}
	e.loadingMore = true
	versionID, projectID := e.versionID, e.projectID
	nextPage := e.page + 1
	pageSize := e.cfg.PageSize
	e.mu.Unlock()

	items, _, err := e.cfg.Store.List(ctx, versionID, projectID, nextPage, pageSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.versionID != versionID || e.projectID != projectID {
		return nil
	}
	e.loadingMore = false

	if err != nil {
		e.notice("Failed to load more comments")
		return err
	}

	e.collection = dedupeByID(append(e.collection, items...))
	e.page = nextPage
	e.hasMore = countRoots(items) >= pageSize
	return nil
}

// Add creates a comment optimistically: a placeholder with a
// temporary identifier is visible immediately and the count delta
// fires before the server write. On failure the placeholder is
// removed, the delta compensated, and a notice raised.
func (e *Engine) Add(ctx context.Context, content string, timestamp float64, parentID *string) error {
	now := time.Now()
	temp := &model.Comment{
		ID:           NewTempID(),
		Content:      content,
		Timestamp:    timestamp,
		ParentID:     parentID,
		CreatedAt:    now,
		AuthorID:     e.cfg.Identity.UserID,
		AuthorName:   e.cfg.Identity.DisplayName,
		AuthorAvatar: e.cfg.Identity.AvatarURL,
	}

	e.mu.Lock()
	temp.VersionID = e.versionID
	temp.ProjectID = e.projectID
	versionID, projectID := e.versionID, e.projectID
	e.insertLocked(temp)
	e.mu.Unlock()

	e.countDelta(versionID, +1)

	created, err := e.cfg.Store.Create(ctx, temp)

	e.mu.Lock()
	if err != nil {
		e.removeByIDLocked(temp.ID)
		e.mu.Unlock()
		e.countDelta(versionID, -1)
		e.notice("Failed to post comment")
		return err
	}

	if e.versionID != versionID || e.projectID != projectID {
		// Confirmed for a version the user has since left; SetVersion
		// already cleared the placeholder.
		e.mu.Unlock()
		return nil
	}
	e.resolvePlaceholderLocked(temp.ID, created)
	e.mu.Unlock()
	return nil
}

// UpdateContent rewrites a comment's text optimistically. On failure
// the entire collection is restored to its pre-edit snapshot.
func (e *Engine) UpdateContent(ctx context.Context, id, content string) error {
	e.mu.Lock()
	versionID, projectID := e.versionID, e.projectID
	snapshot := e.collection
	updated := make([]*model.Comment, len(e.collection))
	for i, c := range e.collection {
		if c.ID == id {
			edited := *c
			edited.Content = content
			now := time.Now()
			edited.UpdatedAt = &now
			updated[i] = &edited
		} else {
			updated[i] = c
		}
	}
	e.collection = updated
	e.mu.Unlock()

	if err := e.cfg.Store.Update(ctx, id, content); err != nil {
		e.mu.Lock()
		if e.versionID == versionID && e.projectID == projectID {
			e.collection = snapshot
		}
		e.mu.Unlock()
		e.notice("Failed to update comment")
		return err
	}
	return nil
}

// Remove deletes a comment optimistically. On failure the pre-delete
// snapshot is restored and the count delta compensated.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	versionID, projectID := e.versionID, e.projectID
	snapshot := e.collection
	present := e.removeByIDLocked(id)
	e.mu.Unlock()

	if !present {
		return nil
	}
	e.countDelta(versionID, -1)

	if err := e.cfg.Store.Delete(ctx, id); err != nil {
		e.mu.Lock()
		if e.versionID == versionID && e.projectID == projectID {
			e.collection = snapshot
		}
		e.mu.Unlock()
		e.countDelta(versionID, +1)
		e.notice("Failed to delete comment")
		return err
	}
	return nil
}

// ApplyChange reconciles one realtime notification into the local
// collection. Events for other versions are discarded here even if a
// broader subscription leaks them through.
func (e *Engine) ApplyChange(change Change) {
	if change.Comment == nil {
		return
	}

	e.mu.Lock()

	if change.Comment.VersionID != e.versionID {
		e.mu.Unlock()
		return
	}

	removed := false
	switch change.Kind {
	case ChangeInsert:
		e.applyInsertLocked(change.Comment)
	case ChangeUpdate:
		e.applyUpdateLocked(change.Comment)
	case ChangeDelete:
		removed = e.removeByIDLocked(change.Comment.ID)
	default:
		logger.Warn("unknown comment change kind", logger.String("kind", string(change.Kind)))
	}
	versionID := e.versionID
	e.mu.Unlock()

	// Adjust only when the item was actually present, so duplicate
	// delivery cannot double-decrement.
	if removed {
		e.countDelta(versionID, -1)
	}
	if e.cfg.OnChange != nil {
		e.cfg.OnChange()
	}
}

func (e *Engine) applyInsertLocked(incoming *model.Comment) {
	if e.indexOfLocked(incoming.ID) >= 0 {
		return // already known, e.g. reconciled via the direct response
	}

	if incoming.AuthorID == e.cfg.Identity.UserID {
		// This may be the confirmation of one of our own optimistic
		// placeholders arriving over the push channel first.
		for _, c := range e.collection {
			if IsTempID(c.ID) && c.Content == incoming.Content && c.Timestamp == incoming.Timestamp {
				e.resolvePlaceholderLocked(c.ID, incoming)
				return
			}
		}
	}

	inserted := *incoming
	if inserted.AuthorName == "" {
		inserted.AuthorName = "Collaborator"
	}
	e.insertLocked(&inserted)
}

// applyUpdateLocked merges content and metadata only. Author identity
// never arrives mutated, and push payloads may carry it stripped, so
// the locally known author fields always win.
func (e *Engine) applyUpdateLocked(incoming *model.Comment) {
	i := e.indexOfLocked(incoming.ID)
	if i < 0 {
		return
	}

	merged := *e.collection[i]
	merged.Content = incoming.Content
	if incoming.UpdatedAt != nil {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	if incoming.Timestamp != 0 {
		merged.Timestamp = incoming.Timestamp
	}

	updated := make([]*model.Comment, len(e.collection))
	copy(updated, e.collection)
	updated[i] = &merged
	e.collection = updated
}

// insertLocked places a comment at the head for roots, or directly
// after its parent for replies whose parent is loaded.
func (e *Engine) insertLocked(c *model.Comment) {
	if c.IsReply() {
		if i := e.indexOfLocked(*c.ParentID); i >= 0 {
			updated := make([]*model.Comment, 0, len(e.collection)+1)
			updated = append(updated, e.collection[:i+1]...)
			updated = append(updated, c)
			updated = append(updated, e.collection[i+1:]...)
			e.collection = updated
			return
		}
	}
	e.collection = append([]*model.Comment{c}, e.collection...)
}

// resolvePlaceholderLocked swaps a placeholder's identity for the
// server-confirmed record while preserving the locally known author
// display fields, which the push payload may omit.
func (e *Engine) resolvePlaceholderLocked(tempID string, confirmed *model.Comment) {
	i := e.indexOfLocked(tempID)
	if i < 0 {
		// Placeholder already resolved (the other arrival path won);
		// make sure the confirmed record exists exactly once.
		if e.indexOfLocked(confirmed.ID) < 0 {
			resolved := *confirmed
			e.insertLocked(&resolved)
		}
		return
	}

	if j := e.indexOfLocked(confirmed.ID); j >= 0 {
		// The push stream already delivered the confirmed record; the
		// placeholder is now redundant.
		e.collection = append(e.collection[:i:i], e.collection[i+1:]...)
		return
	}

	resolved := *confirmed
	if resolved.AuthorName == "" {
		resolved.AuthorName = e.collection[i].AuthorName
	}
	if resolved.AuthorAvatar == "" {
		resolved.AuthorAvatar = e.collection[i].AuthorAvatar
	}

	updated := make([]*model.Comment, len(e.collection))
	copy(updated, e.collection)
	updated[i] = &resolved
	e.collection = updated
}

func (e *Engine) indexOfLocked(id string) int {
	for i, c := range e.collection {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) removeByIDLocked(id string) bool {
	i := e.indexOfLocked(id)
	if i < 0 {
		return false
	}
	e.collection = append(e.collection[:i:i], e.collection[i+1:]...)
	return true
}

// Comments returns a copy of the collection in display order.
func (e *Engine) Comments() []*model.Comment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.Comment, len(e.collection))
	copy(out, e.collection)
	return out
}

// Threads returns the derived thread view of the collection.
func (e *Engine) Threads() []Thread {
	return BuildThreads(e.Comments())
}

// HasMore reports whether further pages may exist.
func (e *Engine) HasMore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasMore
}

// Version returns the active version id.
func (e *Engine) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionID
}

func (e *Engine) notice(message string) {
	if e.cfg.OnNotice != nil {
		e.cfg.OnNotice(message)
	}
}

func (e *Engine) countDelta(versionID int64, delta int64) {
	if e.cfg.OnCountDelta != nil {
		e.cfg.OnCountDelta(versionID, delta)
	}
}

// dedupeByID collapses duplicate identifiers, last write wins,
// preserving first-occurrence order.
func dedupeByID(items []*model.Comment) []*model.Comment {
	seen := make(map[string]int, len(items))
	out := make([]*model.Comment, 0, len(items))
	for _, c := range items {
		if i, ok := seen[c.ID]; ok {
			out[i] = c
			continue
		}
		seen[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

// countRoots counts top-level comments in a page of items, the basis
// of the full-page hasMore heuristic.
func countRoots(items []*model.Comment) int {
	n := 0
	for _, c := range items {
		if !c.IsReply() {
			n++
		}
	}
	return n
}
