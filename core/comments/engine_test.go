package comments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"versionvibe/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with switchable failure modes and
// optional gates to hold List or Create calls open.
type fakeStore struct {
	mu        sync.Mutex
	pages     map[int][]*model.Comment
	listErr   error
	createErr error
	updateErr error
	deleteErr error

	listCalls  int
	listGate   chan struct{}
	createGate chan struct{}
	nextID     int
	created    []*model.Comment
	deletedIDs []string
	updatedIDs []string
}

func (s *fakeStore) List(ctx context.Context, versionID, projectID int64, page, pageSize int) ([]*model.Comment, int64, error) {
	s.mu.Lock()
	s.listCalls++
	gate := s.listGate
	items := s.pages[page]
	err := s.listErr
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, 0, err
	}
	return items, int64(len(items)), nil
}

func (s *fakeStore) Create(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	s.mu.Lock()
	gate := s.createGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	confirmed := *comment
	confirmed.ID = fmt.Sprintf("c-%d", s.nextID)
	s.created = append(s.created, &confirmed)
	return &confirmed, nil
}

func (s *fakeStore) Update(ctx context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updatedIDs = append(s.updatedIDs, id)
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

type countRecorder struct {
	mu     sync.Mutex
	deltas []int64
}

func (r *countRecorder) record(versionID int64, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, delta)
}

func (r *countRecorder) sum() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, d := range r.deltas {
		total += d
	}
	return total
}

func comment(id string, versionID int64, content string) *model.Comment {
	return &model.Comment{
		ID:         id,
		VersionID:  versionID,
		ProjectID:  1,
		AuthorID:   7,
		AuthorName: "Robin",
		Content:    content,
		CreatedAt:  time.Now(),
	}
}

func reply(id, parentID string, versionID int64, content string) *model.Comment {
	c := comment(id, versionID, content)
	c.ParentID = &parentID
	return c
}

func newTestCommentEngine(store *fakeStore, counts *countRecorder, notices *[]string) *Engine {
	cfg := Config{
		Store:    store,
		PageSize: 2,
		Identity: Identity{UserID: 7, DisplayName: "Robin", AvatarURL: "a.png"},
	}
	if counts != nil {
		cfg.OnCountDelta = counts.record
	}
	if notices != nil {
		cfg.OnNotice = func(m string) { *notices = append(*notices, m) }
	}
	e := NewEngine(cfg)
	e.SetVersion(1, 1)
	return e
}

func TestFetchReplacesCollection(t *testing.T) {
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "first"), comment("b", 1, "second")},
	}}
	e := newTestCommentEngine(store, nil, nil)

	require.NoError(t, e.Fetch(context.Background()))

	got := e.Comments()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, e.HasMore(), "a full page suggests more")
}

func TestFetchPartialPageEndsPagination(t *testing.T) {
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "only one")},
	}}
	e := newTestCommentEngine(store, nil, nil)

	require.NoError(t, e.Fetch(context.Background()))
	assert.False(t, e.HasMore())

	require.NoError(t, e.LoadMore(context.Background()))
	assert.Equal(t, 1, store.listCalls, "no further page is requested")
}

func TestFetchRepliesDoNotExtendPagination(t *testing.T) {
	// One root plus one reply fills the slice but not the root page.
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "root"), reply("r1", "a", 1, "reply")},
	}}
	e := newTestCommentEngine(store, nil, nil)

	require.NoError(t, e.Fetch(context.Background()))
	assert.False(t, e.HasMore())
}

func TestFetchFailureNotifies(t *testing.T) {
	var notices []string
	store := &fakeStore{listErr: errors.New("db down")}
	e := newTestCommentEngine(store, nil, &notices)

	require.Error(t, e.Fetch(context.Background()))
	assert.Equal(t, []string{"Failed to load comments"}, notices)
}

func TestFetchStaleResponseDiscarded(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeStore{
		listGate: gate,
		pages:    map[int][]*model.Comment{1: {comment("a", 1, "old version")}},
	}
	e := newTestCommentEngine(store, nil, nil)

	done := make(chan error, 1)
	go func() { done <- e.Fetch(context.Background()) }()

	// The user switches versions while the request is in flight.
	time.Sleep(10 * time.Millisecond)
	e.SetVersion(2, 1)
	close(gate)
	require.NoError(t, <-done)

	assert.Empty(t, e.Comments(), "response for the abandoned version is dropped")
	assert.Equal(t, int64(2), e.Version())
}

func TestLoadMoreAppendsAndDedupes(t *testing.T) {
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "one"), comment("b", 1, "two")},
		2: {comment("b", 1, "two again"), comment("c", 1, "three")},
	}}
	e := newTestCommentEngine(store, nil, nil)

	require.NoError(t, e.Fetch(context.Background()))
	require.NoError(t, e.LoadMore(context.Background()))

	got := e.Comments()
	require.Len(t, got, 3, "overlapping item appears once")
	assert.Equal(t, "two again", got[1].Content, "last write wins")
}

func TestLoadMoreSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "one"), comment("b", 1, "two")},
		2: {comment("c", 1, "three"), comment("d", 1, "four")},
	}}
	e := newTestCommentEngine(store, nil, nil)
	require.NoError(t, e.Fetch(context.Background()))

	store.mu.Lock()
	store.listGate = gate
	store.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.LoadMore(context.Background())
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 2, store.listCalls, "rapid repeated calls collapse to one request")
	assert.Len(t, e.Comments(), 4)
}

func TestAddOptimisticThenConfirmed(t *testing.T) {
	counts := &countRecorder{}
	store := &fakeStore{}
	e := newTestCommentEngine(store, counts, nil)

	require.NoError(t, e.Add(context.Background(), "sounds great", 12.5, nil))

	got := e.Comments()
	require.Len(t, got, 1)
	assert.False(t, IsTempID(got[0].ID), "placeholder resolved to the confirmed identifier")
	assert.Equal(t, "Robin", got[0].AuthorName)
	assert.Equal(t, []int64{1}, counts.deltas)
}

func TestAddFailureRollsBack(t *testing.T) {
	counts := &countRecorder{}
	var notices []string
	store := &fakeStore{createErr: errors.New("rejected")}
	e := newTestCommentEngine(store, counts, &notices)

	require.Error(t, e.Add(context.Background(), "lost words", 3, nil))

	assert.Empty(t, e.Comments(), "placeholder removed on failure")
	assert.Equal(t, int64(0), counts.sum(), "count delta compensated")
	assert.Equal(t, []string{"Failed to post comment"}, notices)
}

func TestAddConfirmationAfterVersionSwitchDiscarded(t *testing.T) {
	gate := make(chan struct{})
	counts := &countRecorder{}
	store := &fakeStore{createGate: gate}
	e := newTestCommentEngine(store, counts, nil)

	done := make(chan error, 1)
	go func() { done <- e.Add(context.Background(), "first take nit", 3, nil) }()

	// The user switches versions while the create is in flight.
	time.Sleep(10 * time.Millisecond)
	e.SetVersion(2, 1)
	close(gate)
	require.NoError(t, <-done)

	assert.Empty(t, e.Comments(), "confirmation for the abandoned version is dropped")
	assert.Equal(t, int64(2), e.Version())
	assert.Equal(t, []int64{1}, counts.deltas, "the create succeeded, so the optimistic delta stands")
}

func TestAddReplyInsertsAfterParent(t *testing.T) {
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "root a"), comment("b", 1, "root b")},
	}}
	e := newTestCommentEngine(store, nil, nil)
	require.NoError(t, e.Fetch(context.Background()))

	parent := "a"
	require.NoError(t, e.Add(context.Background(), "agreed", 0, &parent))

	got := e.Comments()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "agreed", got[1].Content, "reply sits right after its parent")
	assert.Equal(t, "b", got[2].ID)
}

func TestUpdateContentRollbackIsExact(t *testing.T) {
	var notices []string
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "original"), comment("b", 1, "untouched")},
	}}
	e := newTestCommentEngine(store, nil, &notices)
	require.NoError(t, e.Fetch(context.Background()))
	before := e.Comments()

	store.updateErr = errors.New("rejected")
	require.Error(t, e.UpdateContent(context.Background(), "a", "edited"))

	after := e.Comments()
	require.Len(t, after, 2)
	assert.Equal(t, "original", after[0].Content)
	assert.Equal(t, before[1], after[1], "untouched entries are the same instances")
	assert.Equal(t, []string{"Failed to update comment"}, notices)
}

func TestUpdateContentSuccess(t *testing.T) {
	store := &fakeStore{pages: map[int][]*model.Comment{1: {comment("a", 1, "original")}}}
	e := newTestCommentEngine(store, nil, nil)
	require.NoError(t, e.Fetch(context.Background()))

	require.NoError(t, e.UpdateContent(context.Background(), "a", "edited"))

	got := e.Comments()
	assert.Equal(t, "edited", got[0].Content)
	require.NotNil(t, got[0].UpdatedAt)
}

func TestRemoveFailureRestoresAndCompensates(t *testing.T) {
	counts := &countRecorder{}
	var notices []string
	store := &fakeStore{
		pages:     map[int][]*model.Comment{1: {comment("a", 1, "keep me")}},
		deleteErr: errors.New("rejected"),
	}
	e := newTestCommentEngine(store, counts, &notices)
	require.NoError(t, e.Fetch(context.Background()))

	require.Error(t, e.Remove(context.Background(), "a"))

	require.Len(t, e.Comments(), 1)
	assert.Equal(t, []int64{-1, 1}, counts.deltas)
	assert.Equal(t, []string{"Failed to delete comment"}, notices)
}

func TestRemoveUnknownIsNoOp(t *testing.T) {
	counts := &countRecorder{}
	store := &fakeStore{}
	e := newTestCommentEngine(store, counts, nil)

	require.NoError(t, e.Remove(context.Background(), "ghost"))
	assert.Empty(t, counts.deltas)
	assert.Empty(t, store.deletedIDs)
}

func TestApplyChangeInsertIsIdempotent(t *testing.T) {
	e := newTestCommentEngine(&fakeStore{}, nil, nil)

	incoming := comment("x", 1, "from elsewhere")
	incoming.AuthorID = 99
	e.ApplyChange(Change{Kind: ChangeInsert, Comment: incoming})
	e.ApplyChange(Change{Kind: ChangeInsert, Comment: incoming})

	assert.Len(t, e.Comments(), 1, "duplicate delivery applies once")
}

func TestApplyChangeOtherVersionIgnored(t *testing.T) {
	e := newTestCommentEngine(&fakeStore{}, nil, nil)

	e.ApplyChange(Change{Kind: ChangeInsert, Comment: comment("x", 9, "wrong session")})
	assert.Empty(t, e.Comments())
}

func TestApplyChangeEchoOfOwnCommentIgnored(t *testing.T) {
	store := &fakeStore{}
	e := newTestCommentEngine(store, nil, nil)

	require.NoError(t, e.Add(context.Background(), "mine", 5, nil))

	confirmed := e.Comments()[0]
	pushCopy := *confirmed
	pushCopy.AuthorName = ""
	e.ApplyChange(Change{Kind: ChangeInsert, Comment: &pushCopy})

	got := e.Comments()
	require.Len(t, got, 1, "push confirmation of own comment does not duplicate")
	assert.Equal(t, "Robin", got[0].AuthorName)
}

func TestApplyChangePushBeforeDirectResponse(t *testing.T) {
	e := newTestCommentEngine(&fakeStore{}, nil, nil)

	// Simulate the push stream delivering the confirmed record while
	// the placeholder is still unresolved.
	e.mu.Lock()
	e.insertLocked(&model.Comment{
		ID: NewTempID(), VersionID: 1, ProjectID: 1,
		AuthorID: 7, AuthorName: "Robin", Content: "mine", Timestamp: 5,
	})
	e.mu.Unlock()

	confirmed := comment("c-1", 1, "mine")
	confirmed.Timestamp = 5
	e.ApplyChange(Change{Kind: ChangeInsert, Comment: confirmed})

	got := e.Comments()
	require.Len(t, got, 1)
	assert.Equal(t, "c-1", got[0].ID, "placeholder matched by content and timestamp")
}

func TestApplyChangeUpdatePreservesAuthor(t *testing.T) {
	store := &fakeStore{pages: map[int][]*model.Comment{1: {comment("a", 1, "original")}}}
	e := newTestCommentEngine(store, nil, nil)
	require.NoError(t, e.Fetch(context.Background()))

	now := time.Now()
	e.ApplyChange(Change{Kind: ChangeUpdate, Comment: &model.Comment{
		ID: "a", VersionID: 1, Content: "edited elsewhere", UpdatedAt: &now,
	}})

	got := e.Comments()[0]
	assert.Equal(t, "edited elsewhere", got.Content)
	assert.Equal(t, "Robin", got.AuthorName, "stripped push payload keeps local author")
}

func TestApplyChangeDeleteCompensatesOnce(t *testing.T) {
	counts := &countRecorder{}
	store := &fakeStore{pages: map[int][]*model.Comment{1: {comment("a", 1, "going away")}}}
	e := newTestCommentEngine(store, counts, nil)
	require.NoError(t, e.Fetch(context.Background()))

	del := &model.Comment{ID: "a", VersionID: 1}
	e.ApplyChange(Change{Kind: ChangeDelete, Comment: del})
	e.ApplyChange(Change{Kind: ChangeDelete, Comment: del})

	assert.Empty(t, e.Comments())
	assert.Equal(t, []int64{-1}, counts.deltas, "second delivery does not double-decrement")
}

func TestApplyChangeFiresOnChange(t *testing.T) {
	fired := 0
	store := &fakeStore{}
	e := NewEngine(Config{
		Store:    store,
		Identity: Identity{UserID: 7},
		OnChange: func() { fired++ },
	})
	e.SetVersion(1, 1)

	e.ApplyChange(Change{Kind: ChangeInsert, Comment: comment("x", 1, "hello")})
	assert.Equal(t, 1, fired)
}

func TestSetVersionDiscardsState(t *testing.T) {
	store := &fakeStore{pages: map[int][]*model.Comment{
		1: {comment("a", 1, "one"), comment("b", 1, "two")},
	}}
	e := newTestCommentEngine(store, nil, nil)
	require.NoError(t, e.Fetch(context.Background()))
	require.NotEmpty(t, e.Comments())

	e.SetVersion(2, 1)
	assert.Empty(t, e.Comments())
	assert.False(t, e.HasMore())
}

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID("c-12"))
	assert.NotEqual(t, id, NewTempID())
}
