package comments

import (
	"testing"
	"time"

	"versionvibe/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threadComment(id string, parentID *string, createdAt time.Time) *model.Comment {
	return &model.Comment{
		ID:        id,
		VersionID: 1,
		ParentID:  parentID,
		Content:   id,
		CreatedAt: createdAt,
	}
}

func TestBuildThreadsPartition(t *testing.T) {
	base := time.Now()
	a, b := "a", "b"
	collection := []*model.Comment{
		threadComment("b", nil, base.Add(2*time.Minute)),
		threadComment("r2", &a, base.Add(3*time.Minute)),
		threadComment("a", nil, base),
		threadComment("r1", &a, base.Add(time.Minute)),
		threadComment("r3", &b, base.Add(4*time.Minute)),
	}

	threads := BuildThreads(collection)
	require.Len(t, threads, 2)

	assert.Equal(t, "b", threads[0].Root.ID, "roots keep collection order")
	assert.Equal(t, "a", threads[1].Root.ID)

	require.Equal(t, 2, threads[1].ReplyCount)
	assert.Equal(t, "r1", threads[1].Replies[0].ID, "replies sort by creation time")
	assert.Equal(t, "r2", threads[1].Replies[1].ID)

	require.Equal(t, 1, threads[0].ReplyCount)
	assert.Equal(t, "r3", threads[0].Replies[0].ID)
}

func TestBuildThreadsDropsOrphans(t *testing.T) {
	missing := "not-loaded"
	threads := BuildThreads([]*model.Comment{
		threadComment("a", nil, time.Now()),
		threadComment("r1", &missing, time.Now()),
	})

	require.Len(t, threads, 1)
	assert.Zero(t, threads[0].ReplyCount)
}

func TestBuildThreadsEmpty(t *testing.T) {
	assert.Empty(t, BuildThreads(nil))
}
