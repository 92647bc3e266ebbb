package comments

import (
	"sort"

	"versionvibe/model"
)

// Thread is a root comment with its chronologically ordered replies.
// Threads are derived fresh from the collection on every read, never
// mutated in place.
type Thread struct {
	Root       *model.Comment   `json:"root"`
	Replies    []*model.Comment `json:"replies"`
	ReplyCount int              `json:"replyCount"`
}

// BuildThreads partitions a comment collection into threads. Roots
// keep their collection order (newest first); replies attach to their
// root sorted ascending by creation time. A reply whose root is not
// in the collection is dropped rather than shown orphaned, which can
// happen at pagination boundaries.
func BuildThreads(collection []*model.Comment) []Thread {
	var roots []*model.Comment
	repliesByParent := make(map[string][]*model.Comment)

	for _, c := range collection {
		if c.IsReply() {
			repliesByParent[*c.ParentID] = append(repliesByParent[*c.ParentID], c)
		} else {
			roots = append(roots, c)
		}
	}

	threads := make([]Thread, 0, len(roots))
	for _, root := range roots {
		replies := repliesByParent[root.ID]
		sort.SliceStable(replies, func(i, j int) bool {
			return replies[i].CreatedAt.Before(replies[j].CreatedAt)
		})
		threads = append(threads, Thread{
			Root:       root,
			Replies:    replies,
			ReplyCount: len(replies),
		})
	}
	return threads
}
