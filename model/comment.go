package model

import "time"

// Comment is a timestamped note on a version. A nil ParentID marks a
// root comment; a set ParentID marks a reply to a root. Replies do
// not nest further.
type Comment struct {
	ID        string     `json:"id"`
	VersionID int64      `json:"versionId"`
	ProjectID int64      `json:"projectId"`
	AuthorID  int64      `json:"authorId"`
	ParentID  *string    `json:"parentId,omitempty"`
	Content   string     `json:"content"`
	Timestamp float64    `json:"timestamp"` // seconds into the audio
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	// Denormalized author fields for display; not authoritative.
	AuthorName   string `json:"authorName"`
	AuthorAvatar string `json:"authorAvatar"`
}

// IsReply reports whether the comment is a reply to a root comment.
func (c *Comment) IsReply() bool { return c.ParentID != nil && *c.ParentID != "" }
