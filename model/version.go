package model

import "time"

// Version is one uploaded audio file, a numbered iteration of a
// track's mix. Immutable once created except for its name and
// comment count.
type Version struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	TrackID       int64     `json:"trackId" gorm:"index"`
	VersionNumber int       `json:"versionNumber"`
	Name          string    `json:"name"`
	StoragePath   string    `json:"-"`        // object key, resolved to a playable URL on read
	Duration      float64   `json:"duration"` // seconds, 0 until probed
	CommentCount  int64     `json:"commentCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName maps Version to its table.
func (Version) TableName() string { return "versions" }
