package model

import "time"

// Project is the top-level collaboration scope: a set of tracks
// shared between an owner and invited members.
type Project struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	OwnerID   int64     `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName maps Project to its table.
func (Project) TableName() string { return "projects" }

// ProjectMember links a user to a project with a role.
type ProjectMember struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	ProjectID int64     `json:"projectId" gorm:"index:idx_project_user,unique"`
	UserID    int64     `json:"userId" gorm:"index:idx_project_user,unique"`
	Role      string    `json:"role"` // owner, member
	CreatedAt time.Time `json:"createdAt"`
}

// TableName maps ProjectMember to its table.
func (ProjectMember) TableName() string { return "project_members" }

// Track is a named collection of versions within a project.
type Track struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	ProjectID int64     `json:"projectId" gorm:"index"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName maps Track to its table.
func (Track) TableName() string { return "tracks" }
