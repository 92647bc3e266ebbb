package repository

import (
	"errors"
	"fmt"

	"versionvibe/model"

	"gorm.io/gorm"
)

// ProjectRepository defines membership and ownership lookups used to
// authorize access to tracks, versions and comments.
type ProjectRepository interface {
	GetByID(id int64) (*model.Project, error)
	IsMember(projectID, userID int64) (bool, error)
	ProjectIDForTrack(trackID int64) (int64, error)
	ProjectIDForVersion(versionID int64) (int64, error)
}

// gormProjectRepository implements ProjectRepository with GORM.
type gormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a new gormProjectRepository.
func NewGormProjectRepository(db *gorm.DB) ProjectRepository {
	return &gormProjectRepository{db: db}
}

// GetByID retrieves a project by id, or nil if absent.
func (r *gormProjectRepository) GetByID(id int64) (*model.Project, error) {
	var project model.Project
	err := r.db.First(&project, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}
	return &project, nil
}

// IsMember reports whether the user owns the project or appears in
// its member list.
func (r *gormProjectRepository) IsMember(projectID, userID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Project{}).
		Where("id = ? AND owner_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check project owner: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	err = r.db.Model(&model.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check project membership: %w", err)
	}
	return count > 0, nil
}

// ProjectIDForTrack resolves the owning project of a track.
func (r *gormProjectRepository) ProjectIDForTrack(trackID int64) (int64, error) {
	var track model.Track
	err := r.db.Select("project_id").First(&track, trackID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("track %d not found", trackID)
		}
		return 0, fmt.Errorf("failed to resolve project for track %d: %w", trackID, err)
	}
	return track.ProjectID, nil
}

// ProjectIDForVersion resolves the owning project of a version through
// its track.
func (r *gormProjectRepository) ProjectIDForVersion(versionID int64) (int64, error) {
	var version model.Version
	err := r.db.Select("track_id").First(&version, versionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("version %d not found", versionID)
		}
		return 0, fmt.Errorf("failed to resolve track for version %d: %w", versionID, err)
	}
	return r.ProjectIDForTrack(version.TrackID)
}
