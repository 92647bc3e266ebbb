package repository

import (
	"errors"
	"fmt"

	"versionvibe/model"

	"gorm.io/gorm"
)

// VersionRepository defines the interface for version data operations.
type VersionRepository interface {
	ListByTrack(trackID int64) ([]*model.Version, error)
	GetByID(id int64) (*model.Version, error)
	Create(version *model.Version) error
	Rename(id int64, name string) error
	Delete(id int64) error
	NextVersionNumber(trackID int64) (int, error)
	AdjustCommentCount(id int64, delta int64) error
}

// gormVersionRepository implements VersionRepository with GORM.
type gormVersionRepository struct {
	db *gorm.DB
}

// NewGormVersionRepository creates a new gormVersionRepository.
func NewGormVersionRepository(db *gorm.DB) VersionRepository {
	return &gormVersionRepository{db: db}
}

// ListByTrack returns a track's versions, newest iteration first.
func (r *gormVersionRepository) ListByTrack(trackID int64) ([]*model.Version, error) {
	var versions []*model.Version
	err := r.db.Where("track_id = ?", trackID).
		Order("version_number DESC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list versions for track %d: %w", trackID, err)
	}
	return versions, nil
}

// GetByID retrieves a version by id, or nil if absent.
func (r *gormVersionRepository) GetByID(id int64) (*model.Version, error) {
	var version model.Version
	err := r.db.First(&version, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get version %d: %w", id, err)
	}
	return &version, nil
}

// Create inserts a version row.
func (r *gormVersionRepository) Create(version *model.Version) error {
	if err := r.db.Create(version).Error; err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// Rename updates a version's display name.
func (r *gormVersionRepository) Rename(id int64, name string) error {
	res := r.db.Model(&model.Version{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("failed to rename version %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("version %d not found", id)
	}
	return nil
}

// Delete removes a version row.
func (r *gormVersionRepository) Delete(id int64) error {
	if err := r.db.Delete(&model.Version{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete version %d: %w", id, err)
	}
	return nil
}

// NextVersionNumber returns max(version_number)+1 for a track.
func (r *gormVersionRepository) NextVersionNumber(trackID int64) (int, error) {
	var current int
	err := r.db.Model(&model.Version{}).
		Where("track_id = ?", trackID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max version number for track %d: %w", trackID, err)
	}
	return current + 1, nil
}

// AdjustCommentCount applies a delta to a version's denormalized
// comment count, clamping at zero.
func (r *gormVersionRepository) AdjustCommentCount(id int64, delta int64) error {
	err := r.db.Model(&model.Version{}).Where("id = ?", id).
		Update("comment_count", gorm.Expr("GREATEST(CAST(comment_count AS SIGNED) + ?, 0)", delta)).Error
	if err != nil {
		return fmt.Errorf("failed to adjust comment count for version %d: %w", id, err)
	}
	return nil
}
