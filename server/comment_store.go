package server

import (
	"context"
	"encoding/json"
	"fmt"

	"versionvibe/core/realtime"
	"versionvibe/logger"
	"versionvibe/model"

	"github.com/google/uuid"
)

// commentStore adapts the repositories and the hub into the comment
// engine's Store contract. Every confirmed write maintains the
// denormalized version comment count and publishes a change event to
// the owning project's scope, so both REST callers and live session
// engines share one mutation path.
type commentStore struct {
	h *APIHandler
}

func (s *commentStore) List(ctx context.Context, versionID, projectID int64, page, pageSize int) ([]*model.Comment, int64, error) {
	return s.h.commentRepo.ListByVersion(versionID, projectID, page, pageSize)
}

func (s *commentStore) Create(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	if comment.Content == "" {
		return nil, fmt.Errorf("comment content is empty")
	}
	if comment.Timestamp < 0 {
		return nil, fmt.Errorf("comment timestamp is negative")
	}

	if comment.IsReply() {
		parent, err := s.h.commentRepo.GetByID(*comment.ParentID)
		if err != nil {
			return nil, err
		}
		// Replies attach to existing roots of the same version only;
		// threading never nests past one level.
		if parent == nil || parent.IsReply() || parent.VersionID != comment.VersionID {
			return nil, fmt.Errorf("parent %s is not a root comment of this version", *comment.ParentID)
		}
	}

	record := *comment
	record.ID = uuid.NewString()
	if err := s.h.commentRepo.Create(&record); err != nil {
		return nil, err
	}

	if err := s.h.versionRepo.AdjustCommentCount(record.VersionID, +1); err != nil {
		logger.Warn("failed to bump comment count",
			logger.Int64("version", record.VersionID),
			logger.ErrorField(err))
	}

	created, err := s.h.commentRepo.GetByID(record.ID)
	if err != nil || created == nil {
		// The row is in; fall back to what we wrote.
		created = &record
	}

	s.publish(realtime.ActionInsert, created)
	return created, nil
}

func (s *commentStore) Update(ctx context.Context, id, content string) error {
	if err := s.h.commentRepo.UpdateContent(id, content); err != nil {
		return err
	}

	updated, err := s.h.commentRepo.GetByID(id)
	if err != nil || updated == nil {
		logger.Warn("updated comment not readable for publish", logger.String("comment", id))
		return nil
	}

	s.publish(realtime.ActionUpdate, updated)
	return nil
}

func (s *commentStore) Delete(ctx context.Context, id string) error {
	existing, err := s.h.commentRepo.GetByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil // already gone; deletes stay idempotent
	}

	existed, err := s.h.commentRepo.Delete(id)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}

	if err := s.h.versionRepo.AdjustCommentCount(existing.VersionID, -1); err != nil {
		logger.Warn("failed to drop comment count",
			logger.Int64("version", existing.VersionID),
			logger.ErrorField(err))
	}

	// Delete payloads are minimal: identifier and scope only.
	s.publish(realtime.ActionDelete, &model.Comment{
		ID:        existing.ID,
		VersionID: existing.VersionID,
		ProjectID: existing.ProjectID,
	})
	return nil
}

func (s *commentStore) publish(action string, comment *model.Comment) {
	payload, err := json.Marshal(comment)
	if err != nil {
		logger.Error("failed to marshal comment event", logger.ErrorField(err))
		return
	}

	event := &realtime.Event{
		Entity:  realtime.EntityComments,
		Action:  action,
		Payload: payload,
	}
	if err := s.h.hub.Publish(realtime.ProjectScope(comment.ProjectID), event, 0); err != nil {
		logger.Error("failed to publish comment event", logger.ErrorField(err))
	}
}
