// Package store persists video records. It is the only package that talks
// to the database about videos; the pipeline and the handlers go through it.
package store

import (
	"bitwise74/pulsestream/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("video not found")

// Columns written by the processing pipeline
const (
	FieldStatus      = "status"
	FieldProgress    = "progress"
	FieldDuration    = "duration"
	FieldSensitivity = "sensitivity"
	FieldError       = "error"
	FieldTitle       = "title"
)

// Fields is a partial update. A nil value writes NULL.
type Fields map[string]any

type ListFilter struct {
	OwnerID     string // Empty means every owner
	Status      model.Status
	Sensitivity model.Sensitivity
}

type Videos struct {
	db *gorm.DB
}

func NewVideos(db *gorm.DB) *Videos {
	return &Videos{db: db}
}

func (s *Videos) Create(ctx context.Context, v *model.Video) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("failed to create video, %w", err)
	}

	return nil
}

func (s *Videos) FindByID(ctx context.Context, id string) (*model.Video, error) {
	var v model.Video

	err := s.db.
		WithContext(ctx).
		Where("id = ?", id).
		First(&v).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch video, %w", err)
	}

	return &v, nil
}

// FindVisible returns the video only if ownerID owns it. An empty ownerID
// skips the ownership check (admins).
func (s *Videos) FindVisible(ctx context.Context, id, ownerID string) (*model.Video, error) {
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}

	var v model.Video
	if err := q.First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch video, %w", err)
	}

	return &v, nil
}

// List returns matching videos, newest first
func (s *Videos) List(ctx context.Context, f ListFilter) ([]model.Video, error) {
	q := s.db.WithContext(ctx).Model(model.Video{})

	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Sensitivity != "" {
		q = q.Where("sensitivity = ?", f.Sensitivity)
	}

	entries := []model.Video{}
	if err := q.Order("created_at desc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list videos, %w", err)
	}

	return entries, nil
}

// Update writes fields to the record with the given id. Returns ErrNotFound
// when the record no longer exists.
func (s *Videos) Update(ctx context.Context, id string, f Fields) error {
	res := s.db.
		WithContext(ctx).
		Model(&model.Video{}).
		Where("id = ?", id).
		Updates(map[string]any(f))
	if res.Error != nil {
		return fmt.Errorf("failed to update video, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Transition is Update guarded by the current status. ErrNotFound is
// returned when the record is gone or has already left status from.
func (s *Videos) Transition(ctx context.Context, id string, from model.Status, f Fields) error {
	res := s.db.
		WithContext(ctx).
		Model(&model.Video{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any(f))
	if res.Error != nil {
		return fmt.Errorf("failed to transition video, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// FindStale returns records still processing that were last written before t
func (s *Videos) FindStale(ctx context.Context, t time.Time) ([]model.Video, error) {
	var entries []model.Video

	err := s.db.
		WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.StatusProcessing, t).
		Find(&entries).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stale videos, %w", err)
	}

	return entries, nil
}

func (s *Videos) Delete(ctx context.Context, id string) error {
	res := s.db.
		WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.Video{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete video, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
