package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
)

// InsertArtifact appends a new artifact row.
func (s *Store) InsertArtifact(ctx context.Context, a *models.RecordingArtifact) error {
	if a.ID == "" {
		return errors.New("store: artifact id is required")
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("store: insert artifact %s: %w", a.ID, err)
	}
	return nil
}

// UpdateArtifact overwrites every column of the artifact with a.ID.
func (s *Store) UpdateArtifact(ctx context.Context, a *models.RecordingArtifact) error {
	res := s.db.WithContext(ctx).Model(&models.RecordingArtifact{}).
		Where("id = ?", a.ID).
		Select("*").Omit("id", "created_at").
		Updates(a)
	if res.Error != nil {
		return fmt.Errorf("store: update artifact %s: %w", a.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetArtifact loads one artifact.
func (s *Store) GetArtifact(ctx context.Context, id string) (models.RecordingArtifact, error) {
	var a models.RecordingArtifact
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, fmt.Errorf("store: get artifact %s: %w", id, err)
	}
	return a, nil
}

// ListArtifacts returns the newest artifacts first.
func (s *Store) ListArtifacts(ctx context.Context, limit int) ([]models.RecordingArtifact, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.RecordingArtifact
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list artifacts: %w", err)
	}
	return out, nil
}

// ArtifactsBefore returns artifacts created before t.
func (s *Store) ArtifactsBefore(ctx context.Context, t time.Time) ([]models.RecordingArtifact, error) {
	var out []models.RecordingArtifact
	if err := s.db.WithContext(ctx).Where("created_at < ?", t).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: artifacts before %s: %w", t.Format(time.RFC3339), err)
	}
	return out, nil
}

// DeleteArtifact removes the artifact row.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RecordingArtifact{})
	if res.Error != nil {
		return fmt.Errorf("store: delete artifact %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertClassification appends a classification to the history.
func (s *Store) InsertClassification(ctx context.Context, rec *models.ClassificationRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: insert classification %s: %w", rec.PhoneNumber, err)
	}
	return nil
}

// ClassificationHistory returns the newest classifications for number first.
func (s *Store) ClassificationHistory(ctx context.Context, number phone.Number, limit int) ([]models.ClassificationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.ClassificationRecord
	err := s.db.WithContext(ctx).Where("phone_number = ?", number).
		Order("observed_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: classification history %s: %w", number, err)
	}
	return out, nil
}
