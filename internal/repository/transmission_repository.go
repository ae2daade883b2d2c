package repository

import (
	"context"
	"fmt"

	"github.com/flatmapit/dicom-maker/internal/database"
	"github.com/flatmapit/dicom-maker/internal/models"
	"github.com/google/uuid"
)

// TransmissionRepository handles transmission audit database operations
type TransmissionRepository struct{}

// NewTransmissionRepository creates a new transmission repository
func NewTransmissionRepository() *TransmissionRepository {
	return &TransmissionRepository{}
}

// Create records a transmission
func (r *TransmissionRepository) Create(ctx context.Context, tx *models.Transmission) error {
	if err := database.DB.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to record transmission: %w", err)
	}
	return nil
}

// ListByTarget retrieves the most recent transmissions for a target
func (r *TransmissionRepository) ListByTarget(ctx context.Context, targetID uuid.UUID, limit int) ([]models.Transmission, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []models.Transmission
	if err := database.DB.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transmissions: %w", err)
	}
	return txs, nil
}

// ListByStudy retrieves transmissions for a study UID
func (r *TransmissionRepository) ListByStudy(ctx context.Context, studyUID string) ([]models.Transmission, error) {
	var txs []models.Transmission
	if err := database.DB.WithContext(ctx).
		Where("study_uid = ?", studyUID).
		Order("created_at DESC").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transmissions: %w", err)
	}
	return txs, nil
}
