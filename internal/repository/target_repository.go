package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/flatmapit/dicom-maker/internal/database"
	"github.com/flatmapit/dicom-maker/internal/models"
	"github.com/google/uuid"
)

// TargetRepository handles archive target database operations
type TargetRepository struct{}

// NewTargetRepository creates a new target repository
func NewTargetRepository() *TargetRepository {
	return &TargetRepository{}
}

// Create creates a new target
func (r *TargetRepository) Create(ctx context.Context, target *models.Target) error {
	if err := database.DB.WithContext(ctx).Create(target).Error; err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}
	return nil
}

// GetByID retrieves a target by ID
func (r *TargetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Target, error) {
	var target models.Target
	if err := database.DB.WithContext(ctx).Where("id = ?", id).First(&target).Error; err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &target, nil
}

// List retrieves all targets ordered by name
func (r *TargetRepository) List(ctx context.Context) ([]models.Target, error) {
	var targets []models.Target
	if err := database.DB.WithContext(ctx).
		Order("name ASC").
		Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, nil
}

// Update updates a target
func (r *TargetRepository) Update(ctx context.Context, target *models.Target) error {
	if err := database.DB.WithContext(ctx).Save(target).Error; err != nil {
		return fmt.Errorf("failed to update target: %w", err)
	}
	return nil
}

// Delete soft deletes a target
func (r *TargetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := database.DB.WithContext(ctx).Delete(&models.Target{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return nil
}

// UpdateVerifyStatus records the result of the most recent verification
func (r *TargetRepository) UpdateVerifyStatus(ctx context.Context, id uuid.UUID, outcome, errMsg string) error {
	updates := map[string]interface{}{
		"last_verified":      time.Now().UTC(),
		"last_verify_result": outcome,
		"last_error":         errMsg,
	}

	if err := database.DB.WithContext(ctx).
		Model(&models.Target{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update verify status: %w", err)
	}
	return nil
}
