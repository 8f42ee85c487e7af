// Package repo implements the data persistence layer for workflow entities,
// backed by GORM. This file provides repository functions for cost estimates
// and shop availability slots.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

// CreateEstimate inserts the active cost estimate for an appointment.
// The unique index on appointment_id enforces "at most one active estimate";
// a second insert maps to ErrDuplicate.
func CreateEstimate(ctx context.Context, db *gorm.DB, e *domain.CostEstimate) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetEstimate fetches the active estimate for an appointment, or ErrNotFound.
func GetEstimate(ctx context.Context, db *gorm.DB, appointmentID string) (*domain.CostEstimate, error) {
	var e domain.CostEstimate
	err := db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEstimate removes the active estimate (insurer rejection). Deleting a
// non-existent estimate is a no-op.
func DeleteEstimate(ctx context.Context, db *gorm.DB, appointmentID string) error {
	return db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Delete(&domain.CostEstimate{}).Error
}
