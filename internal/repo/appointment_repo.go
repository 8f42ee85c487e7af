// Package repo implements the data persistence layer for workflow entities,
// backed by GORM. This file provides repository functions for the Appointment
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Concurrency: appointments are the one row three independent actors write
// to, so every mutation here is a conditional update. UpdateAppointmentStage
// guards on the current workflow_stage ("WHERE workflow_stage IN (…)") and
// touches only the fields of its transition; a guard that no longer holds
// returns ErrStale instead of silently clobbering a concurrent writer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

// CreateAppointment inserts a new appointment at stage new. Missing identity
// fields (ID, tracking code, tracking token) are generated. Tracking-code
// collisions are retried a few times against the unique index.
func CreateAppointment(ctx context.Context, db *gorm.DB, a *domain.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.TrackingToken == "" {
		a.TrackingToken = domain.NewTrackingToken()
	}
	if a.WorkflowStage == "" {
		a.WorkflowStage = domain.StageNew
	}
	a.CreatedAt = time.Now().UTC()

	for attempt := 0; attempt < 3; attempt++ {
		if a.TrackingCode == "" || attempt > 0 {
			a.TrackingCode = domain.NewTrackingCode()
		}
		err := db.WithContext(ctx).Create(a).Error
		if err == nil {
			return nil
		}
		if !isDuplicateErr(err) {
			return err
		}
	}
	return ErrDuplicate
}

// GetAppointment fetches an appointment by its internal ID, or ErrNotFound.
func GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAppointmentByToken fetches an appointment by its opaque tracking token.
func GetAppointmentByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := db.WithContext(ctx).Where("tracking_token = ?", token).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAppointmentByRef resolves ref against all three alternate keys: the
// opaque tracking token, the short tracking code, and the internal ID. The
// shape of ref decides which column is queried; nothing falls through to a
// multi-column OR, so a token can never be confused with an ID.
func GetAppointmentByRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Appointment, error) {
	switch {
	case domain.ValidTrackingToken(ref):
		return GetAppointmentByToken(ctx, db, ref)
	case domain.ValidTrackingCode(ref):
		var a domain.Appointment
		if err := db.WithContext(ctx).Where("tracking_code = ?", ref).First(&a).Error; err != nil {
			return nil, err
		}
		return &a, nil
	default:
		return GetAppointment(ctx, db, ref)
	}
}

// UpdateAppointmentStage performs the compare-and-swap at the heart of every
// workflow transition: it applies updates (which must include the new
// "workflow_stage") only while the current stage is one of expect.
//
// Returns ErrStale when the guard no longer holds, which callers surface as
// a conflict; the appointment row is left untouched in that case. Whether
// the row exists at all is the caller's concern (check before transitioning).
func UpdateAppointmentStage(ctx context.Context, db *gorm.DB, id string, expect []domain.WorkflowStage, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Where("id = ? AND workflow_stage IN ?", id, expect).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// MarkCostApproved flips customer_cost_approved exactly once while the
// appointment sits at cost_approval, advancing it to scheduled. The guard on
// the flag itself makes a repeated approval lose the race deterministically.
func MarkCostApproved(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Where("id = ? AND workflow_stage = ? AND customer_cost_approved = ?", id, domain.StageCostApproval, false).
		Updates(map[string]any{
			"customer_cost_approved": true,
			"cost_approved_at":       now,
			"workflow_stage":         domain.StageScheduled,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// SetAppointmentTotalCost writes total_cost only while it is still unset.
// A priced appointment keeps its price; the caller gets ErrStale.
func SetAppointmentTotalCost(ctx context.Context, db *gorm.DB, id string, total float64) error {
	res := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Where("id = ? AND total_cost IS NULL", id).
		Update("total_cost", domain.RoundCents(total))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// ClearAppointmentTotalCost unsets total_cost (insurer price rejection).
func ClearAppointmentTotalCost(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Where("id = ?", id).
		Update("total_cost", nil).Error
}
