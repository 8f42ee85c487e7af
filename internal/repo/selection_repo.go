// Package repo implements the data persistence layer for workflow entities,
// backed by GORM. This file provides repository functions for the insurer
// shop shortlist (ShopSelection).
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

// CreateSelections inserts the insurer's shortlist rows for an appointment in
// one transaction, assigning priority_order 1..N in the given order. A repeat
// of an (appointment, shop) pair maps to ErrDuplicate via the unique index.
func CreateSelections(ctx context.Context, db *gorm.DB, appointmentID string, rows []domain.ShopSelection) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			rows[i].ID = uuid.NewString()
			rows[i].AppointmentID = appointmentID
			rows[i].PriorityOrder = i + 1
			rows[i].EstimatedPrice = domain.RoundCents(rows[i].EstimatedPrice)
			if err := tx.Create(&rows[i]).Error; err != nil {
				if isDuplicateErr(err) {
					return ErrDuplicate
				}
				return err
			}
		}
		return nil
	})
}

// ListSelections returns the shortlist for an appointment ordered by
// priority. An empty shortlist yields an empty slice, not an error.
func ListSelections(ctx context.Context, db *gorm.DB, appointmentID string) ([]domain.ShopSelection, error) {
	var out []domain.ShopSelection
	err := db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("priority_order asc").
		Find(&out).Error
	return out, err
}

// GetSelection fetches one shortlist entry by (appointment, shop), or
// ErrNotFound.
func GetSelection(ctx context.Context, db *gorm.DB, appointmentID, shopID string) (*domain.ShopSelection, error) {
	var sel domain.ShopSelection
	err := db.WithContext(ctx).
		Where("appointment_id = ? AND shop_id = ?", appointmentID, shopID).
		First(&sel).Error
	if err != nil {
		return nil, err
	}
	return &sel, nil
}

// CountSelections returns the number of shortlist rows for an appointment.
func CountSelections(ctx context.Context, db *gorm.DB, appointmentID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ShopSelection{}).
		Where("appointment_id = ?", appointmentID).
		Count(&total).Error
	return total, err
}

// DeleteSelection removes one shortlist entry and renumbers the remaining
// rows to a contiguous 1..N sequence preserving their relative order. The
// whole operation runs in a transaction so a reader never observes a gap.
//
// Removing a shop that is not on the shortlist is a no-op, matching the
// tolerant behavior callers rely on.
func DeleteSelection(ctx context.Context, db *gorm.DB, appointmentID, shopID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("appointment_id = ? AND shop_id = ?", appointmentID, shopID).
			Delete(&domain.ShopSelection{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var rest []domain.ShopSelection
		if err := tx.Where("appointment_id = ?", appointmentID).
			Order("priority_order asc").
			Find(&rest).Error; err != nil {
			return err
		}
		for i := range rest {
			want := i + 1
			if rest[i].PriorityOrder == want {
				continue
			}
			if err := tx.Model(&domain.ShopSelection{}).
				Where("id = ?", rest[i].ID).
				Update("priority_order", want).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSelectionsForAppointment removes the whole shortlist (used when the
// appointment is cancelled).
func DeleteSelectionsForAppointment(ctx context.Context, db *gorm.DB, appointmentID string) error {
	return db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Delete(&domain.ShopSelection{}).Error
}
