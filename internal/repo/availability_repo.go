package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

// BookSlot claims a shop time slot for an appointment. The unique index over
// (shop_id, date, time_slot) is the only booking guard needed: the second
// writer gets ErrDuplicate.
func BookSlot(ctx context.Context, db *gorm.DB, shopID, date, timeSlot, appointmentID string) error {
	slot := &domain.AvailabilitySlot{
		ID:            uuid.NewString(),
		ShopID:        shopID,
		Date:          date,
		TimeSlot:      timeSlot,
		AppointmentID: appointmentID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(slot).Error; err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ReleaseSlots frees every slot held by an appointment (cancellation).
// Releasing when nothing is booked is a no-op.
func ReleaseSlots(ctx context.Context, db *gorm.DB, appointmentID string) error {
	return db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Delete(&domain.AvailabilitySlot{}).Error
}
