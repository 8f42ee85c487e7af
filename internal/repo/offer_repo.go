// Package repo implements the data persistence layer for workflow entities,
// backed by GORM. This file provides repository functions for the JobOffer
// ledger.
//
// Every status change is a conditional update guarded on status='offered'
// (and, where it matters, on expires_at), so the accept path, the decline
// path, and the expiry sweep can race each other freely: exactly one wins,
// the rest see zero rows affected.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

// CreateOffer inserts a new offer in the offered state. It refuses a second
// live offer for the same (appointment, shop): ErrDuplicate when one exists
// whose expiry is still in the future.
func CreateOffer(ctx context.Context, db *gorm.DB, o *domain.JobOffer) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Status = domain.OfferStatusOffered
	o.OfferedPrice = domain.RoundCents(o.OfferedPrice)
	if o.OfferedAt.IsZero() {
		o.OfferedAt = time.Now().UTC()
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live int64
		err := tx.Model(&domain.JobOffer{}).
			Where("appointment_id = ? AND shop_id = ? AND status = ? AND expires_at > ?",
				o.AppointmentID, o.ShopID, domain.OfferStatusOffered, o.OfferedAt).
			Count(&live).Error
		if err != nil {
			return err
		}
		if live > 0 {
			return ErrDuplicate
		}
		return tx.Create(o).Error
	})
}

// GetOffer fetches one offer by ID, or ErrNotFound.
func GetOffer(ctx context.Context, db *gorm.DB, id string) (*domain.JobOffer, error) {
	var o domain.JobOffer
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// RespondOffer transitions one offer from offered to accepted or declined.
// The guard on the current status makes the transition single-shot: a second
// response, or a response racing the sweep, returns ErrStale.
func RespondOffer(ctx context.Context, db *gorm.DB, id, newStatus string, reason *string, now time.Time) error {
	updates := map[string]any{
		"status":       newStatus,
		"responded_at": now,
	}
	if reason != nil {
		updates["decline_reason"] = *reason
	}
	res := db.WithContext(ctx).
		Model(&domain.JobOffer{}).
		Where("id = ? AND status = ?", id, domain.OfferStatusOffered).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// MarkOfferExpired lazily expires a single offer that is past its TTL.
// Safe to call when the offer has already been resolved; the conditional
// simply matches nothing then.
func MarkOfferExpired(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.JobOffer{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, domain.OfferStatusOffered, now).
		Update("status", domain.OfferStatusExpired).Error
}

// ExpireSiblings bulk-transitions every other offered row for the same
// appointment to expired. Called exactly once, immediately after an accept;
// offers for other appointments are untouched. Returns the number of rows
// expired.
func ExpireSiblings(ctx context.Context, db *gorm.DB, appointmentID, exceptOfferID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.JobOffer{}).
		Where("appointment_id = ? AND id <> ? AND status = ?",
			appointmentID, exceptOfferID, domain.OfferStatusOffered).
		Update("status", domain.OfferStatusExpired)
	return res.RowsAffected, res.Error
}

// SweepExpired transitions all offered rows past their expiry to expired and
// returns how many it caught. The conditional WHERE makes the sweep
// idempotent and safe to run concurrently with itself or with responses.
func SweepExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.JobOffer{}).
		Where("status = ? AND expires_at <= ?", domain.OfferStatusOffered, now).
		Update("status", domain.OfferStatusExpired)
	return res.RowsAffected, res.Error
}

// ListOffersForShop returns a page of a shop's offers, most recent first.
func ListOffersForShop(ctx context.Context, db *gorm.DB, shopID string, offset, limit int) ([]domain.JobOffer, error) {
	var out []domain.JobOffer
	err := db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("offered_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountOffersForShop returns the total number of offers ever extended to a
// shop, for pagination.
func CountOffersForShop(ctx context.Context, db *gorm.DB, shopID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.JobOffer{}).
		Where("shop_id = ?", shopID).
		Count(&total).Error
	return total, err
}
