// Package repo implements the data persistence layer for workflow entities,
// backed by GORM. This file provides the read-mostly shop directory plus the
// acceptance counters maintained by offer responses.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

// GetShop fetches one shop by ID, or ErrNotFound.
func GetShop(ctx context.Context, db *gorm.DB, id string) (*domain.Shop, error) {
	var s domain.Shop
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListShops returns a page of the shop directory ordered by name.
func ListShops(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Shop, error) {
	var out []domain.Shop
	err := db.WithContext(ctx).
		Order("name asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountShops returns the directory size, for pagination.
func CountShops(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Shop{}).Count(&total).Error
	return total, err
}

// RecordOfferOutcome bumps a shop's response counters after it resolves an
// offer and returns the refreshed row so callers can report the new
// acceptance rate and tier. Counter updates are expression-based so
// concurrent responders do not lose increments.
func RecordOfferOutcome(ctx context.Context, db *gorm.DB, shopID string, accepted bool) (*domain.Shop, error) {
	updates := map[string]any{
		"jobs_offered": gorm.Expr("jobs_offered + 1"),
	}
	if accepted {
		updates["jobs_accepted"] = gorm.Expr("jobs_accepted + 1")
	}
	res := db.WithContext(ctx).
		Model(&domain.Shop{}).
		Where("id = ?", shopID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetShop(ctx, db, shopID)
}
