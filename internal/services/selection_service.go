// Package services – SelectionService
//
// This file implements the Selection Registry: bookkeeping for the insurer's
// curated shop shortlist, independent of the offer and appointment
// lifecycles. Proposing the shortlist is a workflow transition and therefore
// lives on WorkflowService; the registry owns the edits afterwards (tolerant
// removal with renumbering) and the customer-facing ordered read.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/repo"
)

// SelectionService exposes the insurer shortlist registry.
type SelectionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewSelectionService constructs a SelectionService.
func NewSelectionService(db *gorm.DB) *SelectionService {
	return &SelectionService{DB: db}
}

// CustomerOption is one shortlist entry joined with the shop's capability
// flags, in the exact shape the customer-facing selection UI renders.
type CustomerOption struct {
	ShopID          string  `json:"shop_id"`
	ShopName        string  `json:"shop_name"`
	PriorityOrder   int     `json:"priority_order"`
	EstimatedPrice  float64 `json:"estimated_price"`
	DistanceKm      float64 `json:"distance_km"`
	MobileService   bool    `json:"mobile_service"`
	AdasCalibration bool    `json:"adas_calibration"`
}

// Remove deletes one shop from an appointment's shortlist and renumbers the
// remaining priorities to a contiguous 1..N sequence. Removing a shop that
// is not on the shortlist is a silent no-op.
func (s *SelectionService) Remove(ctx context.Context, appointmentID, shopID string) error {
	if _, err := repo.GetAppointment(ctx, s.DB, appointmentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		return err
	}
	return repo.DeleteSelection(ctx, s.DB, appointmentID, shopID)
}

// GetForCustomer returns the proposed shops for an appointment ordered by
// priority, enriched with shop capabilities. The engine exposes this
// verbatim to the customer-facing selection UI.
func (s *SelectionService) GetForCustomer(ctx context.Context, appointmentID string) ([]CustomerOption, error) {
	sels, err := repo.ListSelections(ctx, s.DB, appointmentID)
	if err != nil {
		return nil, err
	}

	out := make([]CustomerOption, 0, len(sels))
	for _, sel := range sels {
		opt := CustomerOption{
			ShopID:         sel.ShopID,
			ShopName:       sel.ShopName,
			PriorityOrder:  sel.PriorityOrder,
			EstimatedPrice: sel.EstimatedPrice,
			DistanceKm:     sel.DistanceKm,
		}
		// Capability flags are decoration; a directory miss leaves them false.
		if shop, err := repo.GetShop(ctx, s.DB, sel.ShopID); err == nil {
			opt.MobileService = shop.MobileService
			opt.AdasCalibration = shop.AdasCalibration
		}
		out = append(out, opt)
	}
	return out, nil
}
