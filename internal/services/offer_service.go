// Package services – OfferService
//
// This file implements the Offer Ledger: the JobOffer lifecycle independent
// of how an offer was created (platform allocation vs. customer-driven
// selection). It enforces single-shot responses, lazy expiry, sibling expiry
// on accept, and the idempotent expiry sweep. Appointment-side effects of a
// response belong to the WorkflowService, which calls into the ledger inside
// its own transaction.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
	"github.com/RaunoDriveX/drivex-jobflow/internal/repo"
)

// Shop response decisions accepted by Respond.
const (
	DecisionAccept  = "accept"
	DecisionDecline = "decline"
)

// OfferService implements the job offer ledger.
type OfferService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// DefaultTTL is applied when CreateOffer is called with a zero ttl.
	DefaultTTL time.Duration
}

// NewOfferService constructs an OfferService with the standard 24h offer TTL.
func NewOfferService(db *gorm.DB) *OfferService {
	return &OfferService{DB: db, DefaultTTL: 24 * time.Hour}
}

// OfferResponse is the outcome of a shop's response to an offer, including
// the shop's refreshed performance figures for the dashboard.
type OfferResponse struct {
	Offer               *domain.JobOffer
	ResponseTimeMinutes int
	NewAcceptanceRate   float64
	NewPerformanceTier  string
	SiblingsExpired     int64
}

// CreateOffer extends a new offer of price to shopID for an appointment,
// expiring after ttl (DefaultTTL when zero). fromSelection marks offers
// produced by the customer's shop-and-schedule confirmation.
//
// Fails with ErrDuplicateOffer when an un-expired offer already exists for
// the same (appointment, shop), ErrInvalidPrice for a negative price, and
// the usual not-found errors for absent appointment or shop.
func (s *OfferService) CreateOffer(ctx context.Context, appointmentID, shopID string, price float64, ttl time.Duration, fromSelection bool) (*domain.JobOffer, error) {
	return s.createOffer(ctx, s.DB, appointmentID, shopID, price, ttl, fromSelection)
}

func (s *OfferService) createOffer(ctx context.Context, db *gorm.DB, appointmentID, shopID string, price float64, ttl time.Duration, fromSelection bool) (*domain.JobOffer, error) {
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	if ttl <= 0 {
		ttl = s.DefaultTTL
	}
	if _, err := repo.GetAppointment(ctx, db, appointmentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if _, err := repo.GetShop(ctx, db, shopID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	offer := &domain.JobOffer{
		AppointmentID: appointmentID,
		ShopID:        shopID,
		OfferedPrice:  price,
		FromSelection: fromSelection,
		OfferedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if err := repo.CreateOffer(ctx, db, offer); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateOffer
		}
		return nil, err
	}
	return offer, nil
}

// Respond resolves an offer with the shop's decision.
//
// Semantics:
//   - decision must be "accept" or "decline"; otherwise ErrInvalidDecision.
//   - an offer past its expiry is transitioned to expired first and the
//     response is refused with ErrOfferExpired.
//   - a non-offered offer yields ErrAlreadyResponded.
//   - accepting expires every sibling offered row for the same appointment,
//     exactly once, in the same transaction as the accept.
//   - the shop's acceptance counters are updated and returned; the offered
//     price is never mutated by a response.
func (s *OfferService) Respond(ctx context.Context, offerID, decision string, declineReason *string) (*OfferResponse, error) {
	return s.RespondWith(ctx, s.DB, offerID, decision, declineReason)
}

// RespondWith is Respond running against the given handle, so the
// WorkflowService can fold the ledger update into its own transaction.
func (s *OfferService) RespondWith(ctx context.Context, db *gorm.DB, offerID, decision string, declineReason *string) (*OfferResponse, error) {
	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, ErrInvalidDecision
	}

	now := time.Now().UTC()

	// Lazy expiry runs on the root handle, outside the caller's transaction.
	// Returning ErrOfferExpired rolls that transaction back, so an expiry
	// written inside it would be undone and the offer would keep reading as
	// offered until the sweep.
	pre, err := repo.GetOffer(ctx, s.DB, offerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	if pre.Expired(now) {
		if err := repo.MarkOfferExpired(ctx, s.DB, pre.ID, now); err != nil {
			return nil, err
		}
		return nil, ErrOfferExpired
	}

	out := &OfferResponse{}

	err = db.Transaction(func(tx *gorm.DB) error {
		offer, err := repo.GetOffer(ctx, tx, offerID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrOfferNotFound
			}
			return err
		}

		// Expiry between the pre-check and here is left for the sweep; the
		// response is still refused.
		if offer.Expired(now) {
			return ErrOfferExpired
		}

		newStatus := domain.OfferStatusAccepted
		if decision == DecisionDecline {
			newStatus = domain.OfferStatusDeclined
		}
		if err := repo.RespondOffer(ctx, tx, offer.ID, newStatus, declineReason, now); err != nil {
			if errors.Is(err, repo.ErrStale) {
				// Lost the race: someone resolved or swept it first.
				if cur, gerr := repo.GetOffer(ctx, tx, offer.ID); gerr == nil && cur.Status == domain.OfferStatusExpired {
					return ErrOfferExpired
				}
				return ErrAlreadyResponded
			}
			return err
		}

		if newStatus == domain.OfferStatusAccepted {
			n, err := repo.ExpireSiblings(ctx, tx, offer.AppointmentID, offer.ID)
			if err != nil {
				return err
			}
			out.SiblingsExpired = n
		}

		shop, err := repo.RecordOfferOutcome(ctx, tx, offer.ShopID, newStatus == domain.OfferStatusAccepted)
		if err != nil {
			return err
		}

		offer.Status = newStatus
		offer.RespondedAt = &now
		offer.DeclineReason = declineReason
		out.Offer = offer
		out.ResponseTimeMinutes = int(now.Sub(offer.OfferedAt).Minutes())
		out.NewAcceptanceRate = shop.AcceptanceRate()
		out.NewPerformanceTier = shop.PerformanceTier()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SweepExpired transitions every offered row past its expiry to expired and
// returns the number caught. Idempotent and safe to run concurrently; the
// heavy lifting is a single conditional UPDATE.
func (s *OfferService) SweepExpired(ctx context.Context) (int64, error) {
	return repo.SweepExpired(ctx, s.DB, time.Now().UTC())
}

// ListForShop returns a page of a shop's offers with the total count, most
// recent first, for the shop dashboard.
func (s *OfferService) ListForShop(ctx context.Context, shopID string, page, pageSize int) ([]domain.JobOffer, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountOffersForShop(ctx, s.DB, shopID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.JobOffer{}, 0, nil
	}

	items, err := repo.ListOffersForShop(ctx, s.DB, shopID, offset, pageSize)
	return items, total, err
}
