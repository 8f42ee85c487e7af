// Package services – WorkflowService
//
// This file implements the workflow engine: the sole authority for legal
// stage transitions and their side effects. Every transition is a
// conditional update guarded on the current stage (compare-and-swap), so
// two actors racing on the same appointment are serialized by the database
// and the loser fails with a precise conflict error instead of clobbering
// state. Each transition touches only the fields of its own effect; there is
// no blind full-row overwrite anywhere.
//
// Side effects are dispatched, never inlined: transitions publish events to
// an EventPublisher consumed asynchronously by the notification dispatcher,
// and a dispatch failure cannot roll back a committed transition.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
	"github.com/RaunoDriveX/drivex-jobflow/internal/notify"
	"github.com/RaunoDriveX/drivex-jobflow/internal/repo"
)

// workflowEvents counts published workflow events by event type. Not every
// event is a stage transition; offer and pricing events count too.
var workflowEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "workflow_events_total",
		Help: "Total number of workflow events published, by event type.",
	},
	[]string{"event"},
)

func init() {
	prometheus.MustRegister(workflowEvents)
}

// EventPublisher receives workflow events for asynchronous delivery.
// Publish must never block; *notify.Dispatcher satisfies this.
type EventPublisher interface {
	Publish(ev notify.Event)
}

// nopPublisher discards events; used when no dispatcher is wired (tests).
type nopPublisher struct{}

func (nopPublisher) Publish(notify.Event) {}

// WorkflowService is the job workflow engine.
type WorkflowService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Offers is the offer ledger; response mechanics run through it inside
	// the engine's transactions.
	Offers *OfferService
	// Events receives transition events (fire-and-forget).
	Events EventPublisher
	// OfferTTL is the expiry applied to offers the engine creates.
	OfferTTL time.Duration
}

// NewWorkflowService constructs the engine with the standard 24h offer TTL.
// A nil events publisher is replaced with a discarding one.
func NewWorkflowService(db *gorm.DB, offers *OfferService, events EventPublisher) *WorkflowService {
	if events == nil {
		events = nopPublisher{}
	}
	return &WorkflowService{DB: db, Offers: offers, Events: events, OfferTTL: 24 * time.Hour}
}

func (s *WorkflowService) publish(ev notify.Event) {
	s.Events.Publish(ev)
	workflowEvents.WithLabelValues(ev.Type).Inc()
}

//
// Intake
//

// DamageReport is the customer's initial submission.
type DamageReport struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	VehicleMake   string
	VehicleModel  string
	VehicleYear   int
	VehiclePlate  string
	ServiceType   string
	DamageType    string
}

// SubmitDamageReport creates a new appointment at stage new with a fresh
// tracking code and token. No shop is assigned yet.
func (s *WorkflowService) SubmitDamageReport(ctx context.Context, rep DamageReport) (*domain.Appointment, error) {
	appt := &domain.Appointment{
		CustomerName:  strings.TrimSpace(rep.CustomerName),
		CustomerEmail: strings.TrimSpace(rep.CustomerEmail),
		CustomerPhone: strings.TrimSpace(rep.CustomerPhone),
		VehicleMake:   strings.TrimSpace(rep.VehicleMake),
		VehicleModel:  strings.TrimSpace(rep.VehicleModel),
		VehicleYear:   rep.VehicleYear,
		VehiclePlate:  strings.TrimSpace(rep.VehiclePlate),
		ServiceType:   strings.TrimSpace(rep.ServiceType),
		DamageType:    strings.TrimSpace(rep.DamageType),
		WorkflowStage: domain.StageNew,
	}
	if err := repo.CreateAppointment(ctx, s.DB, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// GetByRef resolves an appointment by internal ID, short tracking code, or
// tracking token.
func (s *WorkflowService) GetByRef(ctx context.Context, ref string) (*domain.Appointment, error) {
	appt, err := repo.GetAppointmentByRef(ctx, s.DB, ref)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return appt, nil
}

//
// Insurer: shop shortlist
//

// ShopPick is one insurer-proposed candidate shop.
type ShopPick struct {
	ShopID         string  `json:"shop_id"`
	EstimatedPrice float64 `json:"estimated_price"`
	DistanceKm     float64 `json:"distance_km"`
}

// ProposeShops records the insurer's shortlist (1..3 shops, priorities in
// the given order) and advances the appointment from new to shop_selection.
//
// Preconditions: the appointment is at stage new and every picked shop
// exists in the directory. A repeated proposal fails with
// ErrShopsAlreadyProposed.
func (s *WorkflowService) ProposeShops(ctx context.Context, appointmentID string, picks []ShopPick) ([]domain.ShopSelection, error) {
	if len(picks) == 0 {
		return nil, ErrNoShops
	}
	if len(picks) > 3 {
		return nil, ErrTooManyShops
	}

	appt, err := repo.GetAppointment(ctx, s.DB, appointmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if appt.WorkflowStage != domain.StageNew {
		return nil, ErrShopsAlreadyProposed
	}

	rows := make([]domain.ShopSelection, len(picks))
	for i, pick := range picks {
		if pick.EstimatedPrice < 0 {
			return nil, ErrInvalidPrice
		}
		shop, err := repo.GetShop(ctx, s.DB, pick.ShopID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrShopNotFound
			}
			return nil, err
		}
		rows[i] = domain.ShopSelection{
			ShopID:         shop.ID,
			ShopName:       shop.Name,
			EstimatedPrice: pick.EstimatedPrice,
			DistanceKm:     pick.DistanceKm,
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateSelections(ctx, tx, appt.ID, rows); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrShopsAlreadyProposed
			}
			return err
		}
		if err := repo.UpdateAppointmentStage(ctx, tx, appt.ID,
			[]domain.WorkflowStage{domain.StageNew},
			map[string]any{"workflow_stage": domain.StageShopSelection},
		); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return ErrShopsAlreadyProposed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notify.Event{
		Type:          notify.EventShopSelectionCreated,
		AppointmentID: appt.ID,
		Detail:        appt.TrackingCode,
	})
	return rows, nil
}

//
// Customer: shop and schedule confirmation
//

// SelectShopAndSchedule records the customer's pick of one shortlisted shop
// together with the desired date and time. It advances shop_selection to
// awaiting_shop_response, books the shop's availability slot, and extends a
// job offer at the shortlist's estimated price.
//
// The stage guard makes the operation single-shot: a repeat of the same
// payload fails with ErrShopAlreadySelected, never double-booking.
func (s *WorkflowService) SelectShopAndSchedule(ctx context.Context, token, shopID, date, timeOfDay string) (*domain.Appointment, *domain.JobOffer, error) {
	if !domain.ValidTrackingToken(token) {
		return nil, nil, ErrInvalidToken
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, nil, ErrInvalidSchedule
	}
	if _, err := time.Parse("15:04:05", timeOfDay); err != nil {
		return nil, nil, ErrInvalidSchedule
	}

	appt, err := repo.GetAppointmentByToken(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrAppointmentNotFound
		}
		return nil, nil, err
	}
	if appt.WorkflowStage != domain.StageShopSelection {
		return nil, nil, ErrShopAlreadySelected
	}

	sel, err := repo.GetSelection(ctx, s.DB, appt.ID, shopID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrShopNotOnShortlist
		}
		return nil, nil, err
	}

	var offer *domain.JobOffer
	now := time.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateAppointmentStage(ctx, tx, appt.ID,
			[]domain.WorkflowStage{domain.StageShopSelection},
			map[string]any{
				"workflow_stage":        domain.StageAwaitingShopResponse,
				"shop_id":               sel.ShopID,
				"shop_name":             sel.ShopName,
				"appointment_date":      date,
				"appointment_time":      timeOfDay,
				"shop_selected_at":      now,
				"customer_confirmed_at": now,
			},
		); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return ErrShopAlreadySelected
			}
			return err
		}

		if err := repo.BookSlot(ctx, tx, sel.ShopID, date, timeOfDay, appt.ID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrSlotUnavailable
			}
			return err
		}

		var err error
		offer, err = s.Offers.createOffer(ctx, tx, appt.ID, sel.ShopID, sel.EstimatedPrice, s.OfferTTL, true)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	appt, err = repo.GetAppointment(ctx, s.DB, appt.ID)
	if err != nil {
		return nil, nil, err
	}

	s.publish(notify.Event{
		Type:          notify.EventJobOfferCreated,
		AppointmentID: appt.ID,
		ShopID:        sel.ShopID,
		OfferID:       offer.ID,
		Amount:        &offer.OfferedPrice,
	})
	return appt, offer, nil
}

//
// Shop: offer response
//

// ShopRespond resolves a job offer and applies the appointment-side effects
// of the decision, all in one transaction:
//
//   - accept, selection flow: the appointment advances to damage_report and
//     its total cost is fixed to the offered price; sibling offers expire.
//   - accept, platform-routed: the appointment is assigned to the shop and
//     advances to customer_handover; pricing comes later.
//   - decline, selection flow: the insurer's shortlist entry for the shop
//     is deleted, the booked slot is released, and the appointment returns
//     to shop_selection so the customer can pick again.
//   - decline, platform-routed: the appointment is left queryable for
//     re-routing; only the offer is resolved.
func (s *WorkflowService) ShopRespond(ctx context.Context, offerID, decision string, declineReason *string) (*OfferResponse, error) {
	var out *OfferResponse

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resp, err := s.Offers.RespondWith(ctx, tx, offerID, decision, declineReason)
		if err != nil {
			return err
		}
		out = resp
		offer := resp.Offer

		if offer.Status == domain.OfferStatusAccepted {
			return s.applyAccept(ctx, tx, offer)
		}
		return s.applyDecline(ctx, tx, offer)
	})
	if err != nil {
		return nil, err
	}

	ev := notify.Event{
		Type:          notify.EventJobOfferAccepted,
		AppointmentID: out.Offer.AppointmentID,
		ShopID:        out.Offer.ShopID,
		OfferID:       out.Offer.ID,
		Amount:        &out.Offer.OfferedPrice,
	}
	if out.Offer.Status == domain.OfferStatusDeclined {
		ev.Type = notify.EventJobOfferDeclined
		if declineReason != nil {
			ev.Detail = *declineReason
		}
	}
	s.publish(ev)
	return out, nil
}

func (s *WorkflowService) applyAccept(ctx context.Context, tx *gorm.DB, offer *domain.JobOffer) error {
	if offer.FromSelection {
		if err := repo.UpdateAppointmentStage(ctx, tx, offer.AppointmentID,
			[]domain.WorkflowStage{domain.StageAwaitingShopResponse},
			map[string]any{"workflow_stage": domain.StageDamageReport},
		); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return ErrStageConflict
			}
			return err
		}
		// Price was agreed when the customer picked the shop; a concurrent
		// estimate would have priced it already, in which case it stands.
		if err := repo.SetAppointmentTotalCost(ctx, tx, offer.AppointmentID, offer.OfferedPrice); err != nil &&
			!errors.Is(err, repo.ErrStale) {
			return err
		}
		return nil
	}

	// Platform-routed: the shop becomes assigned now.
	shop, err := repo.GetShop(ctx, tx, offer.ShopID)
	if err != nil {
		return err
	}
	if err := repo.UpdateAppointmentStage(ctx, tx, offer.AppointmentID,
		[]domain.WorkflowStage{domain.StageNew, domain.StageShopSelection, domain.StageAwaitingShopResponse},
		map[string]any{
			"workflow_stage": domain.StageCustomerHandover,
			"shop_id":        shop.ID,
			"shop_name":      shop.Name,
		},
	); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return ErrStageConflict
		}
		return err
	}
	return nil
}

func (s *WorkflowService) applyDecline(ctx context.Context, tx *gorm.DB, offer *domain.JobOffer) error {
	if !offer.FromSelection {
		// Platform-routed: nothing to unwind on the appointment.
		return nil
	}

	// The declined shop disappears from the insurer's shortlist (observed
	// platform behavior) and the customer gets to pick again.
	if err := repo.DeleteSelection(ctx, tx, offer.AppointmentID, offer.ShopID); err != nil {
		return err
	}
	if err := repo.ReleaseSlots(ctx, tx, offer.AppointmentID); err != nil {
		return err
	}
	if err := repo.UpdateAppointmentStage(ctx, tx, offer.AppointmentID,
		[]domain.WorkflowStage{domain.StageAwaitingShopResponse},
		map[string]any{
			"workflow_stage":        domain.StageShopSelection,
			"shop_id":               nil,
			"shop_name":             nil,
			"appointment_date":      nil,
			"appointment_time":      nil,
			"shop_selected_at":      nil,
			"customer_confirmed_at": nil,
		},
	); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return ErrStageConflict
		}
		return err
	}
	return nil
}

//
// Handover and pricing
//

// RecordHandover marks the vehicle handed over and the damage documented,
// advancing customer_handover to damage_report.
func (s *WorkflowService) RecordHandover(ctx context.Context, appointmentID string) error {
	if err := repo.UpdateAppointmentStage(ctx, s.DB, appointmentID,
		[]domain.WorkflowStage{domain.StageCustomerHandover},
		map[string]any{"workflow_stage": domain.StageDamageReport},
	); err != nil {
		if errors.Is(err, repo.ErrStale) {
			if _, gerr := repo.GetAppointment(ctx, s.DB, appointmentID); errors.Is(gerr, repo.ErrNotFound) {
				return ErrAppointmentNotFound
			}
			return ErrNotAwaitingHandover
		}
		return err
	}
	s.publish(notify.Event{
		Type:          notify.EventJobStatusChanged,
		AppointmentID: appointmentID,
		Detail:        string(domain.StageDamageReport),
	})
	return nil
}

// PriceSubmission is a line-itemized price breakdown from a shop or the
// insurer.
type PriceSubmission struct {
	AppointmentID string
	ShopID        string
	Source        string // "shop" or "insurer"
	LineItems     []domain.CostLine
	LaborCost     float64
	// ClientTotal, when set, is checked against the server-side
	// recomputation and rejected on mismatch.
	ClientTotal *float64
	Notes       string
}

// SubmitPrice records the cost estimate for an appointment and fixes the
// appointment's total cost. The stage does not advance: the estimate awaits
// insurer review.
//
// Preconditions: stage is customer_handover or damage_report, and the
// appointment has not been priced yet. Totals are always recomputed from the
// line items and labor; a disagreeing client total is rejected.
func (s *WorkflowService) SubmitPrice(ctx context.Context, sub PriceSubmission) (*domain.CostEstimate, error) {
	if len(sub.LineItems) == 0 || sub.LaborCost < 0 {
		return nil, ErrInvalidEstimate
	}
	parts := 0.0
	for _, line := range sub.LineItems {
		if line.Quantity <= 0 || line.UnitPrice < 0 || strings.TrimSpace(line.Name) == "" {
			return nil, ErrInvalidEstimate
		}
		parts += line.Total()
	}
	parts = domain.RoundCents(parts)
	labor := domain.RoundCents(sub.LaborCost)
	total := domain.RoundCents(parts + labor)
	if sub.ClientTotal != nil && domain.RoundCents(*sub.ClientTotal) != total {
		return nil, ErrTotalMismatch
	}
	source := sub.Source
	if source != "insurer" {
		source = "shop"
	}

	appt, err := repo.GetAppointment(ctx, s.DB, sub.AppointmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if appt.WorkflowStage != domain.StageCustomerHandover && appt.WorkflowStage != domain.StageDamageReport {
		return nil, ErrNotAwaitingPrice
	}
	if appt.TotalCost != nil {
		return nil, ErrPriceAlreadySubmitted
	}

	est := &domain.CostEstimate{
		AppointmentID: appt.ID,
		ShopID:        sub.ShopID,
		Source:        source,
		LineItems:     sub.LineItems,
		LaborCost:     labor,
		PartsCost:     parts,
		TotalCost:     total,
		Notes:         sub.Notes,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateEstimate(ctx, tx, est); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrPriceAlreadySubmitted
			}
			return err
		}
		if err := repo.SetAppointmentTotalCost(ctx, tx, appt.ID, total); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return ErrPriceAlreadySubmitted
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notify.Event{
		Type:          notify.EventCostEstimateSubmitted,
		AppointmentID: appt.ID,
		ShopID:        sub.ShopID,
		Amount:        &est.TotalCost,
	})
	return est, nil
}

// ApprovePrice is the insurer's approval of the submitted estimate,
// advancing damage_report to cost_approval and notifying the customer.
func (s *WorkflowService) ApprovePrice(ctx context.Context, appointmentID string) error {
	appt, err := repo.GetAppointment(ctx, s.DB, appointmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		return err
	}
	var amount *float64
	est, err := repo.GetEstimate(ctx, s.DB, appt.ID)
	switch {
	case err == nil:
		amount = &est.TotalCost
	case errors.Is(err, repo.ErrNotFound):
		// Selection-flow jobs are priced by the accepted offer and carry no
		// estimate row; the agreed total stands in for it.
		if appt.TotalCost == nil {
			return ErrEstimateNotFound
		}
		amount = appt.TotalCost
	default:
		return err
	}

	if err := repo.UpdateAppointmentStage(ctx, s.DB, appt.ID,
		[]domain.WorkflowStage{domain.StageDamageReport},
		map[string]any{"workflow_stage": domain.StageCostApproval},
	); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return ErrStageConflict
		}
		return err
	}

	s.publish(notify.Event{
		Type:          notify.EventCostApproved,
		AppointmentID: appt.ID,
		Amount:        amount,
	})
	return nil
}

// RejectPrice is the insurer's rejection: the estimate is deleted, the
// appointment's total cost is cleared, and the job returns to
// customer_handover so the shop can price again.
func (s *WorkflowService) RejectPrice(ctx context.Context, appointmentID string) error {
	appt, err := repo.GetAppointment(ctx, s.DB, appointmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		return err
	}
	est, err := repo.GetEstimate(ctx, s.DB, appt.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrEstimateNotFound
		}
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateAppointmentStage(ctx, tx, appt.ID,
			[]domain.WorkflowStage{domain.StageDamageReport},
			map[string]any{"workflow_stage": domain.StageCustomerHandover},
		); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return ErrStageConflict
			}
			return err
		}
		if err := repo.DeleteEstimate(ctx, tx, appt.ID); err != nil {
			return err
		}
		return repo.ClearAppointmentTotalCost(ctx, tx, appt.ID)
	})
	if err != nil {
		return err
	}

	s.publish(notify.Event{
		Type:          notify.EventCostRejected,
		AppointmentID: appt.ID,
		ShopID:        est.ShopID,
	})
	return nil
}

//
// Customer: cost approval
//

// ApproveCost records the customer's one-time approval of the final cost,
// advancing cost_approval to scheduled. The conditional update on the
// approval flag makes a repeated approval fail with ErrCostAlreadyApproved
// without any state change.
func (s *WorkflowService) ApproveCost(ctx context.Context, token string) (*domain.Appointment, error) {
	if !domain.ValidTrackingToken(token) {
		return nil, ErrInvalidToken
	}
	appt, err := repo.GetAppointmentByToken(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if appt.CustomerCostApproved {
		return nil, ErrCostAlreadyApproved
	}
	if appt.WorkflowStage != domain.StageCostApproval {
		return nil, ErrNotAwaitingApproval
	}

	if err := repo.MarkCostApproved(ctx, s.DB, appt.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return nil, ErrCostAlreadyApproved
		}
		return nil, err
	}

	appt, err = repo.GetAppointment(ctx, s.DB, appt.ID)
	if err != nil {
		return nil, err
	}
	s.publish(notify.Event{
		Type:          notify.EventAppointmentScheduled,
		AppointmentID: appt.ID,
		Amount:        appt.TotalCost,
	})
	return appt, nil
}

//
// Job execution
//

// StartJob moves a scheduled job to in_progress.
func (s *WorkflowService) StartJob(ctx context.Context, appointmentID string) error {
	return s.advanceJob(ctx, appointmentID, domain.StageScheduled, domain.StageInProgress, "started_at")
}

// CompleteJob moves an in-progress job to completed.
func (s *WorkflowService) CompleteJob(ctx context.Context, appointmentID string) error {
	return s.advanceJob(ctx, appointmentID, domain.StageInProgress, domain.StageCompleted, "completed_at")
}

func (s *WorkflowService) advanceJob(ctx context.Context, appointmentID string, from, to domain.WorkflowStage, stampCol string) error {
	err := repo.UpdateAppointmentStage(ctx, s.DB, appointmentID,
		[]domain.WorkflowStage{from},
		map[string]any{"workflow_stage": to, stampCol: time.Now().UTC()},
	)
	if err != nil {
		if !errors.Is(err, repo.ErrStale) {
			return err
		}
		appt, gerr := repo.GetAppointment(ctx, s.DB, appointmentID)
		if gerr != nil {
			if errors.Is(gerr, repo.ErrNotFound) {
				return ErrAppointmentNotFound
			}
			return gerr
		}
		switch appt.WorkflowStage {
		case domain.StageCompleted:
			return ErrAlreadyCompleted
		case domain.StageCancelled:
			return ErrAlreadyCancelled
		default:
			return ErrStageConflict
		}
	}

	s.publish(notify.Event{
		Type:          notify.EventJobStatusChanged,
		AppointmentID: appointmentID,
		Detail:        string(domain.StageStatus(to)),
	})
	return nil
}

//
// Cancellation
//

// Cancel terminates the workflow from any non-terminal stage, releasing any
// booked availability slot and expiring any open offers. Completed jobs
// cannot be cancelled; cancelling twice is a conflict.
func (s *WorkflowService) Cancel(ctx context.Context, appointmentID, reason string) error {
	appt, err := repo.GetAppointment(ctx, s.DB, appointmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		return err
	}
	switch appt.WorkflowStage {
	case domain.StageCompleted:
		return ErrAlreadyCompleted
	case domain.StageCancelled:
		return ErrAlreadyCancelled
	}

	nonTerminal := []domain.WorkflowStage{
		domain.StageNew, domain.StageShopSelection, domain.StageAwaitingShopResponse,
		domain.StageCustomerHandover, domain.StageDamageReport, domain.StageCostApproval,
		domain.StageScheduled, domain.StageInProgress,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateAppointmentStage(ctx, tx, appt.ID, nonTerminal,
			map[string]any{
				"workflow_stage": domain.StageCancelled,
				"cancelled_at":   time.Now().UTC(),
				"cancel_reason":  reason,
			},
		); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return ErrAlreadyCancelled
			}
			return err
		}
		if err := repo.ReleaseSlots(ctx, tx, appt.ID); err != nil {
			return err
		}
		// Any open offers die with the job.
		_, err := repo.ExpireSiblings(ctx, tx, appt.ID, "")
		return err
	})
	if err != nil {
		return err
	}

	s.publish(notify.Event{
		Type:          notify.EventAppointmentCancelled,
		AppointmentID: appt.ID,
		Detail:        reason,
	})
	return nil
}
