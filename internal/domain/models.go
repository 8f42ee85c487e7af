// Package domain defines the persistence models for appointments, insurer
// shop selections, job offers, cost estimates, shops, and availability slots.
// These types are mapped with GORM and form the core data layer of the job
// workflow engine.
package domain

import (
	"math"
	"time"
)

// Appointment represents one reported glass-damage job. It is created when a
// customer submits a damage report and is mutated by the insurer (shop
// shortlist), the shop (offer response, pricing) and the customer (shop and
// schedule confirmation, cost approval) as the workflow advances.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TrackingCode: short human-readable reference shown to the customer.
//   - TrackingToken: 32-char opaque token for unauthenticated customer access.
//   - WorkflowStage: current stage of the job (see stage.go); the single
//     source of truth for workflow progress. JobStatus is always derived
//     from it via StageStatus, never written independently.
//   - ShopID/ShopName: nil until a shop has been assigned (stage past
//     shop_selection). No "pending" sentinel value is stored.
//   - AppointmentDate/AppointmentTime: nil until the customer confirms a
//     schedule ("YYYY-MM-DD" / "HH:MM:SS").
//   - TotalCost: nil until priced by an accepted offer or a cost estimate.
type Appointment struct {
	ID            string `json:"id"             gorm:"type:char(36);primaryKey"`
	TrackingCode  string `json:"tracking_code"  gorm:"type:varchar(16);not null;uniqueIndex:ux_appt_code"`
	TrackingToken string `json:"-"              gorm:"type:char(32);not null;uniqueIndex:ux_appt_token"`

	CustomerName  string `json:"customer_name"  gorm:"type:varchar(128);not null"`
	CustomerEmail string `json:"customer_email" gorm:"type:varchar(128);not null"`
	CustomerPhone string `json:"customer_phone" gorm:"type:varchar(32)"`

	VehicleMake  string `json:"vehicle_make"  gorm:"type:varchar(64);not null"`
	VehicleModel string `json:"vehicle_model" gorm:"type:varchar(64);not null"`
	VehicleYear  int    `json:"vehicle_year"`
	VehiclePlate string `json:"vehicle_plate" gorm:"type:varchar(16)"`

	ServiceType string `json:"service_type" gorm:"type:varchar(32);not null"`
	DamageType  string `json:"damage_type"  gorm:"type:varchar(32);not null"`

	WorkflowStage WorkflowStage `json:"workflow_stage" gorm:"type:varchar(32);not null;index"`

	ShopID   *string `json:"shop_id,omitempty"   gorm:"type:char(36);index"`
	ShopName *string `json:"shop_name,omitempty" gorm:"type:varchar(128)"`

	AppointmentDate *string `json:"appointment_date,omitempty" gorm:"type:varchar(10)"`
	AppointmentTime *string `json:"appointment_time,omitempty" gorm:"type:varchar(8)"`

	TotalCost            *float64 `json:"total_cost,omitempty" gorm:"type:decimal(10,2)"`
	CustomerCostApproved bool     `json:"customer_cost_approved"`

	ShopSelectedAt      *time.Time `json:"shop_selected_at,omitempty"`
	CustomerConfirmedAt *time.Time `json:"customer_confirmed_at,omitempty"`
	CostApprovedAt      *time.Time `json:"cost_approved_at,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CancelReason        *string    `json:"cancel_reason,omitempty" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Appointment.
func (Appointment) TableName() string { return "appointments" }

// JobStatus returns the coarse job status derived from the workflow stage.
func (a *Appointment) JobStatus() JobStatus { return StageStatus(a.WorkflowStage) }

// Shop is a read-only directory entry for a repair shop, including the
// capability flags the insurer filters on and the acceptance counters that
// feed the performance tier shown on the shop dashboard.
type Shop struct {
	ID    string `json:"id"    gorm:"type:char(36);primaryKey"`
	Name  string `json:"name"  gorm:"type:varchar(128);not null"`
	Email string `json:"email" gorm:"type:varchar(128)"`
	Phone string `json:"phone" gorm:"type:varchar(32)"`
	City  string `json:"city"  gorm:"type:varchar(64)"`

	MobileService   bool `json:"mobile_service"`
	AdasCalibration bool `json:"adas_calibration"`

	// Counters maintained by offer responses; AcceptanceRate and
	// PerformanceTier are derived from them.
	JobsOffered  int `json:"jobs_offered"`
	JobsAccepted int `json:"jobs_accepted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Shop.
func (Shop) TableName() string { return "shops" }

// AcceptanceRate returns the share of responded offers this shop accepted,
// rounded to 2 decimal places. Zero offers yields 0.
func (s *Shop) AcceptanceRate() float64 {
	if s.JobsOffered == 0 {
		return 0
	}
	return RoundCents(float64(s.JobsAccepted) / float64(s.JobsOffered))
}

// PerformanceTier buckets the acceptance rate: premium >= 0.9,
// standard >= 0.7, probation below.
func (s *Shop) PerformanceTier() string {
	switch rate := s.AcceptanceRate(); {
	case s.JobsOffered == 0:
		return "standard" // no history yet
	case rate >= 0.9:
		return "premium"
	case rate >= 0.7:
		return "standard"
	default:
		return "probation"
	}
}

// ShopSelection records one insurer-proposed candidate shop for an
// appointment. At most three selections exist per appointment and their
// PriorityOrder values form a contiguous 1..N sequence; removals renumber
// the survivors.
type ShopSelection struct {
	ID             string  `json:"id"              gorm:"type:char(36);primaryKey"`
	AppointmentID  string  `json:"appointment_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_selection_appt_shop,priority:1"`
	ShopID         string  `json:"shop_id"         gorm:"type:char(36);not null;uniqueIndex:ux_selection_appt_shop,priority:2"`
	ShopName       string  `json:"shop_name"       gorm:"type:varchar(128);not null"`
	PriorityOrder  int     `json:"priority_order"  gorm:"not null"`
	EstimatedPrice float64 `json:"estimated_price" gorm:"type:decimal(10,2);not null"`
	DistanceKm     float64 `json:"distance_km"     gorm:"type:decimal(6,1)"`

	CreatedAt time.Time `json:"created_at"`

	Appointment Appointment `json:"-" gorm:"foreignKey:AppointmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ShopSelection.
func (ShopSelection) TableName() string { return "insurer_shop_selections" }

// Offer statuses. An offer is created as offered and transitions exactly once
// to accepted, declined, or expired; all three are terminal.
const (
	OfferStatusOffered  = "offered"
	OfferStatusAccepted = "accepted"
	OfferStatusDeclined = "declined"
	OfferStatusExpired  = "expired"
)

// JobOffer is a concrete price/schedule offer extended to exactly one shop
// for one appointment, with an expiry. FromSelection marks offers created by
// the customer's shop-and-schedule confirmation: declining such an offer also
// removes the insurer's shortlist entry for that shop (observed platform
// behavior), while a platform-routed offer leaves the appointment queryable
// for re-routing.
type JobOffer struct {
	ID            string  `json:"id"             gorm:"type:char(36);primaryKey"`
	AppointmentID string  `json:"appointment_id" gorm:"type:char(36);not null;index"`
	ShopID        string  `json:"shop_id"        gorm:"type:char(36);not null;index"`
	OfferedPrice  float64 `json:"offered_price"  gorm:"type:decimal(10,2);not null"`
	Status        string  `json:"status"         gorm:"type:varchar(16);not null;index;check:status IN ('offered','accepted','declined','expired')"`
	FromSelection bool    `json:"from_selection"`

	OfferedAt     time.Time  `json:"offered_at"`
	ExpiresAt     time.Time  `json:"expires_at" gorm:"index"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	DeclineReason *string    `json:"decline_reason,omitempty" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Appointment Appointment `json:"-" gorm:"foreignKey:AppointmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for JobOffer.
func (JobOffer) TableName() string { return "job_offers" }

// Expired reports whether the offer is past its expiry at the given instant
// while still in the offered state.
func (o *JobOffer) Expired(now time.Time) bool {
	return o.Status == OfferStatusOffered && !now.Before(o.ExpiresAt)
}

// CostLine is one line item of a cost estimate.
type CostLine struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Total returns quantity * unit price rounded to cents.
func (l CostLine) Total() float64 { return RoundCents(float64(l.Quantity) * l.UnitPrice) }

// CostEstimate is a line-itemized price breakdown submitted by a shop (or the
// insurer) for an appointment. PartsCost and TotalCost are always recomputed
// server-side from the line items and labor; a client-supplied total that
// disagrees is rejected before the row is written. At most one estimate per
// appointment is active and drives Appointment.TotalCost; insurer rejection
// deletes the row.
type CostEstimate struct {
	ID            string `json:"id"             gorm:"type:char(36);primaryKey"`
	AppointmentID string `json:"appointment_id" gorm:"type:char(36);not null;uniqueIndex:ux_estimate_appt"`
	ShopID        string `json:"shop_id"        gorm:"type:char(36)"`
	Source        string `json:"source"         gorm:"type:varchar(16);not null;check:source IN ('shop','insurer')"`

	LineItems []CostLine `json:"line_items" gorm:"serializer:json"`
	LaborCost float64    `json:"labor_cost" gorm:"type:decimal(10,2);not null"`
	PartsCost float64    `json:"parts_cost" gorm:"type:decimal(10,2);not null"`
	TotalCost float64    `json:"total_cost" gorm:"type:decimal(10,2);not null"`
	Notes     string     `json:"notes"      gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`

	Appointment Appointment `json:"-" gorm:"foreignKey:AppointmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CostEstimate.
func (CostEstimate) TableName() string { return "insurer_cost_estimates" }

// AvailabilitySlot books one shop time slot for one appointment. The unique
// index over (shop_id, date, time_slot) is the booking guard: a second insert
// for the same slot fails at the database and surfaces as a conflict.
type AvailabilitySlot struct {
	ID            string `json:"id"             gorm:"type:char(36);primaryKey"`
	ShopID        string `json:"shop_id"        gorm:"type:char(36);not null;uniqueIndex:ux_slot,priority:1"`
	Date          string `json:"date"           gorm:"type:varchar(10);not null;uniqueIndex:ux_slot,priority:2"`
	TimeSlot      string `json:"time_slot"      gorm:"type:varchar(8);not null;uniqueIndex:ux_slot,priority:3"`
	AppointmentID string `json:"appointment_id" gorm:"type:char(36);not null;index"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for AvailabilitySlot.
func (AvailabilitySlot) TableName() string { return "shop_availability" }

// RoundCents rounds a monetary amount half away from zero to 2 decimal places.
// All persisted amounts pass through it so totals compare exactly.
//
// Rounding happens in integer-cents space with a small nudge toward the
// rounding direction: half-cent literals like 1.005 sit just below the
// midpoint in float64 and would otherwise round down.
func RoundCents(v float64) float64 {
	return math.Round(v*100+math.Copysign(1e-9, v)) / 100
}
