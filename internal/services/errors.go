// Package services implements the job workflow engine: the selection
// registry, the offer ledger, and the workflow state machine itself. This
// file centralizes the service-level error values so that every precondition
// violation carries a precise, user-renderable reason instead of a generic
// failure.
//
// The taxonomy mirrors how handlers map errors to HTTP statuses:
// validation (400), not found (404), conflict (409), expired (410/409),
// internal (500). Use the Is* helpers rather than enumerating sentinels at
// call sites.
package services

import "errors"

// Validation errors: malformed input detected before touching state.
var (
	// ErrInvalidToken is returned when a tracking token does not have the
	// exact 32-character URL-safe shape.
	ErrInvalidToken = errors.New("Invalid tracking token")

	// ErrInvalidSchedule is returned for a malformed appointment date
	// ("YYYY-MM-DD") or time ("HH:MM:SS").
	ErrInvalidSchedule = errors.New("Invalid appointment date or time")

	// ErrShopNotOnShortlist is returned when the customer picks a shop the
	// insurer never proposed for this appointment, regardless of the shop
	// existing elsewhere.
	ErrShopNotOnShortlist = errors.New("Selected shop is not one of the available options")

	// ErrTooManyShops is returned when the insurer proposes more than three
	// candidate shops.
	ErrTooManyShops = errors.New("At most three shops can be proposed")

	// ErrNoShops is returned when the insurer proposes an empty shortlist.
	ErrNoShops = errors.New("At least one shop must be proposed")

	// ErrTotalMismatch is returned when a client-supplied estimate total
	// disagrees with the server-side recomputation.
	ErrTotalMismatch = errors.New("Estimate total does not match line items and labor")

	// ErrInvalidEstimate is returned for malformed estimate payloads
	// (negative amounts, non-positive quantities, no line items).
	ErrInvalidEstimate = errors.New("Invalid cost estimate")

	// ErrInvalidPrice is returned for a negative offer price.
	ErrInvalidPrice = errors.New("Offer price must not be negative")

	// ErrInvalidDecision is returned when a shop response is neither
	// "accept" nor "decline".
	ErrInvalidDecision = errors.New("Response must be accept or decline")
)

// Not-found errors.
var (
	ErrAppointmentNotFound = errors.New("Appointment not found")
	ErrOfferNotFound       = errors.New("Job offer not found")
	ErrShopNotFound        = errors.New("Shop not found")
	ErrEstimateNotFound    = errors.New("No cost estimate has been submitted")
)

// Conflict errors: a precondition held by the transition table no longer
// holds, usually because another actor got there first. Callers surface
// these as "someone else already did this"; they are never retried blindly.
var (
	ErrShopAlreadySelected   = errors.New("Shop has already been selected")
	ErrShopsAlreadyProposed  = errors.New("Shops have already been proposed")
	ErrCostAlreadyApproved   = errors.New("Cost has already been approved")
	ErrPriceAlreadySubmitted = errors.New("Price has already been submitted")
	ErrNotAwaitingApproval   = errors.New("Cost is not awaiting customer approval")
	ErrNotAwaitingPrice      = errors.New("Appointment is not awaiting a price")
	ErrNotAwaitingHandover   = errors.New("Appointment is not at customer handover")
	ErrAlreadyResponded      = errors.New("Offer has already been responded to")
	ErrDuplicateOffer        = errors.New("An open offer already exists for this shop")
	ErrSlotUnavailable       = errors.New("Selected time slot is no longer available")
	ErrAlreadyCancelled      = errors.New("Appointment has already been cancelled")
	ErrAlreadyCompleted      = errors.New("Job has already been completed")
	ErrStageConflict         = errors.New("Appointment is not at the required stage")
)

// ErrOfferExpired is returned when a shop responds to an offer past its TTL.
// The offer is lazily transitioned to expired before the response is refused.
var ErrOfferExpired = errors.New("Offer has expired")

var (
	validationErrs = []error{
		ErrInvalidToken, ErrInvalidSchedule, ErrShopNotOnShortlist,
		ErrTooManyShops, ErrNoShops, ErrTotalMismatch, ErrInvalidEstimate,
		ErrInvalidPrice, ErrInvalidDecision,
	}
	notFoundErrs = []error{
		ErrAppointmentNotFound, ErrOfferNotFound, ErrShopNotFound,
		ErrEstimateNotFound,
	}
	conflictErrs = []error{
		ErrShopAlreadySelected, ErrShopsAlreadyProposed, ErrCostAlreadyApproved,
		ErrPriceAlreadySubmitted, ErrNotAwaitingApproval, ErrNotAwaitingPrice,
		ErrNotAwaitingHandover, ErrAlreadyResponded, ErrDuplicateOffer,
		ErrSlotUnavailable, ErrAlreadyCancelled, ErrAlreadyCompleted,
		ErrStageConflict,
	}
)

func isAny(err error, group []error) bool {
	for _, e := range group {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a malformed-input error (HTTP 400).
func IsValidation(err error) bool { return isAny(err, validationErrs) }

// IsNotFound reports whether err is an absent-resource error (HTTP 404).
func IsNotFound(err error) bool { return isAny(err, notFoundErrs) }

// IsConflict reports whether err is a violated-precondition error (HTTP 409).
func IsConflict(err error) bool { return isAny(err, conflictErrs) }

// IsExpired reports whether err is the offer-expired error (HTTP 410).
func IsExpired(err error) bool { return errors.Is(err, ErrOfferExpired) }
