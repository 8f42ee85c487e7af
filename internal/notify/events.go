// Package notify carries workflow side effects out of the request path.
// The engine emits events on every transition; a dispatcher consumes them
// asynchronously and hands them to a delivery backend (email/push provider).
// Delivery is strictly fire-and-forget: a failed or dropped notification
// never rolls back or fails the state transition that produced it.
package notify

import (
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Event types emitted by the workflow engine.
const (
	EventShopSelectionCreated  = "ShopSelectionCreated"
	EventJobOfferCreated       = "JobOfferCreated"
	EventJobOfferAccepted      = "JobOfferAccepted"
	EventJobOfferDeclined      = "JobOfferDeclined"
	EventCostEstimateSubmitted = "CostEstimateSubmitted"
	EventCostApproved          = "CostApproved"
	EventCostRejected          = "CostRejected"
	EventAppointmentScheduled  = "AppointmentScheduled"
	EventAppointmentCancelled  = "AppointmentCancelled"
	EventJobStatusChanged      = "JobStatusChanged"
)

// Event describes one workflow transition worth telling somebody about.
// Amount, when set, is included pre-formatted in the rendered message.
type Event struct {
	Type          string
	AppointmentID string
	ShopID        string
	OfferID       string
	Detail        string
	Amount        *float64
	OccurredAt    time.Time
}

// Message renders a short human-readable line for the delivery backend,
// formatting any monetary amount as localized euros.
func (e Event) Message(tag language.Tag) string {
	out := e.Type
	if e.Detail != "" {
		out += ": " + e.Detail
	}
	if e.Amount != nil {
		p := message.NewPrinter(tag)
		out += " (" + p.Sprintf("%v", currency.Symbol(currency.EUR.Amount(*e.Amount))) + ")"
	}
	return out
}
