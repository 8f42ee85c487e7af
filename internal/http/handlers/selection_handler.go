// Customer shop-selection HTTP handlers.
//
// This file exposes the unauthenticated, token-addressed customer flow:
//   - GET  /selection/{token}   (appointment summary + proposed shops)
//   - POST /selection            (select_shop_and_schedule or approve_cost)
//
// The tracking token is the customer's only credential. The page fetch
// carries it in the URL; actions carry it in the body. Both validate its
// shape before touching the database and answer 404 for unknown tokens
// without revealing whether the token was well-formed.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
	"github.com/RaunoDriveX/drivex-jobflow/internal/services"
)

// SelectionAction values accepted by PostSelection.
const (
	actionSelectShop  = "select_shop_and_schedule"
	actionApproveCost = "approve_cost"
)

// SelectionPageResponse is the customer's view of the selection page.
type SelectionPageResponse struct {
	Appointment AppointmentView           `json:"appointment"`
	Shops       []services.CustomerOption `json:"shops"`
}

// SelectionActionRequest is the JSON payload for customer actions.
// For select_shop_and_schedule, shop_id, appointment_date, and
// appointment_time are required; approve_cost takes only the token.
type SelectionActionRequest struct {
	TrackingToken   string `json:"tracking_token" binding:"required"`
	Action          string `json:"action" binding:"required,oneof=select_shop_and_schedule approve_cost"`
	ShopID          string `json:"shop_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
}

// SelectionActionResponse acknowledges a customer action and reports the
// stage the appointment moved to.
type SelectionActionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	NextStage string `json:"next_stage"`
}

// GetSelection godoc
// @ID          getSelection
// @Summary     Customer selection page
// @Description Returns the appointment summary and the insurer-proposed shops, ordered by priority.
// @Tags        Selection
// @Produce     json
// @Param       token  path  string  true  "Tracking token"
// @Success     200  {object}  handlers.SelectionPageResponse
// @Failure     404  {object}  handlers.ErrorResponse "Unknown token"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /selection/{token} [get]
func (h *Handlers) GetSelection(c *gin.Context) {
	token := c.Param("token")
	if !domain.ValidTrackingToken(token) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, services.ErrAppointmentNotFound.Error())
		return
	}

	appt, err := h.wfSvc.GetByRef(c.Request.Context(), token)
	if err != nil {
		failErr(c, err)
		return
	}

	shops, err := h.selSvc.GetForCustomer(c.Request.Context(), appt.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SelectionPageResponse{
		Appointment: viewOf(appt),
		Shops:       shops,
	})
}

// PostSelection godoc
// @ID          postSelection
// @Summary     Customer selection action
// @Description Executes a customer action: select_shop_and_schedule confirms a shop and schedule; approve_cost approves the final cost.
// @Tags        Selection
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SelectionActionRequest  true  "Action payload"
// @Success     200  {object}  handlers.SelectionActionResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Unknown token"
// @Failure     409  {object}  handlers.ErrorResponse "Already selected / already approved"
// @Router      /selection [post]
func (h *Handlers) PostSelection(c *gin.Context) {
	var req SelectionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action must be select_shop_and_schedule or approve_cost")
		return
	}

	switch req.Action {
	case actionSelectShop:
		if req.ShopID == "" || req.AppointmentDate == "" || req.AppointmentTime == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "shop_id, appointment_date and appointment_time are required")
			return
		}
		appt, _, err := h.wfSvc.SelectShopAndSchedule(
			c.Request.Context(), req.TrackingToken, req.ShopID, req.AppointmentDate, req.AppointmentTime)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, SelectionActionResponse{
			Success:   true,
			Message:   "Shop selected and appointment scheduled",
			NextStage: string(appt.WorkflowStage),
		})

	case actionApproveCost:
		appt, err := h.wfSvc.ApproveCost(c.Request.Context(), req.TrackingToken)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, SelectionActionResponse{
			Success:   true,
			Message:   "Cost approved",
			NextStage: string(appt.WorkflowStage),
		})
	}
}
