// Insurer HTTP handlers.
//
//   - POST   /appointments/{id}/shops            (propose the shortlist)
//   - DELETE /appointments/{id}/shops/{shopID}   (remove one candidate)
//   - POST   /appointments/{id}/price-review     (approve or reject the estimate)
//   - GET    /stats                              (workflow counters)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
	"github.com/RaunoDriveX/drivex-jobflow/internal/repo"
	"github.com/RaunoDriveX/drivex-jobflow/internal/services"
)

// ProposeShopsRequest is the insurer's shortlist payload. Order matters:
// the first entry gets priority 1.
type ProposeShopsRequest struct {
	Shops []services.ShopPick `json:"shops" binding:"required,min=1,max=3,dive"`
}

// ProposeShopsResponse echoes the recorded shortlist.
type ProposeShopsResponse struct {
	Selections []domain.ShopSelection `json:"selections"`
}

// PriceReviewRequest carries the insurer's verdict on the estimate.
type PriceReviewRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
}

// ProposeShops godoc
// @ID          proposeShops
// @Summary     Propose candidate shops
// @Description Records the insurer's shortlist of up to three shops for a new appointment and opens customer selection.
// @Tags        Insurer
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Appointment ID"
// @Param       body  body  handlers.ProposeShopsRequest  true  "Shortlist (priority order)"
// @Success     201  {object}  handlers.ProposeShopsResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Appointment or shop not found"
// @Failure     409  {object}  handlers.ErrorResponse "Shops already proposed"
// @Router      /appointments/{id}/shops [post]
func (h *Handlers) ProposeShops(c *gin.Context) {
	var req ProposeShopsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "between one and three shops are required")
		return
	}

	sels, err := h.wfSvc.ProposeShops(c.Request.Context(), c.Param("ref"), req.Shops)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, ProposeShopsResponse{Selections: sels})
}

// RemoveShop godoc
// @ID          removeShop
// @Summary     Remove a candidate shop
// @Description Removes one shop from the shortlist and renumbers the remaining priorities. Removing an absent shop is a no-op.
// @Tags        Insurer
// @Produce     json
// @Param       id      path  string  true  "Appointment ID"
// @Param       shopID  path  string  true  "Shop ID"
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Appointment not found"
// @Router      /appointments/{id}/shops/{shopID} [delete]
func (h *Handlers) RemoveShop(c *gin.Context) {
	if err := h.selSvc.Remove(c.Request.Context(), c.Param("ref"), c.Param("shopID")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ReviewPrice godoc
// @ID          reviewPrice
// @Summary     Review the cost estimate
// @Description Approving moves the job to customer cost approval; rejecting deletes the estimate and returns the job to handover for re-pricing.
// @Tags        Insurer
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Appointment ID"
// @Param       body  body  handlers.PriceReviewRequest  true  "Verdict"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Appointment or estimate not found"
// @Failure     409  {object} handlers.ErrorResponse "Stage conflict"
// @Router      /appointments/{id}/price-review [post]
func (h *Handlers) ReviewPrice(c *gin.Context) {
	var req PriceReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "decision must be approve or reject")
		return
	}

	var err error
	if req.Decision == "approve" {
		err = h.wfSvc.ApprovePrice(c.Request.Context(), c.Param("ref"))
	} else {
		err = h.wfSvc.RejectPrice(c.Request.Context(), c.Param("ref"))
	}
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// GetStats godoc
// @ID          getStats
// @Summary     Workflow statistics
// @Description Returns appointment counts by stage and the number of open offers.
// @Tags        Insurer
// @Produce     json
// @Success     200  {object}  repo.WorkflowStats
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := repo.CollectWorkflowStats(c.Request.Context(), h.db, time.Now().UTC())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
