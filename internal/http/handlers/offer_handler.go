// Shop-facing HTTP handlers: job offers, pricing, and the shop directory.
//
//   - POST /job-response                  (accept or decline an offer)
//   - GET  /shops                         (directory, paginated)
//   - GET  /shops/{id}                    (directory entry + performance)
//   - GET  /shops/{id}/offers             (offer ledger for a shop, paginated)
//   - POST /appointments/{id}/estimate    (submit a cost estimate)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
	"github.com/RaunoDriveX/drivex-jobflow/internal/repo"
	"github.com/RaunoDriveX/drivex-jobflow/internal/services"
)

// JobResponseRequest is the shop's single-shot answer to a job offer.
// CounterOffer and Notes are accepted from the dashboard payload but are
// not persisted; a counter-offer is negotiated off-platform today.
type JobResponseRequest struct {
	JobOfferID    string   `json:"jobOfferId" binding:"required"`
	Response      string   `json:"response" binding:"required,oneof=accept decline"`
	DeclineReason *string  `json:"declineReason,omitempty"`
	CounterOffer  *float64 `json:"counterOffer,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// JobResponseResponse reports the resolved offer and the shop's refreshed
// performance standing.
type JobResponseResponse struct {
	Success             bool    `json:"success"`
	Response            string  `json:"response"`
	ResponseTimeMinutes int     `json:"responseTimeMinutes"`
	NewAcceptanceRate   float64 `json:"newAcceptanceRate"`
	NewPerformanceTier  string  `json:"newPerformanceTier"`
	Message             string  `json:"message"`
}

// ShopView is a directory entry including derived performance fields.
type ShopView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	City            string  `json:"city"`
	MobileService   bool    `json:"mobile_service"`
	AdasCalibration bool    `json:"adas_calibration"`
	JobsOffered     int     `json:"jobs_offered"`
	JobsAccepted    int     `json:"jobs_accepted"`
	AcceptanceRate  float64 `json:"acceptance_rate"`
	PerformanceTier string  `json:"performance_tier"`
}

func shopViewOf(s *domain.Shop) ShopView {
	return ShopView{
		ID:              s.ID,
		Name:            s.Name,
		City:            s.City,
		MobileService:   s.MobileService,
		AdasCalibration: s.AdasCalibration,
		JobsOffered:     s.JobsOffered,
		JobsAccepted:    s.JobsAccepted,
		AcceptanceRate:  s.AcceptanceRate(),
		PerformanceTier: s.PerformanceTier(),
	}
}

// ListShopsResponse wraps a page of directory entries.
type ListShopsResponse struct {
	Shops      []ShopView `json:"shops"`
	Pagination Pagination `json:"pagination"`
}

// ListOffersResponse wraps a page of a shop's offers.
type ListOffersResponse struct {
	Offers     []domain.JobOffer `json:"offers"`
	Pagination Pagination        `json:"pagination"`
}

// CostLineRequest is one line of an estimate payload.
type CostLineRequest struct {
	Name        string  `json:"name" binding:"required,max=128"`
	Description string  `json:"description" binding:"max=255"`
	Quantity    int     `json:"quantity" binding:"required,min=1"`
	UnitPrice   float64 `json:"unit_price" binding:"min=0"`
}

// SubmitEstimateRequest is the shop's (or insurer's) price breakdown.
// TotalCost is optional; when present it must match the server-side
// recomputation from the lines and labor.
type SubmitEstimateRequest struct {
	ShopID    string            `json:"shop_id"`
	Source    string            `json:"source" binding:"omitempty,oneof=shop insurer"`
	LineItems []CostLineRequest `json:"line_items" binding:"required,min=1,dive"`
	LaborCost float64           `json:"labor_cost" binding:"min=0"`
	TotalCost *float64          `json:"total_cost,omitempty"`
	Notes     string            `json:"notes" binding:"max=1000"`
}

// RespondToOffer godoc
// @ID          respondToOffer
// @Summary     Respond to a job offer
// @Description Accepts or declines an open offer. Accepting expires sibling offers; the response also returns the shop's refreshed acceptance rate and tier.
// @Tags        Offers
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.JobResponseRequest  true  "Offer decision"
// @Success     200  {object}  handlers.JobResponseResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Already responded"
// @Failure     410  {object}  handlers.ErrorResponse "Offer expired"
// @Router      /job-response [post]
func (h *Handlers) RespondToOffer(c *gin.Context) {
	var req JobResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidDecision.Error())
		return
	}

	resp, err := h.wfSvc.ShopRespond(c.Request.Context(), req.JobOfferID, req.Response, req.DeclineReason)
	if err != nil {
		failErr(c, err)
		return
	}

	msg := "Offer accepted"
	if resp.Offer.Status == domain.OfferStatusDeclined {
		msg = "Offer declined"
	}
	ok(c, http.StatusOK, JobResponseResponse{
		Success:             true,
		Response:            resp.Offer.Status,
		ResponseTimeMinutes: resp.ResponseTimeMinutes,
		NewAcceptanceRate:   resp.NewAcceptanceRate,
		NewPerformanceTier:  resp.NewPerformanceTier,
		Message:             msg,
	})
}

// ListShops godoc
// @ID          listShops
// @Summary     List repair shops
// @Description Returns the shop directory with capability flags and performance fields, paginated.
// @Tags        Shops
// @Produce     json
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListShopsResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /shops [get]
func (h *Handlers) ListShops(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := repo.CountShops(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	shops, err := repo.ListShops(ctx, h.db, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	views := make([]ShopView, len(shops))
	for i := range shops {
		views[i] = shopViewOf(&shops[i])
	}
	ok(c, http.StatusOK, ListShopsResponse{Shops: views, Pagination: paginate(page, pageSize, total)})
}

// GetShop godoc
// @ID          getShop
// @Summary     Get one repair shop
// @Description Returns a directory entry with acceptance rate and performance tier.
// @Tags        Shops
// @Produce     json
// @Param       id  path  string  true  "Shop ID"
// @Success     200  {object}  handlers.ShopView
// @Failure     404  {object}  handlers.ErrorResponse "Shop not found"
// @Router      /shops/{id} [get]
func (h *Handlers) GetShop(c *gin.Context) {
	shop, err := repo.GetShop(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, services.ErrShopNotFound.Error())
		return
	}
	ok(c, http.StatusOK, shopViewOf(shop))
}

// ListShopOffers godoc
// @ID          listShopOffers
// @Summary     List a shop's job offers
// @Description Returns the offer ledger entries for a shop, newest first, paginated.
// @Tags        Offers
// @Produce     json
// @Param       id         path   string  true   "Shop ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListOffersResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /shops/{id}/offers [get]
func (h *Handlers) ListShopOffers(c *gin.Context) {
	page, pageSize := clampPagination(c)

	offers, total, err := h.offSvc.ListForShop(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListOffersResponse{Offers: offers, Pagination: paginate(page, pageSize, total)})
}

// SubmitEstimate godoc
// @ID          submitEstimate
// @Summary     Submit a cost estimate
// @Description Records the price breakdown for an appointment. The total is recomputed server-side; a disagreeing client total is rejected. Pricing is single-shot per appointment.
// @Tags        Estimates
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Appointment ID"
// @Param       body  body  handlers.SubmitEstimateRequest  true  "Price breakdown"
// @Success     201  {object}  domain.CostEstimate
// @Failure     400  {object}  handlers.ErrorResponse "Invalid estimate / total mismatch"
// @Failure     404  {object}  handlers.ErrorResponse "Appointment not found"
// @Failure     409  {object}  handlers.ErrorResponse "Price already submitted"
// @Router      /appointments/{id}/estimate [post]
func (h *Handlers) SubmitEstimate(c *gin.Context) {
	var req SubmitEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidEstimate.Error())
		return
	}

	lines := make([]domain.CostLine, len(req.LineItems))
	for i, l := range req.LineItems {
		lines[i] = domain.CostLine{
			Name:        l.Name,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
	}

	est, err := h.wfSvc.SubmitPrice(c.Request.Context(), services.PriceSubmission{
		AppointmentID: c.Param("ref"),
		ShopID:        req.ShopID,
		Source:        req.Source,
		LineItems:     lines,
		LaborCost:     req.LaborCost,
		ClientTotal:   req.TotalCost,
		Notes:         req.Notes,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, est)
}
