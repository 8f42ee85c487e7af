package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
	"github.com/RaunoDriveX/drivex-jobflow/internal/services"
	"github.com/RaunoDriveX/drivex-jobflow/internal/utils"
)

//
// Service contracts (context-aware)
//

// WorkflowService defines the workflow transitions consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type WorkflowService interface {
	SubmitDamageReport(ctx context.Context, rep services.DamageReport) (*domain.Appointment, error)
	GetByRef(ctx context.Context, ref string) (*domain.Appointment, error)
	ProposeShops(ctx context.Context, appointmentID string, picks []services.ShopPick) ([]domain.ShopSelection, error)
	SelectShopAndSchedule(ctx context.Context, token, shopID, date, timeOfDay string) (*domain.Appointment, *domain.JobOffer, error)
	ShopRespond(ctx context.Context, offerID, decision string, declineReason *string) (*services.OfferResponse, error)
	RecordHandover(ctx context.Context, appointmentID string) error
	SubmitPrice(ctx context.Context, sub services.PriceSubmission) (*domain.CostEstimate, error)
	ApprovePrice(ctx context.Context, appointmentID string) error
	RejectPrice(ctx context.Context, appointmentID string) error
	ApproveCost(ctx context.Context, token string) (*domain.Appointment, error)
	StartJob(ctx context.Context, appointmentID string) error
	CompleteJob(ctx context.Context, appointmentID string) error
	Cancel(ctx context.Context, appointmentID, reason string) error
}

// SelectionService defines shortlist registry operations used by handlers.
type SelectionService interface {
	Remove(ctx context.Context, appointmentID, shopID string) error
	GetForCustomer(ctx context.Context, appointmentID string) ([]services.CustomerOption, error)
}

// OfferService defines offer ledger reads used by handlers.
type OfferService interface {
	ListForShop(ctx context.Context, shopID string, page, pageSize int) ([]domain.JobOffer, int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for appointments, shop selection, job
// offers, and insurer operations. Directory and stats reads go straight to
// the repo via DB; everything that mutates goes through the services.
type Handlers struct {
	wfSvc  WorkflowService
	selSvc SelectionService
	offSvc OfferService
	db     *gorm.DB
}

// New constructs a Handlers instance bound to the given services.
func New(wfSvc WorkflowService, selSvc SelectionService, offSvc OfferService, db *gorm.DB) *Handlers {
	return &Handlers{wfSvc: wfSvc, selSvc: selSvc, offSvc: offSvc, db: db}
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// AppointmentView is the appointment as shown to customers: the tracking
// identity plus workflow progress, without internal identifiers.
type AppointmentView struct {
	TrackingCode  string   `json:"tracking_code"`
	WorkflowStage string   `json:"workflow_stage"`
	JobStatus     string   `json:"job_status"`
	ServiceType   string   `json:"service_type"`
	DamageType    string   `json:"damage_type"`
	VehicleMake   string   `json:"vehicle_make"`
	VehicleModel  string   `json:"vehicle_model"`
	ShopName      *string  `json:"shop_name,omitempty"`
	Date          *string  `json:"appointment_date,omitempty"`
	Time          *string  `json:"appointment_time,omitempty"`
	TotalCost     *float64 `json:"total_cost,omitempty"`
	CostApproved  bool     `json:"customer_cost_approved"`
}

func viewOf(a *domain.Appointment) AppointmentView {
	return AppointmentView{
		TrackingCode:  a.TrackingCode,
		WorkflowStage: string(a.WorkflowStage),
		JobStatus:     string(a.JobStatus()),
		ServiceType:   a.ServiceType,
		DamageType:    a.DamageType,
		VehicleMake:   a.VehicleMake,
		VehicleModel:  a.VehicleModel,
		ShopName:      a.ShopName,
		Date:          a.AppointmentDate,
		Time:          a.AppointmentTime,
		TotalCost:     a.TotalCost,
		CostApproved:  a.CustomerCostApproved,
	}
}
