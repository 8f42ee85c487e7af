// Appointment HTTP handlers.
//
// This file exposes REST endpoints for the appointment lifecycle as seen by
// the customer and the platform:
//   - POST   /appointments            (damage report intake)
//   - GET    /appointments/{ref}      (status lookup by id, code, or token)
//   - POST   /appointments/{id}/handover (vehicle handover recorded)
//   - PUT    /appointments/{id}/status   (shop job status update)
//   - POST   /appointments/{id}/cancel   (cancellation)
//
// Handlers are transport-thin: they validate input, call the workflow
// engine, and translate results into HTTP responses.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RaunoDriveX/drivex-jobflow/internal/services"
)

// CreateAppointmentRequest is the JSON payload for the damage report intake.
type CreateAppointmentRequest struct {
	CustomerName  string `json:"customer_name"  binding:"required,min=1,max=128"`
	CustomerEmail string `json:"customer_email" binding:"required,email"`
	CustomerPhone string `json:"customer_phone" binding:"max=32"`
	VehicleMake   string `json:"vehicle_make"   binding:"required,max=64"`
	VehicleModel  string `json:"vehicle_model"  binding:"required,max=64"`
	VehicleYear   int    `json:"vehicle_year"   binding:"omitempty,min=1950,max=2100"`
	VehiclePlate  string `json:"vehicle_plate"  binding:"max=16"`
	ServiceType   string `json:"service_type"   binding:"required,oneof=repair replacement"`
	DamageType    string `json:"damage_type"    binding:"required,max=32"`
}

// CreateAppointmentResponse returns the tracking identity to the customer.
type CreateAppointmentResponse struct {
	ID            string `json:"id"`
	TrackingCode  string `json:"tracking_code"`
	TrackingToken string `json:"tracking_token"`
	WorkflowStage string `json:"workflow_stage"`
	JobStatus     string `json:"job_status"`
}

// UpdateJobStatusRequest is the shop's job progress update.
type UpdateJobStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=in_progress completed"`
}

// CancelAppointmentRequest carries the optional cancellation reason.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// CreateAppointment godoc
// @ID          createAppointment
// @Summary     Submit a damage report
// @Description Creates a new appointment from a customer damage report and returns its tracking identity.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateAppointmentRequest  true  "Damage report"
// @Success     201  {object}  handlers.CreateAppointmentResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /appointments [post]
func (h *Handlers) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid damage report payload")
		return
	}

	appt, err := h.wfSvc.SubmitDamageReport(c.Request.Context(), services.DamageReport{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		VehicleMake:   req.VehicleMake,
		VehicleModel:  req.VehicleModel,
		VehicleYear:   req.VehicleYear,
		VehiclePlate:  req.VehiclePlate,
		ServiceType:   req.ServiceType,
		DamageType:    req.DamageType,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, CreateAppointmentResponse{
		ID:            appt.ID,
		TrackingCode:  appt.TrackingCode,
		TrackingToken: appt.TrackingToken,
		WorkflowStage: string(appt.WorkflowStage),
		JobStatus:     string(appt.JobStatus()),
	})
}

// GetAppointment godoc
// @ID          getAppointment
// @Summary     Look up an appointment
// @Description Resolves an appointment by internal ID, tracking code (GL-XXXXXXXX), or tracking token.
// @Tags        Appointments
// @Produce     json
// @Param       ref  path  string  true  "Appointment reference"
// @Success     200  {object}  handlers.AppointmentView
// @Failure     404  {object}  handlers.ErrorResponse "Appointment not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /appointments/{ref} [get]
func (h *Handlers) GetAppointment(c *gin.Context) {
	appt, err := h.wfSvc.GetByRef(c.Request.Context(), c.Param("ref"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, viewOf(appt))
}

// RecordHandover godoc
// @ID          recordHandover
// @Summary     Record vehicle handover
// @Description Marks the vehicle as handed over and the damage documented, moving the job to damage assessment.
// @Tags        Appointments
// @Produce     json
// @Param       id  path  string  true  "Appointment ID"
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Appointment not found"
// @Failure     409  {object} handlers.ErrorResponse "Not at handover stage"
// @Router      /appointments/{id}/handover [post]
func (h *Handlers) RecordHandover(c *gin.Context) {
	if err := h.wfSvc.RecordHandover(c.Request.Context(), c.Param("ref")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UpdateJobStatus godoc
// @ID          updateJobStatus
// @Summary     Update job progress
// @Description Shop reports job progress: in_progress starts the job, completed finishes it.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Appointment ID"
// @Param       body  body  handlers.UpdateJobStatusRequest  true  "New status"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Appointment not found"
// @Failure     409  {object} handlers.ErrorResponse "Stage conflict"
// @Router      /appointments/{id}/status [put]
func (h *Handlers) UpdateJobStatus(c *gin.Context) {
	var req UpdateJobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be in_progress or completed")
		return
	}

	var err error
	switch req.Status {
	case "in_progress":
		err = h.wfSvc.StartJob(c.Request.Context(), c.Param("ref"))
	case "completed":
		err = h.wfSvc.CompleteJob(c.Request.Context(), c.Param("ref"))
	}
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// CancelAppointment godoc
// @ID          cancelAppointment
// @Summary     Cancel an appointment
// @Description Cancels a non-terminal appointment, releasing its booked slot and expiring open offers.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       id    path  string  true   "Appointment ID"
// @Param       body  body  handlers.CancelAppointmentRequest  false  "Cancellation reason"
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Appointment not found"
// @Failure     409  {object} handlers.ErrorResponse "Already terminal"
// @Router      /appointments/{id}/cancel [post]
func (h *Handlers) CancelAppointment(c *gin.Context) {
	var req CancelAppointmentRequest
	// Body is optional; a missing or invalid body just means no reason.
	_ = c.ShouldBindJSON(&req)

	if err := h.wfSvc.Cancel(c.Request.Context(), c.Param("ref"), strings.TrimSpace(req.Reason)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
