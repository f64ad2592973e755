package handler

import (
	"net/http"
	"strconv"

	"github.com/eventpass/eventpass/internal/dto"
	"github.com/eventpass/eventpass/internal/service"
	"github.com/eventpass/eventpass/internal/worker"
	"github.com/eventpass/eventpass/pkg/middleware"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdminHandler handles payment verification and operational endpoints
type AdminHandler struct {
	registrationService service.RegistrationService
	reconcileService    service.ReconcileService
	reconcileWorker     *worker.ReconcileWorker
}

// NewAdminHandler creates a new admin handler. The worker is optional and
// only feeds the stats endpoint.
func NewAdminHandler(
	registrationService service.RegistrationService,
	reconcileService service.ReconcileService,
	reconcileWorker *worker.ReconcileWorker,
) *AdminHandler {
	return &AdminHandler{
		registrationService: registrationService,
		reconcileService:    reconcileService,
		reconcileWorker:     reconcileWorker,
	}
}

// Approve handles POST /admin/registrations/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.approve")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	adminID, _ := middleware.GetUserID(c)
	registrationID := c.Param("id")

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("admin_id", adminID),
	)

	result, err := h.registrationService.Approve(ctx, registrationID, adminID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("tickets_minted", len(result.Tickets)))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// Reject handles POST /admin/registrations/:id/reject
func (h *AdminHandler) Reject(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.reject")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	adminID, _ := middleware.GetUserID(c)
	registrationID := c.Param("id")

	var req dto.RejectRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: "rejection reason is required",
		})
		return
	}

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("admin_id", adminID),
	)

	result, err := h.registrationService.Reject(ctx, registrationID, adminID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// ListByEvent handles GET /admin/events/:id/registrations
func (h *AdminHandler) ListByEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.list_by_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("page", page),
	)

	result, err := h.registrationService.GetEventRegistrations(ctx, eventID, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// Reconcile handles POST /admin/reconcile
// An optional event_id query limits the sweep to one event.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.reconcile")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Query("event_id")
	batchSize, _ := strconv.Atoi(c.DefaultQuery("batch_size", "100"))

	var summary *service.ReconcileSummary
	var err error
	if eventID != "" {
		span.SetAttributes(attribute.String("event_id", eventID))
		summary, err = h.reconcileService.ReconcileEvent(ctx, eventID)
	} else {
		summary, err = h.reconcileService.ReconcileAll(ctx, batchSize)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("corrections_applied", summary.CorrectionsApplied))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.ReconcileResponse{
		EventsScanned:      summary.EventsScanned,
		TiersChecked:       summary.TiersChecked,
		CorrectionsApplied: summary.CorrectionsApplied,
		CorrectionsSkipped: summary.CorrectionsSkipped,
	})
}

// ReconcileEvent handles POST /admin/events/:id/reconcile
func (h *AdminHandler) ReconcileEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.reconcile_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	summary, err := h.reconcileService.ReconcileEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("corrections_applied", summary.CorrectionsApplied))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.ReconcileResponse{
		EventsScanned:      summary.EventsScanned,
		TiersChecked:       summary.TiersChecked,
		CorrectionsApplied: summary.CorrectionsApplied,
		CorrectionsSkipped: summary.CorrectionsSkipped,
	})
}

// WorkerStats handles GET /admin/reconcile/stats
func (h *AdminHandler) WorkerStats(c *gin.Context) {
	if h.reconcileWorker == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: "reconcile worker not running",
			Code:  "WORKER_DISABLED",
		})
		return
	}
	c.JSON(http.StatusOK, h.reconcileWorker.GetStats())
}
