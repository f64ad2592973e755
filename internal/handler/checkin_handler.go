package handler

import (
	"net/http"

	"github.com/eventpass/eventpass/internal/dto"
	"github.com/eventpass/eventpass/internal/service"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CheckInHandler handles venue check-in HTTP requests
type CheckInHandler struct {
	checkInService service.CheckInService
}

// NewCheckInHandler creates a new check-in handler
func NewCheckInHandler(checkInService service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkInService: checkInService}
}

// CheckIn handles POST /checkin
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkin.check_in")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: "token is required",
		})
		return
	}

	result, err := h.checkInService.CheckIn(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("ticket_id", result.ID),
		attribute.String("event_id", result.EventID),
	)
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// GetTicket handles GET /checkin/:token
func (h *CheckInHandler) GetTicket(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkin.get_ticket")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Param("token")

	result, err := h.checkInService.GetTicket(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// Attendance handles GET /events/:id/attendance
func (h *CheckInHandler) Attendance(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkin.attendance")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.checkInService.EventAttendance(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}
