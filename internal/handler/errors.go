package handler

import (
	"errors"
	"net/http"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/internal/dto"
	"github.com/gin-gonic/gin"
)

// handleError maps domain errors to HTTP responses. Every handler funnels
// service errors through here so status codes stay consistent.
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRegistrationNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "REGISTRATION_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrEventNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "EVENT_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrTierNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "TIER_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "TICKET_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrNotOwner):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "FORBIDDEN",
		})
	case errors.Is(err, domain.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "CAPACITY_EXCEEDED",
			Message: "Not enough seats left for this request",
		})
	case errors.Is(err, domain.ErrDuplicateReference):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "DUPLICATE_PAYMENT_REFERENCE",
			Message: "A registration with this payment reference already exists",
		})
	case errors.Is(err, domain.ErrNotPending):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_PENDING",
		})
	case errors.Is(err, domain.ErrNotVerified):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_VERIFIED",
		})
	case errors.Is(err, domain.ErrAlreadyCheckedIn):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_CHECKED_IN",
		})
	case errors.Is(err, domain.ErrTicketCancelled):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "TICKET_CANCELLED",
		})
	case errors.Is(err, domain.ErrRegistrationNotVerified):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "REGISTRATION_NOT_VERIFIED",
		})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
