package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/fees"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/middleware"
	"github.com/mcofie/gatepass-settlement/pkg/response"
	"go.uber.org/zap"
)

// writeError maps a service error to a status and a customer-safe message
func writeError(c *gin.Context, err error) {
	var (
		ve *domain.VerificationError
		vf *domain.VerificationFailed
		pe *domain.PersistenceError
	)
	code := domain.ErrorCode(err)

	switch {
	case errors.As(err, &ve):
		response.Error(c, http.StatusServiceUnavailable, code, "Payment provider is unavailable. Please retry shortly.", "")
	case errors.As(err, &pe):
		logger.Get().ErrorContext(c.Request.Context(), "persistence failure", zap.Error(err))
		response.Error(c, http.StatusServiceUnavailable, code, "Temporary problem while issuing tickets. Please retry.", "")
	case errors.As(err, &vf):
		response.Error(c, http.StatusPaymentRequired, code, "Payment was not successful.", "")
	case errors.Is(err, domain.ErrNoReservationsFound):
		response.Error(c, http.StatusNotFound, code, "No reservations found for this payment.", "")
	case errors.Is(err, domain.ErrAmountMismatch):
		response.Error(c, http.StatusConflict, code, "Amount paid does not match the order.", "")
	case errors.Is(err, domain.ErrTicketsNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrTierNotFound),
		errors.Is(err, domain.ErrDiscountNotFound),
		errors.Is(err, domain.ErrAddonNotFound),
		errors.Is(err, domain.ErrPayoutNotFound):
		response.Error(c, http.StatusNotFound, code, err.Error(), "")
	case errors.Is(err, domain.ErrPayoutInProgress),
		errors.Is(err, domain.ErrInvalidPayoutTransition):
		response.Conflict(c, code, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		response.Error(c, http.StatusUnprocessableEntity, code, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidPayoutAmount),
		errors.Is(err, domain.ErrPayoutCurrencyRequired),
		errors.Is(err, domain.ErrInvalidFeeSettings),
		errors.Is(err, fees.ErrInvalidQuantity):
		response.Error(c, http.StatusBadRequest, code, err.Error(), "")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(c, "You are not allowed to perform this action.")
	default:
		logger.Get().ErrorContext(c.Request.Context(), "unhandled error", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error", "")
	}
}

// userID returns the authenticated user or writes 401
func userID(c *gin.Context) (string, bool) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return "", false
	}
	return id, true
}
