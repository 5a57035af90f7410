package http

import (
	"boxoffice/entity"
	"boxoffice/purchase"
	"boxoffice/render"
	"errors"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Result          string `json:"result"`
	Error           string `json:"error"`
	Message         string `json:"message"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	Details         string `json:"details,omitempty"`
}

// respondError maps err to a status and a stable error code. The cause is
// only exposed in diagnostics mode.
func (h handler) respondError(c echo.Context, err error) error {
	status, res := classify(err)
	res.Result = "error"
	if h.diagnostics {
		res.Details = err.Error()
	}

	logger := log.FromContext(c.Request().Context()).WithError(err).WithField("error_code", res.Error)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed")
	} else {
		logger.Info("Request rejected")
	}

	return c.JSON(status, res)
}

func classify(err error) (int, errorResponse) {
	var (
		validationErr     entity.ValidationError
		reconciliationErr *purchase.ReconciliationError
		httpErr           *echo.HTTPError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, errorResponse{Error: "validation_error", Message: validationErr.Error()}
	case errors.As(err, &reconciliationErr):
		return http.StatusInternalServerError, errorResponse{
			Error:           "reconciliation_failed",
			Message:         "Payment was taken but tickets could not be issued yet. Confirm the payment again to retry.",
			PaymentIntentID: reconciliationErr.PaymentIntentID,
		}
	case errors.Is(err, entity.ErrEventNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: "Event not found"}
	case errors.Is(err, entity.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: "User not found"}
	case errors.Is(err, entity.ErrPaymentNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: "Payment not found"}
	case errors.Is(err, entity.ErrTicketNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: "Ticket not found"}
	case errors.Is(err, entity.ErrPaymentNotOwned):
		return http.StatusForbidden, errorResponse{Error: "forbidden", Message: "Payment belongs to another user"}
	case errors.Is(err, render.ErrTicketNotIssued):
		return http.StatusConflict, errorResponse{Error: "not_issued", Message: "Ticket payment has not succeeded"}
	case errors.Is(err, entity.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "gateway_unavailable", Message: "Payment provider is unavailable, try again later"}
	case errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError:
		return httpErr.Code, errorResponse{Error: "bad_request", Message: http.StatusText(httpErr.Code)}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal", Message: "Internal server error"}
	}
}
