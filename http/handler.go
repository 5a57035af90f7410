package http

import (
	"boxoffice/entity"
	"boxoffice/purchase"
	"boxoffice/render"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	headerKeyUserID         = "X-User-ID"
	headerKeyIdempotencyKey = "Idempotency-Key"
)

type Purchaser interface {
	Purchase(ctx context.Context, req purchase.Request) (purchase.PurchaseResult, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, paymentIntentID, callerID string) (purchase.ConfirmResult, error)
}

type TicketRepo interface {
	Get(ctx context.Context, ticketID string) (entity.Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]entity.Ticket, error)
}

type EventRepo interface {
	Get(ctx context.Context, eventID string) (entity.Event, error)
}

type UserRepo interface {
	Get(ctx context.Context, userID string) (entity.User, error)
}

type handler struct {
	purchaser   Purchaser
	confirmer   Confirmer
	ticketRepo  TicketRepo
	eventRepo   EventRepo
	userRepo    UserRepo
	currency    string
	diagnostics bool
}

type caller struct {
	UserID string `json:"user_id" validate:"uuid"`
}

// requireUser rejects requests without a caller identity. Authentication
// happens upstream; this service trusts the header.
func (h handler) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(headerKeyUserID)
		if id == "" {
			return c.JSON(http.StatusUnauthorized, errorResponse{
				Result:  "error",
				Error:   "unauthorized",
				Message: "Authentication required",
			})
		}
		if err := c.Validate(caller{UserID: id}); err != nil {
			return h.respondError(c, err)
		}
		return next(c)
	}
}

func userID(c echo.Context) string {
	return c.Request().Header.Get(headerKeyUserID)
}

type purchaseRequest struct {
	EventID         string `json:"event_id" validate:"required,uuid"`
	Quantity        int    `json:"quantity" validate:"required,min=1"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

type money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type purchasedData struct {
	Tickets         []entity.TicketSummary `json:"tickets"`
	TotalTickets    int                    `json:"total_tickets"`
	TotalAmount     money                  `json:"total_amount"`
	PaymentIntentID string                 `json:"payment_intent_id"`
}

type paymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type resultResponse struct {
	Result         string         `json:"result"`
	Message        string         `json:"message"`
	Data           any            `json:"data,omitempty"`
	RequiresAction bool           `json:"requires_action,omitempty"`
	PaymentIntent  *paymentIntent `json:"payment_intent,omitempty"`
	Available      *int           `json:"available,omitempty"`
	Status         string         `json:"status,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

func (h handler) PostPurchase(c echo.Context) error {
	var request purchaseRequest
	if err := c.Bind(&request); err != nil {
		return h.respondError(c, entity.ValidationError{Field: "body", Message: "must be valid JSON"})
	}
	if err := c.Validate(&request); err != nil {
		return h.respondError(c, err)
	}

	result, err := h.purchaser.Purchase(c.Request().Context(), purchase.Request{
		UserID:          userID(c),
		EventID:         request.EventID,
		Quantity:        request.Quantity,
		PaymentMethodID: request.PaymentMethodID,
		IdempotencyKey:  c.Request().Header.Get(headerKeyIdempotencyKey),
	})
	if err != nil {
		return h.respondError(c, err)
	}

	switch r := result.(type) {
	case purchase.Purchased:
		return c.JSON(http.StatusCreated, resultResponse{
			Result:  "purchased",
			Message: "Tickets purchased successfully!",
			Data:    h.purchasedData(r.PaymentIntentID, r.Tickets, r.TotalTickets, r.TotalAmount),
		})
	case purchase.ActionRequired:
		return c.JSON(http.StatusOK, resultResponse{
			Result:         "action_required",
			Message:        "Payment requires additional authentication",
			RequiresAction: true,
			PaymentIntent: &paymentIntent{
				ID:           r.PaymentIntentID,
				ClientSecret: r.ClientSecret,
				Status:       string(r.Status),
			},
		})
	case purchase.InsufficientInventory:
		available := r.Available
		return c.JSON(http.StatusConflict, resultResponse{
			Result:    "insufficient_inventory",
			Message:   fmt.Sprintf("Only %d seats available", r.Available),
			Available: &available,
		})
	case purchase.PaymentFailed:
		return c.JSON(http.StatusPaymentRequired, resultResponse{
			Result:  "payment_failed",
			Message: "Payment failed",
			Status:  string(r.Status),
			Reason:  r.Reason,
		})
	default:
		return h.respondError(c, fmt.Errorf("unhandled purchase result %T", result))
	}
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

func (h handler) PostConfirmPayment(c echo.Context) error {
	var request confirmRequest
	if err := c.Bind(&request); err != nil {
		return h.respondError(c, entity.ValidationError{Field: "body", Message: "must be valid JSON"})
	}
	if err := c.Validate(&request); err != nil {
		return h.respondError(c, err)
	}

	result, err := h.confirmer.Confirm(c.Request().Context(), request.PaymentIntentID, userID(c))
	if err != nil {
		return h.respondError(c, err)
	}

	switch r := result.(type) {
	case purchase.Issued:
		return c.JSON(http.StatusCreated, resultResponse{
			Result:  "issued",
			Message: "Payment confirmed and tickets created!",
			Data:    h.purchasedData(r.PaymentIntentID, r.Tickets, r.TotalTickets, r.TotalAmount),
		})
	case purchase.AlreadyProcessed:
		return c.JSON(http.StatusOK, resultResponse{
			Result:  "already_processed",
			Message: "Payment already processed",
			Data: map[string]any{
				"tickets": r.Tickets,
			},
		})
	case purchase.NotSuccessful:
		return c.JSON(http.StatusBadRequest, resultResponse{
			Result:  "not_successful",
			Message: "Payment not successful",
			Status:  string(r.Status),
		})
	default:
		return h.respondError(c, fmt.Errorf("unhandled confirm result %T", result))
	}
}

type ticketEvent struct {
	ID       string    `json:"event_id"`
	Title    string    `json:"title"`
	Location string    `json:"location"`
	StartsAt time.Time `json:"starts_at"`
}

type ticketResponse struct {
	entity.Ticket
	Event *ticketEvent `json:"event,omitempty"`
}

func (h handler) ListTickets(c echo.Context) error {
	ctx := c.Request().Context()

	tickets, err := h.ticketRepo.ListByUser(ctx, userID(c))
	if err != nil {
		return h.respondError(c, err)
	}

	events := map[string]*ticketEvent{}
	response := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		ev, ok := events[t.EventID]
		if !ok {
			found, err := h.eventRepo.Get(ctx, t.EventID)
			if err != nil {
				return h.respondError(c, err)
			}
			ev = &ticketEvent{
				ID:       found.ID,
				Title:    found.Title,
				Location: found.Location,
				StartsAt: found.StartsAt,
			}
			events[t.EventID] = ev
		}
		response = append(response, ticketResponse{Ticket: t, Event: ev})
	}

	return c.JSON(http.StatusOK, resultResponse{
		Result:  "tickets",
		Message: "Tickets retrieved successfully",
		Data:    response,
	})
}

type ticketPath struct {
	TicketID string `json:"ticket_id" validate:"uuid"`
}

func (h handler) GetTicketDocument(c echo.Context) error {
	ctx := c.Request().Context()

	// Ticket ids are UUIDs; anything else cannot exist.
	path := ticketPath{TicketID: c.Param("id")}
	if err := c.Validate(path); err != nil {
		return h.respondError(c, entity.ErrTicketNotFound)
	}

	ticket, err := h.ticketRepo.Get(ctx, path.TicketID)
	if err != nil {
		return h.respondError(c, err)
	}
	if ticket.UserID != userID(c) {
		return h.respondError(c, entity.ErrTicketNotFound)
	}

	ev, err := h.eventRepo.Get(ctx, ticket.EventID)
	if err != nil {
		return h.respondError(c, err)
	}

	user, err := h.userRepo.Get(ctx, ticket.UserID)
	if err != nil {
		return h.respondError(c, err)
	}

	doc, err := render.Ticket(ticket, ev, user, h.currency)
	if err != nil {
		return h.respondError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", render.FileName(ticket)))
	return c.HTMLBlob(http.StatusOK, doc)
}

func (h handler) purchasedData(paymentIntentID string, tickets []entity.TicketSummary, total int, amount entity.Money) purchasedData {
	return purchasedData{
		Tickets:      tickets,
		TotalTickets: total,
		TotalAmount: money{
			Amount:   amount.Amount.StringFixed(2),
			Currency: amount.Currency,
		},
		PaymentIntentID: paymentIntentID,
	}
}
