package event

import (
	"boxoffice/entity"
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

type header struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func newHeader(idempotencyKey string) header {
	return header{
		ID:             watermill.NewUUID(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type IssuedTicket struct {
	TicketID   string `json:"ticket_id"`
	TicketCode string `json:"ticket_code"`
}

// TicketsIssued is recorded in the same transaction that issues the
// tickets. The payment intent id is its idempotency key.
type TicketsIssued struct {
	Header          header         `json:"header"`
	PaymentIntentID string         `json:"payment_intent_id"`
	EventID         string         `json:"event_id"`
	EventTitle      string         `json:"event_title"`
	UserID          string         `json:"user_id"`
	CustomerEmail   string         `json:"customer_email"`
	Price           entity.Money   `json:"price"`
	Total           entity.Money   `json:"total"`
	Tickets         []IssuedTicket `json:"tickets"`
}

func NewTicketsIssued(paymentIntentID string, event entity.Event, user entity.User, currency string, tickets []entity.Ticket) TicketsIssued {
	issued := make([]IssuedTicket, 0, len(tickets))
	total := entity.Money{Currency: currency}
	price := entity.Money{Amount: event.Price, Currency: currency}
	if len(tickets) > 0 {
		price.Amount = tickets[0].TotalAmount
	}
	for _, t := range tickets {
		issued = append(issued, IssuedTicket{
			TicketID:   t.ID,
			TicketCode: t.TicketCode,
		})
		total.Amount = total.Amount.Add(t.TotalAmount)
	}

	return TicketsIssued{
		Header:          newHeader(paymentIntentID),
		PaymentIntentID: paymentIntentID,
		EventID:         event.ID,
		EventTitle:      event.Title,
		UserID:          user.ID,
		CustomerEmail:   user.Email,
		Price:           price,
		Total:           total,
		Tickets:         issued,
	}
}

type TicketPrinted struct {
	Header   header `json:"header"`
	TicketID string `json:"ticket_id"`
	FileName string `json:"file_name"`
}

func NewTicketPrinted(idempotencyKey, ticketID, fileName string) TicketPrinted {
	return TicketPrinted{
		Header:   newHeader(idempotencyKey),
		TicketID: ticketID,
		FileName: fileName,
	}
}

// PaymentReconciliationFailed means a charge succeeded but tickets can
// never be issued for it, so the payment needs manual attention.
type PaymentReconciliationFailed struct {
	Header          header `json:"header"`
	PaymentIntentID string `json:"payment_intent_id"`
	EventID         string `json:"event_id"`
	UserID          string `json:"user_id"`
	Quantity        int    `json:"quantity"`
	Reason          string `json:"reason"`
}

func NewPaymentReconciliationFailed(paymentIntentID, eventID, userID string, quantity int, reason string) PaymentReconciliationFailed {
	return PaymentReconciliationFailed{
		Header:          newHeader(paymentIntentID),
		PaymentIntentID: paymentIntentID,
		EventID:         eventID,
		UserID:          userID,
		Quantity:        quantity,
		Reason:          reason,
	}
}
