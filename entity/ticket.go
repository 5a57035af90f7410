package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

// Ticket is one seat. A purchase of N seats is N tickets sharing a
// PaymentIntentID and numbered by PaymentSeq from 0.
type Ticket struct {
	ID              string          `json:"ticket_id" db:"id"`
	TicketCode      string          `json:"ticket_code" db:"ticket_code"`
	UserID          string          `json:"user_id" db:"user_id"`
	EventID         string          `json:"event_id" db:"event_id"`
	Quantity        int             `json:"quantity" db:"quantity"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaymentIntentID string          `json:"payment_intent_id" db:"payment_intent_id"`
	PaymentSeq      int             `json:"-" db:"payment_seq"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status"`
	PurchaseDate    time.Time       `json:"purchase_date" db:"purchase_date"`
	IsUsed          bool            `json:"is_used" db:"is_used"`
}

type TicketSummary struct {
	TicketCode    string          `json:"ticket_code"`
	EventTitle    string          `json:"event_title"`
	EventDate     time.Time       `json:"event_date"`
	EventLocation string          `json:"event_location"`
	Quantity      int             `json:"quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PurchaseDate  time.Time       `json:"purchase_date"`
}

func Summarize(tickets []Ticket, event Event) []TicketSummary {
	summaries := make([]TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		summaries = append(summaries, TicketSummary{
			TicketCode:    t.TicketCode,
			EventTitle:    event.Title,
			EventDate:     event.StartsAt,
			EventLocation: event.Location,
			Quantity:      t.Quantity,
			TotalAmount:   t.TotalAmount,
			PurchaseDate:  t.PurchaseDate,
		})
	}
	return summaries
}
