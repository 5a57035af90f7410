package command

import (
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

// ReconcilePayment asks for tickets to be issued for a payment that was
// charged but not ticketed.
type ReconcilePayment struct {
	Header          header `json:"header"`
	PaymentIntentID string `json:"payment_intent_id"`
	EventID         string `json:"event_id"`
	UserID          string `json:"user_id"`
	Quantity        int    `json:"quantity"`
}

func NewReconcilePayment(paymentIntentID, eventID, userID string, quantity int) ReconcilePayment {
	return ReconcilePayment{
		Header:          newHeader(paymentIntentID),
		PaymentIntentID: paymentIntentID,
		EventID:         eventID,
		UserID:          userID,
		Quantity:        quantity,
	}
}
