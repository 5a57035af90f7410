package purchase

import (
	"boxoffice/entity"
	"fmt"
)

// PurchaseResult is one of Purchased, ActionRequired, InsufficientInventory
// or PaymentFailed.
type PurchaseResult interface {
	purchaseOutcome() string
}

type Purchased struct {
	PaymentIntentID string
	Tickets         []entity.TicketSummary
	TotalTickets    int
	TotalAmount     entity.Money
}

type ActionRequired struct {
	PaymentIntentID string
	ClientSecret    string
	Status          entity.ChargeStatus
}

type InsufficientInventory struct {
	Requested int
	Available int
}

type PaymentFailed struct {
	PaymentIntentID string
	Status          entity.ChargeStatus
	Reason          string
}

func (Purchased) purchaseOutcome() string             { return "purchased" }
func (ActionRequired) purchaseOutcome() string        { return "action_required" }
func (InsufficientInventory) purchaseOutcome() string { return "insufficient_inventory" }
func (PaymentFailed) purchaseOutcome() string         { return "payment_failed" }

// ConfirmResult is one of AlreadyProcessed, NotSuccessful or Issued. A
// confirmation that charged but could not issue returns a
// *ReconciliationError instead.
type ConfirmResult interface {
	confirmOutcome() string
}

type AlreadyProcessed struct {
	PaymentIntentID string
	Tickets         []entity.TicketSummary
}

type NotSuccessful struct {
	PaymentIntentID string
	Status          entity.ChargeStatus
}

type Issued struct {
	PaymentIntentID string
	Tickets         []entity.TicketSummary
	TotalTickets    int
	TotalAmount     entity.Money
}

func (AlreadyProcessed) confirmOutcome() string { return "already_processed" }
func (NotSuccessful) confirmOutcome() string    { return "not_successful" }
func (Issued) confirmOutcome() string           { return "issued" }

// ReconciliationError means the payment was charged and no tickets exist
// for it. Confirming the same payment intent again is safe.
type ReconciliationError struct {
	PaymentIntentID string
	EventID         string
	UserID          string
	Quantity        int
	Err             error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("payment %s charged but %d tickets for event %s not issued: %v",
		e.PaymentIntentID, e.Quantity, e.EventID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
