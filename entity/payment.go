package entity

import (
	"fmt"
	"strconv"
)

type ChargeStatus string

const (
	ChargeSucceeded      ChargeStatus = "succeeded"
	ChargeRequiresAction ChargeStatus = "requires_action"
	ChargeProcessing     ChargeStatus = "processing"
	ChargeFailed         ChargeStatus = "failed"
	ChargeCanceled       ChargeStatus = "canceled"
)

// ChargeMetadata is attached to the charge when it is created, so a
// confirmation can rebuild the purchase without trusting the client.
type ChargeMetadata struct {
	EventID    string
	UserID     string
	Quantity   int
	EventTitle string
}

const (
	metadataEventID    = "eventId"
	metadataUserID     = "userId"
	metadataQuantity   = "quantity"
	metadataEventTitle = "eventTitle"
)

func (m ChargeMetadata) ToMap() map[string]string {
	return map[string]string{
		metadataEventID:    m.EventID,
		metadataUserID:     m.UserID,
		metadataQuantity:   strconv.Itoa(m.Quantity),
		metadataEventTitle: m.EventTitle,
	}
}

func ParseChargeMetadata(values map[string]string) (ChargeMetadata, error) {
	m := ChargeMetadata{
		EventID:    values[metadataEventID],
		UserID:     values[metadataUserID],
		EventTitle: values[metadataEventTitle],
	}
	if m.EventID == "" {
		return ChargeMetadata{}, fmt.Errorf("charge metadata is missing %s", metadataEventID)
	}
	if m.UserID == "" {
		return ChargeMetadata{}, fmt.Errorf("charge metadata is missing %s", metadataUserID)
	}

	quantity, err := strconv.Atoi(values[metadataQuantity])
	if err != nil {
		return ChargeMetadata{}, fmt.Errorf("parsing charge metadata %s: %w", metadataQuantity, err)
	}
	if quantity <= 0 {
		return ChargeMetadata{}, fmt.Errorf("charge metadata %s must be positive, got %d", metadataQuantity, quantity)
	}
	m.Quantity = quantity

	return m, nil
}

type ChargeRequest struct {
	Amount          Money
	CustomerID      string
	PaymentMethodID string
	Metadata        ChargeMetadata
	IdempotencyKey  string
}

type Charge struct {
	IntentID      string
	Status        ChargeStatus
	ClientSecret  string
	FailureReason string
	Amount        Money
	Metadata      map[string]string
}
