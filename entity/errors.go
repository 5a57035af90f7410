package entity

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrTicketNotFound = errors.New("ticket not found")
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentNotOwned = errors.New("payment belongs to another user")
)

// Payments the gateway reports in a shape this service cannot act on.
var (
	ErrUnrecognizedChargeStatus = errors.New("unrecognized charge status")
	ErrInvalidChargeMetadata    = errors.New("invalid charge metadata")
)

var (
	ErrInsufficientInventory = errors.New("not enough seats available")
	ErrAlreadyIssued         = errors.New("tickets already issued for payment intent")
	ErrTicketCodeExhausted   = errors.New("could not generate a unique ticket code")
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
