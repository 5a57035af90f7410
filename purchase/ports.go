package purchase

import (
	"boxoffice/entity"
	"context"
)

type EventLedger interface {
	Get(ctx context.Context, eventID string) (entity.Event, error)
	CheckAvailability(ctx context.Context, eventID string, quantity int) (bool, int, error)
	DecrementAtomically(ctx context.Context, eventID string, quantity int) (int, error)
}

type TicketLedger interface {
	Insert(ctx context.Context, ticket entity.Ticket) (bool, error)
	ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]entity.Ticket, error)
}

type UserDirectory interface {
	Get(ctx context.Context, userID string) (entity.User, error)
}

// UnitOfWork runs fn so that every ledger write made with the ctx passed to
// fn commits together or not at all.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type PaymentGateway interface {
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateAndConfirmCharge(ctx context.Context, req entity.ChargeRequest) (entity.Charge, error)
	GetCharge(ctx context.Context, intentID string) (entity.Charge, error)
}

// EventPublisher must write into the transaction carried by ctx.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type CommandSender interface {
	Send(ctx context.Context, cmd any) error
}
