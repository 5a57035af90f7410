package purchase

import (
	"boxoffice/entity"
	"boxoffice/monitoring"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/shopspring/decimal"
)

const DefaultMaxPerPurchase = 10

type Deps struct {
	Events   EventLedger
	Tickets  TicketLedger
	Users    UserDirectory
	UoW      UnitOfWork
	Gateway  PaymentGateway
	Outbox   EventPublisher
	Commands CommandSender

	Currency       string
	MaxPerPurchase int

	Codes CodeGenerator
	Now   func() time.Time
}

func (d Deps) issuer() issuer {
	i := issuer{
		events:   d.Events,
		tickets:  d.Tickets,
		uow:      d.UoW,
		outbox:   d.Outbox,
		commands: d.Commands,
		currency: d.Currency,
		codes:    d.Codes,
		now:      d.Now,
	}
	if i.codes == nil {
		i.codes = GenerateTicketCode
	}
	if i.now == nil {
		i.now = time.Now
	}
	return i
}

type Request struct {
	UserID          string
	EventID         string
	Quantity        int
	PaymentMethodID string
	// IdempotencyKey is passed to the payment provider so a retried request
	// does not create a second charge.
	IdempotencyKey string
}

type Orchestrator struct {
	users          UserDirectory
	events         EventLedger
	gateway        PaymentGateway
	issuer         issuer
	currency       string
	maxPerPurchase int
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Events == nil || deps.Tickets == nil || deps.Users == nil || deps.UoW == nil || deps.Gateway == nil || deps.Outbox == nil {
		panic("missing purchase dependencies")
	}

	maxPerPurchase := deps.MaxPerPurchase
	if maxPerPurchase <= 0 {
		maxPerPurchase = DefaultMaxPerPurchase
	}

	return &Orchestrator{
		users:          deps.Users,
		events:         deps.Events,
		gateway:        deps.Gateway,
		issuer:         deps.issuer(),
		currency:       deps.Currency,
		maxPerPurchase: maxPerPurchase,
	}
}

// Purchase charges the user for quantity seats and issues the tickets.
//
// The charge is made outside any transaction. Seats are only taken once the
// charge has succeeded, so a buyer who lost the race for the last seats
// after paying gets a *ReconciliationError.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (PurchaseResult, error) {
	result, err := o.purchase(ctx, req)
	if err != nil {
		monitoring.RecordPurchaseOutcome(errorOutcome(err))
		return nil, err
	}

	monitoring.RecordPurchaseOutcome(result.purchaseOutcome())
	return result, nil
}

func (o *Orchestrator) purchase(ctx context.Context, req Request) (PurchaseResult, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	user, err := o.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	ev, err := o.events.Get(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}

	available, remaining, err := o.events.CheckAvailability(ctx, req.EventID, req.Quantity)
	if err != nil {
		return nil, fmt.Errorf("checking availability: %w", err)
	}
	if !available {
		return InsufficientInventory{Requested: req.Quantity, Available: remaining}, nil
	}

	customerID, err := o.gateway.FindOrCreateCustomer(ctx, user.Email, user.FullName())
	if err != nil {
		return nil, fmt.Errorf("resolving payment customer: %w", err)
	}

	charge, err := o.gateway.CreateAndConfirmCharge(ctx, entity.ChargeRequest{
		Amount: entity.Money{
			Amount:   ev.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
			Currency: o.currency,
		},
		CustomerID:      customerID,
		PaymentMethodID: req.PaymentMethodID,
		Metadata: entity.ChargeMetadata{
			EventID:    ev.ID,
			UserID:     user.ID,
			Quantity:   req.Quantity,
			EventTitle: ev.Title,
		},
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("charging payment: %w", err)
	}

	logger := log.FromContext(ctx).
		WithField("payment_intent_id", charge.IntentID).
		WithField("status", charge.Status)

	switch charge.Status {
	case entity.ChargeRequiresAction, entity.ChargeProcessing:
		logger.Info("Payment needs further action before tickets can be issued")
		return ActionRequired{
			PaymentIntentID: charge.IntentID,
			ClientSecret:    charge.ClientSecret,
			Status:          charge.Status,
		}, nil
	case entity.ChargeFailed, entity.ChargeCanceled:
		logger.WithField("reason", charge.FailureReason).Info("Payment failed")
		return PaymentFailed{
			PaymentIntentID: charge.IntentID,
			Status:          charge.Status,
			Reason:          charge.FailureReason,
		}, nil
	case entity.ChargeSucceeded:
	default:
		return nil, fmt.Errorf("unexpected charge status %q for payment %s", charge.Status, charge.IntentID)
	}

	is := issuance{
		paymentIntentID: charge.IntentID,
		eventID:         ev.ID,
		user:            user,
		quantity:        req.Quantity,
		pricePerSeat:    ev.Price,
	}

	tickets, issuedFor, err := o.issuer.issue(ctx, is)
	if errors.Is(err, entity.ErrAlreadyIssued) {
		// A retried request with the same idempotency key gets the same
		// payment intent back.
		return o.alreadyPurchased(ctx, charge.IntentID)
	}
	if err != nil {
		return nil, o.issuer.reconciliationFailed(ctx, is, err, true)
	}

	return Purchased{
		PaymentIntentID: charge.IntentID,
		Tickets:         entity.Summarize(tickets, issuedFor),
		TotalTickets:    len(tickets),
		TotalAmount:     totalOf(tickets, o.currency),
	}, nil
}

func (o *Orchestrator) alreadyPurchased(ctx context.Context, paymentIntentID string) (PurchaseResult, error) {
	tickets, err := o.issuer.tickets.ListByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("listing tickets for payment: %w", err)
	}
	if len(tickets) == 0 {
		return nil, fmt.Errorf("payment %s reported as issued but has no tickets", paymentIntentID)
	}

	ev, err := o.events.Get(ctx, tickets[0].EventID)
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}

	return Purchased{
		PaymentIntentID: paymentIntentID,
		Tickets:         entity.Summarize(tickets, ev),
		TotalTickets:    len(tickets),
		TotalAmount:     totalOf(tickets, o.currency),
	}, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.UserID == "" {
		return entity.ValidationError{Field: "user_id", Message: "is required"}
	}
	if req.EventID == "" {
		return entity.ValidationError{Field: "event_id", Message: "is required"}
	}
	if req.PaymentMethodID == "" {
		return entity.ValidationError{Field: "payment_method_id", Message: "is required"}
	}
	if req.Quantity < 1 || req.Quantity > o.maxPerPurchase {
		return entity.ValidationError{
			Field:   "quantity",
			Message: fmt.Sprintf("must be between 1 and %d", o.maxPerPurchase),
		}
	}
	return nil
}

func errorOutcome(err error) string {
	var validationErr entity.ValidationError
	var reconciliationErr *ReconciliationError

	switch {
	case errors.As(err, &validationErr):
		return "validation_error"
	case errors.As(err, &reconciliationErr):
		return "reconciliation_failed"
	case errors.Is(err, entity.ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, entity.ErrEventNotFound), errors.Is(err, entity.ErrUserNotFound), errors.Is(err, entity.ErrPaymentNotFound):
		return "not_found"
	case errors.Is(err, entity.ErrPaymentNotOwned):
		return "forbidden"
	default:
		return "internal"
	}
}
