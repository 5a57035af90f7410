package purchase

import (
	"boxoffice/entity"
	"boxoffice/monitoring"
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/shopspring/decimal"
)

type Reconciler struct {
	users    UserDirectory
	gateway  PaymentGateway
	issuer   issuer
	currency string
}

func NewReconciler(deps Deps) *Reconciler {
	if deps.Events == nil || deps.Tickets == nil || deps.Users == nil || deps.UoW == nil || deps.Gateway == nil || deps.Outbox == nil {
		panic("missing reconciler dependencies")
	}

	return &Reconciler{
		users:    deps.Users,
		gateway:  deps.Gateway,
		issuer:   deps.issuer(),
		currency: deps.Currency,
	}
}

// Confirm issues the tickets for a payment that completed after the
// purchase request returned. callerID, when set, must own the payment.
// A failure after the charge schedules a background replay.
func (r *Reconciler) Confirm(ctx context.Context, paymentIntentID, callerID string) (ConfirmResult, error) {
	result, err := r.confirm(ctx, paymentIntentID, callerID, true)
	if err != nil {
		monitoring.RecordConfirmOutcome(errorOutcome(err))
		return nil, err
	}

	monitoring.RecordConfirmOutcome(result.confirmOutcome())
	return result, nil
}

// Replay is Confirm for background reconciliation. It never schedules
// another replay; the caller decides whether to retry.
func (r *Reconciler) Replay(ctx context.Context, paymentIntentID string) (ConfirmResult, error) {
	result, err := r.confirm(ctx, paymentIntentID, "", false)
	if err != nil {
		monitoring.RecordConfirmOutcome(errorOutcome(err))
		return nil, err
	}

	monitoring.RecordConfirmOutcome(result.confirmOutcome())
	return result, nil
}

func (r *Reconciler) confirm(ctx context.Context, paymentIntentID, callerID string, replay bool) (ConfirmResult, error) {
	if paymentIntentID == "" {
		return nil, entity.ValidationError{Field: "payment_intent_id", Message: "is required"}
	}

	existing, err := r.issuer.existing(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return AlreadyProcessed{PaymentIntentID: paymentIntentID, Tickets: existing}, nil
	}

	charge, err := r.gateway.GetCharge(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("getting charge status: %w", err)
	}
	if charge.Status != entity.ChargeSucceeded {
		return NotSuccessful{PaymentIntentID: paymentIntentID, Status: charge.Status}, nil
	}

	metadata, err := entity.ParseChargeMetadata(charge.Metadata)
	if err != nil {
		log.FromContext(ctx).
			WithError(err).
			WithField("payment_intent_id", paymentIntentID).
			Error("Succeeded payment has unusable metadata")
		return nil, fmt.Errorf("%w: %w", entity.ErrInvalidChargeMetadata, err)
	}
	if callerID != "" && callerID != metadata.UserID {
		return nil, entity.ErrPaymentNotOwned
	}

	is := issuance{
		paymentIntentID: paymentIntentID,
		eventID:         metadata.EventID,
		user:            entity.User{ID: metadata.UserID},
		quantity:        metadata.Quantity,
		pricePerSeat:    charge.Amount.Amount.Div(decimal.NewFromInt(int64(metadata.Quantity))).Round(2),
	}

	user, err := r.users.Get(ctx, metadata.UserID)
	if err != nil {
		return nil, r.issuer.reconciliationFailed(ctx, is, fmt.Errorf("getting user: %w", err), replay)
	}
	is.user = user

	tickets, ev, err := r.issuer.issue(ctx, is)
	if errors.Is(err, entity.ErrAlreadyIssued) {
		existing, err := r.issuer.existing(ctx, paymentIntentID)
		if err != nil {
			return nil, err
		}
		return AlreadyProcessed{PaymentIntentID: paymentIntentID, Tickets: existing}, nil
	}
	if err != nil {
		return nil, r.issuer.reconciliationFailed(ctx, is, err, replay)
	}

	return Issued{
		PaymentIntentID: paymentIntentID,
		Tickets:         entity.Summarize(tickets, ev),
		TotalTickets:    len(tickets),
		TotalAmount:     totalOf(tickets, r.currency),
	}, nil
}

// IsTerminal reports whether a reconciliation can never succeed by retrying.
func IsTerminal(err error) bool {
	return errors.Is(err, entity.ErrEventNotFound) ||
		errors.Is(err, entity.ErrUserNotFound) ||
		errors.Is(err, entity.ErrInsufficientInventory) ||
		errors.Is(err, entity.ErrPaymentNotFound) ||
		errors.Is(err, entity.ErrUnrecognizedChargeStatus) ||
		errors.Is(err, entity.ErrInvalidChargeMetadata)
}
