package purchase

import (
	"boxoffice/command"
	"boxoffice/entity"
	"boxoffice/event"
	"boxoffice/monitoring"
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxCodeAttempts = 5

type issuer struct {
	events   EventLedger
	tickets  TicketLedger
	uow      UnitOfWork
	outbox   EventPublisher
	commands CommandSender
	currency string
	codes    CodeGenerator
	now      func() time.Time
}

// issuance describes one charged payment. pricePerSeat is what the buyer
// paid, not the event's current price.
type issuance struct {
	paymentIntentID string
	eventID         string
	user            entity.User
	quantity        int
	pricePerSeat    decimal.Decimal
}

// issue inserts one ticket per seat, takes the seats and records
// TicketsIssued as a single unit of work.
func (i issuer) issue(ctx context.Context, req issuance) ([]entity.Ticket, entity.Event, error) {
	var (
		tickets []entity.Ticket
		ev      entity.Event
	)

	err := i.uow.Do(ctx, func(ctx context.Context) error {
		tickets = tickets[:0]

		var err error
		ev, err = i.events.Get(ctx, req.eventID)
		if err != nil {
			return fmt.Errorf("getting event: %w", err)
		}

		purchasedAt := i.now().UTC()
		for seq := 0; seq < req.quantity; seq++ {
			ticket, err := i.insertTicket(ctx, entity.Ticket{
				ID:              uuid.NewString(),
				UserID:          req.user.ID,
				EventID:         ev.ID,
				Quantity:        1,
				TotalAmount:     req.pricePerSeat,
				PaymentIntentID: req.paymentIntentID,
				PaymentSeq:      seq,
				PaymentStatus:   entity.PaymentStatusSucceeded,
				PurchaseDate:    purchasedAt,
			})
			if err != nil {
				return err
			}
			tickets = append(tickets, ticket)
		}

		remaining, err := i.events.DecrementAtomically(ctx, ev.ID, req.quantity)
		if err != nil {
			return fmt.Errorf("taking %d seats: %w", req.quantity, err)
		}
		ev.AvailableSeats = remaining

		issued := event.NewTicketsIssued(req.paymentIntentID, ev, req.user, i.currency, tickets)
		if err := i.outbox.Publish(ctx, issued); err != nil {
			return fmt.Errorf("publishing tickets issued: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, entity.Event{}, err
	}

	monitoring.RecordTicketsIssued(len(tickets))

	return tickets, ev, nil
}

func (i issuer) insertTicket(ctx context.Context, ticket entity.Ticket) (entity.Ticket, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		ticket.TicketCode = i.codes(i.now())

		inserted, err := i.tickets.Insert(ctx, ticket)
		if err != nil {
			return entity.Ticket{}, fmt.Errorf("inserting ticket %d: %w", ticket.PaymentSeq, err)
		}
		if inserted {
			return ticket, nil
		}

		log.FromContext(ctx).WithField("ticket_code", ticket.TicketCode).Warn("Ticket code collision, generating a new one")
	}

	return entity.Ticket{}, entity.ErrTicketCodeExhausted
}

// existing returns the tickets already issued for a payment, or nil.
func (i issuer) existing(ctx context.Context, paymentIntentID string) ([]entity.TicketSummary, error) {
	tickets, err := i.tickets.ListByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("listing tickets for payment: %w", err)
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	ev, err := i.events.Get(ctx, tickets[0].EventID)
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}

	return entity.Summarize(tickets, ev), nil
}

// reconciliationFailed records a charged payment that has no tickets and,
// when replay is set, asks for it to be confirmed again in the background.
func (i issuer) reconciliationFailed(ctx context.Context, req issuance, cause error, replay bool) *ReconciliationError {
	recErr := &ReconciliationError{
		PaymentIntentID: req.paymentIntentID,
		EventID:         req.eventID,
		UserID:          req.user.ID,
		Quantity:        req.quantity,
		Err:             cause,
	}

	logger := log.FromContext(ctx).WithError(cause).WithFields(logrus.Fields{
		"payment_intent_id": req.paymentIntentID,
		"event_id":          req.eventID,
		"user_id":           req.user.ID,
		"quantity":          req.quantity,
	})
	logger.Error("Payment charged but tickets not issued")

	if replay && i.commands != nil {
		cmd := command.NewReconcilePayment(req.paymentIntentID, req.eventID, req.user.ID, req.quantity)
		if err := i.commands.Send(ctx, cmd); err != nil {
			logger.WithError(err).Error("Could not schedule payment reconciliation")
		}
	}

	return recErr
}

func totalOf(tickets []entity.Ticket, currency string) entity.Money {
	total := entity.Money{Amount: decimal.Zero, Currency: currency}
	for _, t := range tickets {
		total.Amount = total.Amount.Add(t.TotalAmount)
	}
	return total
}
