package message

import (
	"boxoffice/command"
	"boxoffice/entity"
	"boxoffice/event"
	"boxoffice/purchase"
	"boxoffice/render"
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
)

const (
	ticketsToPrintSheet   = "tickets-to-print"
	paymentsToRefundSheet = "payments-to-refund"
)

type ReceiptsClient interface {
	IssueReceipt(ctx context.Context, idempotencyKey, ticketID string, price entity.Money) error
}

type SpreadsheetAppender interface {
	AppendRow(ctx context.Context, spreadsheetName string, row []string) error
}

type FileUploader interface {
	UploadFile(ctx context.Context, fileID string, content string) error
}

type Publisher interface {
	Publish(ctx context.Context, event any) error
}

type TicketRepo interface {
	Get(ctx context.Context, ticketID string) (entity.Ticket, error)
}

type EventRepo interface {
	Get(ctx context.Context, eventID string) (entity.Event, error)
}

type UserRepo interface {
	Get(ctx context.Context, userID string) (entity.User, error)
}

type PaymentReconciler interface {
	Replay(ctx context.Context, paymentIntentID string) (purchase.ConfirmResult, error)
}

func handleIssueReceipt(r ReceiptsClient) func(ctx context.Context, e *event.TicketsIssued) error {
	return func(ctx context.Context, e *event.TicketsIssued) error {
		for _, t := range e.Tickets {
			if err := r.IssueReceipt(ctx, e.Header.IdempotencyKey+t.TicketID, t.TicketID, e.Price); err != nil {
				return fmt.Errorf("issuing receipt for ticket %s: %w", t.TicketID, err)
			}
		}

		return nil
	}
}

func handleAppendToTracker(s SpreadsheetAppender) func(ctx context.Context, e *event.TicketsIssued) error {
	return func(ctx context.Context, e *event.TicketsIssued) error {
		for _, t := range e.Tickets {
			row := []string{t.TicketCode, e.EventTitle, e.CustomerEmail, e.Price.Amount.StringFixed(2), e.Price.Currency}
			if err := s.AppendRow(ctx, ticketsToPrintSheet, row); err != nil {
				return fmt.Errorf("failed to append row to tracker: %w", err)
			}
		}

		return nil
	}
}

func handlePrintTicket(
	tickets TicketRepo,
	events EventRepo,
	users UserRepo,
	files FileUploader,
	p Publisher,
) func(ctx context.Context, e *event.TicketsIssued) error {
	return func(ctx context.Context, e *event.TicketsIssued) error {
		ev, err := events.Get(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("getting event: %w", err)
		}

		user, err := users.Get(ctx, e.UserID)
		if err != nil {
			return fmt.Errorf("getting user: %w", err)
		}

		for _, issued := range e.Tickets {
			ticket, err := tickets.Get(ctx, issued.TicketID)
			if err != nil {
				return fmt.Errorf("getting ticket: %w", err)
			}

			doc, err := render.Ticket(ticket, ev, user, e.Price.Currency)
			if err != nil {
				return err
			}

			fileName := render.FileName(ticket)
			if err := files.UploadFile(ctx, fileName, string(doc)); err != nil {
				return fmt.Errorf("uploading ticket: %w", err)
			}

			printed := event.NewTicketPrinted(e.Header.IdempotencyKey+ticket.ID, ticket.ID, fileName)
			if err := p.Publish(ctx, printed); err != nil {
				return fmt.Errorf("publishing ticket printed event: %w", err)
			}
		}

		return nil
	}
}

func handleAppendToRefundTracker(s SpreadsheetAppender) func(ctx context.Context, e *event.PaymentReconciliationFailed) error {
	return func(ctx context.Context, e *event.PaymentReconciliationFailed) error {
		row := []string{e.PaymentIntentID, e.EventID, e.UserID, strconv.Itoa(e.Quantity), e.Reason}
		if err := s.AppendRow(ctx, paymentsToRefundSheet, row); err != nil {
			return fmt.Errorf("failed to append row to refund tracker: %w", err)
		}

		return nil
	}
}

// handleReconcilePayment retries issuance for a charged payment. Failures
// that retrying cannot fix are handed over for a manual refund instead of
// being retried forever.
func handleReconcilePayment(r PaymentReconciler, p Publisher) func(ctx context.Context, cmd *command.ReconcilePayment) error {
	return func(ctx context.Context, cmd *command.ReconcilePayment) error {
		logger := log.FromContext(ctx).WithFields(logrus.Fields{
			"payment_intent_id": cmd.PaymentIntentID,
			"event_id":          cmd.EventID,
			"user_id":           cmd.UserID,
			"quantity":          cmd.Quantity,
		})

		result, err := r.Replay(ctx, cmd.PaymentIntentID)
		if err == nil {
			logger.WithField("result", fmt.Sprintf("%T", result)).Info("Payment reconciled")
			return nil
		}

		if !purchase.IsTerminal(err) {
			return fmt.Errorf("reconciling payment %s: %w", cmd.PaymentIntentID, err)
		}

		logger.WithError(err).Error("Payment cannot be reconciled, needs refund")

		failed := event.NewPaymentReconciliationFailed(cmd.PaymentIntentID, cmd.EventID, cmd.UserID, cmd.Quantity, err.Error())
		if err := p.Publish(ctx, failed); err != nil {
			return fmt.Errorf("publishing payment reconciliation failed: %w", err)
		}

		return nil
	}
}
