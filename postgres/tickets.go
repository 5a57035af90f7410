package postgres

import (
	"boxoffice/entity"
	"context"
	"database/sql"
	"errors"
	"fmt"

	trmsqlx "github.com/avito-tech/go-transaction-manager/drivers/sqlx/v2"
	"github.com/jmoiron/sqlx"
)

const ticketColumns = `id, ticket_code, user_id, event_id, quantity, total_amount,
	payment_intent_id, payment_seq, payment_status, purchase_date, is_used`

// TicketRepo is the ticket ledger. At most one ticket exists per
// (payment_intent_id, payment_seq) and ticket codes are unique.
type TicketRepo struct {
	db     *sqlx.DB
	getter *trmsqlx.CtxGetter
}

func NewTicketRepo(db *sqlx.DB) TicketRepo {
	return TicketRepo{
		db:     db,
		getter: trmsqlx.DefaultCtxGetter,
	}
}

// Insert returns false without error when the ticket code is already taken,
// so the caller can retry with a fresh code inside the same transaction.
// A ticket already recorded for the same payment slot fails with
// entity.ErrAlreadyIssued.
func (r TicketRepo) Insert(ctx context.Context, ticket entity.Ticket) (bool, error) {
	var id string
	err := sqlx.GetContext(ctx, r.getter.DefaultTrOrDB(ctx, r.db), &id, `INSERT INTO tickets
		(`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ticket_code) DO NOTHING
		RETURNING id;`,
		ticket.ID, ticket.TicketCode, ticket.UserID, ticket.EventID, ticket.Quantity, ticket.TotalAmount,
		ticket.PaymentIntentID, ticket.PaymentSeq, ticket.PaymentStatus, ticket.PurchaseDate, ticket.IsUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if isUniqueViolation(err, paymentIntentSeqConstraint) {
		return false, entity.ErrAlreadyIssued
	}
	if err != nil {
		return false, fmt.Errorf("inserting ticket: %w", err)
	}
	return true, nil
}

func (r TicketRepo) ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := sqlx.SelectContext(ctx, r.getter.DefaultTrOrDB(ctx, r.db), &tickets, `SELECT `+ticketColumns+`
		FROM tickets WHERE payment_intent_id = $1
		ORDER BY payment_seq;`, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("selecting tickets by payment intent: %w", err)
	}
	return tickets, nil
}

func (r TicketRepo) ListByUser(ctx context.Context, userID string) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := sqlx.SelectContext(ctx, r.getter.DefaultTrOrDB(ctx, r.db), &tickets, `SELECT `+ticketColumns+`
		FROM tickets WHERE user_id = $1
		ORDER BY purchase_date DESC, payment_seq;`, userID)
	if err != nil {
		return nil, fmt.Errorf("selecting tickets by user: %w", err)
	}
	return tickets, nil
}

func (r TicketRepo) Get(ctx context.Context, ticketID string) (entity.Ticket, error) {
	var ticket entity.Ticket
	err := sqlx.GetContext(ctx, r.getter.DefaultTrOrDB(ctx, r.db), &ticket, `SELECT `+ticketColumns+`
		FROM tickets WHERE id = $1;`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, entity.ErrTicketNotFound
	}
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("selecting ticket: %w", err)
	}
	return ticket, nil
}

func (r TicketRepo) CountSucceededByEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.getter.DefaultTrOrDB(ctx, r.db), &n,
		`SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND payment_status = $2;`,
		eventID, entity.PaymentStatusSucceeded)
	if err != nil {
		return 0, fmt.Errorf("counting tickets: %w", err)
	}
	return n, nil
}
