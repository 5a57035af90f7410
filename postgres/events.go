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

// EventRepo is the inventory ledger: the only writer of available_seats.
type EventRepo struct {
	db     *sqlx.DB
	getter *trmsqlx.CtxGetter
}

func NewEventRepo(db *sqlx.DB) EventRepo {
	return EventRepo{
		db:     db,
		getter: trmsqlx.DefaultCtxGetter,
	}
}

func (r EventRepo) Add(ctx context.Context, event entity.Event) error {
	_, err := r.getter.DefaultTrOrDB(ctx, r.db).ExecContext(ctx, `INSERT INTO events
		(id, title, location, starts_at, price, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING;`,
		event.ID, event.Title, event.Location, event.StartsAt, event.Price, event.TotalSeats, event.AvailableSeats)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func (r EventRepo) Get(ctx context.Context, eventID string) (entity.Event, error) {
	var event entity.Event
	err := sqlx.GetContext(ctx, r.getter.DefaultTrOrDB(ctx, r.db), &event, `SELECT
		id, title, location, starts_at, price, total_seats, available_seats
		FROM events WHERE id = $1;`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Event{}, entity.ErrEventNotFound
	}
	if err != nil {
		return entity.Event{}, fmt.Errorf("selecting event: %w", err)
	}
	return event, nil
}

// CheckAvailability is advisory only. The answer can be stale by the time
// the caller acts on it.
func (r EventRepo) CheckAvailability(ctx context.Context, eventID string, quantity int) (bool, int, error) {
	event, err := r.Get(ctx, eventID)
	if err != nil {
		return false, 0, err
	}
	return event.AvailableSeats >= quantity, event.AvailableSeats, nil
}

// DecrementAtomically takes quantity seats in a single conditional update
// and returns what is left. It never drives available_seats below zero.
func (r EventRepo) DecrementAtomically(ctx context.Context, eventID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, entity.ValidationError{Field: "quantity", Message: "must be positive"}
	}

	tr := r.getter.DefaultTrOrDB(ctx, r.db)

	var remaining int
	err := sqlx.GetContext(ctx, tr, &remaining, `UPDATE events
		SET available_seats = available_seats - $2
		WHERE id = $1 AND available_seats >= $2
		RETURNING available_seats;`, eventID, quantity)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("decrementing available seats: %w", err)
	}

	var exists bool
	err = sqlx.GetContext(ctx, tr, &exists, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1);`, eventID)
	if err != nil {
		return 0, fmt.Errorf("checking event exists: %w", err)
	}
	if !exists {
		return 0, entity.ErrEventNotFound
	}
	return 0, entity.ErrInsufficientInventory
}
