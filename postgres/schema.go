package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	ticketCodeConstraint       = "tickets_ticket_code_key"
	paymentIntentSeqConstraint = "tickets_payment_intent_seq_key"
)

func InitialiseDB(ctx context.Context, db *sqlx.DB) error {
	if err := CreateUsersTable(ctx, db); err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	if err := CreateEventsTable(ctx, db); err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}

	if err := CreateTicketsTable(ctx, db); err != nil {
		return fmt.Errorf("creating tickets table: %w", err)
	}

	return nil
}

func CreateUsersTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		first_name VARCHAR(255) NOT NULL,
		last_name VARCHAR(255) NOT NULL
	);`)
	return err
}

func CreateEventsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		location VARCHAR(255) NOT NULL,
		starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
		price NUMERIC(10, 2) NOT NULL CHECK (price > 0),
		total_seats INTEGER NOT NULL CHECK (total_seats >= 0),
		available_seats INTEGER NOT NULL,
		CONSTRAINT events_available_seats_check
			CHECK (available_seats >= 0 AND available_seats <= total_seats)
	);`)
	return err
}

func CreateTicketsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tickets (
		id UUID PRIMARY KEY,
		ticket_code VARCHAR(64) NOT NULL,
		user_id UUID NOT NULL REFERENCES users (id),
		event_id UUID NOT NULL REFERENCES events (id),
		quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity = 1),
		total_amount NUMERIC(10, 2) NOT NULL,
		payment_intent_id VARCHAR(255) NOT NULL,
		payment_seq INTEGER NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		purchase_date TIMESTAMP WITH TIME ZONE NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT ` + ticketCodeConstraint + ` UNIQUE (ticket_code),
		CONSTRAINT ` + paymentIntentSeqConstraint + ` UNIQUE (payment_intent_id, payment_seq)
	);
	CREATE INDEX IF NOT EXISTS tickets_user_id_idx ON tickets (user_id);
	CREATE INDEX IF NOT EXISTS tickets_event_id_idx ON tickets (event_id);`)
	return err
}
