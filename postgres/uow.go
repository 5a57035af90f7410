package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	trmsqlx "github.com/avito-tech/go-transaction-manager/drivers/sqlx/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/avito-tech/go-transaction-manager/trm/v2/settings"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// UnitOfWork commits or rolls back everything fn does through the
// repositories of this package as one transaction.
type UnitOfWork struct {
	manager  *manager.Manager
	settings trmsql.Settings
	attempts int
}

func NewUnitOfWork(db *sqlx.DB, isolation sql.IsolationLevel, attempts int) (*UnitOfWork, error) {
	m, err := manager.New(trmsqlx.NewDefaultFactory(db))
	if err != nil {
		return nil, fmt.Errorf("creating transaction manager: %w", err)
	}

	s, err := trmsql.NewSettings(
		settings.Must(settings.WithCancelable(true)),
		trmsql.WithTxOptions(&sql.TxOptions{Isolation: isolation}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transaction settings: %w", err)
	}

	if attempts < 1 {
		attempts = 1
	}

	return &UnitOfWork{
		manager:  m,
		settings: s,
		attempts: attempts,
	}, nil
}

// Do retries the whole of fn when Postgres aborts the transaction with a
// serialization failure or a deadlock.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		err = u.manager.DoWithSettings(ctx, u.settings, fn)
		if !isRetryable(err) {
			return err
		}

		log.FromContext(ctx).
			WithError(err).
			WithField("attempt", attempt).
			Warn("Unit of work aborted by concurrent transaction")
	}

	return fmt.Errorf("unit of work failed after %d attempts: %w", u.attempts, err)
}

func ParseIsolation(level string) (sql.IsolationLevel, error) {
	switch level {
	case "", "read_committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", level)
	}
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeUniqueViolation && pqErr.Constraint == constraint
}
