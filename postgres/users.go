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

type UserRepo struct {
	db     *sqlx.DB
	getter *trmsqlx.CtxGetter
}

func NewUserRepo(db *sqlx.DB) UserRepo {
	return UserRepo{
		db:     db,
		getter: trmsqlx.DefaultCtxGetter,
	}
}

func (r UserRepo) Add(ctx context.Context, user entity.User) error {
	_, err := r.getter.DefaultTrOrDB(ctx, r.db).ExecContext(ctx, `INSERT INTO users
		(id, email, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;`,
		user.ID, user.Email, user.FirstName, user.LastName)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r UserRepo) Get(ctx context.Context, userID string) (entity.User, error) {
	var user entity.User
	err := sqlx.GetContext(ctx, r.getter.DefaultTrOrDB(ctx, r.db), &user,
		`SELECT id, email, first_name, last_name FROM users WHERE id = $1;`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, entity.ErrUserNotFound
	}
	if err != nil {
		return entity.User{}, fmt.Errorf("selecting user: %w", err)
	}
	return user, nil
}
