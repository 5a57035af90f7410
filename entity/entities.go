package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type Event struct {
	ID             string          `json:"event_id" db:"id"`
	Title          string          `json:"title" db:"title"`
	Location       string          `json:"location" db:"location"`
	StartsAt       time.Time       `json:"starts_at" db:"starts_at"`
	Price          decimal.Decimal `json:"price" db:"price"`
	TotalSeats     int             `json:"total_seats" db:"total_seats"`
	AvailableSeats int             `json:"available_seats" db:"available_seats"`
}

type User struct {
	ID        string `json:"user_id" db:"id"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
