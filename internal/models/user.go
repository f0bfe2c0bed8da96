package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleOfficer Role = "officer"
	RoleManager Role = "manager"
)

type User struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Password  string    `db:"password"`
	Role      Role      `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Card maps a fuel card to the officer who carries it.
type Card struct {
	UserID    uuid.UUID `db:"user_id"`
	CardLast4 string    `db:"card_last4"`
	CreatedAt time.Time `db:"created_at"`
}
