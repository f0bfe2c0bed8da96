package models

import (
	"time"

	"github.com/google/uuid"
)

// Resolution is a manager's decision that a user's date needs no further receipts.
type Resolution struct {
	UserID    uuid.UUID `db:"user_id"`
	Date      time.Time `db:"date"`
	Reason    string    `db:"reason"`
	ManagerID uuid.UUID `db:"manager_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *Resolution) Key() DayKey {
	return NewDayKey(r.UserID, r.Date)
}
