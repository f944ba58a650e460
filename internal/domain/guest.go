package domain

import (
	"time"
)

// Guest 旅客领域模型（对应 guests 表）
type Guest struct {
	ID        string `json:"id"`         // UUID, PRIMARY KEY
	FirstName string `json:"first_name"` // VARCHAR(50), NOT NULL
	LastName  string `json:"last_name"`  // VARCHAR(50), NOT NULL
	Email     string `json:"email"`      // VARCHAR(100), NOT NULL, UNIQUE
	Phone     string `json:"phone"`      // VARCHAR(20), NOT NULL

	// Derived from the active guest_room link on every read: RoomID and the
	// dates are nil when the guest is not checked in anywhere.
	RoomID       *string    `json:"room_id"`
	CheckInDate  *time.Time `json:"check_in_date"`
	CheckOutDate *time.Time `json:"check_out_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the guest currently holds an active room assignment.
func (g *Guest) Active() bool {
	return g.RoomID != nil && g.CheckOutDate == nil
}
