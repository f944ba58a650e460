package repository

import (
	"context"
	"time"

	"hotel-sync/internal/domain"
)

// Assignment 旅客-房间关联（对应 guest_room 表）
// An assignment is active while CheckOutDate is nil. A guest is "in" a room
// iff they have an active assignment for it; everything a client sees as
// room occupancy or guest location is derived from this relation.
type Assignment struct {
	ID           string
	GuestID      string
	RoomID       string
	CheckInDate  time.Time
	CheckOutDate *time.Time
}

// Active reports whether the assignment has not been checked out.
func (a *Assignment) Active() bool {
	return a.CheckOutDate == nil
}

// Store 房态存储接口
// Snapshot reads recompute all derived fields (room guest lists and counts,
// guest room_id and dates) from the assignment relation; nothing derived is
// cached between calls. Missing rows are reported as sql.ErrNoRows.
type Store interface {
	Rooms(ctx context.Context) ([]*domain.Room, error)
	Room(ctx context.Context, roomID string) (*domain.Room, error)
	Guests(ctx context.Context) ([]*domain.Guest, error)
	Guest(ctx context.Context, guestID string) (*domain.Guest, error)

	// Update runs fn atomically: either every write fn performed is kept, or
	// (when fn returns an error) none of them is. Snapshot reads never observe
	// an in-flight fn's intermediate state.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx 行级读写接口，在 Store.Update 的事务中使用
type Tx interface {
	// Room returns the room's stored fields. Derived occupancy fields are left
	// zero; use ActiveCount/ActiveGuests to compose them.
	Room(roomID string) (*domain.Room, error)
	RoomByNumber(roomNumber string) (*domain.Room, error)
	InsertRoom(room *domain.Room) error
	UpdateRoom(room *domain.Room) error
	DeleteRoom(roomID string) error

	// Guest returns the guest with RoomID and check-in/out dates populated
	// from the current active assignment (nil when there is none).
	Guest(guestID string) (*domain.Guest, error)
	GuestByEmail(email string) (*domain.Guest, error)
	InsertGuest(guest *domain.Guest) error
	// UpdateGuest persists the guest's own fields; assignment state is only
	// changed through Open/CloseAssignment.
	UpdateGuest(guest *domain.Guest) error
	DeleteGuest(guestID string) error

	// ActiveAssignment returns the guest's active assignment, or (nil, nil)
	// when the guest is not checked in anywhere.
	ActiveAssignment(guestID string) (*Assignment, error)
	ActiveCount(roomID string) (int, error)
	// ActiveGuests returns the room's active occupants in check-in order,
	// with their derived fields populated.
	ActiveGuests(roomID string) ([]*domain.Guest, error)
	OpenAssignment(guestID, roomID string, at time.Time) error
	// CloseAssignment stamps the guest's active assignment with at; it is a
	// no-op when the guest has none.
	CloseAssignment(guestID string, at time.Time) error
}
