package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"hotel-sync/internal/domain"
	"hotel-sync/internal/repository"

	"go.uber.org/zap"
)

// Engine 入住一致性引擎
// Every mutation runs the full read-validate-write sequence under one mutex,
// so two concurrent check-ins cannot both pass the capacity check against a
// stale count. Entity existence is always checked before capacity, so a bad
// reference rejects as NotFound even when the room is also full.
type Engine struct {
	store  repository.Store
	logger *zap.Logger

	// mu serializes mutations across store implementations; the store's own
	// transaction only guarantees atomicity, not single-writer ordering.
	mu sync.Mutex

	now func() time.Time
}

func NewEngine(store repository.Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ---- snapshot reads ----

func (e *Engine) Rooms(ctx context.Context) ([]*domain.Room, error) {
	return e.store.Rooms(ctx)
}

func (e *Engine) Room(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := e.store.Room(ctx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Reject(RejectNotFound, "Room with ID %s not found", roomID)
	}
	return room, err
}

func (e *Engine) Guests(ctx context.Context) ([]*domain.Guest, error) {
	return e.store.Guests(ctx)
}

func (e *Engine) Guest(ctx context.Context, guestID string) (*domain.Guest, error) {
	guest, err := e.store.Guest(ctx, guestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Reject(RejectNotFound, "Guest with ID %s not found", guestID)
	}
	return guest, err
}

// ---- request/patch types ----

// NewRoom add_room 参数
type NewRoom struct {
	RoomNumber    string
	RoomType      domain.RoomType
	PricePerNight float64
	MaxGuests     int
	DoorLocked    *bool
}

// LightsPatch 灯光部分更新
type LightsPatch struct {
	Bathroom *bool
	Bedroom  *bool
	Hallway  *bool
}

// SensorsPatch 传感器部分更新（仅数据，无不变式）
type SensorsPatch struct {
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Lights      *LightsPatch
}

// RoomPatch update_room 参数。派生字段（guests、current_guests_count）
// 不可通过 patch 修改。
type RoomPatch struct {
	RoomType      *string
	Status        *string
	PricePerNight *float64
	MaxGuests     *int
	DoorLocked    *bool
	Sensors       *SensorsPatch
}

// NewGuest add_guest 参数。RoomID 非空时在同一原子操作内完成入住。
type NewGuest struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	RoomID      *string
	CheckInTime *time.Time
}

// GuestPatch update_guest 参数。RoomSet 为 true 时 RoomID 生效：
// nil 表示退房，非空表示换房/入住。
type GuestPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	RoomSet   bool
	RoomID    *string
}

// CheckInResult / CheckOutResult carry the full updated entities for the
// originator reply and the broadcast.
type CheckInResult struct {
	Guest *domain.Guest
	Room  *domain.Room
}

type CheckOutResult struct {
	Guest *domain.Guest
	Room  *domain.Room // nil when the guest had no active room (no-op success)
}

type AssignResult struct {
	Room          *domain.Room
	AssignedCount int
}

// ---- room operations ----

func (e *Engine) CreateRoom(ctx context.Context, req NewRoom) (*domain.Room, error) {
	if req.RoomNumber == "" {
		return nil, Reject(RejectInvalidValue, "Room number, type, and price are required")
	}
	if !req.RoomType.Valid() {
		return nil, Reject(RejectInvalidValue, "Invalid room type: %s", req.RoomType)
	}
	if req.PricePerNight <= 0 {
		return nil, Reject(RejectInvalidValue, "Room number, type, and price are required")
	}
	if req.MaxGuests == 0 {
		req.MaxGuests = 2
	}
	if req.MaxGuests < 1 {
		return nil, Reject(RejectInvalidValue, "max_guests must be at least 1")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var created *domain.Room
	err := e.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.RoomByNumber(req.RoomNumber); err == nil {
			return Reject(RejectInvalidValue, "Room with number %s already exists", req.RoomNumber)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := e.now()
		room := &domain.Room{
			RoomNumber:    req.RoomNumber,
			RoomType:      req.RoomType,
			Status:        domain.RoomStatusFree,
			PricePerNight: req.PricePerNight,
			MaxGuests:     req.MaxGuests,
			DoorLocked:    true,
			Sensors:       domain.DefaultSensors(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if req.DoorLocked != nil {
			room.DoorLocked = *req.DoorLocked
		}
		if err := tx.InsertRoom(room); err != nil {
			return err
		}
		room.Guests = []*domain.Guest{}
		created = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("room created",
		zap.String("room_id", created.ID),
		zap.String("room_number", created.RoomNumber))
	return created, nil
}

func (e *Engine) UpdateRoom(ctx context.Context, roomID string, patch RoomPatch) (*domain.Room, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var updated *domain.Room
	err := e.store.Update(ctx, func(tx repository.Tx) error {
		room, err := tx.Room(roomID)
		if errors.Is(err, sql.ErrNoRows) {
			return Reject(RejectNotFound, "Room with ID %s not found", roomID)
		}
		if err != nil {
			return err
		}

		if patch.RoomType != nil {
			rt := domain.RoomType(*patch.RoomType)
			if !rt.Valid() {
				return Reject(RejectInvalidValue, "Invalid room type: %s", *patch.RoomType)
			}
			room.RoomType = rt
		}
		if patch.Status != nil {
			st := domain.RoomStatus(*patch.Status)
			if !st.Valid() {
				return Reject(RejectInvalidValue, "Invalid room status: %s", *patch.Status)
			}
			room.Status = st
		}
		if patch.PricePerNight != nil {
			if *patch.PricePerNight <= 0 {
				return Reject(RejectInvalidValue, "price_per_night must be positive")
			}
			room.PricePerNight = *patch.PricePerNight
		}
		if patch.MaxGuests != nil {
			if *patch.MaxGuests < 1 {
				return Reject(RejectInvalidValue, "max_guests must be at least 1")
			}
			count, err := tx.ActiveCount(roomID)
			if err != nil {
				return err
			}
			if count > *patch.MaxGuests {
				return Reject(RejectCapacityExceeded,
					"Room %s has %d active guests, cannot lower capacity to %d",
					room.RoomNumber, count, *patch.MaxGuests)
			}
			room.MaxGuests = *patch.MaxGuests
		}
		if patch.DoorLocked != nil {
			room.DoorLocked = *patch.DoorLocked
		}
		if patch.Sensors != nil {
			applySensorsPatch(&room.Sensors, patch.Sensors)
		}
		room.UpdatedAt = e.now()

		if err := tx.UpdateRoom(room); err != nil {
			return err
		}
		updated, err = composeRoom(tx, room)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Engine) DeleteRoom(ctx context.Context, roomID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.store.Update(ctx, func(tx repository.Tx) error {
		room, err := tx.Room(roomID)
		if errors.Is(err, sql.ErrNoRows) {
			return Reject(RejectNotFound, "Room with ID %s not found", roomID)
		}
		if err != nil {
			return err
		}
		count, err := tx.ActiveCount(roomID)
		if err != nil {
			return err
		}
		if count > 0 {
			return Reject(RejectRoomOccupied,
				"Cannot delete room %s with %d active guests", room.RoomNumber, count)
		}
		return tx.DeleteRoom(roomID)
	})
	if err == nil {
		e.logger.Info("room deleted", zap.String("room_id", roomID))
	}
	return err
}

// ---- guest operations ----

func (e *Engine) CreateGuest(ctx context.Context, req NewGuest) (*domain.Guest, error) {
	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Phone == "" {
		return nil, Reject(RejectInvalidValue, "First name, last name, email, and phone are required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var created *domain.Guest
	err := e.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.GuestByEmail(req.Email); err == nil {
			return Reject(RejectInvalidValue, "Guest with email %s already exists", req.Email)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := e.now()
		guest := &domain.Guest{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertGuest(guest); err != nil {
			return err
		}

		if req.RoomID != nil {
			at := now
			if req.CheckInTime != nil {
				at = *req.CheckInTime
			}
			if err := e.checkInTx(tx, guest.ID, *req.RoomID, at); err != nil {
				return err
			}
		}

		var err error
		created, err = tx.Guest(guest.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("guest created",
		zap.String("guest_id", created.ID),
		zap.String("email", created.Email))
	return created, nil
}

func (e *Engine) UpdateGuest(ctx context.Context, guestID string, patch GuestPatch) (*domain.Guest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var updated *domain.Guest
	err := e.store.Update(ctx, func(tx repository.Tx) error {
		guest, err := tx.Guest(guestID)
		if errors.Is(err, sql.ErrNoRows) {
			return Reject(RejectNotFound, "Guest with ID %s not found", guestID)
		}
		if err != nil {
			return err
		}

		if patch.FirstName != nil {
			guest.FirstName = *patch.FirstName
		}
		if patch.LastName != nil {
			guest.LastName = *patch.LastName
		}
		if patch.Email != nil && *patch.Email != guest.Email {
			if _, err := tx.GuestByEmail(*patch.Email); err == nil {
				return Reject(RejectInvalidValue, "Guest with email %s already exists", *patch.Email)
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			guest.Email = *patch.Email
		}
		if patch.Phone != nil {
			guest.Phone = *patch.Phone
		}
		guest.UpdatedAt = e.now()
		if err := tx.UpdateGuest(guest); err != nil {
			return err
		}

		if patch.RoomSet {
			at := e.now()
			cur, err := tx.ActiveAssignment(guestID)
			if err != nil {
				return err
			}
			switch {
			case patch.RoomID == nil:
				if cur != nil {
					if err := e.checkOutTx(tx, guestID, at); err != nil {
						return err
					}
				}
			case cur == nil || cur.RoomID != *patch.RoomID:
				if err := e.checkInTx(tx, guestID, *patch.RoomID, at); err != nil {
					return err
				}
			}
		}

		updated, err = tx.Guest(guestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Engine) DeleteGuest(ctx context.Context, guestID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.Guest(guestID); errors.Is(err, sql.ErrNoRows) {
			return Reject(RejectNotFound, "Guest with ID %s not found", guestID)
		} else if err != nil {
			return err
		}
		// Implicit checkout before removal keeps room status derivation intact.
		if err := e.checkOutTx(tx, guestID, e.now()); err != nil {
			return err
		}
		return tx.DeleteGuest(guestID)
	})
	if err == nil {
		e.logger.Info("guest deleted", zap.String("guest_id", guestID))
	}
	return err
}

// ---- assignment operations ----

func (e *Engine) CheckIn(ctx context.Context, guestID, roomID string, checkInTime *time.Time) (*CheckInResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &CheckInResult{}
	err := e.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.Guest(guestID); errors.Is(err, sql.ErrNoRows) {
			return Reject(RejectNotFound, "Guest with ID %s not found", guestID)
		} else if err != nil {
			return err
		}

		at := e.now()
		if checkInTime != nil {
			at = *checkInTime
		}
		if err := e.checkInTx(tx, guestID, roomID, at); err != nil {
			return err
		}

		var err error
		if result.Guest, err = tx.Guest(guestID); err != nil {
			return err
		}
		room, err := tx.Room(roomID)
		if err != nil {
			return err
		}
		result.Room, err = composeRoom(tx, room)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) CheckOut(ctx context.Context, guestID string, checkOutTime *time.Time) (*CheckOutResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &CheckOutResult{}
	err := e.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.Guest(guestID); errors.Is(err, sql.ErrNoRows) {
			return Reject(RejectNotFound, "Guest with ID %s not found", guestID)
		} else if err != nil {
			return err
		}

		cur, err := tx.ActiveAssignment(guestID)
		if err != nil {
			return err
		}
		at := e.now()
		if checkOutTime != nil {
			at = *checkOutTime
		}
		if cur != nil {
			if err := e.checkOutTx(tx, guestID, at); err != nil {
				return err
			}
			room, err := tx.Room(cur.RoomID)
			if err != nil {
				return err
			}
			if result.Room, err = composeRoom(tx, room); err != nil {
				return err
			}
		}

		if result.Guest, err = tx.Guest(guestID); err != nil {
			return err
		}
		if cur != nil {
			// The derived read clears the dates once the link is closed; the
			// mutation result still reports when this checkout happened.
			checkIn := cur.CheckInDate
			checkedOut := at
			result.Guest.CheckInDate = &checkIn
			result.Guest.CheckOutDate = &checkedOut
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) AssignMultiple(ctx context.Context, roomID string, guestIDs []string, checkInTime *time.Time) (*AssignResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &AssignResult{}
	err := e.store.Update(ctx, func(tx repository.Tx) error {
		room, err := tx.Room(roomID)
		if errors.Is(err, sql.ErrNoRows) {
			return Reject(RejectNotFound, "Room with ID %s not found", roomID)
		}
		if err != nil {
			return err
		}

		// Resolve every guest before the first write: one bad id rejects the
		// whole call with no partial assignment.
		for _, guestID := range guestIDs {
			if _, err := tx.Guest(guestID); errors.Is(err, sql.ErrNoRows) {
				return Reject(RejectNotFound, "Guest with ID %s not found", guestID)
			} else if err != nil {
				return err
			}
		}
		if len(guestIDs) > room.MaxGuests {
			return Reject(RejectCapacityExceeded,
				"Room %s can only accommodate %d guests", room.RoomNumber, room.MaxGuests)
		}

		at := e.now()
		if checkInTime != nil {
			at = *checkInTime
		}

		// Rooms the listed guests are leaving; their status is recomputed after
		// the moves.
		former := map[string]bool{}
		for _, guestID := range guestIDs {
			cur, err := tx.ActiveAssignment(guestID)
			if err != nil {
				return err
			}
			if cur != nil && cur.RoomID != roomID {
				former[cur.RoomID] = true
			}
		}

		// Check out all current occupants, then check in the listed guests in
		// input order (which fixes the derived guest-list order).
		occupants, err := tx.ActiveGuests(roomID)
		if err != nil {
			return err
		}
		for _, occupant := range occupants {
			if err := tx.CloseAssignment(occupant.ID, at); err != nil {
				return err
			}
		}
		for _, guestID := range guestIDs {
			if err := tx.CloseAssignment(guestID, at); err != nil {
				return err
			}
			if err := tx.OpenAssignment(guestID, roomID, at); err != nil {
				return err
			}
		}

		if err := e.recomputeStatus(tx, roomID, at, len(guestIDs) > 0); err != nil {
			return err
		}
		for formerRoomID := range former {
			if err := e.freeIfEmpty(tx, formerRoomID, at); err != nil {
				return err
			}
		}

		room, err = tx.Room(roomID)
		if err != nil {
			return err
		}
		if result.Room, err = composeRoom(tx, room); err != nil {
			return err
		}
		result.AssignedCount = len(guestIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("guests assigned",
		zap.String("room_id", roomID),
		zap.Int("assigned", result.AssignedCount))
	return result, nil
}

// ---- shared transactional steps ----

// checkInTx moves the guest into roomID: existence, then capacity, then the
// writes. A guest active in another room is checked out of it first as part
// of the same transaction.
func (e *Engine) checkInTx(tx repository.Tx, guestID, roomID string, at time.Time) error {
	room, err := tx.Room(roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return Reject(RejectNotFound, "Room with ID %s not found", roomID)
	}
	if err != nil {
		return err
	}

	cur, err := tx.ActiveAssignment(guestID)
	if err != nil {
		return err
	}
	if cur != nil && cur.RoomID == roomID {
		// Already in this room; nothing to do.
		return nil
	}

	count, err := tx.ActiveCount(roomID)
	if err != nil {
		return err
	}
	if count >= room.MaxGuests {
		return Reject(RejectCapacityExceeded,
			"Room %s is at maximum capacity (%d guests)", room.RoomNumber, room.MaxGuests)
	}

	if cur != nil {
		if err := e.checkOutTx(tx, guestID, at); err != nil {
			return err
		}
	}
	if err := tx.OpenAssignment(guestID, roomID, at); err != nil {
		return err
	}

	if room.Status != domain.RoomStatusOccupied {
		room.Status = domain.RoomStatusOccupied
		room.UpdatedAt = at
		if err := tx.UpdateRoom(room); err != nil {
			return err
		}
	}
	return nil
}

// checkOutTx closes the guest's active assignment (no-op when none) and
// derives the former room's free transition.
func (e *Engine) checkOutTx(tx repository.Tx, guestID string, at time.Time) error {
	cur, err := tx.ActiveAssignment(guestID)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	if err := tx.CloseAssignment(guestID, at); err != nil {
		return err
	}
	return e.freeIfEmpty(tx, cur.RoomID, at)
}

// freeIfEmpty derives the free status when the active count drops to zero.
// Operator-set statuses (service/cleaning/booked) are preserved while the
// room still has guests; the zero-guest transition always lands on free.
func (e *Engine) freeIfEmpty(tx repository.Tx, roomID string, at time.Time) error {
	room, err := tx.Room(roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // room deleted in the same transaction
	}
	if err != nil {
		return err
	}
	count, err := tx.ActiveCount(roomID)
	if err != nil {
		return err
	}
	if count == 0 && room.Status != domain.RoomStatusFree {
		room.Status = domain.RoomStatusFree
		room.UpdatedAt = at
		return tx.UpdateRoom(room)
	}
	return nil
}

// recomputeStatus sets occupied/free after a bulk reassignment.
func (e *Engine) recomputeStatus(tx repository.Tx, roomID string, at time.Time, occupied bool) error {
	room, err := tx.Room(roomID)
	if err != nil {
		return err
	}
	want := domain.RoomStatusFree
	if occupied {
		want = domain.RoomStatusOccupied
	}
	if room.Status != want {
		room.Status = want
		room.UpdatedAt = at
		return tx.UpdateRoom(room)
	}
	return nil
}

func composeRoom(tx repository.Tx, room *domain.Room) (*domain.Room, error) {
	guests, err := tx.ActiveGuests(room.ID)
	if err != nil {
		return nil, err
	}
	room.Guests = guests
	room.CurrentGuestsCount = len(guests)
	return room, nil
}

func applySensorsPatch(sensors *domain.Sensors, patch *SensorsPatch) {
	if patch.Temperature != nil {
		sensors.Temperature = *patch.Temperature
	}
	if patch.Humidity != nil {
		sensors.Humidity = *patch.Humidity
	}
	if patch.Pressure != nil {
		sensors.Pressure = *patch.Pressure
	}
	if patch.Lights != nil {
		if patch.Lights.Bathroom != nil {
			sensors.Lights.Bathroom = *patch.Lights.Bathroom
		}
		if patch.Lights.Bedroom != nil {
			sensors.Lights.Bedroom = *patch.Lights.Bedroom
		}
		if patch.Lights.Hallway != nil {
			sensors.Lights.Hallway = *patch.Lights.Hallway
		}
	}
}
