package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"hotel-sync/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore: in-memory Store used when the DB is not available (local dev,
// tests). Entities are held by value so a transaction snapshot is a plain
// map copy.
type MemoryStore struct {
	mu          sync.RWMutex
	rooms       map[string]domain.Room
	guests      map[string]domain.Guest
	assignments []Assignment // append order doubles as check-in tie-break order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:  map[string]domain.Room{},
		guests: map[string]domain.Guest{},
	}
}

func (s *MemoryStore) Rooms(_ context.Context) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Room, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, s.composeRoom(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomNumber < out[j].RoomNumber })
	return out, nil
}

func (s *MemoryStore) Room(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, sql.ErrNoRows
	}
	return s.composeRoom(roomID), nil
}

func (s *MemoryStore) Guests(_ context.Context) ([]*domain.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Guest, 0, len(s.guests))
	for id := range s.guests {
		out = append(out, s.composeGuest(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (s *MemoryStore) Guest(_ context.Context, guestID string) (*domain.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.guests[guestID]; !ok {
		return nil, sql.ErrNoRows
	}
	return s.composeGuest(guestID), nil
}

// Update holds the write lock for the whole fn so snapshot reads and other
// mutations never interleave with it. On error the pre-fn state is restored,
// making every Update all-or-nothing.
func (s *MemoryStore) Update(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomsBackup := make(map[string]domain.Room, len(s.rooms))
	for k, v := range s.rooms {
		roomsBackup[k] = v
	}
	guestsBackup := make(map[string]domain.Guest, len(s.guests))
	for k, v := range s.guests {
		guestsBackup[k] = v
	}
	assignmentsBackup := make([]Assignment, len(s.assignments))
	copy(assignmentsBackup, s.assignments)

	if err := fn(&memoryTx{s: s}); err != nil {
		s.rooms = roomsBackup
		s.guests = guestsBackup
		s.assignments = assignmentsBackup
		return err
	}
	return nil
}

// composeRoom builds the room with occupancy derived from the assignment
// relation. Caller holds at least the read lock.
func (s *MemoryStore) composeRoom(roomID string) *domain.Room {
	room := s.rooms[roomID]
	room.Guests = s.activeGuestsLocked(roomID)
	room.CurrentGuestsCount = len(room.Guests)
	return &room
}

// composeGuest builds the guest with room/date fields derived from the active
// assignment. Caller holds at least the read lock.
func (s *MemoryStore) composeGuest(guestID string) *domain.Guest {
	guest := s.guests[guestID]
	if a := s.activeAssignmentLocked(guestID); a != nil {
		roomID := a.RoomID
		checkIn := a.CheckInDate
		guest.RoomID = &roomID
		guest.CheckInDate = &checkIn
		guest.CheckOutDate = nil
	} else {
		guest.RoomID = nil
		guest.CheckInDate = nil
		guest.CheckOutDate = nil
	}
	return &guest
}

func (s *MemoryStore) activeAssignmentLocked(guestID string) *Assignment {
	for i := range s.assignments {
		a := s.assignments[i]
		if a.GuestID == guestID && a.Active() {
			return &a
		}
	}
	return nil
}

func (s *MemoryStore) activeGuestsLocked(roomID string) []*domain.Guest {
	out := []*domain.Guest{}
	for i := range s.assignments {
		a := s.assignments[i]
		if a.RoomID != roomID || !a.Active() {
			continue
		}
		guest, ok := s.guests[a.GuestID]
		if !ok {
			continue
		}
		checkIn := a.CheckInDate
		guest.RoomID = &a.RoomID
		guest.CheckInDate = &checkIn
		guest.CheckOutDate = nil
		out = append(out, &guest)
	}
	return out
}

// memoryTx operates directly on the store; Update already holds the write
// lock and restores state on error.
type memoryTx struct {
	s *MemoryStore
}

func (t *memoryTx) Room(roomID string) (*domain.Room, error) {
	room, ok := t.s.rooms[roomID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &room, nil
}

func (t *memoryTx) RoomByNumber(roomNumber string) (*domain.Room, error) {
	for _, room := range t.s.rooms {
		if room.RoomNumber == roomNumber {
			r := room
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (t *memoryTx) InsertRoom(room *domain.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	t.s.rooms[room.ID] = *room
	return nil
}

func (t *memoryTx) UpdateRoom(room *domain.Room) error {
	if _, ok := t.s.rooms[room.ID]; !ok {
		return sql.ErrNoRows
	}
	t.s.rooms[room.ID] = *room
	return nil
}

func (t *memoryTx) DeleteRoom(roomID string) error {
	if _, ok := t.s.rooms[roomID]; !ok {
		return sql.ErrNoRows
	}
	delete(t.s.rooms, roomID)
	return nil
}

func (t *memoryTx) Guest(guestID string) (*domain.Guest, error) {
	if _, ok := t.s.guests[guestID]; !ok {
		return nil, sql.ErrNoRows
	}
	return t.s.composeGuest(guestID), nil
}

func (t *memoryTx) GuestByEmail(email string) (*domain.Guest, error) {
	for id, guest := range t.s.guests {
		if guest.Email == email {
			return t.s.composeGuest(id), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (t *memoryTx) InsertGuest(guest *domain.Guest) error {
	if guest.ID == "" {
		guest.ID = uuid.NewString()
	}
	t.s.guests[guest.ID] = *guest
	return nil
}

func (t *memoryTx) UpdateGuest(guest *domain.Guest) error {
	if _, ok := t.s.guests[guest.ID]; !ok {
		return sql.ErrNoRows
	}
	t.s.guests[guest.ID] = *guest
	return nil
}

func (t *memoryTx) DeleteGuest(guestID string) error {
	if _, ok := t.s.guests[guestID]; !ok {
		return sql.ErrNoRows
	}
	delete(t.s.guests, guestID)
	return nil
}

func (t *memoryTx) ActiveAssignment(guestID string) (*Assignment, error) {
	return t.s.activeAssignmentLocked(guestID), nil
}

func (t *memoryTx) ActiveCount(roomID string) (int, error) {
	n := 0
	for i := range t.s.assignments {
		if t.s.assignments[i].RoomID == roomID && t.s.assignments[i].Active() {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) ActiveGuests(roomID string) ([]*domain.Guest, error) {
	return t.s.activeGuestsLocked(roomID), nil
}

func (t *memoryTx) OpenAssignment(guestID, roomID string, at time.Time) error {
	t.s.assignments = append(t.s.assignments, Assignment{
		ID:          uuid.NewString(),
		GuestID:     guestID,
		RoomID:      roomID,
		CheckInDate: at,
	})
	return nil
}

func (t *memoryTx) CloseAssignment(guestID string, at time.Time) error {
	for i := range t.s.assignments {
		a := &t.s.assignments[i]
		if a.GuestID == guestID && a.Active() {
			closedAt := at
			a.CheckOutDate = &closedAt
		}
	}
	return nil
}
