package client

import (
	"encoding/json"
	"sort"
	"sync"

	"hotel-sync/internal/domain"
	"hotel-sync/internal/protocol"
)

// Mirror 本地状态镜像
// Holds the client-side replica of rooms and guests. Snapshot pushes replace
// a collection wholesale; incremental mutation pushes upsert or remove single
// entities. All application is idempotent, so a mutation observed twice (for
// example around a reconnect resync) converges to the same state.
type Mirror struct {
	mu     sync.RWMutex
	rooms  map[string]*domain.Room
	guests map[string]*domain.Guest
}

func NewMirror() *Mirror {
	return &Mirror{
		rooms:  map[string]*domain.Room{},
		guests: map[string]*domain.Guest{},
	}
}

// ApplyMessage folds one server push into the mirror. Unknown kinds and
// error frames leave the mirror untouched.
func (m *Mirror) ApplyMessage(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.KindGetRooms:
		var rooms []*domain.Room
		if err := json.Unmarshal(msg.Payload, &rooms); err != nil {
			return err
		}
		m.ReplaceRooms(rooms)
	case protocol.KindGetGuests:
		var guests []*domain.Guest
		if err := json.Unmarshal(msg.Payload, &guests); err != nil {
			return err
		}
		m.ReplaceGuests(guests)
	case protocol.KindGetRoom, protocol.KindAddRoom, protocol.KindUpdateRoom:
		var room domain.Room
		if err := json.Unmarshal(msg.Payload, &room); err != nil {
			return err
		}
		m.upsertRoom(&room)
	case protocol.KindDeleteRoom:
		var res protocol.DeleteResult
		if err := json.Unmarshal(msg.Payload, &res); err != nil {
			return err
		}
		if res.Success {
			m.removeRoom(res.ID)
		}
	case protocol.KindAddGuest, protocol.KindUpdateGuest:
		var guest domain.Guest
		if err := json.Unmarshal(msg.Payload, &guest); err != nil {
			return err
		}
		m.upsertGuest(&guest)
	case protocol.KindDeleteGuest:
		var res protocol.DeleteResult
		if err := json.Unmarshal(msg.Payload, &res); err != nil {
			return err
		}
		if res.Success {
			m.removeGuest(res.ID)
		}
	case protocol.KindAssignGuests:
		var res protocol.AssignGuestsResult
		if err := json.Unmarshal(msg.Payload, &res); err != nil {
			return err
		}
		if res.UpdatedRoom != nil {
			m.upsertRoom(res.UpdatedRoom)
		}
	}
	return nil
}

// ReplaceRooms installs a full room snapshot, discarding prior room state.
func (m *Mirror) ReplaceRooms(rooms []*domain.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = make(map[string]*domain.Room, len(rooms))
	for _, room := range rooms {
		m.rooms[room.ID] = room
		// Occupants in the snapshot are more current than any mirrored guest.
		for _, g := range room.Guests {
			m.guests[g.ID] = g
		}
	}
}

// ReplaceGuests installs a full guest snapshot.
func (m *Mirror) ReplaceGuests(guests []*domain.Guest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guests = make(map[string]*domain.Guest, len(guests))
	for _, g := range guests {
		m.guests[g.ID] = g
	}
	for _, room := range m.rooms {
		m.reconcileRoom(room)
	}
}

func (m *Mirror) upsertRoom(room *domain.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room
	for _, g := range room.Guests {
		m.guests[g.ID] = g
	}
}

func (m *Mirror) removeRoom(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	for _, g := range m.guests {
		if g.RoomID != nil && *g.RoomID == id {
			g.RoomID = nil
			g.CheckInDate = nil
			g.CheckOutDate = nil
		}
	}
}

func (m *Mirror) upsertGuest(guest *domain.Guest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guests[guest.ID] = guest
	for _, room := range m.rooms {
		m.reconcileRoom(room)
	}
}

func (m *Mirror) removeGuest(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guests, id)
	for _, room := range m.rooms {
		m.reconcileRoom(room)
	}
}

// reconcileRoom rebuilds a room's occupant list from the guest map so room
// and guest views never disagree about who is where. Caller holds mu.
func (m *Mirror) reconcileRoom(room *domain.Room) {
	occupants := room.Guests[:0]
	for _, g := range m.guests {
		if g.RoomID != nil && *g.RoomID == room.ID {
			occupants = append(occupants, g)
		}
	}
	sort.Slice(occupants, func(i, j int) bool {
		gi, gj := occupants[i], occupants[j]
		if gi.CheckInDate != nil && gj.CheckInDate != nil && !gi.CheckInDate.Equal(*gj.CheckInDate) {
			return gi.CheckInDate.Before(*gj.CheckInDate)
		}
		return gi.ID < gj.ID
	})
	room.Guests = occupants
	room.CurrentGuestsCount = len(occupants)
	// Only the derived free/occupied pair is recomputed here. Operator-set
	// statuses (service, cleaning, booked) belong to the server; a guest push
	// must not overwrite them.
	if len(occupants) > 0 && room.Status == domain.RoomStatusFree {
		room.Status = domain.RoomStatusOccupied
	} else if len(occupants) == 0 && room.Status == domain.RoomStatusOccupied {
		room.Status = domain.RoomStatusFree
	}
}

// Rooms returns the mirrored rooms sorted by room number. Accessors return
// copies: the stored entities keep changing under the read loop, so handing
// out the live pointers would race with every later push.
func (m *Mirror) Rooms() []*domain.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, cloneRoom(room))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomNumber < out[j].RoomNumber })
	return out
}

// Guests returns the mirrored guests sorted by last then first name.
func (m *Mirror) Guests() []*domain.Guest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Guest, 0, len(m.guests))
	for _, g := range m.guests {
		out = append(out, cloneGuest(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out
}

// Room looks up one mirrored room.
func (m *Mirror) Room(id string) (*domain.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	return cloneRoom(room), true
}

// Guest looks up one mirrored guest.
func (m *Mirror) Guest(id string) (*domain.Guest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guests[id]
	if !ok {
		return nil, false
	}
	return cloneGuest(g), true
}

func cloneRoom(room *domain.Room) *domain.Room {
	cp := *room
	cp.Guests = make([]*domain.Guest, len(room.Guests))
	for i, g := range room.Guests {
		cp.Guests[i] = cloneGuest(g)
	}
	return &cp
}

func cloneGuest(g *domain.Guest) *domain.Guest {
	cp := *g
	if g.RoomID != nil {
		v := *g.RoomID
		cp.RoomID = &v
	}
	if g.CheckInDate != nil {
		v := *g.CheckInDate
		cp.CheckInDate = &v
	}
	if g.CheckOutDate != nil {
		v := *g.CheckOutDate
		cp.CheckOutDate = &v
	}
	return &cp
}
