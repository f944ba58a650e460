package client

import (
	"testing"
	"time"

	"hotel-sync/internal/domain"
	"hotel-sync/internal/protocol"

	"github.com/stretchr/testify/require"
)

func mirrorRoom(id, number string) *domain.Room {
	return &domain.Room{
		ID:         id,
		RoomNumber: number,
		RoomType:   domain.RoomTypeStandard,
		Status:     domain.RoomStatusFree,
		MaxGuests:  2,
		Guests:     []*domain.Guest{},
	}
}

func mirrorGuest(id, last string, roomID *string) *domain.Guest {
	g := &domain.Guest{ID: id, FirstName: "Test", LastName: last, RoomID: roomID}
	if roomID != nil {
		now := time.Now()
		g.CheckInDate = &now
	}
	return g
}

func TestMirrorSnapshotReplacesState(t *testing.T) {
	m := NewMirror()
	m.ReplaceRooms([]*domain.Room{mirrorRoom("r1", "101"), mirrorRoom("r2", "102")})

	rooms := m.Rooms()
	require.Len(t, rooms, 2)
	require.Equal(t, "101", rooms[0].RoomNumber)

	// A later snapshot replaces wholesale, dropping rooms it omits.
	m.ReplaceRooms([]*domain.Room{mirrorRoom("r3", "103")})
	rooms = m.Rooms()
	require.Len(t, rooms, 1)
	require.Equal(t, "103", rooms[0].RoomNumber)
	_, ok := m.Room("r1")
	require.False(t, ok)
}

func TestMirrorAppliesRoomMutations(t *testing.T) {
	m := NewMirror()

	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindAddRoom, mirrorRoom("r1", "101"))))
	room, ok := m.Room("r1")
	require.True(t, ok)
	require.Equal(t, "101", room.RoomNumber)

	updated := mirrorRoom("r1", "101")
	updated.Status = domain.RoomStatusCleaning
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindUpdateRoom, updated)))
	room, _ = m.Room("r1")
	require.Equal(t, domain.RoomStatusCleaning, room.Status)

	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindDeleteRoom,
		protocol.DeleteResult{ID: "r1", Success: true})))
	_, ok = m.Room("r1")
	require.False(t, ok)
}

func TestMirrorMutationsAreIdempotent(t *testing.T) {
	m := NewMirror()

	msg := protocol.MustNew(protocol.KindAddRoom, mirrorRoom("r1", "101"))
	require.NoError(t, m.ApplyMessage(msg))
	require.NoError(t, m.ApplyMessage(msg))
	require.Len(t, m.Rooms(), 1)

	del := protocol.MustNew(protocol.KindDeleteRoom, protocol.DeleteResult{ID: "r1", Success: true})
	require.NoError(t, m.ApplyMessage(del))
	require.NoError(t, m.ApplyMessage(del))
	require.Empty(t, m.Rooms())
}

func TestMirrorReconcilesRoomOccupancyFromGuests(t *testing.T) {
	m := NewMirror()
	m.ReplaceRooms([]*domain.Room{mirrorRoom("r1", "101")})

	roomID := "r1"
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindAddGuest,
		mirrorGuest("g1", "Doe", &roomID))))

	room, _ := m.Room("r1")
	require.Equal(t, 1, room.CurrentGuestsCount)
	require.Len(t, room.Guests, 1)
	require.Equal(t, domain.RoomStatusOccupied, room.Status)

	// Guest checked out: the room's derived view follows.
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindUpdateGuest,
		mirrorGuest("g1", "Doe", nil))))
	room, _ = m.Room("r1")
	require.Equal(t, 0, room.CurrentGuestsCount)
	require.Equal(t, domain.RoomStatusFree, room.Status)
}

func TestMirrorPreservesOperatorStatusOnGuestPush(t *testing.T) {
	m := NewMirror()

	// An occupied room the operator switched to service: the server holds
	// status=service with an active occupant.
	roomID := "r1"
	room := mirrorRoom("r1", "101")
	room.Status = domain.RoomStatusService
	room.Guests = []*domain.Guest{mirrorGuest("g1", "Doe", &roomID)}
	room.CurrentGuestsCount = 1
	m.ReplaceRooms([]*domain.Room{room})

	// An unrelated guest push must not flip it to occupied.
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindAddGuest,
		mirrorGuest("g2", "Smith", nil))))

	got, _ := m.Room("r1")
	require.Equal(t, domain.RoomStatusService, got.Status)
	require.Equal(t, 1, got.CurrentGuestsCount)

	// The last occupant leaving keeps the operator status too; only the
	// derived occupied status decays to free.
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindUpdateGuest,
		mirrorGuest("g1", "Doe", nil))))
	got, _ = m.Room("r1")
	require.Equal(t, domain.RoomStatusService, got.Status)
	require.Equal(t, 0, got.CurrentGuestsCount)
}

func TestMirrorAccessorsReturnCopies(t *testing.T) {
	m := NewMirror()
	roomID := "r1"
	m.ReplaceRooms([]*domain.Room{mirrorRoom("r1", "101")})
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindAddGuest,
		mirrorGuest("g1", "Doe", &roomID))))

	// Mutating a returned entity never leaks into the mirror.
	snapshot, _ := m.Room("r1")
	snapshot.Status = domain.RoomStatusCleaning
	snapshot.Guests[0].RoomID = nil
	stored, _ := m.Room("r1")
	require.Equal(t, domain.RoomStatusOccupied, stored.Status)
	require.Equal(t, "r1", *stored.Guests[0].RoomID)

	// A later push never rewrites an already returned snapshot.
	before := m.Rooms()
	require.Equal(t, 1, before[0].CurrentGuestsCount)
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindUpdateGuest,
		mirrorGuest("g1", "Doe", nil))))
	require.Equal(t, 1, before[0].CurrentGuestsCount)
	require.Len(t, before[0].Guests, 1)

	guests := m.Guests()
	guests[0].LastName = "Changed"
	g, _ := m.Guest("g1")
	require.Equal(t, "Doe", g.LastName)
}

func TestMirrorRemovesDeletedGuestFromRoom(t *testing.T) {
	m := NewMirror()
	m.ReplaceRooms([]*domain.Room{mirrorRoom("r1", "101")})
	roomID := "r1"
	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindAddGuest,
		mirrorGuest("g1", "Doe", &roomID))))

	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindDeleteGuest,
		protocol.DeleteResult{ID: "g1", Success: true})))

	_, ok := m.Guest("g1")
	require.False(t, ok)
	room, _ := m.Room("r1")
	require.Equal(t, 0, room.CurrentGuestsCount)
}

func TestMirrorAppliesAssignResult(t *testing.T) {
	m := NewMirror()
	m.ReplaceRooms([]*domain.Room{mirrorRoom("r1", "101")})

	updated := mirrorRoom("r1", "101")
	updated.Status = domain.RoomStatusOccupied
	roomID := "r1"
	updated.Guests = []*domain.Guest{mirrorGuest("g1", "Doe", &roomID)}
	updated.CurrentGuestsCount = 1

	require.NoError(t, m.ApplyMessage(protocol.MustNew(protocol.KindAssignGuests,
		protocol.AssignGuestsResult{Success: true, RoomID: "r1", AssignedGuests: 1, UpdatedRoom: updated})))

	room, _ := m.Room("r1")
	require.Equal(t, 1, room.CurrentGuestsCount)
	guest, ok := m.Guest("g1")
	require.True(t, ok)
	require.Equal(t, "r1", *guest.RoomID)
}

func TestMirrorIgnoresErrorFrames(t *testing.T) {
	m := NewMirror()
	m.ReplaceRooms([]*domain.Room{mirrorRoom("r1", "101")})

	require.NoError(t, m.ApplyMessage(protocol.Error("Room with ID x not found")))
	require.Len(t, m.Rooms(), 1)
}
