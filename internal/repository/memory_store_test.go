package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"hotel-sync/internal/domain"

	"github.com/stretchr/testify/require"
)

func seedRoom(t *testing.T, s *MemoryStore, number string) string {
	t.Helper()
	var id string
	err := s.Update(context.Background(), func(tx Tx) error {
		room := &domain.Room{
			RoomNumber:    number,
			RoomType:      domain.RoomTypeStandard,
			Status:        domain.RoomStatusFree,
			PricePerNight: 100,
			MaxGuests:     2,
			Sensors:       domain.DefaultSensors(),
		}
		if err := tx.InsertRoom(room); err != nil {
			return err
		}
		id = room.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func seedGuest(t *testing.T, s *MemoryStore, first, last, email string) string {
	t.Helper()
	var id string
	err := s.Update(context.Background(), func(tx Tx) error {
		guest := &domain.Guest{
			FirstName: first,
			LastName:  last,
			Email:     email,
			Phone:     "+1",
		}
		if err := tx.InsertGuest(guest); err != nil {
			return err
		}
		id = guest.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func TestMemoryStoreMissingRows(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Room(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	_, err = s.Guest(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)

	err = s.Update(context.Background(), func(tx Tx) error {
		_, err := tx.RoomByNumber("101")
		return err
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryStoreDerivedFields(t *testing.T) {
	s := NewMemoryStore()
	roomID := seedRoom(t, s, "101")
	guestID := seedGuest(t, s, "John", "Doe", "john@example.com")

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := s.Update(context.Background(), func(tx Tx) error {
		return tx.OpenAssignment(guestID, roomID, at)
	})
	require.NoError(t, err)

	room, err := s.Room(context.Background(), roomID)
	require.NoError(t, err)
	require.Equal(t, 1, room.CurrentGuestsCount)
	require.Len(t, room.Guests, 1)
	require.Equal(t, guestID, room.Guests[0].ID)

	guest, err := s.Guest(context.Background(), guestID)
	require.NoError(t, err)
	require.NotNil(t, guest.RoomID)
	require.Equal(t, roomID, *guest.RoomID)
	require.NotNil(t, guest.CheckInDate)
	require.True(t, guest.CheckInDate.Equal(at))

	// Closing the assignment clears every derived field on the next read.
	err = s.Update(context.Background(), func(tx Tx) error {
		return tx.CloseAssignment(guestID, at.Add(time.Hour))
	})
	require.NoError(t, err)

	room, err = s.Room(context.Background(), roomID)
	require.NoError(t, err)
	require.Equal(t, 0, room.CurrentGuestsCount)
	guest, err = s.Guest(context.Background(), guestID)
	require.NoError(t, err)
	require.Nil(t, guest.RoomID)
	require.Nil(t, guest.CheckInDate)
}

func TestMemoryStoreUpdateRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	roomID := seedRoom(t, s, "101")
	guestID := seedGuest(t, s, "John", "Doe", "john@example.com")

	boom := errors.New("boom")
	err := s.Update(context.Background(), func(tx Tx) error {
		if err := tx.OpenAssignment(guestID, roomID, time.Now()); err != nil {
			return err
		}
		if err := tx.DeleteGuest(guestID); err != nil {
			return err
		}
		room, err := tx.Room(roomID)
		if err != nil {
			return err
		}
		room.Status = domain.RoomStatusOccupied
		if err := tx.UpdateRoom(room); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Every write inside the failed transaction is rolled back.
	room, err := s.Room(context.Background(), roomID)
	require.NoError(t, err)
	require.Equal(t, domain.RoomStatusFree, room.Status)
	require.Equal(t, 0, room.CurrentGuestsCount)
	guest, err := s.Guest(context.Background(), guestID)
	require.NoError(t, err)
	require.Nil(t, guest.RoomID)
}

func TestMemoryStoreRoomsSortedByNumber(t *testing.T) {
	s := NewMemoryStore()
	seedRoom(t, s, "103")
	seedRoom(t, s, "101")
	seedRoom(t, s, "102")

	rooms, err := s.Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	require.Equal(t, "101", rooms[0].RoomNumber)
	require.Equal(t, "102", rooms[1].RoomNumber)
	require.Equal(t, "103", rooms[2].RoomNumber)
}

func TestMemoryStoreGuestsSortedByName(t *testing.T) {
	s := NewMemoryStore()
	seedGuest(t, s, "Jane", "Smith", "jane@example.com")
	seedGuest(t, s, "Bob", "Johnson", "bob@example.com")
	seedGuest(t, s, "John", "Doe", "john@example.com")

	guests, err := s.Guests(context.Background())
	require.NoError(t, err)
	require.Len(t, guests, 3)
	require.Equal(t, "Doe", guests[0].LastName)
	require.Equal(t, "Johnson", guests[1].LastName)
	require.Equal(t, "Smith", guests[2].LastName)
}

func TestMemoryStoreActiveGuestsInCheckInOrder(t *testing.T) {
	s := NewMemoryStore()
	roomID := seedRoom(t, s, "101")
	g1 := seedGuest(t, s, "Alice", "Adams", "a@example.com")
	g2 := seedGuest(t, s, "Bob", "Brown", "b@example.com")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := s.Update(context.Background(), func(tx Tx) error {
		if err := tx.OpenAssignment(g2, roomID, base); err != nil {
			return err
		}
		return tx.OpenAssignment(g1, roomID, base.Add(time.Hour))
	})
	require.NoError(t, err)

	room, err := s.Room(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, room.Guests, 2)
	require.Equal(t, g2, room.Guests[0].ID)
	require.Equal(t, g1, room.Guests[1].ID)
}

func TestMemoryStoreConcurrentReadsAndWrites(t *testing.T) {
	s := NewMemoryStore()
	roomID := seedRoom(t, s, "101")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.Room(context.Background(), roomID)
				_ = s.Update(context.Background(), func(tx Tx) error {
					room, err := tx.Room(roomID)
					if err != nil {
						return err
					}
					return tx.UpdateRoom(room)
				})
			}
		}()
	}
	wg.Wait()

	room, err := s.Room(context.Background(), roomID)
	require.NoError(t, err)
	require.Equal(t, "101", room.RoomNumber)
}
