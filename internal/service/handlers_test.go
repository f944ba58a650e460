package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hotel-sync/internal/domain"
	"hotel-sync/internal/engine"
	"hotel-sync/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPI(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()
	eng := engine.NewEngine(repository.NewMemoryStore(), zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterAPIRoutes(NewHandler(eng, false, zap.NewNop()))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return eng, srv
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "Server is running", body["message"])
	require.Equal(t, false, body["databaseConnected"])
}

func TestRoomsEndpoint(t *testing.T) {
	eng, srv := newTestAPI(t)
	_, err := eng.CreateRoom(context.Background(), engine.NewRoom{
		RoomNumber:    "101",
		RoomType:      "standard",
		PricePerNight: 100,
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rooms []*domain.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	require.Equal(t, "101", rooms[0].RoomNumber)
}

func TestRoomByIDEndpoint(t *testing.T) {
	eng, srv := newTestAPI(t)
	room, err := eng.CreateRoom(context.Background(), engine.NewRoom{
		RoomNumber:    "101",
		RoomType:      "standard",
		PricePerNight: 100,
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/rooms/" + room.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, room.ID, got.ID)

	resp, err = http.Get(srv.URL + "/api/rooms/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var fail map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fail))
	require.Equal(t, "Room with ID missing not found", fail["error"])
}

func TestMutatingMethodsNotAllowed(t *testing.T) {
	_, srv := newTestAPI(t)

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestOccupancyReportEndpoint(t *testing.T) {
	eng, srv := newTestAPI(t)
	room, err := eng.CreateRoom(context.Background(), engine.NewRoom{
		RoomNumber:    "101",
		RoomType:      "standard",
		PricePerNight: 100,
	})
	require.NoError(t, err)
	_, err = eng.CreateGuest(context.Background(), engine.NewGuest{
		FirstName: "John",
		LastName:  "Doe",
		Email:     "john@example.com",
		Phone:     "+1",
		RoomID:    &room.ID,
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/reports/occupancy")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "occupancy_")
}

func TestGenerateOccupancyExcel(t *testing.T) {
	rooms := []*domain.Room{
		{
			ID:                 "r1",
			RoomNumber:         "101",
			RoomType:           domain.RoomTypeStandard,
			Status:             domain.RoomStatusOccupied,
			PricePerNight:      100,
			MaxGuests:          2,
			CurrentGuestsCount: 1,
			Guests:             []*domain.Guest{{ID: "g1", FirstName: "John", LastName: "Doe"}},
		},
	}
	data, err := generateOccupancyExcel(rooms)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	// xlsx files are zip archives.
	require.Equal(t, byte('P'), data[0])
	require.Equal(t, byte('K'), data[1])
}
