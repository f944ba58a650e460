package hub

import (
	"context"
	"encoding/json"

	"hotel-sync/internal/domain"
	"hotel-sync/internal/engine"
	"hotel-sync/internal/protocol"
)

// commandHandlers builds the kind -> handler dispatch table. Every command
// kind gets a reply of the same kind; payload-level validation errors use
// the same wording the frontend already matches on.
func (h *Hub) commandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		protocol.KindGetRooms:     h.handleGetRooms,
		protocol.KindGetRoom:      h.handleGetRoom,
		protocol.KindAddRoom:      h.handleAddRoom,
		protocol.KindUpdateRoom:   h.handleUpdateRoom,
		protocol.KindDeleteRoom:   h.handleDeleteRoom,
		protocol.KindGetGuests:    h.handleGetGuests,
		protocol.KindAddGuest:     h.handleAddGuest,
		protocol.KindUpdateGuest:  h.handleUpdateGuest,
		protocol.KindDeleteGuest:  h.handleDeleteGuest,
		protocol.KindAssignGuests: h.handleAssignGuests,
	}
}

func (h *Hub) handleGetRooms(ctx context.Context, _ json.RawMessage) (*protocol.Message, error) {
	rooms, err := h.engine.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindGetRooms, rooms)
}

func (h *Hub) handleGetRoom(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var ref protocol.EntityRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return nil, err
	}
	if ref.ID == "" {
		return nil, engine.Reject(engine.RejectInvalidValue, "Room ID is required")
	}
	room, err := h.engine.Room(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindGetRoom, room)
}

func (h *Hub) handleAddRoom(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var cmd protocol.AddRoomCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, err
	}
	room, err := h.engine.CreateRoom(ctx, engine.NewRoom{
		RoomNumber:    cmd.RoomNumber,
		RoomType:      domain.RoomType(cmd.RoomType),
		PricePerNight: cmd.PricePerNight,
		MaxGuests:     cmd.MaxGuests,
		DoorLocked:    cmd.DoorLocked,
	})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindAddRoom, room)
}

func (h *Hub) handleUpdateRoom(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var cmd protocol.UpdateRoomCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, err
	}
	if cmd.ID == "" {
		return nil, engine.Reject(engine.RejectInvalidValue, "Room ID is required")
	}
	room, err := h.engine.UpdateRoom(ctx, cmd.ID, engine.RoomPatch{
		RoomType:      cmd.RoomType,
		Status:        cmd.Status,
		PricePerNight: cmd.PricePerNight,
		MaxGuests:     cmd.MaxGuests,
		DoorLocked:    cmd.DoorLocked,
		Sensors:       sensorsPatch(cmd.Sensors),
	})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindUpdateRoom, room)
}

func (h *Hub) handleDeleteRoom(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var ref protocol.EntityRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return nil, err
	}
	if ref.ID == "" {
		return nil, engine.Reject(engine.RejectInvalidValue, "Room ID is required")
	}
	if err := h.engine.DeleteRoom(ctx, ref.ID); err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindDeleteRoom, protocol.DeleteResult{
		ID:      ref.ID,
		Success: true,
		Message: "Room successfully deleted",
	})
}

func (h *Hub) handleGetGuests(ctx context.Context, _ json.RawMessage) (*protocol.Message, error) {
	guests, err := h.engine.Guests(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindGetGuests, guests)
}

func (h *Hub) handleAddGuest(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var cmd protocol.AddGuestCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, err
	}
	guest, err := h.engine.CreateGuest(ctx, engine.NewGuest{
		FirstName:   cmd.FirstName,
		LastName:    cmd.LastName,
		Email:       cmd.Email,
		Phone:       cmd.Phone,
		RoomID:      cmd.RoomID,
		CheckInTime: cmd.CheckInDate,
	})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindAddGuest, guest)
}

func (h *Hub) handleUpdateGuest(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var cmd protocol.UpdateGuestCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, err
	}
	if cmd.ID == "" {
		return nil, engine.Reject(engine.RejectInvalidValue, "Guest ID is required")
	}
	guest, err := h.engine.UpdateGuest(ctx, cmd.ID, engine.GuestPatch{
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Email:     cmd.Email,
		Phone:     cmd.Phone,
		RoomSet:   cmd.RoomID.Set,
		RoomID:    cmd.RoomID.Value,
	})
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindUpdateGuest, guest)
}

func (h *Hub) handleDeleteGuest(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var ref protocol.EntityRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return nil, err
	}
	if ref.ID == "" {
		return nil, engine.Reject(engine.RejectInvalidValue, "Guest ID is required")
	}
	if err := h.engine.DeleteGuest(ctx, ref.ID); err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindDeleteGuest, protocol.DeleteResult{
		ID:      ref.ID,
		Success: true,
		Message: "Guest successfully deleted",
	})
}

func (h *Hub) handleAssignGuests(ctx context.Context, payload json.RawMessage) (*protocol.Message, error) {
	var cmd protocol.AssignGuestsCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, err
	}
	if cmd.RoomID == "" || cmd.GuestIDs == nil {
		return nil, engine.Reject(engine.RejectInvalidValue, "Room ID and guest IDs array are required")
	}
	res, err := h.engine.AssignMultiple(ctx, cmd.RoomID, cmd.GuestIDs, cmd.CheckInDate)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.KindAssignGuests, protocol.AssignGuestsResult{
		Success:        true,
		RoomID:         cmd.RoomID,
		AssignedGuests: res.AssignedCount,
		UpdatedRoom:    res.Room,
	})
}

func sensorsPatch(p *protocol.SensorsPatch) *engine.SensorsPatch {
	if p == nil {
		return nil
	}
	out := &engine.SensorsPatch{
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
		Pressure:    p.Pressure,
	}
	if p.Lights != nil {
		out.Lights = &engine.LightsPatch{
			Bathroom: p.Lights.Bathroom,
			Bedroom:  p.Lights.Bedroom,
			Hallway:  p.Lights.Hallway,
		}
	}
	return out
}
