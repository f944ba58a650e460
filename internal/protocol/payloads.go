package protocol

import (
	"encoding/json"
	"time"

	"hotel-sync/internal/domain"
)

// OptionalString distinguishes an absent JSON key from an explicit null.
// update_guest uses it for room_id: absent means "leave the assignment
// alone", null means "check the guest out".
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// ErrorPayload error 回复
type ErrorPayload struct {
	Message string `json:"message"`
}

// EntityRef get_room / delete_room / delete_guest 命令参数
type EntityRef struct {
	ID string `json:"id"`
}

// DeleteResult delete_room / delete_guest 回复
type DeleteResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AddRoomCommand add_room 命令参数
type AddRoomCommand struct {
	RoomNumber    string  `json:"room_number"`
	RoomType      string  `json:"room_type"`
	PricePerNight float64 `json:"price_per_night"`
	MaxGuests     int     `json:"max_guests"`
	DoorLocked    *bool   `json:"door_locked"`
}

// LightsPatch / SensorsPatch update_room 传感器部分更新
type LightsPatch struct {
	Bathroom *bool `json:"bathroom"`
	Bedroom  *bool `json:"bedroom"`
	Hallway  *bool `json:"hallway"`
}

type SensorsPatch struct {
	Temperature *float64     `json:"temperature"`
	Humidity    *float64     `json:"humidity"`
	Pressure    *float64     `json:"pressure"`
	Lights      *LightsPatch `json:"lights"`
}

// UpdateRoomCommand update_room 命令参数。派生字段不在此列。
type UpdateRoomCommand struct {
	ID            string        `json:"id"`
	RoomType      *string       `json:"room_type"`
	Status        *string       `json:"status"`
	PricePerNight *float64      `json:"price_per_night"`
	MaxGuests     *int          `json:"max_guests"`
	DoorLocked    *bool         `json:"door_locked"`
	Sensors       *SensorsPatch `json:"sensors"`
}

// AddGuestCommand add_guest 命令参数
type AddGuestCommand struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	RoomID      *string    `json:"room_id"`
	CheckInDate *time.Time `json:"check_in_date"`
}

// UpdateGuestCommand update_guest 命令参数
type UpdateGuestCommand struct {
	ID        string         `json:"id"`
	FirstName *string        `json:"first_name"`
	LastName  *string        `json:"last_name"`
	Email     *string        `json:"email"`
	Phone     *string        `json:"phone"`
	RoomID    OptionalString `json:"room_id"`
}

// AssignGuestsCommand assign_multiple_guests 命令参数
type AssignGuestsCommand struct {
	RoomID      string     `json:"room_id"`
	GuestIDs    []string   `json:"guest_ids"`
	CheckInDate *time.Time `json:"check_in_date"`
}

// AssignGuestsResult assign_multiple_guests 回复
type AssignGuestsResult struct {
	Success        bool         `json:"success"`
	RoomID         string       `json:"room_id"`
	AssignedGuests int          `json:"assigned_guests"`
	UpdatedRoom    *domain.Room `json:"updated_room"`
}
