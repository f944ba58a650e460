package domain

import (
	"time"
)

// RoomType 房间类型（对应 rooms.room_type）
type RoomType string

const (
	RoomTypeStandard RoomType = "standard"
	RoomTypeDeluxe   RoomType = "deluxe"
	RoomTypeSuite    RoomType = "suite"
)

// Valid reports whether t is one of the closed set of room types.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeStandard, RoomTypeDeluxe, RoomTypeSuite:
		return true
	}
	return false
}

// RoomStatus 房间状态（对应 rooms.status）
// free/occupied are derived from the active-guest count; service/cleaning/booked
// are operator-set and only overwritten on the drop-to-zero free transition.
type RoomStatus string

const (
	RoomStatusFree     RoomStatus = "free"
	RoomStatusOccupied RoomStatus = "occupied"
	RoomStatusService  RoomStatus = "service"
	RoomStatusCleaning RoomStatus = "cleaning"
	RoomStatusBooked   RoomStatus = "booked"
)

// Valid reports whether s is one of the closed set of room statuses.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusFree, RoomStatusOccupied, RoomStatusService, RoomStatusCleaning, RoomStatusBooked:
		return true
	}
	return false
}

// Lights 分区灯光开关（对应 room_sensors.light_*）
type Lights struct {
	Bathroom bool `json:"bathroom"`
	Bedroom  bool `json:"bedroom"`
	Hallway  bool `json:"hallway"`
}

// Sensors 房间传感器读数（对应 room_sensors 表）
// Cosmetic data only: no invariant depends on these values.
type Sensors struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Lights      Lights  `json:"lights"`
}

// DefaultSensors 新房间的初始传感器读数
func DefaultSensors() Sensors {
	return Sensors{Temperature: 22.0, Humidity: 50, Pressure: 1013}
}

// Room 房间领域模型（对应 rooms 表 + room_sensors）
type Room struct {
	ID            string     `json:"id"`              // UUID, PRIMARY KEY
	RoomNumber    string     `json:"room_number"`     // VARCHAR(10), NOT NULL, UNIQUE
	RoomType      RoomType   `json:"room_type"`       // VARCHAR(20), NOT NULL
	Status        RoomStatus `json:"status"`          // VARCHAR(20), NOT NULL, DEFAULT 'free'
	PricePerNight float64    `json:"price_per_night"` // NUMERIC(10,2), NOT NULL
	MaxGuests     int        `json:"max_guests"`      // INT, NOT NULL, >= 1
	DoorLocked    bool       `json:"door_locked"`     // BOOLEAN, NOT NULL, DEFAULT true
	Sensors       Sensors    `json:"sensors"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Derived from the active guest-room relation on every read.
	// Never written independently of it.
	CurrentGuestsCount int      `json:"current_guests_count"`
	Guests             []*Guest `json:"guests"`
}
