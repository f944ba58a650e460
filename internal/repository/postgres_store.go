package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"hotel-sync/internal/domain"

	"github.com/google/uuid"
)

// Schema 建表语句（id 使用应用层生成的 UUID 文本；guest_room 保留自增主键
// 用于同一时刻多条关联的稳定排序）
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
  id TEXT PRIMARY KEY,
  room_number VARCHAR(10) NOT NULL UNIQUE,
  room_type VARCHAR(20) NOT NULL,
  status VARCHAR(20) NOT NULL DEFAULT 'free',
  price_per_night NUMERIC(10,2) NOT NULL,
  max_guests INT NOT NULL DEFAULT 2,
  door_locked BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS room_sensors (
  room_id TEXT PRIMARY KEY REFERENCES rooms(id) ON DELETE CASCADE,
  temperature DOUBLE PRECISION NOT NULL DEFAULT 22.0,
  humidity DOUBLE PRECISION NOT NULL DEFAULT 50,
  pressure DOUBLE PRECISION NOT NULL DEFAULT 1013,
  light_bathroom BOOLEAN NOT NULL DEFAULT false,
  light_bedroom BOOLEAN NOT NULL DEFAULT false,
  light_hallway BOOLEAN NOT NULL DEFAULT false,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS guests (
  id TEXT PRIMARY KEY,
  first_name VARCHAR(50) NOT NULL,
  last_name VARCHAR(50) NOT NULL,
  email VARCHAR(100) NOT NULL UNIQUE,
  phone VARCHAR(20) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS guest_room (
  id BIGSERIAL PRIMARY KEY,
  guest_id TEXT NOT NULL REFERENCES guests(id) ON DELETE CASCADE,
  room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
  check_in_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  check_out_date TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_guest_room_active_room
  ON guest_room (room_id) WHERE check_out_date IS NULL;
CREATE INDEX IF NOT EXISTS idx_guest_room_active_guest
  ON guest_room (guest_id) WHERE check_out_date IS NULL;
`

// EnsureSchema 按需建表
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// PostgresStore DB-backed Store。Update 在单个事务中执行；派生字段
// （guests 列表、current_guests_count、guest.room_id）每次读取时从
// guest_room 关联重新计算。
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const roomColumns = `r.id, r.room_number, r.room_type, r.status, r.price_per_night, r.max_guests, r.door_locked,
  COALESCE(rs.temperature, 22.0), COALESCE(rs.humidity, 50), COALESCE(rs.pressure, 1013),
  COALESCE(rs.light_bathroom, false), COALESCE(rs.light_bedroom, false), COALESCE(rs.light_hallway, false),
  r.created_at, r.updated_at`

const roomFrom = `FROM rooms r LEFT JOIN room_sensors rs ON r.id = rs.room_id`

func scanRoom(row interface{ Scan(...any) error }) (*domain.Room, error) {
	var room domain.Room
	err := row.Scan(
		&room.ID, &room.RoomNumber, &room.RoomType, &room.Status, &room.PricePerNight,
		&room.MaxGuests, &room.DoorLocked,
		&room.Sensors.Temperature, &room.Sensors.Humidity, &room.Sensors.Pressure,
		&room.Sensors.Lights.Bathroom, &room.Sensors.Lights.Bedroom, &room.Sensors.Lights.Hallway,
		&room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

const guestColumns = `g.id, g.first_name, g.last_name, g.email, g.phone, g.created_at, g.updated_at,
  gr.room_id, gr.check_in_date`

// guestActiveJoin joins each guest to their active assignment, if any.
const guestActiveJoin = `FROM guests g
  LEFT JOIN guest_room gr ON g.id = gr.guest_id AND gr.check_out_date IS NULL`

func scanGuest(row interface{ Scan(...any) error }) (*domain.Guest, error) {
	var guest domain.Guest
	var roomID sql.NullString
	var checkIn sql.NullTime
	err := row.Scan(
		&guest.ID, &guest.FirstName, &guest.LastName, &guest.Email, &guest.Phone,
		&guest.CreatedAt, &guest.UpdatedAt, &roomID, &checkIn,
	)
	if err != nil {
		return nil, err
	}
	if roomID.Valid {
		guest.RoomID = &roomID.String
	}
	if checkIn.Valid {
		guest.CheckInDate = &checkIn.Time
	}
	return &guest, nil
}

func (s *PostgresStore) Rooms(ctx context.Context) ([]*domain.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomColumns+` `+roomFrom+` ORDER BY r.room_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	out := []*domain.Room{}
	index := map[string]*domain.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		room.Guests = []*domain.Guest{}
		out = append(out, room)
		index[room.ID] = room
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attach active occupants in one pass.
	guestRows, err := s.db.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM guests g
		 JOIN guest_room gr ON g.id = gr.guest_id
		 WHERE gr.check_out_date IS NULL
		 ORDER BY gr.check_in_date, gr.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active guests: %w", err)
	}
	defer guestRows.Close()

	for guestRows.Next() {
		guest, err := scanGuest(guestRows)
		if err != nil {
			return nil, err
		}
		if guest.RoomID == nil {
			continue
		}
		if room, ok := index[*guest.RoomID]; ok {
			room.Guests = append(room.Guests, guest)
			room.CurrentGuestsCount = len(room.Guests)
		}
	}
	return out, guestRows.Err()
}

func (s *PostgresStore) Room(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := scanRoom(s.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` `+roomFrom+` WHERE r.id = $1`, roomID))
	if err != nil {
		return nil, err
	}
	guests, err := s.activeGuests(ctx, s.db, roomID)
	if err != nil {
		return nil, err
	}
	room.Guests = guests
	room.CurrentGuestsCount = len(guests)
	return room, nil
}

func (s *PostgresStore) Guests(ctx context.Context) ([]*domain.Guest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+guestColumns+` `+guestActiveJoin+` ORDER BY g.last_name, g.first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	defer rows.Close()

	out := []*domain.Guest{}
	for rows.Next() {
		guest, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, guest)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Guest(ctx context.Context, guestID string) (*domain.Guest, error) {
	return scanGuest(s.db.QueryRowContext(ctx,
		`SELECT `+guestColumns+` `+guestActiveJoin+` WHERE g.id = $1`, guestID))
}

func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&postgresTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) activeGuests(ctx context.Context, q querier, roomID string) ([]*domain.Guest, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM guests g
		 JOIN guest_room gr ON g.id = gr.guest_id
		 WHERE gr.room_id = $1 AND gr.check_out_date IS NULL
		 ORDER BY gr.check_in_date, gr.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room guests: %w", err)
	}
	defer rows.Close()

	out := []*domain.Guest{}
	for rows.Next() {
		guest, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, guest)
	}
	return out, rows.Err()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Room(roomID string) (*domain.Room, error) {
	return scanRoom(t.tx.QueryRow(
		`SELECT `+roomColumns+` `+roomFrom+` WHERE r.id = $1`,
		roomID))
}

func (t *postgresTx) RoomByNumber(roomNumber string) (*domain.Room, error) {
	return scanRoom(t.tx.QueryRow(
		`SELECT `+roomColumns+` `+roomFrom+` WHERE r.room_number = $1`,
		roomNumber))
}

func (t *postgresTx) InsertRoom(room *domain.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(
		`INSERT INTO rooms (id, room_number, room_type, status, price_per_night, max_guests, door_locked, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		room.ID, room.RoomNumber, room.RoomType, room.Status, room.PricePerNight,
		room.MaxGuests, room.DoorLocked, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	_, err = t.tx.Exec(
		`INSERT INTO room_sensors (room_id, temperature, humidity, pressure, light_bathroom, light_bedroom, light_hallway)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.ID, room.Sensors.Temperature, room.Sensors.Humidity, room.Sensors.Pressure,
		room.Sensors.Lights.Bathroom, room.Sensors.Lights.Bedroom, room.Sensors.Lights.Hallway,
	)
	if err != nil {
		return fmt.Errorf("failed to insert room sensors: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateRoom(room *domain.Room) error {
	res, err := t.tx.Exec(
		`UPDATE rooms
		 SET room_number = $2, room_type = $3, status = $4, price_per_night = $5,
		     max_guests = $6, door_locked = $7, updated_at = $8
		 WHERE id = $1`,
		room.ID, room.RoomNumber, room.RoomType, room.Status, room.PricePerNight,
		room.MaxGuests, room.DoorLocked, room.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	_, err = t.tx.Exec(
		`INSERT INTO room_sensors (room_id, temperature, humidity, pressure, light_bathroom, light_bedroom, light_hallway, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (room_id)
		 DO UPDATE SET temperature = EXCLUDED.temperature,
		               humidity = EXCLUDED.humidity,
		               pressure = EXCLUDED.pressure,
		               light_bathroom = EXCLUDED.light_bathroom,
		               light_bedroom = EXCLUDED.light_bedroom,
		               light_hallway = EXCLUDED.light_hallway,
		               updated_at = NOW()`,
		room.ID, room.Sensors.Temperature, room.Sensors.Humidity, room.Sensors.Pressure,
		room.Sensors.Lights.Bathroom, room.Sensors.Lights.Bedroom, room.Sensors.Lights.Hallway,
	)
	if err != nil {
		return fmt.Errorf("failed to update room sensors: %w", err)
	}
	return nil
}

func (t *postgresTx) DeleteRoom(roomID string) error {
	res, err := t.tx.Exec(`DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *postgresTx) Guest(guestID string) (*domain.Guest, error) {
	return scanGuest(t.tx.QueryRow(
		`SELECT `+guestColumns+` `+guestActiveJoin+` WHERE g.id = $1`,
		guestID))
}

func (t *postgresTx) GuestByEmail(email string) (*domain.Guest, error) {
	return scanGuest(t.tx.QueryRow(
		`SELECT `+guestColumns+` `+guestActiveJoin+` WHERE g.email = $1`,
		email))
}

func (t *postgresTx) InsertGuest(guest *domain.Guest) error {
	if guest.ID == "" {
		guest.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(
		`INSERT INTO guests (id, first_name, last_name, email, phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		guest.ID, guest.FirstName, guest.LastName, guest.Email, guest.Phone,
		guest.CreatedAt, guest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert guest: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateGuest(guest *domain.Guest) error {
	res, err := t.tx.Exec(
		`UPDATE guests
		 SET first_name = $2, last_name = $3, email = $4, phone = $5, updated_at = $6
		 WHERE id = $1`,
		guest.ID, guest.FirstName, guest.LastName, guest.Email, guest.Phone, guest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update guest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *postgresTx) DeleteGuest(guestID string) error {
	res, err := t.tx.Exec(`DELETE FROM guests WHERE id = $1`, guestID)
	if err != nil {
		return fmt.Errorf("failed to delete guest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *postgresTx) ActiveAssignment(guestID string) (*Assignment, error) {
	var a Assignment
	var id int64
	err := t.tx.QueryRow(
		`SELECT id, guest_id, room_id, check_in_date
		 FROM guest_room
		 WHERE guest_id = $1 AND check_out_date IS NULL
		 ORDER BY id DESC
		 LIMIT 1`, guestID,
	).Scan(&id, &a.GuestID, &a.RoomID, &a.CheckInDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.ID = strconv.FormatInt(id, 10)
	return &a, nil
}

func (t *postgresTx) ActiveCount(roomID string) (int, error) {
	var n int
	err := t.tx.QueryRow(
		`SELECT COUNT(*) FROM guest_room WHERE room_id = $1 AND check_out_date IS NULL`,
		roomID,
	).Scan(&n)
	return n, err
}

func (t *postgresTx) ActiveGuests(roomID string) ([]*domain.Guest, error) {
	rows, err := t.tx.Query(
		`SELECT `+guestColumns+` FROM guests g
		 JOIN guest_room gr ON g.id = gr.guest_id
		 WHERE gr.room_id = $1 AND gr.check_out_date IS NULL
		 ORDER BY gr.check_in_date, gr.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room guests: %w", err)
	}
	defer rows.Close()

	out := []*domain.Guest{}
	for rows.Next() {
		guest, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, guest)
	}
	return out, rows.Err()
}

func (t *postgresTx) OpenAssignment(guestID, roomID string, at time.Time) error {
	_, err := t.tx.Exec(
		`INSERT INTO guest_room (guest_id, room_id, check_in_date) VALUES ($1, $2, $3)`,
		guestID, roomID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to open assignment: %w", err)
	}
	return nil
}

func (t *postgresTx) CloseAssignment(guestID string, at time.Time) error {
	_, err := t.tx.Exec(
		`UPDATE guest_room SET check_out_date = $2 WHERE guest_id = $1 AND check_out_date IS NULL`,
		guestID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to close assignment: %w", err)
	}
	return nil
}
