package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hotel-sync/internal/config"
	"hotel-sync/internal/domain"
	"hotel-sync/internal/engine"
	"hotel-sync/internal/hub"
	"hotel-sync/internal/journal"
	"hotel-sync/internal/logger"
	"hotel-sync/internal/repository"
	"hotel-sync/internal/sensors"
	"hotel-sync/internal/service"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hotel-sync")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// DB-backed store when configured; in-memory store with sample data
	// otherwise so the server is usable out of the box.
	var db *sql.DB
	var store repository.Store
	if cfg.DBEnabled {
		d, err := sql.Open("postgres", cfg.Database.GetDSN())
		if err == nil {
			err = d.PingContext(context.Background())
		}
		if err == nil {
			err = repository.EnsureSchema(context.Background(), d)
		}
		if err != nil {
			log.Warn("DB enabled but unavailable, falling back to in-memory store", zap.Error(err))
		} else {
			db = d
			store = repository.NewPostgresStore(db)
			log.Info("DB enabled for hotel-sync")
		}
	}
	if store == nil {
		store = repository.NewMemoryStore()
	}

	eng := engine.NewEngine(store, log)
	if db == nil {
		seedSampleData(eng, log)
	}

	var jnl *journal.Journal
	var recorder hub.MutationRecorder
	if cfg.Redis.Enabled {
		jnl = journal.NewJournal(journal.NewClient(cfg.Redis), cfg.Redis.Stream, log)
		if err := jnl.Ping(context.Background()); err != nil {
			log.Warn("Redis enabled but unavailable, mutation journal disabled", zap.Error(err))
			_ = jnl.Close()
			jnl = nil
		} else {
			recorder = jnl
			log.Info("mutation journal enabled", zap.String("stream", cfg.Redis.Stream))
		}
	}

	h := hub.NewHub(eng, recorder, log)

	var ingest *sensors.Ingestor
	if cfg.MQTT.Enabled {
		ing, err := sensors.NewIngestor(cfg.MQTT, eng, h, log)
		if err != nil {
			log.Warn("MQTT enabled but unavailable, sensor ingest disabled", zap.Error(err))
		} else if err := ing.Start(); err != nil {
			log.Warn("failed to start sensor ingest", zap.Error(err))
			ing.Stop()
		} else {
			ingest = ing
		}
	}

	api := service.NewHandler(eng, db != nil, log)

	router := service.NewRouter(log)
	router.HandleHandler("/ws", h)
	router.RegisterAPIRoutes(api)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if ingest != nil {
		ingest.Stop()
	}
	if jnl != nil {
		_ = jnl.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

// seedSampleData 内存模式下的初始数据
func seedSampleData(eng *engine.Engine, log *zap.Logger) {
	ctx := context.Background()

	type seedRoom struct {
		number    string
		roomType  string
		price     float64
		maxGuests int
	}
	rooms := []seedRoom{
		{"101", "standard", 100.00, 2},
		{"102", "standard", 100.00, 2},
		{"103", "standard", 100.00, 2},
		{"104", "deluxe", 200.00, 3},
		{"105", "suite", 300.00, 4},
	}
	for _, r := range rooms {
		if _, err := eng.CreateRoom(ctx, engine.NewRoom{
			RoomNumber:    r.number,
			RoomType:      domain.RoomType(r.roomType),
			PricePerNight: r.price,
			MaxGuests:     r.maxGuests,
		}); err != nil {
			log.Warn("failed to seed room", zap.String("room_number", r.number), zap.Error(err))
		}
	}

	guests := [][4]string{
		{"John", "Doe", "john.doe@example.com", "+1234567890"},
		{"Jane", "Smith", "jane.smith@example.com", "+0987654321"},
		{"Bob", "Johnson", "bob.johnson@example.com", "+1122334455"},
	}
	for _, g := range guests {
		if _, err := eng.CreateGuest(ctx, engine.NewGuest{
			FirstName: g[0],
			LastName:  g[1],
			Email:     g[2],
			Phone:     g[3],
		}); err != nil {
			log.Warn("failed to seed guest", zap.String("email", g[2]), zap.Error(err))
		}
	}

	log.Info("seeded sample data", zap.Int("rooms", len(rooms)), zap.Int("guests", len(guests)))
}
