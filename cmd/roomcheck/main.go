// roomcheck probes a running hotel-sync server: it hits the health endpoint
// and lists rooms with their occupancy. Useful as a readiness check and a
// quick operator view without opening a WebSocket client.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"hotel-sync/internal/domain"

	"github.com/go-resty/resty/v2"
)

type healthResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	DatabaseConnected bool   `json:"databaseConnected"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "hotel-sync base URL")
	flag.Parse()

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	var health healthResponse
	resp, err := client.R().SetResult(&health).Get("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	if resp.IsError() {
		fmt.Fprintf(os.Stderr, "health check failed: HTTP %d\n", resp.StatusCode())
		os.Exit(1)
	}
	fmt.Printf("server: %s (database connected: %v)\n", health.Status, health.DatabaseConnected)

	var rooms []*domain.Room
	resp, err = client.R().SetResult(&rooms).Get("/api/rooms")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list rooms: %v\n", err)
		os.Exit(1)
	}
	if resp.IsError() {
		fmt.Fprintf(os.Stderr, "failed to list rooms: HTTP %d\n", resp.StatusCode())
		os.Exit(1)
	}

	occupied := 0
	for _, room := range rooms {
		if room.CurrentGuestsCount > 0 {
			occupied++
		}
		fmt.Printf("room %-6s %-8s %-9s %d/%d guests\n",
			room.RoomNumber, room.RoomType, room.Status,
			room.CurrentGuestsCount, room.MaxGuests)
	}
	fmt.Printf("%d rooms, %d occupied\n", len(rooms), occupied)
}
