package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hotel-sync/internal/engine"
	"hotel-sync/internal/hub"
	"hotel-sync/internal/protocol"
	"hotel-sync/internal/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startTestServer(t *testing.T) (*engine.Engine, string) {
	t.Helper()
	eng := engine.NewEngine(repository.NewMemoryStore(), zap.NewNop())
	h := hub.NewHub(eng, nil, zap.NewNop())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return eng, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastOptions() Options {
	return Options{
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
		MaxAttempts: 3,
	}
}

func TestAgentSyncsMirrorOnConnect(t *testing.T) {
	eng, url := startTestServer(t)
	_, err := eng.CreateRoom(context.Background(), engine.NewRoom{
		RoomNumber:    "101",
		RoomType:      "standard",
		PricePerNight: 100,
	})
	require.NoError(t, err)

	agent := NewAgent(url, zap.NewNop(), fastOptions())
	t.Cleanup(func() { agent.Close() })
	require.NoError(t, agent.Connect())
	require.Equal(t, StateConnected, agent.State())

	require.Eventually(t, func() bool {
		return len(agent.Mirror().Rooms()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "101", agent.Mirror().Rooms()[0].RoomNumber)
}

func TestAgentReceivesBroadcasts(t *testing.T) {
	_, url := startTestServer(t)

	agent := NewAgent(url, zap.NewNop(), fastOptions())
	t.Cleanup(func() { agent.Close() })
	require.NoError(t, agent.Connect())

	// A second client mutates; the agent's mirror follows the broadcast.
	other := NewAgent(url, zap.NewNop(), fastOptions())
	t.Cleanup(func() { other.Close() })
	require.NoError(t, other.Connect())
	require.NoError(t, other.Send(protocol.MustNew(protocol.KindAddRoom, protocol.AddRoomCommand{
		RoomNumber:    "102",
		RoomType:      "deluxe",
		PricePerNight: 200,
	})))

	require.Eventually(t, func() bool {
		for _, room := range agent.Mirror().Rooms() {
			if room.RoomNumber == "102" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentQueuesWhileDisconnectedAndFlushesOnConnect(t *testing.T) {
	eng, url := startTestServer(t)

	agent := NewAgent(url, zap.NewNop(), fastOptions())
	t.Cleanup(func() { agent.Close() })

	// Sent before any connection: queued, not lost.
	require.NoError(t, agent.Send(protocol.MustNew(protocol.KindAddRoom, protocol.AddRoomCommand{
		RoomNumber:    "101",
		RoomType:      "standard",
		PricePerNight: 100,
	})))
	require.Equal(t, 1, agent.QueuedCommands())

	require.NoError(t, agent.Connect())

	require.Eventually(t, func() bool {
		rooms, err := eng.Rooms(context.Background())
		return err == nil && len(rooms) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, agent.QueuedCommands())
}

func TestFlushQueueKeepsOrderOnWriteFailure(t *testing.T) {
	_, url := startTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	agent := NewAgent(url, zap.NewNop(), fastOptions())
	agent.queue.push([]byte("a"))
	agent.queue.push([]byte("b"))
	agent.queue.push([]byte("c"))

	// Every write fails: nothing may be lost and order must hold.
	agent.flushQueue(conn)
	require.Equal(t, 3, agent.QueuedCommands())
	require.Equal(t, []string{"a", "b", "c"}, popAll(agent.queue))
}

func TestSendOnDeadConnectionQueuesAndDisconnects(t *testing.T) {
	eng, url := startTestServer(t)

	opts := fastOptions()
	opts.BaseBackoff = 300 * time.Millisecond
	agent := NewAgent(url, zap.NewNop(), opts)
	t.Cleanup(func() { agent.Close() })
	require.NoError(t, agent.Connect())

	agent.mu.Lock()
	conn := agent.conn
	agent.mu.Unlock()
	require.NoError(t, conn.Close())

	require.NoError(t, agent.Send(protocol.MustNew(protocol.KindAddRoom, protocol.AddRoomCommand{
		RoomNumber:    "101",
		RoomType:      "standard",
		PricePerNight: 100,
	})))

	// The frame is queued, not lost, and the state leaves Connected at once
	// so later Sends queue behind it in issue order.
	require.Equal(t, 1, agent.QueuedCommands())
	require.NotEqual(t, StateConnected, agent.State())

	// The reconnect replays it against the still-running server.
	require.Eventually(t, func() bool {
		rooms, err := eng.Rooms(context.Background())
		return err == nil && len(rooms) == 1 && agent.QueuedCommands() == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestAgentGoesOfflineAfterExhaustedRetries(t *testing.T) {
	agent := NewAgent("ws://127.0.0.1:1/ws", zap.NewNop(), fastOptions())
	t.Cleanup(func() { agent.Close() })

	require.Error(t, agent.Connect())
	require.Eventually(t, func() bool {
		return agent.State() == StateOffline
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAgentDispatchesHandlers(t *testing.T) {
	_, url := startTestServer(t)

	agent := NewAgent(url, zap.NewNop(), fastOptions())
	t.Cleanup(func() { agent.Close() })

	errCh := make(chan string, 1)
	agent.OnMessage(protocol.KindError, func(msg *protocol.Message) {
		var payload protocol.ErrorPayload
		if err := msg.DecodePayload(&payload); err == nil {
			errCh <- payload.Message
		}
	})

	require.NoError(t, agent.Connect())
	require.NoError(t, agent.Send(protocol.MustNew(protocol.KindDeleteRoom, protocol.EntityRef{ID: "missing"})))

	select {
	case msg := <-errCh:
		require.Equal(t, "Room with ID missing not found", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("error reply never dispatched")
	}
}
