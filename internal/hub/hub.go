package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"hotel-sync/internal/domain"
	"hotel-sync/internal/engine"
	"hotel-sync/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MutationRecorder receives the payload of every committed mutation after it
// has been fanned out. Rejections never reach it.
type MutationRecorder interface {
	Record(ctx context.Context, kind string, payload []byte)
}

// commandHandler executes one command kind and returns the reply message.
// A returned error (typically an *engine.Rejection) becomes an error reply
// to the originator only.
type commandHandler func(ctx context.Context, payload json.RawMessage) (*protocol.Message, error)

// Hub 广播协调器
// Maintains the registry of live sessions, dispatches commands through the
// kind -> handler table, replies to the originator, and pushes every
// committed mutation to all other sessions. Rejections are invisible to
// non-originating clients: a broadcast always represents committed state.
type Hub struct {
	engine   *engine.Engine
	recorder MutationRecorder // optional
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handlers map[string]commandHandler

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHub(eng *engine.Engine, recorder MutationRecorder, logger *zap.Logger) *Hub {
	h := &Hub{
		engine:   eng,
		recorder: recorder,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: map[string]*Session{},
	}
	h.handlers = h.commandHandlers()
	return h
}

// ServeHTTP upgrades the request and runs the session until the peer drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &Session{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: h.logger,
		done:   make(chan struct{}),
	}
	h.register(s)
	go s.writePump()

	// A fresh session starts from a full room snapshot; reconnecting clients
	// resynchronize from it instead of replayed history.
	if reply, err := h.handlers[protocol.KindGetRooms](r.Context(), nil); err == nil {
		if data, err := reply.Encode(); err == nil {
			s.enqueue(data)
		}
	}

	s.readPump()
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("session_id", s.id), zap.Int("total", n))
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	n := len(h.sessions)
	h.mu.Unlock()

	s.close()
	h.logger.Info("client disconnected", zap.String("session_id", s.id), zap.Int("total", n))
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// handle processes one inbound frame from s.
func (h *Hub) handle(s *Session, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		h.reply(s, protocol.Error(err.Error()))
		return
	}

	handler, ok := h.handlers[msg.Type]
	if !ok {
		h.reply(s, protocol.Error("Unknown action type: "+msg.Type))
		return
	}

	ctx := context.Background()
	reply, err := handler(ctx, msg.Payload)
	if err != nil {
		if rej, ok := engine.AsRejection(err); ok {
			h.logger.Info("command rejected",
				zap.String("session_id", s.id),
				zap.String("kind", msg.Type),
				zap.String("rejection", string(rej.Kind)),
				zap.String("message", rej.Message))
		} else {
			h.logger.Error("command failed",
				zap.String("session_id", s.id),
				zap.String("kind", msg.Type),
				zap.Error(err))
		}
		h.reply(s, protocol.Error(err.Error()))
		return
	}

	h.reply(s, reply)
	if protocol.MutationKinds[msg.Type] {
		h.broadcast(reply, s.id)
		if h.recorder != nil {
			h.recorder.Record(ctx, reply.Type, reply.Payload)
		}
	}
}

// PublishRoom pushes a room mutation committed outside the command path, such
// as a sensor reading applied by the ingest pipeline. Every session receives
// the frame as an update_room push and the mutation is journaled like one
// entered over a socket.
func (h *Hub) PublishRoom(room *domain.Room) {
	msg, err := protocol.New(protocol.KindUpdateRoom, room)
	if err != nil {
		h.logger.Error("failed to encode room push", zap.Error(err))
		return
	}
	h.broadcast(msg, "")
	if h.recorder != nil {
		h.recorder.Record(context.Background(), msg.Type, msg.Payload)
	}
}

func (h *Hub) reply(s *Session, msg *protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("failed to encode reply", zap.Error(err))
		return
	}
	if !s.enqueue(data) {
		h.logger.Warn("dropping slow session", zap.String("session_id", s.id))
		h.unregister(s)
	}
}

// broadcast pushes a committed mutation to every live session except the
// originator. The registry is copied before iterating so a concurrent
// connect/disconnect cannot invalidate the loop.
func (h *Hub) broadcast(msg *protocol.Message, exceptID string) {
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("failed to encode broadcast", zap.Error(err))
		return
	}

	h.mu.Lock()
	targets := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		if id != exceptID {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		if !s.enqueue(data) {
			h.logger.Warn("dropping slow session during broadcast", zap.String("session_id", s.id))
			h.unregister(s)
		}
	}
}
