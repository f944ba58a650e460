package client

import (
	"errors"
	"sync"
	"time"

	"hotel-sync/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State 连接状态机
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateOffline is terminal until Connect is called again: the reconnect
	// budget was exhausted and the agent stopped dialing on its own.
	StateOffline State = "offline"
)

const (
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultMaxAttempts = 5
)

// Handler observes one inbound message kind.
type Handler func(msg *protocol.Message)

// Options tunes the agent's reconnect behaviour. Zero values pick the
// defaults; tests shrink the intervals.
type Options struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	QueueLimit  int
}

// Agent 客户端同步代理
// Maintains one websocket connection to the hub, keeps a local Mirror in
// sync with server pushes, and queues commands sent while disconnected.
// On every (re)connect it requests full room and guest snapshots before
// flushing the queue, so the mirror converges even after missed broadcasts.
type Agent struct {
	url    string
	logger *zap.Logger
	opts   Options

	mirror *Mirror
	queue  *sendQueue

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	writeMu  sync.Mutex
	handlers map[string]Handler
	fallback Handler
	done     chan struct{}
	closed   bool
}

func NewAgent(url string, logger *zap.Logger, opts Options) *Agent {
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Agent{
		url:      url,
		logger:   logger,
		opts:     opts,
		mirror:   NewMirror(),
		queue:    newSendQueue(opts.QueueLimit),
		state:    StateDisconnected,
		handlers: map[string]Handler{},
		done:     make(chan struct{}),
	}
}

// Mirror exposes the agent's local replica.
func (a *Agent) Mirror() *Mirror { return a.mirror }

// State reports the current connection state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnMessage registers a handler for one message kind. Handlers run on the
// read loop goroutine after the mirror has been updated.
func (a *Agent) OnMessage(kind string, fn Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[kind] = fn
}

// OnAny registers a fallback handler for kinds with no dedicated handler.
func (a *Agent) OnAny(fn Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = fn
}

// Connect starts the connection loop. It returns after the first dial
// attempt resolves; reconnects continue in the background.
func (a *Agent) Connect() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New("agent is closed")
	}
	a.state = StateConnecting
	a.mu.Unlock()

	if err := a.dial(); err != nil {
		go a.reconnectLoop(1)
		return err
	}
	return nil
}

// Send transmits a command, or queues it when the connection is down.
// Fire and forget: replies arrive through the registered handlers.
func (a *Agent) Send(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	connected := a.state == StateConnected
	a.mu.Unlock()

	if !connected || conn == nil {
		a.queue.push(data)
		return nil
	}
	if err := a.write(conn, data); err != nil {
		// Queue the frame and tear the connection down right away so later
		// Sends queue behind it instead of racing a dying socket.
		a.queue.push(data)
		a.onDisconnect(conn, err)
		return nil
	}
	return nil
}

// QueuedCommands reports how many commands await a reconnect.
func (a *Agent) QueuedCommands() int { return a.queue.len() }

// DroppedCommands reports how many queued commands were discarded because
// the queue overflowed.
func (a *Agent) DroppedCommands() int { return a.queue.droppedCount() }

// Close tears the connection down and stops reconnecting.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.state = StateDisconnected
	conn := a.conn
	a.conn = nil
	close(a.done)
	a.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (a *Agent) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(a.url, nil)
	if err != nil {
		a.logger.Warn("dial failed", zap.String("url", a.url), zap.Error(err))
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return errors.New("agent is closed")
	}
	a.conn = conn
	a.state = StateConnected
	a.mu.Unlock()

	a.logger.Info("connected", zap.String("url", a.url))
	go a.readLoop(conn)

	// Resync before replaying queued intent so queued commands apply
	// against current server state, not a stale mirror.
	a.write(conn, protocol.MustNew(protocol.KindGetRooms, nil).MustEncode())
	a.write(conn, protocol.MustNew(protocol.KindGetGuests, nil).MustEncode())
	a.flushQueue(conn)
	return nil
}

// flushQueue replays queued commands oldest first, popping each entry only
// after it is written. On a write failure the failed entry returns to the
// head of the queue, so nothing queued is lost and commands queued during the
// flush stay behind it.
func (a *Agent) flushQueue(conn *websocket.Conn) {
	for {
		data, ok := a.queue.pop()
		if !ok {
			return
		}
		if err := a.write(conn, data); err != nil {
			a.queue.pushFront(data)
			return
		}
	}
}

func (a *Agent) write(conn *websocket.Conn, data []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (a *Agent) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.onDisconnect(conn, err)
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			a.logger.Warn("malformed server frame", zap.Error(err))
			continue
		}
		if err := a.mirror.ApplyMessage(msg); err != nil {
			a.logger.Warn("failed to apply message", zap.String("kind", msg.Type), zap.Error(err))
			continue
		}
		a.dispatch(msg)
	}
}

func (a *Agent) dispatch(msg *protocol.Message) {
	a.mu.Lock()
	fn, ok := a.handlers[msg.Type]
	if !ok {
		fn = a.fallback
	}
	a.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (a *Agent) onDisconnect(conn *websocket.Conn, cause error) {
	conn.Close()

	a.mu.Lock()
	if a.closed || a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	a.state = StateConnecting
	a.mu.Unlock()

	a.logger.Warn("connection lost", zap.Error(cause))
	go a.reconnectLoop(1)
}

// reconnectLoop dials with doubling backoff until it succeeds, the agent is
// closed, or the attempt budget runs out.
func (a *Agent) reconnectLoop(attempt int) {
	backoff := a.opts.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > a.opts.MaxBackoff {
			backoff = a.opts.MaxBackoff
			break
		}
	}

	for {
		if attempt > a.opts.MaxAttempts {
			a.mu.Lock()
			if !a.closed {
				a.state = StateOffline
			}
			a.mu.Unlock()
			a.logger.Error("reconnect budget exhausted, going offline",
				zap.Int("attempts", a.opts.MaxAttempts))
			return
		}

		select {
		case <-a.done:
			return
		case <-time.After(backoff):
		}

		a.logger.Info("reconnecting", zap.Int("attempt", attempt))
		if err := a.dial(); err == nil {
			return
		}

		attempt++
		backoff *= 2
		if backoff > a.opts.MaxBackoff {
			backoff = a.opts.MaxBackoff
		}
	}
}
