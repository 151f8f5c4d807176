// Package stream pushes snapshots to WebSocket subscribers on a fixed
// cadence. Every connection has its own timer and send loop; a slow or
// broken client never delays another.
package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"benchd.sh/internal/metrics"
	"benchd.sh/internal/models"
	"benchd.sh/internal/observability"
)

const (
	DefaultInterval     = 2 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Source produces a fresh snapshot for every send
type Source interface {
	Assemble(ctx context.Context) models.Snapshot
}

// State is the lifecycle stage of one connection
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	// Interval between snapshots, fixed for the broadcaster's lifetime
	Interval     time.Duration
	WriteTimeout time.Duration
	// CheckOrigin defaults to accepting every origin
	CheckOrigin func(r *http.Request) bool
}

// Broadcaster is an http.Handler serving the snapshot stream
type Broadcaster struct {
	source       Source
	interval     time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       *observability.Logger

	mu       sync.RWMutex
	conns    map[*conn]struct{}
	closed   bool
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

type conn struct {
	id       string
	ws       *websocket.Conn
	logger   *observability.Logger
	state    atomic.Int32
	readDone chan struct{}
}

// New creates a Broadcaster
func New(source Source, cfg Config, logger *observability.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}

	return &Broadcaster{
		source:       source,
		interval:     cfg.Interval,
		writeTimeout: cfg.WriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: cfg.CheckOrigin,
		},
		logger: logger,
		conns:  make(map[*conn]struct{}),
		done:   make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and streams until the client goes away,
// a send fails or the broadcaster shuts down.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		b.logger.Debug("WebSocket upgrade failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}

	id := uuid.New().String()
	c := &conn{
		id:       id,
		ws:       ws,
		logger:   b.logger.WithStream(id, r.RemoteAddr),
		readDone: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	if !b.register(c) {
		b.closeGoingAway(c)
		_ = ws.Close()
		return
	}

	go c.readPump()
	b.sendLoop(r.Context(), c)
}

// Active returns the number of streaming connections
func (b *Broadcaster) Active() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Shutdown sends a going-away close frame to every subscriber and waits
// for their loops to exit or ctx to expire.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	conns := make([]*conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	// close frames go out before the send loops tear down their sockets
	for _, c := range conns {
		b.closeGoingAway(c)
	}
	b.stopOnce.Do(func() { close(b.done) })

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broadcaster) register(c *conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.conns[c] = struct{}{}
	b.wg.Add(1)
	c.state.Store(int32(StateStreaming))
	metrics.StreamClients.Inc()

	c.logger.Info("Stream client connected", zap.Int("active", len(b.conns)))
	return true
}

func (b *Broadcaster) unregister(c *conn) {
	b.mu.Lock()
	delete(b.conns, c)
	active := len(b.conns)
	b.mu.Unlock()

	c.state.Store(int32(StateClosed))
	metrics.StreamClients.Dec()
	b.wg.Done()

	c.logger.Info("Stream client disconnected", zap.Int("active", active))
}

func (b *Broadcaster) sendLoop(ctx context.Context, c *conn) {
	defer b.unregister(c)
	defer c.ws.Close()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if err := b.send(ctx, c); err != nil {
			c.logger.Debug("Stream send failed", zap.Error(err))
			return
		}

		select {
		case <-ticker.C:
		case <-c.readDone:
			return
		case <-ctx.Done():
			return
		case <-b.done:
			return
		}
	}
}

func (b *Broadcaster) send(ctx context.Context, c *conn) error {
	data, err := json.Marshal(b.source.Assemble(ctx))
	if err != nil {
		metrics.RecordStreamMessage(false)
		return err
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
		metrics.RecordStreamMessage(false)
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		metrics.RecordStreamMessage(false)
		return err
	}

	metrics.RecordStreamMessage(true)
	return nil
}

func (b *Broadcaster) closeGoingAway(c *conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		c.logger.Debug("Failed to send close frame", zap.Error(err))
	}
}

// readPump discards inbound frames of any size without buffering them. It
// returns, closing readDone, once the client disconnects or sends a close
// frame.
func (c *conn) readPump() {
	defer close(c.readDone)

	for {
		_, r, err := c.ws.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("Stream read error", zap.Error(err))
			}
			return
		}
		if _, err := io.Copy(io.Discard, r); err != nil {
			c.logger.Debug("Stream read error", zap.Error(err))
			return
		}
	}
}

// State returns the connection's lifecycle stage
func (c *conn) State() State {
	return State(c.state.Load())
}
