// Package registry tracks live websocket connections per session and
// fans outbound messages across them. Per-connection send order is a
// hard guarantee: every connection owns a buffered queue drained by a
// single writer goroutine.
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/chattrain/chattrain/internal/audit"
	"github.com/chattrain/chattrain/internal/logging"
)

const sendQueueSize = 32

// Wire is the transport a connection writes to. The websocket adapter
// in the server package satisfies it; tests use in-memory fakes.
type Wire interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Connection is one registered websocket attached to a session.
type Connection struct {
	ID        string
	SessionID string
	UserID    string

	wire   Wire
	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	closed sync.Once
	logger logging.Logger
}

// Send serializes the payload and enqueues it for the connection's
// writer. A full queue or a dead connection drops the message and
// returns the connection's context error where one exists.
func (c *Connection) Send(ctx context.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case c.queue <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context is canceled when the connection is disconnected. Background
// work tied to the connection must watch it.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// run drains the queue onto the wire until the connection dies. It is
// the only goroutine that writes to the transport.
func (c *Connection) run() {
	for {
		select {
		case data := <-c.queue:
			if err := c.wire.Write(c.ctx, data); err != nil {
				c.logger.Warn(c.ctx, err, "connection write failed",
					"connection_id", c.ID, "session_id", c.SessionID)
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) close() {
	c.closed.Do(func() {
		c.cancel()
		if err := c.wire.Close(); err != nil {
			c.logger.Debug(context.Background(), "wire close",
				"connection_id", c.ID, "error", err.Error())
		}
	})
}

// Registry is the session-to-connections index. All methods are safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Connection
	auditLog *audit.Log
	logger   logging.Logger
}

// NewRegistry creates an empty registry. The audit log may be nil.
func NewRegistry(auditLog *audit.Log, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Registry{
		sessions: make(map[string]map[string]*Connection),
		auditLog: auditLog,
		logger:   logger.WithComponent("registry"),
	}
}

// Connect registers a wire under a session and starts its writer. The
// returned connection carries a context that outlives no registry
// entry: Disconnect cancels it.
func (r *Registry) Connect(parent context.Context, sessionID, userID string, wire Wire) *Connection {
	ctx, cancel := context.WithCancel(parent)
	conn := &Connection{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		wire:      wire,
		queue:     make(chan []byte, sendQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    r.logger,
	}

	r.mu.Lock()
	conns, ok := r.sessions[sessionID]
	if !ok {
		conns = make(map[string]*Connection)
		r.sessions[sessionID] = conns
	}
	conns[conn.ID] = conn
	r.mu.Unlock()

	go conn.run()

	if r.auditLog != nil {
		r.auditLog.Append(audit.EventConnectionEstablished, userID, map[string]interface{}{
			"session_id":    sessionID,
			"connection_id": conn.ID,
		})
	}
	r.logger.Info(ctx, "connection registered",
		"connection_id", conn.ID, "session_id", sessionID, "user_id", userID)

	return conn
}

// Disconnect removes the connection, cancels its context, closes its
// wire, and prunes the session entry once it holds no connections.
func (r *Registry) Disconnect(conn *Connection) {
	var found bool
	r.mu.Lock()
	if conns, ok := r.sessions[conn.SessionID]; ok {
		if _, found = conns[conn.ID]; found {
			delete(conns, conn.ID)
			if len(conns) == 0 {
				delete(r.sessions, conn.SessionID)
			}
		}
	}
	r.mu.Unlock()

	conn.close()
	if !found {
		return
	}

	if r.auditLog != nil {
		r.auditLog.Append(audit.EventConnectionClosed, conn.UserID, map[string]interface{}{
			"session_id":    conn.SessionID,
			"connection_id": conn.ID,
		})
	}
	r.logger.Info(context.Background(), "connection removed",
		"connection_id", conn.ID, "session_id", conn.SessionID)
}

// Broadcast enqueues the payload on every connection of the session.
// Connections whose queue is full or whose context is dead are removed;
// a slow consumer never blocks the rest of the session.
func (r *Registry) Broadcast(ctx context.Context, sessionID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error(ctx, err, "broadcast marshal failed", "session_id", sessionID)
		return
	}

	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.sessions[sessionID]))
	for _, conn := range r.sessions[sessionID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	var stale []*Connection
	for _, conn := range conns {
		select {
		case conn.queue <- data:
		case <-conn.ctx.Done():
			stale = append(stale, conn)
		default:
			// A full queue means the reader on the other end stopped
			// draining; treat the connection as dead.
			r.logger.Warn(ctx, nil, "dropping unresponsive connection from broadcast",
				"connection_id", conn.ID, "session_id", sessionID)
			stale = append(stale, conn)
		}
	}
	for _, conn := range stale {
		r.Disconnect(conn)
	}
}

// SessionConnections reports how many connections a session holds.
func (r *Registry) SessionConnections(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

// ActiveSessions reports the number of sessions with live connections.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll disconnects every connection; used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var all []*Connection
	for _, conns := range r.sessions {
		for _, conn := range conns {
			all = append(all, conn)
		}
	}
	r.sessions = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range all {
		conn.close()
	}
}
