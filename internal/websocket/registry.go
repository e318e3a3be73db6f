// Package websocket implements the connection registry, per-service event
// emitters, and the handler set (echo, room, log stream, resume) that sit
// behind the gateway's WebSocket dispatcher.
//
// Architecture:
//   - Registry: process-wide map of (ServiceKind, user_id) -> Connection
//   - Emitter: per-ServiceKind publish/subscribe of Connect/Message/Disconnect
//   - Dispatcher: HTTP upgrade, auth gate, per-connection receive loop
//   - Echo/Room/LogStream/Resume: the four handler sets registered on their
//     service's Emitter
//
// Concurrency: the Registry's maps are guarded by a single mutex; every
// operation is atomic with respect to both the live map and the closing
// set, matching the teacher's Hub discipline of serializing all map access
// behind one lock rather than relying on channel ownership.
package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// State is a Connection's lifecycle state.
type State int32

const (
	StateActive State = iota
	StateClosing
)

// Connection is a single live WebSocket, admitted by the Dispatcher after
// successful auth and owned authoritatively by the Registry. Handlers hold
// only borrowed references, valid until the Connection's state flips to
// Closing (§3).
type Connection struct {
	ID       string
	Kind     ServiceKind
	UserID   uint64
	Username string
	Groups   map[string]struct{}

	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	state State
}

// HasGroup reports whether the connection's claims carry the named group.
func (c *Connection) HasGroup(name string) bool {
	_, ok := c.Groups[name]
	return ok
}

// Send enqueues a frame for delivery. Returns false if the connection's
// outbound buffer is full (the caller should treat the connection as dead
// and evict it) or if the connection is already closing.
func (c *Connection) Send(f Frame) bool {
	data, err := marshalFrame(f)
	if err != nil {
		logger.Registry().Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal outbound frame")
		return false
	}

	c.mu.Lock()
	closing := c.state == StateClosing
	c.mu.Unlock()
	if closing {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the connection closing and stops its writePump. Safe to call
// more than once.
func (c *Connection) close() {
	c.mu.Lock()
	alreadyClosing := c.state == StateClosing
	c.state = StateClosing
	c.mu.Unlock()
	if !alreadyClosing {
		close(c.send)
	}
}

// key identifies a Registry slot.
type key struct {
	kind   ServiceKind
	userID uint64
}

// Registry is the process-wide (ServiceKind, user_id) -> Connection map
// plus the closing-id set described in §3/§4.2.
type Registry struct {
	mu         sync.Mutex
	conns      map[key]*Connection
	closingIDs map[string]struct{}
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[key]*Connection),
		closingIDs: make(map[string]struct{}),
	}
}

// ErrAlreadyRegistered is returned by Register when the (kind, user_id) slot
// is already occupied; the caller must close the new socket without
// touching the existing entry.
var ErrAlreadyRegistered = registerErr{}

type registerErr struct{}

func (registerErr) Error() string { return "connection already registered for this (service, user)" }

// Register accepts the upgrade for (kind, userID), inserting a new
// Connection. If the slot is occupied, it logs a warning and returns
// ErrAlreadyRegistered without touching the existing entry (§4.2).
func (r *Registry) Register(kind ServiceKind, userID uint64, username string, groups map[string]struct{}, conn *websocket.Conn) (*Connection, error) {
	k := key{kind: kind, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[k]; exists {
		logger.Registry().Warn().
			Str("kind", string(kind)).
			Uint64("user_id", userID).
			Msg("duplicate connection attempt rejected")
		return nil, ErrAlreadyRegistered
	}

	c := &Connection{
		ID:       uuid.New().String(),
		Kind:     kind,
		UserID:   userID,
		Username: username,
		Groups:   groups,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
	r.conns[k] = c
	delete(r.closingIDs, c.ID)

	return c, nil
}

// Lookup returns the live Connection for (kind, userID), or nil if absent or
// if its id is in the closing set (§4.2).
func (r *Registry) Lookup(kind ServiceKind, userID uint64) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[key{kind: kind, userID: userID}]
	if !ok {
		return nil
	}
	if _, closing := r.closingIDs[c.ID]; closing {
		return nil
	}
	return c
}

// Disconnect marks the connection for (kind, userID) closing and removes it
// from the live map. Idempotent.
func (r *Registry) Disconnect(kind ServiceKind, userID uint64) {
	k := key{kind: kind, userID: userID}

	r.mu.Lock()
	c, ok := r.conns[k]
	if ok {
		r.closingIDs[c.ID] = struct{}{}
		delete(r.conns, k)
	}
	r.mu.Unlock()

	if ok {
		c.close()
	}
}

// ActiveUsers returns a snapshot of every user_id with at least one live
// connection, across all ServiceKinds.
func (r *Registry) ActiveUsers() map[uint64]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make(map[uint64]struct{}, len(r.conns))
	for k := range r.conns {
		users[k.userID] = struct{}{}
	}
	return users
}

// RunPumps starts the per-connection read and write goroutines. onMessage is
// invoked for every text frame received; onClose runs once the socket is
// done, regardless of which side initiated the close.
func RunPumps(c *Connection, onMessage func([]byte), onClose func()) {
	done := make(chan struct{})
	go writePump(c, done)
	go readPump(c, done, onMessage, onClose)
}

func writePump(c *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func readPump(c *Connection, done chan<- struct{}, onMessage func([]byte), onClose func()) {
	defer func() {
		close(done)
		c.conn.Close()
		onClose()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Registry().Debug().Str("connection_id", c.ID).Err(err).Msg("websocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		onMessage(message)
	}
}
