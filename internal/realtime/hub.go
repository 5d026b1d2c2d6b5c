package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownConnection is returned when joining a room from a connection the hub does not know.
var ErrUnknownConnection = errors.New("realtime: unknown connection")

// Frame is one outbound socket message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is the hub side of a realtime connection. Frames are queued on a bounded outbox.
type Conn struct {
	id     string
	remote string
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewConn builds a connection with an outbox of the given capacity.
func NewConn(id, remoteAddr string, capacity int) *Conn {
	if capacity <= 0 {
		capacity = 64
	}
	return &Conn{id: id, remote: remoteAddr, outbox: make(chan []byte, capacity), done: make(chan struct{})}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address used as client IP for bridged requests.
func (c *Conn) RemoteAddr() string { return c.remote }

// Outbox yields encoded frames ready to be written to the peer.
func (c *Conn) Outbox() <-chan []byte { return c.outbox }

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close marks the connection closed. It is safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

// Send queues an encoded frame, dropping it when the peer is too slow.
func (c *Conn) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- payload:
		return true
	default:
		log.WithField("conn_id", c.id).Warn("realtime: outbox full, frame dropped")
		return false
	}
}

// SendFrame encodes and queues frame.
func (c *Conn) SendFrame(frame Frame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.WithError(err).WithField("event", frame.Event).Error("realtime: encode frame")
		return false
	}
	return c.Send(payload)
}

// Hub tracks live connections and their room memberships.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Conn), rooms: make(map[string]map[string]*Conn)}
}

// Register adds a connection.
func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

// Unregister removes a connection from the hub and every room.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	for room, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	conn.Close()
}

// Conn returns a registered connection.
func (h *Hub) Conn(connID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[connID]
	return conn, ok
}

// CloseAll closes every registered connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		conn.Close()
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Join adds the connection to rooms.
func (h *Hub) Join(connID string, rooms ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	for _, room := range rooms {
		members, exists := h.rooms[room]
		if !exists {
			members = make(map[string]*Conn)
			h.rooms[room] = members
		}
		members[connID] = conn
	}
	return nil
}

// Leave removes the connection from rooms.
func (h *Hub) Leave(connID string, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			continue
		}
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Rooms returns the rooms the connection belongs to.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for room, members := range h.rooms {
		if _, ok := members[connID]; ok {
			out = append(out, room)
		}
	}
	return out
}

// Tier is an encoded frame addressed to rooms.
type Tier struct {
	Rooms []string        `json:"rooms"`
	Frame json.RawMessage `json:"frame"`
}

// Emit delivers each connection the frame of the first tier it belongs to, at most once,
// and returns the number of recipients.
func (h *Hub) Emit(tiers ...Tier) int {
	h.mu.RLock()
	type target struct {
		conn  *Conn
		frame []byte
	}
	targets := make(map[string]target)
	for _, tier := range tiers {
		for _, room := range tier.Rooms {
			for connID, conn := range h.rooms[room] {
				if _, seen := targets[connID]; seen {
					continue
				}
				targets[connID] = target{conn: conn, frame: tier.Frame}
			}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, t := range targets {
		if t.conn.Send(t.frame) {
			delivered++
		}
	}
	return delivered
}

// EmitFrame encodes frame and emits it to rooms.
func (h *Hub) EmitFrame(rooms []string, frame Frame) (int, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return 0, err
	}
	return h.Emit(Tier{Rooms: rooms, Frame: payload}), nil
}
