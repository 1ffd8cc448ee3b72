package chat

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/metrics"
)

// Registry maps room names to the live connections joined to them.
// Each connection also records its own rooms, so leaving everything on disconnect does not
// scan the whole map.
type Registry struct {
	// mu guards rooms and every Connection.rooms set.
	mu    sync.RWMutex
	rooms map[string]map[*Connection]struct{}

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[string]map[*Connection]struct{}),
		metrics: m,
		logger:  logx.Component("Registry"),
	}
}

// Join adds c to room. Joining twice, or joining a closed connection, is a no-op.
func (r *Registry) Join(c *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.joinLocked(c, room)
}

// joinLocked ignores closed connections: a frame still in flight when its connection is torn
// down must not put it back into a room.
func (r *Registry) joinLocked(c *Connection, room string) {
	select {
	case <-c.done:
		return
	default:
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Connection]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	r.metrics.SetRooms(len(r.rooms))
}

// Leave removes c from room and drops the room once empty.
func (r *Registry) Leave(c *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(c, room)
}

func (r *Registry) leaveLocked(c *Connection, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(c.rooms, room)
	r.metrics.SetRooms(len(r.rooms))
}

// LeaveAll removes c from every room it joined.
func (r *Registry) LeaveAll(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range c.rooms {
		r.leaveLocked(c, room)
	}
}

// JoinAll joins every connection currently in fromRoom to toRoom.
// It is how a user's other tabs pick up a channel created or joined in one tab.
func (r *Registry) JoinAll(fromRoom, toRoom string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.rooms[fromRoom] {
		r.joinLocked(c, toRoom)
	}
}

// Count returns the number of connections in room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[room])
}

// Connections returns a snapshot of the connections in room.
func (r *Registry) Connections(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		conns = append(conns, c)
	}
	return conns
}

// LiveUsers returns the ids of users with at least one connection on this instance.
func (r *Registry) LiveUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for room := range r.rooms {
		if id, ok := strings.CutPrefix(room, userRoomPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Multicast delivers event to the connections joined to room when the call starts, except
// exclude (may be nil). It returns the number of connections the frame was queued for.
func (r *Registry) Multicast(room, event string, payload any, exclude *Connection) int {
	recipients := r.Connections(room)
	if len(recipients) == 0 || (len(recipients) == 1 && recipients[0] == exclude) {
		return 0
	}

	frame, err := json.Marshal(Event{Type: frameEvent, Event: event, Data: payload})
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return 0
	}

	r.metrics.Multicast(event)

	delivered := 0
	for _, c := range recipients {
		if c == exclude {
			continue
		}
		if c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}
