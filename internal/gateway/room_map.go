package gateway

import "sync"

// RoomMap tracks which connections subscribed to which broadcast rooms
type RoomMap struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

// NewRoomMap creates an empty RoomMap
func NewRoomMap() *RoomMap {
	return &RoomMap{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Join subscribes a client. It reports whether the client was not yet a member.
func (m *RoomMap) Join(room string, c *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		m.rooms[room] = members
	}
	if _, in := members[c]; in {
		return false
	}
	members[c] = struct{}{}

	rooms, ok := m.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		m.joined[c] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

// Leave unsubscribes a client. It reports whether the client was a member.
func (m *RoomMap) Leave(room string, c *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leave(room, c)
}

func (m *RoomMap) leave(room string, c *Client) bool {
	members, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, in := members[c]; !in {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
	if rooms, ok := m.joined[c]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.joined, c)
		}
	}
	return true
}

// LeaveAll drops every subscription of a client
func (m *RoomMap) LeaveAll(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for room := range m.joined[c] {
		m.leave(room, c)
	}
}

// Members returns a copy of a room's connections
func (m *RoomMap) Members(room string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[room]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// Rooms returns the rooms a client joined
func (m *RoomMap) Rooms(c *Client) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.joined[c]))
	for room := range m.joined[c] {
		out = append(out, room)
	}
	return out
}
