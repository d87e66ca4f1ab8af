package chathub

import (
	"sync"

	"roomrelay/backend/internal/models"
)

// Session is the transient per-connection state established by a
// successful join. It is never persisted.
type Session struct {
	Token    string
	IsHost   bool
	Room     string
	Language string
	// Ciphertext is the identity ciphertext used to delete the membership on leave.
	Ciphertext string
	Identity   models.IdentityRecord
}

// Registry tracks live connections, their sessions and which connections
// are joined to which room.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client
	sessions map[string]Session
	rooms    map[string]map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[string]Client),
		sessions: make(map[string]Session),
		rooms:    make(map[string]map[string]Client),
	}
}

// Connect records a new connection and returns its handle.
func (r *Registry) Connect(c Client) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.GetID()] = c
	return c.GetID()
}

// Attach binds a session to the connection and adds it to the room index.
// A previous session on the same connection is replaced.
func (r *Registry) Attach(c Client, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := c.GetID()
	r.clients[handle] = c
	if prev, ok := r.sessions[handle]; ok && prev.Room != s.Room {
		r.removeFromRoom(prev.Room, handle)
	}
	r.sessions[handle] = s
	if r.rooms[s.Room] == nil {
		r.rooms[s.Room] = make(map[string]Client)
	}
	r.rooms[s.Room][handle] = c
}

func (r *Registry) Get(handle string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[handle]
	return s, ok
}

// Detach removes the session but keeps the connection registered.
func (r *Registry) Detach(handle string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detach(handle)
}

// Disconnect forgets the connection and returns the session it held, if any.
func (r *Registry) Disconnect(handle string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, handle)
	return r.detach(handle)
}

func (r *Registry) detach(handle string) (Session, bool) {
	s, ok := r.sessions[handle]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, handle)
	r.removeFromRoom(s.Room, handle)
	return s, true
}

func (r *Registry) removeFromRoom(room, handle string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, handle)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// RoomClients returns the connections currently joined to room.
func (r *Registry) RoomClients(room string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.rooms[room]))
	for _, c := range r.rooms[room] {
		out = append(out, c)
	}
	return out
}

// FindByToken returns one connection in room whose session carries token.
func (r *Registry) FindByToken(room, token string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for handle, c := range r.rooms[room] {
		if r.sessions[handle].Token == token {
			return c, true
		}
	}
	return nil, false
}

// Clients returns every registered connection.
func (r *Registry) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
