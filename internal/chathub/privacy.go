package chathub

import (
	"sync"

	"roomrelay/backend/internal/storage"
)

// PrivateRoomSet holds the codes of rooms their host marked private.
// It lives only in process memory: empty at boot, discarded at shutdown.
type PrivateRoomSet struct {
	mu    sync.RWMutex
	rooms map[string]struct{}
}

func NewPrivateRoomSet() *PrivateRoomSet {
	return &PrivateRoomSet{rooms: make(map[string]struct{})}
}

func (p *PrivateRoomSet) Add(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[storage.NormalizeCode(code)] = struct{}{}
}

func (p *PrivateRoomSet) Remove(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, storage.NormalizeCode(code))
}

// Contains is case-insensitive.
func (p *PrivateRoomSet) Contains(code string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rooms[storage.NormalizeCode(code)]
	return ok
}

func (p *PrivateRoomSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms)
}

// Reset forgets every private room.
func (p *PrivateRoomSet) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms = make(map[string]struct{})
}
