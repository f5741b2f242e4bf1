// internal/room/store.go
package room

import (
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// DefaultAllowanceSeconds is the starting clock allowance per side.
const DefaultAllowanceSeconds = 600

// Store manages active rooms in memory. It is the sole owner of all Room
// objects; everything is lost on process exit.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewStore initializes and returns an empty Store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
	}
}

// Create builds a room with a fresh 6-digit code, the creator installed
// as admin and first participant, and default-initialized slots, clocks
// and turn. The onEmpty callback is installed before the room becomes
// reachable through the store, so concurrent lookups never observe it
// half-set. Codes are not checked for uniqueness: a collision silently
// overwrites the older room. The probability is tiny and the domain
// non-critical; callers wanting stronger guarantees should retry against
// Get before creating.
func (s *Store) Create(adminID uuid.UUID, adminName string, onEmpty func(code string)) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := fmt.Sprintf("%06d", rand.Intn(1000000))
	r := &Room{
		Code:    code,
		AdminID: adminID,
		Participants: []*Participant{
			{ID: adminID, Name: adminName},
		},
		Turn:        SideWhite,
		WhiteTime:   DefaultAllowanceSeconds,
		BlackTime:   DefaultAllowanceSeconds,
		Connections: make(map[uuid.UUID]*Connection),
		OnEmpty:     onEmpty,
	}
	if _, exists := s.rooms[code]; exists {
		log.Printf("Store WARNING: room code %s collided, overwriting existing room.", code)
	}
	s.rooms[code] = r
	return r
}

// Get retrieves a room by code.
func (s *Store) Get(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	return r, ok
}

// Delete removes a room from the store by code.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

// Rooms returns a snapshot slice of all active rooms. Used by the
// disconnect scan, which must iterate without holding the store lock
// while taking per-room locks.
func (s *Store) Rooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}
