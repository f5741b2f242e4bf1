// internal/room/room.go
package room

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// The two playable sides of a room.
const (
	SideWhite = "white"
	SideBlack = "black"
)

// Participant is one member of a room's roster. ShineColor is a cosmetic
// flag only the admin may set; nil means unset.
type Participant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	ShineColor *string   `json:"shineColor,omitempty"`
}

// SlotPlayer is the value copy placed into a side slot at assignment time.
// It is a snapshot: a later rename of the participant does not update it.
type SlotPlayer struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Slots holds the two playable roles. A nil entry means the slot is empty.
type Slots struct {
	White *SlotPlayer `json:"white"`
	Black *SlotPlayer `json:"black"`
}

// Room is the isolation unit for one lobby/match. All fields are guarded
// by Mu; every inbound event for a room runs to completion under it, so
// no two handlers for the same room interleave mid-mutation.
type Room struct {
	Code         string
	AdminID      uuid.UUID
	Participants []*Participant
	Slots        Slots

	Started    bool
	BoardState string // opaque FEN handed verbatim between clients
	Turn       string
	WhiteTime  float64 // seconds remaining
	BlackTime  float64
	LastEvent  time.Time // zero until the game has started

	// Connections holds the live subscribers of this room's channel.
	Connections map[uuid.UUID]*Connection

	// OnEmpty is called after the last participant leaves. Installed by
	// Store.Create before the room is published, never mutated after.
	OnEmpty func(code string)

	Mu sync.Mutex
}

// Connection is a single participant's presence in a room.
type Connection struct {
	UserID  uuid.UUID
	Name    string
	Cancel  func()
	OutChan chan interface{}
}

// Write pushes a message onto the connection's OutChan non-blockingly.
// Logs if the channel is closed or full and the message is dropped.
func (conn *Connection) Write(msg interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		log.Printf("Connection Write WARNING: OutChan for user %s closed or full. Dropped message.", conn.UserID)
	}
}

// WriteError is a convenience to send a user-facing error frame.
func (conn *Connection) WriteError(msg string) {
	conn.Write(map[string]interface{}{
		"type":    "error_message",
		"message": msg,
	})
}

// View is the full room snapshot sent to clients. Every state-bearing
// broadcast transmits the whole view, never a diff.
type View struct {
	Code         string         `json:"roomCode"`
	AdminID      uuid.UUID      `json:"adminId"`
	Participants []*Participant `json:"participants"`
	Slots        Slots          `json:"slots"`
	Started      bool           `json:"started"`
	BoardState   string         `json:"fen"`
	Turn         string         `json:"turn"`
	WhiteTime    float64        `json:"whiteTime"`
	BlackTime    float64        `json:"blackTime"`
}

// ViewUnsafe builds the snapshot payload. Assumes lock is held.
func (r *Room) ViewUnsafe() View {
	parts := make([]*Participant, len(r.Participants))
	copy(parts, r.Participants)
	return View{
		Code:         r.Code,
		AdminID:      r.AdminID,
		Participants: parts,
		Slots:        r.Slots,
		Started:      r.Started,
		BoardState:   r.BoardState,
		Turn:         r.Turn,
		WhiteTime:    r.WhiteTime,
		BlackTime:    r.BlackTime,
	}
}

// Attach registers a live connection as a subscriber of the room channel.
// Assumes lock is held.
func (r *Room) Attach(conn *Connection) {
	if old, ok := r.Connections[conn.UserID]; ok && old != conn {
		// Replacing a stale connection (reconnect). Close out the old one.
		close(old.OutChan)
		if old.Cancel != nil {
			old.Cancel()
		}
	}
	r.Connections[conn.UserID] = conn
}

// Detach drops a connection from the room channel without touching the
// roster. Assumes lock is held.
func (r *Room) Detach(userID uuid.UUID) {
	delete(r.Connections, userID)
}

// BroadcastUnsafe sends msg to every subscriber of the room's channel.
// Assumes lock is held; Write is non-blocking so this never stalls.
func (r *Room) BroadcastUnsafe(msg interface{}) {
	for _, conn := range r.Connections {
		conn.Write(msg)
	}
}

// BroadcastToUnsafe sends msg to a single subscriber, if connected.
// Assumes lock is held.
func (r *Room) BroadcastToUnsafe(userID uuid.UUID, msg interface{}) {
	if conn, ok := r.Connections[userID]; ok {
		conn.Write(msg)
	}
}
