// internal/game/events.go
package game

import (
	"github.com/google/uuid"

	"github.com/jcallahan/chessrelay/internal/room"
)

// Outbound frame types. Every frame carries a "type" discriminator; the
// state-bearing ones embed the full room snapshot rather than a diff.
const (
	EventWelcome      = "welcome"
	EventRoomCreated  = "room_created"
	EventJoinedRoom   = "joined_room"
	EventUpdateLobby  = "update_lobby"
	EventGameStarted  = "game_started"
	EventMoveMade     = "move_made"
	EventGameOver     = "game_over"
	EventDrawOffered  = "draw_offered"
	EventDrawRejected = "draw_rejected"
	EventReceiveChat  = "receive_chat"
	EventKicked       = "kicked"
	EventRoomClosed   = "room_closed"
	EventGameResync   = "game_resync"
)

// Game-over reasons the server reports itself. Client-claimed verdicts
// (checkmate, stalemate, material draws) arrive via claim_game_over and
// are relayed verbatim.
const (
	ReasonTimeout     = "Timeout"
	ReasonResignation = "Resignation"
	ReasonDrawAgreed  = "DrawAgreed"
)

// WelcomeEvent tells a freshly accepted client its connection identity.
type WelcomeEvent struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// RoomEvent carries a full room snapshot. Used for room_created,
// update_lobby and game_started frames.
type RoomEvent struct {
	Type string    `json:"type"`
	Room room.View `json:"room"`
}

// JoinedRoomEvent is the private reply to a successful join.
type JoinedRoomEvent struct {
	Type    string    `json:"type"`
	Room    room.View `json:"room"`
	IsAdmin bool      `json:"isAdmin"`
}

// MoveMadeEvent relays an accepted move together with both updated
// clocks, so every client's timer display tracks the one authoritative
// source instead of its own drifted countdown.
type MoveMadeEvent struct {
	Type      string    `json:"type"`
	By        uuid.UUID `json:"by"`
	Move      string    `json:"move"`
	FEN       string    `json:"fen"`
	Turn      string    `json:"turn"`
	WhiteTime float64   `json:"whiteTime"`
	BlackTime float64   `json:"blackTime"`
}

// GameOverEvent announces an Active -> Ended transition.
type GameOverEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	Winner   string `json:"winner,omitempty"` // side token, empty on draws
	Message  string `json:"message"`
	FEN      string `json:"fen,omitempty"`
	LastMove string `json:"lastMove,omitempty"`
}

// DrawOfferedEvent is relayed to the opponent only, never echoed to the
// offering side.
type DrawOfferedEvent struct {
	Type string    `json:"type"`
	From uuid.UUID `json:"from"`
}

// DrawRejectedEvent is broadcast to the room; clients filter out their
// own offer by identity.
type DrawRejectedEvent struct {
	Type string    `json:"type"`
	By   uuid.UUID `json:"by"`
}

// ChatEvent relays a chat line with the sender's name and admin flag.
type ChatEvent struct {
	Type    string    `json:"type"`
	From    uuid.UUID `json:"from"`
	Name    string    `json:"name"`
	IsAdmin bool      `json:"isAdmin"`
	Message string    `json:"message"`
	TS      int64     `json:"ts"`
}

// KickedEvent is sent individually to a removed participant before the
// remaining room is re-broadcast.
type KickedEvent struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
}

// RoomClosedEvent notifies participants that the room is gone.
type RoomClosedEvent struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
}

// ResyncEvent gives a client joining an active game the game view:
// slot identities, board, projected clocks and whose turn it is. The
// clock values here are display-only projections; stored state is not
// mutated to produce them.
type ResyncEvent struct {
	Type      string           `json:"type"`
	White     *room.SlotPlayer `json:"white"`
	Black     *room.SlotPlayer `json:"black"`
	FEN       string           `json:"fen"`
	Turn      string           `json:"turn"`
	WhiteTime float64          `json:"whiteTime"`
	BlackTime float64          `json:"blackTime"`
}
