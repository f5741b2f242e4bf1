// internal/game/controller.go
package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/jcallahan/chessrelay/internal/cache"
	"github.com/jcallahan/chessrelay/internal/room"
)

// Controller orchestrates room state transitions: lobby membership,
// game start, move handling with clock debits, game end, and disconnect
// reconciliation. Every method acquires the target room's lock and runs
// the event to completion under it, including all outgoing broadcasts,
// so events for the same room never interleave mid-mutation.
type Controller struct {
	Store   *room.Store
	Clock   clockwork.Clock
	Journal *cache.Journal
	Log     *logrus.Logger
}

// NewController wires a controller against a store with the real clock.
// Tests swap Clock for a clockwork fake to simulate elapsed time.
func NewController(store *room.Store, logger *logrus.Logger, journal *cache.Journal) *Controller {
	return &Controller{
		Store:   store,
		Clock:   clockwork.NewRealClock(),
		Journal: journal,
		Log:     logger,
	}
}

func otherSide(side string) string {
	if side == room.SideWhite {
		return room.SideBlack
	}
	return room.SideWhite
}

// CreateRoom builds a room with the connecting identity as admin,
// subscribes the connection and replies with room_created.
func (c *Controller) CreateRoom(conn *room.Connection) *room.Room {
	r := c.Store.Create(conn.UserID, conn.Name, func(code string) {
		c.Store.Delete(code)
	})

	r.Mu.Lock()
	r.Attach(conn)
	conn.Write(RoomEvent{Type: EventRoomCreated, Room: r.ViewUnsafe()})
	r.Mu.Unlock()

	c.Log.Infof("Room %s created by %s (%s)", r.Code, conn.Name, conn.UserID)
	return r
}

// JoinRoom adds the connecting identity to a room's roster, replies with
// joined_room and broadcasts the updated lobby. Joining an active game
// additionally gets a dedicated resync frame with projected clocks,
// since a (re)connecting client needs the game view, not just the
// roster.
func (c *Controller) JoinRoom(code string, conn *room.Connection) {
	r, ok := c.Store.Get(code)
	if !ok {
		conn.WriteError("Unknown room code")
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	isAdmin := r.JoinUnsafe(conn.UserID, conn.Name)
	r.Attach(conn)
	conn.Write(JoinedRoomEvent{Type: EventJoinedRoom, Room: r.ViewUnsafe(), IsAdmin: isAdmin})
	r.BroadcastUnsafe(RoomEvent{Type: EventUpdateLobby, Room: r.ViewUnsafe()})

	if r.Started {
		white, black := projectedTimesUnsafe(r, c.Clock.Now())
		conn.Write(ResyncEvent{
			Type:      EventGameResync,
			White:     r.Slots.White,
			Black:     r.Slots.Black,
			FEN:       r.BoardState,
			Turn:      r.Turn,
			WhiteTime: white,
			BlackTime: black,
		})
	}
	c.Log.Infof("Room %s: %s (%s) joined", r.Code, conn.Name, conn.UserID)
}

// AssignSlot seats a participant on a side. Admin-only; fails closed.
func (c *Controller) AssignSlot(code string, actingID, targetID uuid.UUID, side string) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.AssignSlotUnsafe(actingID, targetID, side) {
		r.BroadcastUnsafe(RoomEvent{Type: EventUpdateLobby, Room: r.ViewUnsafe()})
	}
}

// UnassignSlot clears a side. Admin-only; fails closed.
func (c *Controller) UnassignSlot(code string, actingID uuid.UUID, side string) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.UnassignSlotUnsafe(actingID, side) {
		r.BroadcastUnsafe(RoomEvent{Type: EventUpdateLobby, Room: r.ViewUnsafe()})
	}
}

// SetShine sets or clears a participant's shine color. Admin-only.
func (c *Controller) SetShine(code string, actingID, targetID uuid.UUID, color *string) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.SetShineUnsafe(actingID, targetID, color) {
		r.BroadcastUnsafe(RoomEvent{Type: EventUpdateLobby, Room: r.ViewUnsafe()})
	}
}

// Kick removes a participant. The target is signaled individually first
// so its client can leave the lobby, then the remaining room is
// re-broadcast. Admin-only.
func (c *Controller) Kick(code string, actingID, targetID uuid.UUID) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	conn, kicked := r.KickUnsafe(actingID, targetID)
	if !kicked {
		return
	}
	if conn != nil {
		conn.Write(KickedEvent{Type: EventKicked, RoomCode: r.Code})
	}
	r.BroadcastUnsafe(RoomEvent{Type: EventUpdateLobby, Room: r.ViewUnsafe()})
	c.Log.Infof("Room %s: %s kicked by admin", r.Code, targetID)
}

// StartGame transitions Lobby -> Active: resets both clocks to the
// starting allowance, sets turn to white and stamps the event time.
// Requires both slots filled, surfaced to the requester as an error
// otherwise. Non-admin requests fail closed.
func (c *Controller) StartGame(code string, actingID uuid.UUID) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if actingID != r.AdminID {
		return
	}
	requester := r.Connections[actingID]
	if r.Started {
		if requester != nil {
			requester.WriteError("Game already in progress")
		}
		return
	}
	if r.Slots.White == nil || r.Slots.Black == nil {
		if requester != nil {
			requester.WriteError("Both player slots must be filled to start")
		}
		return
	}

	r.Started = true
	r.WhiteTime = room.DefaultAllowanceSeconds
	r.BlackTime = room.DefaultAllowanceSeconds
	r.Turn = room.SideWhite
	r.LastEvent = c.Clock.Now()

	r.BroadcastUnsafe(RoomEvent{Type: EventGameStarted, Room: r.ViewUnsafe()})
	c.Log.Infof("Room %s: game started (%s vs %s)", r.Code, r.Slots.White.Name, r.Slots.Black.Name)
}

// MakeMove handles a turn-consuming event: debit the mover's clock,
// flip the turn, replace the board state with the client-supplied value
// (trusted, unvalidated) and broadcast the move with both clocks to all
// participants including the sender. Moves from anyone but the
// slot-holder whose side matches the current turn are dropped silently,
// which tolerates duplicate and late client sends. If the debit
// exhausts the mover's clock the game ends by timeout instead; the move
// is not applied.
func (c *Controller) MakeMove(code string, senderID uuid.UUID, move, fen string) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.Started {
		return
	}
	if r.SlotOfUnsafe(senderID) != r.Turn {
		return
	}

	now := c.Clock.Now()
	debitElapsedUnsafe(r, now)
	if loser, out := timedOutSideUnsafe(r); out {
		winner := otherSide(loser)
		c.endGameUnsafe(r, GameOverEvent{
			Reason:  ReasonTimeout,
			Winner:  winner,
			Message: fmt.Sprintf("%s wins on time", winner),
		})
		return
	}

	r.Turn = otherSide(r.Turn)
	r.BoardState = fen
	r.LastEvent = now

	r.BroadcastUnsafe(MoveMadeEvent{
		Type:      EventMoveMade,
		By:        senderID,
		Move:      move,
		FEN:       fen,
		Turn:      r.Turn,
		WhiteTime: r.WhiteTime,
		BlackTime: r.BlackTime,
	})
	c.publish(cache.MoveRecord{
		RoomCode:  r.Code,
		ActorID:   senderID,
		EventType: "move",
		Move:      move,
		FEN:       fen,
	})
}

// Resign ends the game with the non-resigning slot-holder as winner.
// Requires both slots occupied; a resignation against an empty opposing
// slot is rejected rather than left undefined.
func (c *Controller) Resign(code string, senderID uuid.UUID) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.Started || r.Slots.White == nil || r.Slots.Black == nil {
		return
	}
	side := r.SlotOfUnsafe(senderID)
	if side == "" {
		return
	}
	winner := otherSide(side)
	c.endGameUnsafe(r, GameOverEvent{
		Reason:  ReasonResignation,
		Winner:  winner,
		Message: fmt.Sprintf("%s wins by resignation", winner),
	})
}

// ClaimGameOver relays a client-detected terminal position (checkmate,
// stalemate, draw). The server trusts the claimed verdict and merely
// broadcasts it authoritatively.
func (c *Controller) ClaimGameOver(code string, senderID uuid.UUID, reason, winner, message, fen, lastMove string) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.Started || r.ParticipantUnsafe(senderID) == nil {
		return
	}
	c.endGameUnsafe(r, GameOverEvent{
		Reason:   reason,
		Winner:   winner,
		Message:  message,
		FEN:      fen,
		LastMove: lastMove,
	})
}

// OfferDraw relays a draw offer to the opponent only, never back to the
// offering sender. The handler completes immediately; the "wait" for a
// response lives purely in the protocol.
func (c *Controller) OfferDraw(code string, senderID uuid.UUID) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.Started {
		return
	}
	side := r.SlotOfUnsafe(senderID)
	if side == "" {
		return
	}
	var opponent *room.SlotPlayer
	if side == room.SideWhite {
		opponent = r.Slots.Black
	} else {
		opponent = r.Slots.White
	}
	if opponent == nil {
		return
	}
	r.BroadcastToUnsafe(opponent.ID, DrawOfferedEvent{Type: EventDrawOffered, From: senderID})
}

// RejectDraw broadcasts the rejection to the room; clients filter out
// their own offer by identity.
func (c *Controller) RejectDraw(code string, senderID uuid.UUID) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.Started || r.SlotOfUnsafe(senderID) == "" {
		return
	}
	r.BroadcastUnsafe(DrawRejectedEvent{Type: EventDrawRejected, By: senderID})
}

// AcceptDraw ends the game as a mutual draw.
func (c *Controller) AcceptDraw(code string, senderID uuid.UUID) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.Started || r.Slots.White == nil || r.Slots.Black == nil {
		return
	}
	if r.SlotOfUnsafe(senderID) == "" {
		return
	}
	c.endGameUnsafe(r, GameOverEvent{
		Reason:  ReasonDrawAgreed,
		Message: "draw agreed",
	})
}

// Chat relays a chat line to the room with the sender's display name
// and admin flag.
func (c *Controller) Chat(code string, senderID uuid.UUID, message string) {
	r, ok := c.Store.Get(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.ParticipantUnsafe(senderID)
	if p == nil || message == "" {
		return
	}
	r.BroadcastUnsafe(ChatEvent{
		Type:    EventReceiveChat,
		From:    senderID,
		Name:    p.Name,
		IsAdmin: senderID == r.AdminID,
		Message: message,
		TS:      c.Clock.Now().Unix(),
	})
}

// Disconnect reconciles a lost connection against every room the
// identity belongs to. Admin loss tears the room down; a regular
// participant is pruned and its slot vacated. A game left Started with
// a vacated slot is not forfeited automatically.
func (c *Controller) Disconnect(userID uuid.UUID) {
	for _, r := range c.Store.Rooms() {
		r.Mu.Lock()
		if r.ParticipantUnsafe(userID) == nil {
			r.Mu.Unlock()
			continue
		}

		if userID == r.AdminID {
			r.BroadcastUnsafe(RoomClosedEvent{Type: EventRoomClosed, RoomCode: r.Code})
			code := r.Code
			r.Mu.Unlock()
			c.Store.Delete(code)
			c.Log.Infof("Room %s: admin %s disconnected, room closed", code, userID)
			continue
		}

		_, empty := r.RemoveParticipantUnsafe(userID)
		if empty {
			code := r.Code
			onEmpty := r.OnEmpty
			r.Mu.Unlock()
			if onEmpty != nil {
				onEmpty(code)
			}
			c.Log.Infof("Room %s: last participant left, room removed", code)
			continue
		}
		r.BroadcastUnsafe(RoomEvent{Type: EventUpdateLobby, Room: r.ViewUnsafe()})
		r.Mu.Unlock()
		c.Log.Infof("Room %s: participant %s disconnected", r.Code, userID)
	}
}

// endGameUnsafe performs the Active -> Ended transition: Started goes
// false, a game_over frame goes out, then a follow-up full-room
// broadcast so late-joining observers see consistent state. Assumes the
// room lock is held.
func (c *Controller) endGameUnsafe(r *room.Room, ev GameOverEvent) {
	ev.Type = EventGameOver
	if ev.FEN == "" {
		ev.FEN = r.BoardState
	}
	r.Started = false
	clampClocksUnsafe(r)

	r.BroadcastUnsafe(ev)
	r.BroadcastUnsafe(RoomEvent{Type: EventUpdateLobby, Room: r.ViewUnsafe()})

	c.publish(cache.MoveRecord{
		RoomCode:  r.Code,
		EventType: "game_over",
		Detail:    ev.Reason,
		FEN:       ev.FEN,
	})
	c.Log.Infof("Room %s: game over (%s), winner %q", r.Code, ev.Reason, ev.Winner)
}

// publish pushes a record to the move journal without blocking the
// event handler. Dropped with a warning if the journal is unreachable.
func (c *Controller) publish(rec cache.MoveRecord) {
	if c.Journal == nil {
		return
	}
	rec.Timestamp = c.Clock.Now().Unix()
	go func() {
		if err := c.Journal.Publish(context.Background(), rec); err != nil {
			c.Log.Warnf("journal publish failed: %v", err)
		}
	}()
}
