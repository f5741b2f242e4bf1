// internal/game/controller_test.go
package game

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcallahan/chessrelay/internal/room"
)

func newTestController() (*Controller, *clockwork.FakeClock) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c := NewController(room.NewStore(), logger, nil)
	fc := clockwork.NewFakeClock()
	c.Clock = fc
	return c, fc
}

func newConn(name string) *room.Connection {
	return &room.Connection{
		UserID:  uuid.New(),
		Name:    name,
		OutChan: make(chan interface{}, 64),
	}
}

// drain empties a connection's out-channel and returns what was queued.
func drain(conn *room.Connection) []interface{} {
	var out []interface{}
	for {
		select {
		case ev := <-conn.OutChan:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func lastOfType[T any](evs []interface{}) (T, bool) {
	var found T
	ok := false
	for _, ev := range evs {
		if v, isT := ev.(T); isT {
			found, ok = v, true
		}
	}
	return found, ok
}

func hasErrorFrame(evs []interface{}) bool {
	for _, ev := range evs {
		if m, ok := ev.(map[string]interface{}); ok && m["type"] == "error_message" {
			return true
		}
	}
	return false
}

// setupLobby creates a room with an admin and one joined guest and
// drains the setup traffic.
func setupLobby(t *testing.T) (*Controller, *clockwork.FakeClock, *room.Room, *room.Connection, *room.Connection) {
	t.Helper()
	c, fc := newTestController()
	admin := newConn("Alice")
	r := c.CreateRoom(admin)
	require.NotNil(t, r)

	guest := newConn("Bob")
	c.JoinRoom(r.Code, guest)

	drain(admin)
	drain(guest)
	return c, fc, r, admin, guest
}

// setupActiveGame seats admin as white and guest as black and starts
// the game.
func setupActiveGame(t *testing.T) (*Controller, *clockwork.FakeClock, *room.Room, *room.Connection, *room.Connection) {
	t.Helper()
	c, fc, r, admin, guest := setupLobby(t)
	c.AssignSlot(r.Code, admin.UserID, admin.UserID, room.SideWhite)
	c.AssignSlot(r.Code, admin.UserID, guest.UserID, room.SideBlack)
	c.StartGame(r.Code, admin.UserID)
	require.True(t, r.Started, "game should be started")
	drain(admin)
	drain(guest)
	return c, fc, r, admin, guest
}

func TestStartGameResetsClocksAndTurn(t *testing.T) {
	c, fc, r, admin, guest := setupLobby(t)

	// Mangle prior clock state to prove start resets unconditionally.
	r.Mu.Lock()
	r.WhiteTime = 5
	r.BlackTime = 7
	r.Turn = room.SideBlack
	r.Mu.Unlock()

	c.AssignSlot(r.Code, admin.UserID, admin.UserID, room.SideWhite)
	c.AssignSlot(r.Code, admin.UserID, guest.UserID, room.SideBlack)
	c.StartGame(r.Code, admin.UserID)

	require.True(t, r.Started)
	assert.Equal(t, float64(room.DefaultAllowanceSeconds), r.WhiteTime)
	assert.Equal(t, float64(room.DefaultAllowanceSeconds), r.BlackTime)
	assert.Equal(t, room.SideWhite, r.Turn)
	assert.Equal(t, fc.Now(), r.LastEvent)

	started, ok := lastOfType[RoomEvent](drain(guest))
	require.True(t, ok, "guest should receive the game_started broadcast")
	assert.Equal(t, EventGameStarted, started.Type)
	assert.Equal(t, float64(600), started.Room.WhiteTime)
}

func TestStartGameRequiresBothSlots(t *testing.T) {
	c, _, r, admin, _ := setupLobby(t)

	c.AssignSlot(r.Code, admin.UserID, admin.UserID, room.SideWhite)
	c.StartGame(r.Code, admin.UserID)

	assert.False(t, r.Started, "room should stay in lobby")
	assert.True(t, hasErrorFrame(drain(admin)), "requester should get an error_message")
}

func TestStartGameNonAdminFailsClosed(t *testing.T) {
	c, _, r, admin, guest := setupLobby(t)
	c.AssignSlot(r.Code, admin.UserID, admin.UserID, room.SideWhite)
	c.AssignSlot(r.Code, admin.UserID, guest.UserID, room.SideBlack)
	drain(guest)

	c.StartGame(r.Code, guest.UserID)

	assert.False(t, r.Started)
	assert.Empty(t, drain(guest), "privilege failures are silent by design")
}

func TestMoveDebitsOneClockAndFlipsTurn(t *testing.T) {
	c, fc, r, admin, guest := setupActiveGame(t)

	fc.Advance(10 * time.Second)
	c.MakeMove(r.Code, admin.UserID, "e2e4", "fen-after-e4")

	assert.InDelta(t, 590, r.WhiteTime, 0.001, "white should be debited the elapsed time")
	assert.Equal(t, float64(600), r.BlackTime, "black's clock is frozen")
	assert.Equal(t, room.SideBlack, r.Turn)
	assert.Equal(t, "fen-after-e4", r.BoardState)
	assert.Equal(t, fc.Now(), r.LastEvent)

	// Everyone gets the move, sender included, with both clocks.
	for _, conn := range []*room.Connection{admin, guest} {
		mv, ok := lastOfType[MoveMadeEvent](drain(conn))
		require.True(t, ok)
		assert.Equal(t, admin.UserID, mv.By)
		assert.Equal(t, "e2e4", mv.Move)
		assert.Equal(t, room.SideBlack, mv.Turn)
		assert.InDelta(t, 590, mv.WhiteTime, 0.001)
		assert.Equal(t, float64(600), mv.BlackTime)
	}
}

func TestOutOfTurnMoveDroppedSilently(t *testing.T) {
	c, fc, r, admin, guest := setupActiveGame(t)

	fc.Advance(3 * time.Second)
	c.MakeMove(r.Code, guest.UserID, "e7e5", "bogus-fen") // black, but it's white's turn

	assert.Equal(t, room.SideWhite, r.Turn)
	assert.Equal(t, float64(600), r.WhiteTime)
	assert.Equal(t, float64(600), r.BlackTime)
	assert.Empty(t, r.BoardState)
	assert.Empty(t, drain(admin), "dropped moves never broadcast")
	assert.Empty(t, drain(guest))
}

func TestMoveTimeoutEndsGame(t *testing.T) {
	c, fc, r, admin, guest := setupActiveGame(t)

	r.Mu.Lock()
	r.Turn = room.SideBlack
	r.BlackTime = 0.5
	r.LastEvent = fc.Now()
	r.Mu.Unlock()

	fc.Advance(1 * time.Second)
	c.MakeMove(r.Code, guest.UserID, "e7e5", "fen-late")

	assert.False(t, r.Started)
	assert.Equal(t, float64(0), r.BlackTime, "expired clock is clamped at zero")

	over, ok := lastOfType[GameOverEvent](drain(admin))
	require.True(t, ok)
	assert.Equal(t, ReasonTimeout, over.Reason)
	assert.Equal(t, room.SideWhite, over.Winner)

	// The losing move is not applied.
	assert.NotEqual(t, "fen-late", r.BoardState)

	// Follow-up full-room broadcast accompanies every game_over.
	lobby, ok := lastOfType[RoomEvent](drain(guest))
	require.True(t, ok)
	assert.Equal(t, EventUpdateLobby, lobby.Type)
	assert.False(t, lobby.Room.Started)
}

func TestSimultaneousExpiryWhiteTakesPrecedence(t *testing.T) {
	c, fc, r, admin, _ := setupActiveGame(t)

	r.Mu.Lock()
	r.WhiteTime = 0.3
	r.BlackTime = 0 // already exhausted but unreported
	r.LastEvent = fc.Now()
	r.Mu.Unlock()

	fc.Advance(1 * time.Second)
	c.MakeMove(r.Code, admin.UserID, "a2a3", "fen")

	over, ok := lastOfType[GameOverEvent](drain(admin))
	require.True(t, ok)
	assert.Equal(t, ReasonTimeout, over.Reason)
	assert.Equal(t, room.SideBlack, over.Winner, "white's expiry is checked first")
}

func TestResign(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)

	c.Resign(r.Code, guest.UserID) // black resigns

	assert.False(t, r.Started)
	over, ok := lastOfType[GameOverEvent](drain(admin))
	require.True(t, ok)
	assert.Equal(t, ReasonResignation, over.Reason)
	assert.Equal(t, room.SideWhite, over.Winner)
}

func TestResignAgainstVacatedSlotRejected(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)

	// Black disconnects mid-game; the slot is vacated but the game is
	// deliberately left running (no auto-forfeit).
	c.Disconnect(guest.UserID)
	require.True(t, r.Started)
	require.Nil(t, r.Slots.Black)
	drain(admin)

	c.Resign(r.Code, admin.UserID)

	assert.True(t, r.Started, "resigning with an empty opposing slot is rejected")
	assert.Empty(t, drain(admin))
}

func TestDrawOfferRelayedToOpponentOnly(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)

	c.OfferDraw(r.Code, admin.UserID)

	offered, ok := lastOfType[DrawOfferedEvent](drain(guest))
	require.True(t, ok)
	assert.Equal(t, admin.UserID, offered.From)
	assert.Empty(t, drain(admin), "the offering sender must not see its own offer")
}

func TestDrawRejectBroadcast(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)

	c.OfferDraw(r.Code, admin.UserID)
	drain(guest)
	c.RejectDraw(r.Code, guest.UserID)

	for _, conn := range []*room.Connection{admin, guest} {
		rej, ok := lastOfType[DrawRejectedEvent](drain(conn))
		require.True(t, ok)
		assert.Equal(t, guest.UserID, rej.By)
	}
	assert.True(t, r.Started, "a rejected draw does not end the game")
}

func TestDrawAcceptEndsGame(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)

	c.OfferDraw(r.Code, admin.UserID)
	drain(guest)
	c.AcceptDraw(r.Code, guest.UserID)

	assert.False(t, r.Started)
	over, ok := lastOfType[GameOverEvent](drain(admin))
	require.True(t, ok)
	assert.Equal(t, ReasonDrawAgreed, over.Reason)
	assert.Empty(t, over.Winner)
}

func TestClaimGameOverRelayedVerbatim(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)

	c.ClaimGameOver(r.Code, guest.UserID, "Checkmate", room.SideBlack, "black wins by checkmate", "final-fen", "d8h4")

	assert.False(t, r.Started)
	over, ok := lastOfType[GameOverEvent](drain(admin))
	require.True(t, ok)
	assert.Equal(t, "Checkmate", over.Reason)
	assert.Equal(t, room.SideBlack, over.Winner)
	assert.Equal(t, "final-fen", over.FEN)
	assert.Equal(t, "d8h4", over.LastMove)
}

func TestRestartAfterGameOver(t *testing.T) {
	c, _, r, admin, _ := setupActiveGame(t)

	c.Resign(r.Code, admin.UserID)
	require.False(t, r.Started)
	drain(admin)

	c.StartGame(r.Code, admin.UserID)

	assert.True(t, r.Started, "an ended room can be started again")
	assert.Equal(t, float64(600), r.WhiteTime)
	assert.Equal(t, room.SideWhite, r.Turn)
}

func TestAdminDisconnectClosesRoom(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)

	c.Disconnect(admin.UserID)

	closed, ok := lastOfType[RoomClosedEvent](drain(guest))
	require.True(t, ok)
	assert.Equal(t, r.Code, closed.RoomCode)
	_, exists := c.Store.Get(r.Code)
	assert.False(t, exists, "the room cannot survive admin loss")
}

func TestParticipantDisconnectPrunes(t *testing.T) {
	c, _, r, admin, guest := setupActiveGame(t)
	spectator := newConn("Carol")
	c.JoinRoom(r.Code, spectator)
	drain(admin)
	drain(spectator)

	c.Disconnect(guest.UserID)

	require.Len(t, r.Participants, 2)
	assert.Nil(t, r.Slots.Black, "vacated slot")
	assert.NotNil(t, r.Slots.White, "other slot untouched")
	assert.True(t, r.Started, "no automatic forfeit on disconnect")

	lobby, ok := lastOfType[RoomEvent](drain(admin))
	require.True(t, ok)
	assert.Equal(t, EventUpdateLobby, lobby.Type)
	_, exists := c.Store.Get(r.Code)
	assert.True(t, exists, "room survives a non-admin loss")
}

func TestReconnectResyncProjectsClocks(t *testing.T) {
	c, fc, r, _, guest := setupActiveGame(t)

	fc.Advance(30 * time.Second) // white is burning time

	reconn := &room.Connection{UserID: guest.UserID, Name: "Bob", OutChan: make(chan interface{}, 64)}
	c.JoinRoom(r.Code, reconn)

	evs := drain(reconn)
	resync, ok := lastOfType[ResyncEvent](evs)
	require.True(t, ok, "reconnecting into an active game yields a resync frame")
	assert.InDelta(t, 570, resync.WhiteTime, 0.001)
	assert.Equal(t, float64(600), resync.BlackTime)
	assert.Equal(t, room.SideWhite, resync.Turn)
	require.NotNil(t, resync.White)
	require.NotNil(t, resync.Black)
	assert.Equal(t, guest.UserID, resync.Black.ID)

	// Projection is display-only: stored clocks are untouched.
	assert.Equal(t, float64(600), r.WhiteTime)
	assert.Len(t, r.Participants, 2, "rejoin must not duplicate the roster entry")
}

func TestKickSignalsTargetThenRebroadcasts(t *testing.T) {
	c, _, r, admin, guest := setupLobby(t)

	c.Kick(r.Code, admin.UserID, guest.UserID)

	kicked, ok := lastOfType[KickedEvent](drain(guest))
	require.True(t, ok)
	assert.Equal(t, r.Code, kicked.RoomCode)
	require.Len(t, r.Participants, 1)

	lobby, ok := lastOfType[RoomEvent](drain(admin))
	require.True(t, ok)
	assert.Equal(t, EventUpdateLobby, lobby.Type)
	assert.Len(t, lobby.Room.Participants, 1)
}

func TestChatCarriesNameAndAdminFlag(t *testing.T) {
	c, _, r, admin, guest := setupLobby(t)

	c.Chat(r.Code, admin.UserID, "good luck")

	chat, ok := lastOfType[ChatEvent](drain(guest))
	require.True(t, ok)
	assert.Equal(t, "Alice", chat.Name)
	assert.True(t, chat.IsAdmin)
	assert.Equal(t, "good luck", chat.Message)

	drain(admin)
	c.Chat(r.Code, guest.UserID, "you too")
	chat, ok = lastOfType[ChatEvent](drain(admin))
	require.True(t, ok)
	assert.False(t, chat.IsAdmin)
}

func TestJoinUnknownRoomCode(t *testing.T) {
	c, _ := newTestController()
	conn := newConn("Dana")

	c.JoinRoom("000000", conn)

	assert.True(t, hasErrorFrame(drain(conn)))
}
