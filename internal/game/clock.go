// internal/game/clock.go
package game

import (
	"time"

	"github.com/jcallahan/chessrelay/internal/room"
)

// The clock authority: the server is the single source of truth for
// remaining time. Elapsed wall-clock time since the last state-changing
// event is debited from the side whose turn is active; the other side's
// clock is frozen. All helpers assume the room lock is held.

// debitElapsedUnsafe subtracts time elapsed since the room's last
// state-changing event from the side currently to move.
func debitElapsedUnsafe(r *room.Room, now time.Time) {
	elapsed := now.Sub(r.LastEvent).Seconds()
	if r.Turn == room.SideWhite {
		r.WhiteTime -= elapsed
	} else {
		r.BlackTime -= elapsed
	}
}

// timedOutSideUnsafe reports the side whose clock has expired, if any.
// White is checked first: if both clocks somehow hit zero in the same
// debit, white's expiry determines the reported winner.
func timedOutSideUnsafe(r *room.Room) (loser string, ok bool) {
	if r.WhiteTime <= 0 {
		return room.SideWhite, true
	}
	if r.BlackTime <= 0 {
		return room.SideBlack, true
	}
	return "", false
}

// clampClocksUnsafe floors both clocks at zero. Applied once a timeout
// is reported so negative remainders never reach clients.
func clampClocksUnsafe(r *room.Room) {
	if r.WhiteTime < 0 {
		r.WhiteTime = 0
	}
	if r.BlackTime < 0 {
		r.BlackTime = 0
	}
}

// projectedTimesUnsafe computes display-only clock estimates for a
// client joining an active game: the active side's stored time minus
// the time elapsed since the last event, floored at zero. Stored clocks
// are not mutated.
func projectedTimesUnsafe(r *room.Room, now time.Time) (white, black float64) {
	white, black = r.WhiteTime, r.BlackTime
	if !r.Started || r.LastEvent.IsZero() {
		return white, black
	}
	elapsed := now.Sub(r.LastEvent).Seconds()
	if r.Turn == room.SideWhite {
		white -= elapsed
	} else {
		black -= elapsed
	}
	if white < 0 {
		white = 0
	}
	if black < 0 {
		black = 0
	}
	return white, black
}
