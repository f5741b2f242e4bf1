// internal/room/membership.go
package room

import (
	"github.com/google/uuid"
)

// All methods here assume the room lock is held by the caller. Privileged
// operations (slot assignment, shine, kick) are admin-gated and fail
// closed with no notification, so non-admins learn nothing about room
// structure from probing them.

// JoinUnsafe adds an identity to the roster. Idempotent: an identity
// already present is not duplicated. Returns whether the joining
// identity is the room admin.
func (r *Room) JoinUnsafe(userID uuid.UUID, name string) bool {
	if r.ParticipantUnsafe(userID) == nil {
		r.Participants = append(r.Participants, &Participant{ID: userID, Name: name})
	}
	return userID == r.AdminID
}

// ParticipantUnsafe looks up a roster entry by identity, nil if absent.
func (r *Room) ParticipantUnsafe(userID uuid.UUID) *Participant {
	for _, p := range r.Participants {
		if p.ID == userID {
			return p
		}
	}
	return nil
}

// SlotOfUnsafe returns which side the identity occupies, or "" if none.
func (r *Room) SlotOfUnsafe(userID uuid.UUID) string {
	if r.Slots.White != nil && r.Slots.White.ID == userID {
		return SideWhite
	}
	if r.Slots.Black != nil && r.Slots.Black.ID == userID {
		return SideBlack
	}
	return ""
}

// clearFromSlotsUnsafe vacates whichever slot holds the identity.
// Returns true if a slot was cleared.
func (r *Room) clearFromSlotsUnsafe(userID uuid.UUID) bool {
	switch r.SlotOfUnsafe(userID) {
	case SideWhite:
		r.Slots.White = nil
		return true
	case SideBlack:
		r.Slots.Black = nil
		return true
	}
	return false
}

// AssignSlotUnsafe places a participant snapshot into the named slot.
// Admin-only. The target is first cleared from any slot it holds, so a
// player occupies at most one slot. Fails silently if the actor is not
// the admin, the target is not a participant, or the side is unknown.
// Returns whether the room changed.
func (r *Room) AssignSlotUnsafe(actingID, targetID uuid.UUID, side string) bool {
	if actingID != r.AdminID {
		return false
	}
	if side != SideWhite && side != SideBlack {
		return false
	}
	p := r.ParticipantUnsafe(targetID)
	if p == nil {
		return false
	}
	r.clearFromSlotsUnsafe(targetID)
	snapshot := &SlotPlayer{ID: p.ID, Name: p.Name}
	if side == SideWhite {
		r.Slots.White = snapshot
	} else {
		r.Slots.Black = snapshot
	}
	return true
}

// UnassignSlotUnsafe clears the named slot if occupied. Admin-only.
// Returns whether the room changed.
func (r *Room) UnassignSlotUnsafe(actingID uuid.UUID, side string) bool {
	if actingID != r.AdminID {
		return false
	}
	switch side {
	case SideWhite:
		if r.Slots.White != nil {
			r.Slots.White = nil
			return true
		}
	case SideBlack:
		if r.Slots.Black != nil {
			r.Slots.Black = nil
			return true
		}
	}
	return false
}

// SetShineUnsafe sets or clears (nil) a participant's cosmetic shine
// color. Admin-only. Returns whether the room changed.
func (r *Room) SetShineUnsafe(actingID, targetID uuid.UUID, color *string) bool {
	if actingID != r.AdminID {
		return false
	}
	p := r.ParticipantUnsafe(targetID)
	if p == nil {
		return false
	}
	p.ShineColor = color
	return true
}

// KickUnsafe removes the target from any slot and from the roster, and
// detaches its connection. Admin-only; the admin cannot kick itself.
// Returns the target's connection (so the caller can signal it
// individually before the room re-broadcast) and whether a kick happened.
func (r *Room) KickUnsafe(actingID, targetID uuid.UUID) (*Connection, bool) {
	if actingID != r.AdminID || targetID == r.AdminID {
		return nil, false
	}
	if r.ParticipantUnsafe(targetID) == nil {
		return nil, false
	}
	r.clearFromSlotsUnsafe(targetID)
	r.removeFromRosterUnsafe(targetID)
	conn := r.Connections[targetID]
	r.Detach(targetID)
	return conn, true
}

// RemoveParticipantUnsafe prunes an identity from the roster, vacating
// any slot it held, and detaches its connection. Returns whether a slot
// was vacated and whether the roster is now empty.
func (r *Room) RemoveParticipantUnsafe(userID uuid.UUID) (vacatedSlot, empty bool) {
	vacatedSlot = r.clearFromSlotsUnsafe(userID)
	r.removeFromRosterUnsafe(userID)
	r.Detach(userID)
	return vacatedSlot, len(r.Participants) == 0
}

func (r *Room) removeFromRosterUnsafe(userID uuid.UUID) {
	for i, p := range r.Participants {
		if p.ID == userID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return
		}
	}
}
