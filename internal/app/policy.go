package app

import "github.com/huddlelabs/huddle/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.ParticipantSession) BackpressureAction
}

// KickPolicy disconnects slow members. A participant that cannot keep up
// with room fan-out would only accumulate stale handshakes anyway.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(room core.RoomService, member core.ParticipantSession) BackpressureAction {
	return KickMember
}
