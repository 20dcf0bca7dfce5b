package app

import (
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/core"
	"github.com/huddlelabs/huddle/internal/domain"
)

// Relay coordinates the registry and the room set. It holds no per-event
// state of its own: membership lives in the registry, fan-out in the rooms.
// It never interprets media content; frames pass through opaque.
type Relay struct {
	Registry *Registry
	Rooms    core.RoomFactory
	Policy   Policy
}

func NewRelay(reg *Registry, rooms core.RoomFactory, policy Policy) *Relay {
	return &Relay{Registry: reg, Rooms: rooms, Policy: policy}
}

// Join adds the participant to the room and reports whether this was the
// first join on the connection. Room keys are opaque; an empty key is
// accepted as-is.
func (r *Relay) Join(sid core.SessionID, roomID domain.RoomID, p *domain.Participant) bool {
	sess, ok := r.Registry.Join(sid, p, roomID)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("sid", string(sid)).Msg("join ignored: already joined or unknown connection")
		return false
	}
	r.Rooms.GetOrCreate(roomID).AddMember(sid, sess)
	return true
}

// BroadcastFrom fans a frame out to everyone else in the sender's room.
// Fire-and-forget: an unjoined sender broadcasts to nothing.
func (r *Relay) BroadcastFrom(sid core.SessionID, data core.Frame) {
	roomID, _, ok := r.Registry.RoomOf(sid)
	if !ok {
		return
	}
	room := r.Rooms.GetOrCreate(roomID)
	r.applyPolicy(roomID, room, room.Broadcast(sid, data))
}

// BroadcastRoom fans a frame out to the sender's whole room, sender
// included. The audio/video toggle path uses this, mirroring the relay's
// full-room fan-out for those events.
func (r *Relay) BroadcastRoom(sid core.SessionID, data core.Frame) {
	roomID, _, ok := r.Registry.RoomOf(sid)
	if !ok {
		return
	}
	room := r.Rooms.GetOrCreate(roomID)
	r.applyPolicy(roomID, room, room.BroadcastAll(data))
}

// Disconnect removes the connection and reports what membership it held so
// the caller can announce the departure. Disconnect before join is a no-op
// with ok=false.
func (r *Relay) Disconnect(sid core.SessionID) (domain.RoomID, *domain.Participant, bool) {
	roomID, sess, ok := r.Registry.RoomOf(sid)
	if !ok {
		r.Registry.Unbind(sid)
		return "", nil, false
	}
	r.Rooms.GetOrCreate(roomID).RemoveMember(sid)
	r.Registry.Unbind(sid)
	return roomID, sess.Meta(), true
}

func (r *Relay) applyPolicy(roomID domain.RoomID, room core.RoomService, res core.PublishResult) {
	if r.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		if r.Policy.OnBackPressure(room, slow) != KickMember {
			continue
		}
		for _, snap := range r.Registry.membersOfRoom(roomID) {
			if snap.Session == slow {
				r.kick(snap.SID, roomID, room)
			}
		}
	}
}

func (r *Relay) kick(sid core.SessionID, roomID domain.RoomID, room core.RoomService) {
	log.Warn().Str("module", "app.relay").Str("sid", string(sid)).Str("room", string(roomID)).Msg("kicking slow member")
	room.RemoveMember(sid)
	r.Registry.Cancel(sid)
}
