// Package core holds the transport-agnostic room model. It owns membership
// sets and fan-out, but never touches sockets or media resources.
package core

import "github.com/huddlelabs/huddle/internal/domain"

// Frame is a raw signaling payload, already encoded for the wire.
type Frame []byte

// SessionID identifies one transport connection. It is distinct from
// domain.PeerID: the peer id arrives later, with join-room.
type SessionID string

// SignalConnection abstracts the per-client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// ParticipantSession binds a participant's meta to its transport endpoint.
// This is what a room stores and fans out to.
type ParticipantSession interface {
	Meta() *domain.Participant
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to the relay.
type PublishResult struct {
	SentTo  int
	Dropped []ParticipantSession
}

// ParticipantDTO is a read-only view for APIs (no transport fields).
type ParticipantDTO struct {
	ID   domain.PeerID `json:"id"`
	Name string        `json:"name"`
}

// RoomService is the core-facing API of a room. Broadcast excludes the
// sender; BroadcastAll reaches the whole room, sender included.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []ParticipantDTO

	AddMember(sid SessionID, ps ParticipantSession)
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
	BroadcastAll(data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// RoomFactory creates rooms implicitly on first use. Rooms are ephemeral;
// nothing reaps empty ones, growth is bounded by process lifetime.
type RoomFactory interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
