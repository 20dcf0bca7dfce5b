package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/core"
	"github.com/huddlelabs/huddle/internal/domain"
)

// sessionEntry is the explicit per-connection record: transport endpoint,
// cancel handle, and, once join-room arrived, the participant and its room.
type sessionEntry struct {
	Conn    core.SignalConnection
	Cancel  context.CancelFunc
	Room    domain.RoomID
	Session core.ParticipantSession // nil until joined
}

// Registry owns the connection-keyed session map. The relay's own handlers
// are its only writers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

// Bind registers a fresh connection before any join happened.
func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound connection")
}

// Join records membership for a connection. A participant may join only once
// per connection; repeats return false and change nothing.
func (r *Registry) Join(sid core.SessionID, p *domain.Participant, room domain.RoomID) (core.ParticipantSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.Session != nil {
		return nil, false
	}
	entry.Session = core.NewParticipantSession(p, entry.Conn)
	entry.Room = room
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("peer", string(p.ID)).Str("room", string(room)).Msg("joined")
	return entry.Session, true
}

// RoomOf reports the room a joined connection belongs to.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, core.ParticipantSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.Session == nil {
		return "", nil, false
	}
	return entry.Room, entry.Session, true
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

type regSnap struct {
	SID     core.SessionID
	Session core.ParticipantSession
}

func (r *Registry) membersOfRoom(room domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.Session != nil && e.Room == room {
			out = append(out, regSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// Cancel tears the connection down through its context; the transport pumps
// observe the cancellation and close the socket.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
