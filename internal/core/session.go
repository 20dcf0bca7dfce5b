package core

import "github.com/huddlelabs/huddle/internal/domain"

// participantSession implements ParticipantSession by pairing meta + transport.
type participantSession struct {
	meta *domain.Participant
	conn SignalConnection
}

func NewParticipantSession(meta *domain.Participant, conn SignalConnection) ParticipantSession {
	return &participantSession{meta: meta, conn: conn}
}

func (s *participantSession) Meta() *domain.Participant { return s.meta }
func (s *participantSession) Signal() SignalConnection  { return s.conn }
