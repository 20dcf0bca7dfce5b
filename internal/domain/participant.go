// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxDisplayNameLen = 64

var ErrPeerIDEmpty = errors.New("peer id empty")

// PeerID is the opaque identifier the media layer issues on connect.
type PeerID string

// Participant is one connected member of a room.
type Participant struct {
	ID   PeerID `json:"id"`
	Name string `json:"name"`
}

// NewParticipant keeps construction obvious and avoids raw literals in
// adapters. The display name is the only identity a participant supplies;
// it is truncated, never rejected.
func NewParticipant(id PeerID, name string) (*Participant, error) {
	if id == "" {
		return nil, ErrPeerIDEmpty
	}
	if len(name) > MaxDisplayNameLen {
		name = name[:MaxDisplayNameLen]
	}
	return &Participant{ID: id, Name: name}, nil
}
