// Package peerx moves media negotiation frames (offers, answers, ICE
// candidates) point-to-point between registered peers. It is the media
// layer's private wire; it knows nothing about rooms and never interprets
// payloads.
package peerx

import (
	"encoding/json"
	"fmt"

	"github.com/huddlelabs/huddle/internal/domain"
)

type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// Frame is one relayed negotiation message. Payload stays opaque to the
// exchange; only the endpoints decode it.
type Frame struct {
	Dst     domain.PeerID   `json:"dst"`
	Src     domain.PeerID   `json:"src"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (f Frame) Validate() error {
	if f.Dst == "" || f.Src == "" {
		return fmt.Errorf("peerx: missing src/dst")
	}
	switch f.Kind {
	case KindOffer, KindAnswer, KindCandidate:
	default:
		return fmt.Errorf("peerx: unknown kind %q", f.Kind)
	}
	if len(f.Payload) == 0 {
		return fmt.Errorf("peerx: empty payload")
	}
	return nil
}

func parseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("peerx: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}
