// Package event models the signaling wire surface: the JSON frames exchanged
// between a room participant and the relay. It deliberately knows nothing
// about transports or media; it is shared by the server controller and the
// Go client.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/huddlelabs/huddle/internal/domain"
)

type Type string

// Client -> server.
const (
	TypeJoinRoom      Type = "join-room"
	TypeSetInfo       Type = "set-info"
	TypeReplaceStream Type = "replace-stream"
	TypeMessageSent   Type = "message-sent"
	TypeSetAudio      Type = "set-audio"
	TypeSetVideo      Type = "set-video"
)

// Server -> room.
const (
	TypeUserConnected    Type = "user-connected"
	TypeUserDisconnected Type = "user-disconnected"
	TypeGetInfo          Type = "get-info"
	TypeStreamReplaced   Type = "stream-replaced"
	TypeMessage          Type = "message"
	TypeGetAudio         Type = "get-audio"
	TypeGetVideo         Type = "get-video"
)

// JoinRoom registers membership. Sent once per connection; the relay ignores
// repeats.
type JoinRoom struct {
	Type Type          `json:"type"`
	Room domain.RoomID `json:"room"`
	ID   domain.PeerID `json:"id"`
	Name string        `json:"name"`
}

// Presence announces a peer appearing, leaving, or replacing its stream.
// Used for user-connected, user-disconnected, replace-stream and
// stream-replaced.
type Presence struct {
	Type Type          `json:"type"`
	ID   domain.PeerID `json:"id"`
	Name string        `json:"name"`
}

// InfoExchange is the StreamInfo handshake. The relay fans it out to the
// whole room; receivers self-filter by Dest.
type InfoExchange struct {
	Type Type              `json:"type"`
	Src  domain.PeerID     `json:"src"`
	Dest domain.PeerID     `json:"dest"`
	Name string            `json:"name"`
	Info domain.StreamInfo `json:"info"`
}

// Chat is a room chat line. Relayed verbatim, never stored.
type Chat struct {
	Type Type   `json:"type"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// AudioToggle carries a participant's mute flag to the whole room,
// including the sender.
type AudioToggle struct {
	Type  Type          `json:"type"`
	ID    domain.PeerID `json:"id"`
	Audio bool          `json:"audio"`
}

// VideoToggle carries a participant's camera state to the whole room,
// including the sender.
type VideoToggle struct {
	Type  Type              `json:"type"`
	ID    domain.PeerID     `json:"id"`
	Video domain.TrackState `json:"video"`
}

// Envelope peeks at the discriminator without committing to a payload shape.
type Envelope struct {
	Type Type `json:"type"`
}

func Peek(data []byte) (Type, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("event: bad envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("event: missing type")
	}
	return env.Type, nil
}

func (e JoinRoom) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%s: missing id", e.Type)
	}
	// Room stays opaque: empty or malformed keys are accepted as-is.
	return nil
}

func (e Presence) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%s: missing id", e.Type)
	}
	return nil
}

func (e InfoExchange) Validate() error {
	if e.Src == "" || e.Dest == "" {
		return fmt.Errorf("%s: missing src/dest", e.Type)
	}
	if err := e.Info.Validate(); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

func (e Chat) Validate() error {
	if e.Body == "" {
		return fmt.Errorf("%s: empty body", e.Type)
	}
	return nil
}

func (e AudioToggle) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%s: missing id", e.Type)
	}
	return nil
}

func (e VideoToggle) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%s: missing id", e.Type)
	}
	switch e.Video {
	case domain.TrackLive, domain.TrackEnded:
		return nil
	default:
		return fmt.Errorf("%s: unknown video state %q", e.Type, e.Video)
	}
}

// Decode unmarshals data into dst and validates it when dst knows how.
func Decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("event: decode: %w", err)
	}
	if v, ok := dst.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}
