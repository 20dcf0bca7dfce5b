// Package media abstracts the point-to-point media session primitive. The
// coordination protocol only needs track enablement and the stream/link
// lifecycle; the actual bytes are the transport's business.
package media

import (
	"context"

	"github.com/huddlelabs/huddle/internal/domain"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Track is one audio or video track of a stream.
type Track interface {
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	// Stop ends the track permanently; State reports ended afterwards.
	Stop()
	State() domain.TrackState
}

// Stream pairs at most one audio and one video track.
type Stream interface {
	ID() string
	AudioTrack() Track
	VideoTrack() Track
}

// Link is an established media session with one remote peer.
type Link interface {
	PeerID() domain.PeerID
	// OnStream registers the callback for the remote stream. If the stream
	// already arrived, the callback fires immediately.
	OnStream(func(Stream))
	Close()
}

// IncomingCall is a remote peer dialing us; answering with the local stream
// completes the link.
type IncomingCall interface {
	From() domain.PeerID
	Answer(local Stream) (Link, error)
}

// Dialer opens media links. Implementations own their negotiation wire.
type Dialer interface {
	Call(ctx context.Context, peer domain.PeerID, local Stream) (Link, error)
	OnIncoming(func(IncomingCall))
	Close()
}

// CaptureInfo snapshots the local stream's track enablement the way the
// handshake reports it: the video ready state and the audio enabled flag.
func CaptureInfo(s Stream) domain.StreamInfo {
	info := domain.StreamInfo{Video: domain.TrackLive, Audio: true}
	if t := s.VideoTrack(); t != nil {
		info.Video = t.State()
	}
	if t := s.AudioTrack(); t != nil {
		info.Audio = t.Enabled()
	}
	return info
}

// ApplyInfo reconciles a received stream with the sender's declared state:
// a video reported ended is stopped, a muted sender's audio is disabled.
func ApplyInfo(info domain.StreamInfo, s Stream) {
	if info.Video == domain.TrackEnded {
		if t := s.VideoTrack(); t != nil {
			t.Stop()
		}
	}
	if !info.Audio {
		if t := s.AudioTrack(); t != nil {
			t.SetEnabled(false)
		}
	}
}
