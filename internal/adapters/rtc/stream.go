package rtc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/media"
)

// LocalTrack wraps a static RTP track with the enablement flags the
// handshake reports. Disabled or stopped tracks drop writes silently.
type LocalTrack struct {
	kind media.TrackKind
	rtp  *webrtc.TrackLocalStaticRTP

	mu      sync.RWMutex
	enabled bool
	state   domain.TrackState
}

func newLocalTrack(kind media.TrackKind, codec webrtc.RTPCodecCapability, streamID string) (*LocalTrack, error) {
	t, err := webrtc.NewTrackLocalStaticRTP(codec, string(kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{kind: kind, rtp: t, enabled: true, state: domain.TrackLive}, nil
}

func (t *LocalTrack) Kind() media.TrackKind { return t.kind }

func (t *LocalTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = on
}

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = domain.TrackEnded
}

func (t *LocalTrack) State() domain.TrackState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// WriteRTP feeds one packet to the track. Writes while muted or after Stop
// are dropped, not errors; the sender keeps its pacing loop simple.
func (t *LocalTrack) WriteRTP(p *rtp.Packet) error {
	t.mu.RLock()
	ok := t.enabled && t.state == domain.TrackLive
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return t.rtp.WriteRTP(p)
}

// LocalStream is the outgoing stream: one opus audio and one VP8 video
// track sharing a stream id.
type LocalStream struct {
	id    string
	audio *LocalTrack
	video *LocalTrack
}

func NewLocalStream() (*LocalStream, error) {
	id := uuid.NewString()
	audio, err := newLocalTrack(media.KindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id)
	if err != nil {
		return nil, err
	}
	video, err := newLocalTrack(media.KindVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id)
	if err != nil {
		return nil, err
	}
	return &LocalStream{id: id, audio: audio, video: video}, nil
}

func (s *LocalStream) ID() string              { return s.id }
func (s *LocalStream) AudioTrack() media.Track { return s.audio }
func (s *LocalStream) VideoTrack() media.Track { return s.video }
func (s *LocalStream) Audio() *LocalTrack      { return s.audio }
func (s *LocalStream) Video() *LocalTrack      { return s.video }

// remoteTrack mirrors a received track. Stop ends our consumption of it;
// the sender is not told (the handshake already carried its intent).
type remoteTrack struct {
	kind media.TrackKind
	stop func()

	mu      sync.RWMutex
	enabled bool
	state   domain.TrackState
}

func newRemoteTrack(kind media.TrackKind, stop func()) *remoteTrack {
	return &remoteTrack{kind: kind, stop: stop, enabled: true, state: domain.TrackLive}
}

func (t *remoteTrack) Kind() media.TrackKind { return t.kind }

func (t *remoteTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *remoteTrack) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = on
}

func (t *remoteTrack) Stop() {
	t.mu.Lock()
	if t.state == domain.TrackEnded {
		t.mu.Unlock()
		return
	}
	t.state = domain.TrackEnded
	stop := t.stop
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (t *remoteTrack) State() domain.TrackState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// remoteStream assembles the peer's tracks as they arrive.
type remoteStream struct {
	id string

	mu    sync.RWMutex
	audio *remoteTrack
	video *remoteTrack
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) AudioTrack() media.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.audio == nil {
		return nil
	}
	return s.audio
}

func (s *remoteStream) VideoTrack() media.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *remoteStream) setTrack(t *remoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t.kind {
	case media.KindAudio:
		s.audio = t
	case media.KindVideo:
		s.video = t
	}
}
