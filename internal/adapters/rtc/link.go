package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/media"
)

// link is one negotiated peer connection. It collects remote tracks into a
// stream and fires the OnStream callback once, on the first track.
type link struct {
	peer domain.PeerID
	pc   *webrtc.PeerConnection

	mu        sync.Mutex
	remote    *remoteStream
	cb        func(media.Stream)
	announced bool
	closed    bool

	// Candidates arriving before the remote description are held back;
	// AddICECandidate rejects them otherwise.
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newLink(peer domain.PeerID, pc *webrtc.PeerConnection) *link {
	l := &link{peer: peer, pc: pc}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.acceptTrack(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("module", "rtc").Str("peer", string(peer)).
			Str("state", state.String()).Msg("connection state")
		if state == webrtc.PeerConnectionStateFailed {
			l.Close()
		}
	})
	return l
}

func (l *link) PeerID() domain.PeerID { return l.peer }

func (l *link) OnStream(cb func(media.Stream)) {
	l.mu.Lock()
	l.cb = cb
	var fire media.Stream
	if l.remote != nil && !l.announced {
		l.announced = true
		fire = l.remote
	}
	l.mu.Unlock()
	if fire != nil {
		cb(fire)
	}
}

func (l *link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(l.peer)).Msg("close link")
	}
}

// acceptTrack drains one remote track for its lifetime. Reads must keep
// flowing or the interceptor chain stalls; stopping the track cancels the
// drain by unsubscribing the receiver stream.
func (l *link) acceptTrack(track *webrtc.TrackRemote) {
	kind := media.KindAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = media.KindVideo
	}

	done := make(chan struct{})
	var once sync.Once
	rt := newRemoteTrack(kind, func() { once.Do(func() { close(done) }) })

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if l.remote == nil {
		l.remote = &remoteStream{id: track.StreamID()}
	}
	l.remote.setTrack(rt)
	var fire media.Stream
	var cb func(media.Stream)
	if l.cb != nil && !l.announced {
		l.announced = true
		fire = l.remote
		cb = l.cb
	}
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			if _, _, err := track.ReadRTP(); err != nil {
				rt.Stop()
				return
			}
		}
	}()

	if fire != nil {
		cb(fire)
	}
}

func (l *link) setRemoteDescription(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, cand := range pending {
		if err := l.pc.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", string(l.peer)).Msg("add buffered candidate")
		}
	}
	return nil
}

func (l *link) addCandidate(cand webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, cand)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(cand)
}
