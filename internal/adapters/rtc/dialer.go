// Package rtc is the pion-backed media transport. A Dialer negotiates one
// peer connection per remote participant, exchanging offers, answers and
// trickled ICE candidates over the peer exchange wire.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/adapters/peerx"
	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/media"
)

func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("rtc: register codecs: %w", err)
	}
	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, fmt.Errorf("rtc: register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: zerologFactory{}}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(reg),
		webrtc.WithSettingEngine(se),
	), nil
}

// Dialer implements media.Dialer over a peer exchange connection.
type Dialer struct {
	id     domain.PeerID
	api    *webrtc.API
	wire   *peerx.Client
	config webrtc.Configuration

	mu       sync.Mutex
	links    map[domain.PeerID]*link
	incoming func(media.IncomingCall)
}

// NewDialer registers id on the exchange at baseURL and starts routing
// negotiation frames.
func NewDialer(baseURL string, id domain.PeerID) (*Dialer, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	d := &Dialer{
		id:  id,
		api: api,
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		},
		links: make(map[domain.PeerID]*link),
	}
	wire, err := peerx.Dial(baseURL, id, d.route)
	if err != nil {
		return nil, err
	}
	d.wire = wire
	return d, nil
}

// Call dials peer: sends our stream, emits an offer, and waits for the
// answer and candidates to arrive through the exchange.
func (d *Dialer) Call(ctx context.Context, peer domain.PeerID, local media.Stream) (media.Link, error) {
	l, err := d.newLink(peer, local)
	if err != nil {
		return nil, err
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("rtc: create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		l.Close()
		return nil, fmt.Errorf("rtc: set local description: %w", err)
	}
	if err := d.wire.Send(peer, peerx.KindOffer, offer); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (d *Dialer) OnIncoming(cb func(media.IncomingCall)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.incoming = cb
}

// Close hangs up every link and leaves the exchange.
func (d *Dialer) Close() {
	d.mu.Lock()
	links := make([]*link, 0, len(d.links))
	for id, l := range d.links {
		links = append(links, l)
		delete(d.links, id)
	}
	d.mu.Unlock()
	for _, l := range links {
		l.Close()
	}
	d.wire.Close()
}

// newLink builds a peer connection carrying local's tracks, registers it as
// the active link to peer (closing any previous one), and trickles its ICE
// candidates out.
func (d *Dialer) newLink(peer domain.PeerID, local media.Stream) (*link, error) {
	pc, err := d.api.NewPeerConnection(d.config)
	if err != nil {
		return nil, fmt.Errorf("rtc: new peer connection: %w", err)
	}

	if ls, ok := local.(*LocalStream); ok {
		if _, err := pc.AddTrack(ls.audio.rtp); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("rtc: add audio track: %w", err)
		}
		if _, err := pc.AddTrack(ls.video.rtp); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("rtc: add video track: %w", err)
		}
	}

	l := newLink(peer, pc)
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := d.wire.Send(peer, peerx.KindCandidate, cand.ToJSON()); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", string(peer)).Msg("send candidate")
		}
	})

	d.mu.Lock()
	if old, ok := d.links[peer]; ok {
		go old.Close()
	}
	d.links[peer] = l
	d.mu.Unlock()
	return l, nil
}

// route dispatches one exchange frame. Offers surface as incoming calls;
// answers and candidates feed the link negotiating with the frame's sender.
func (d *Dialer) route(f peerx.Frame) {
	switch f.Kind {
	case peerx.KindOffer:
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(f.Payload, &offer); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("bad offer payload")
			return
		}
		d.mu.Lock()
		cb := d.incoming
		d.mu.Unlock()
		if cb == nil {
			log.Warn().Str("module", "rtc").Str("peer", string(f.Src)).Msg("offer with no incoming handler")
			return
		}
		cb(&incomingCall{d: d, from: f.Src, offer: offer})

	case peerx.KindAnswer:
		l := d.linkFor(f.Src)
		if l == nil {
			return
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(f.Payload, &answer); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("bad answer payload")
			return
		}
		if err := l.setRemoteDescription(answer); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", string(f.Src)).Msg("apply answer")
		}

	case peerx.KindCandidate:
		l := d.linkFor(f.Src)
		if l == nil {
			return
		}
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(f.Payload, &cand); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("bad candidate payload")
			return
		}
		if err := l.addCandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", string(f.Src)).Msg("add candidate")
		}
	}
}

func (d *Dialer) linkFor(peer domain.PeerID) *link {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.links[peer]
}

// incomingCall defers peer connection setup until Answer, so the callee
// attaches its own stream before producing the answer SDP.
type incomingCall struct {
	d     *Dialer
	from  domain.PeerID
	offer webrtc.SessionDescription
}

func (c *incomingCall) From() domain.PeerID { return c.from }

func (c *incomingCall) Answer(local media.Stream) (media.Link, error) {
	l, err := c.d.newLink(c.from, local)
	if err != nil {
		return nil, err
	}
	if err := l.setRemoteDescription(c.offer); err != nil {
		l.Close()
		return nil, fmt.Errorf("rtc: apply offer: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("rtc: create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		l.Close()
		return nil, fmt.Errorf("rtc: set local description: %w", err)
	}
	if err := c.d.wire.Send(c.from, peerx.KindAnswer, answer); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}
