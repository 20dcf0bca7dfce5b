// Package coordinator pairs media links with the StreamInfo handshake.
// For every remote peer, the link's stream and the matching handshake
// arrive independently; the coordinator joins them into exactly one roster
// tile, whatever order they arrive in.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/media"
	"github.com/huddlelabs/huddle/internal/roster"
)

var ErrNegotiationTimeout = errors.New("negotiation timed out")

// Signaler is the outbound handshake surface the coordinator needs.
type Signaler interface {
	SendInfo(src, dest domain.PeerID, name string, info domain.StreamInfo) error
}

type Config struct {
	SelfID   domain.PeerID
	SelfName string
	Local    media.Stream
	Dialer   media.Dialer
	Signals  Signaler
	Roster   *roster.Roster

	// NegotiationTimeout bounds how long a peer may sit with only one of
	// the two events present. Zero disables the timeout.
	NegotiationTimeout time.Duration

	// OnFailure surfaces a per-peer diagnostic; the wire protocol carries
	// no failure events, so this is the only reporting path.
	OnFailure func(domain.PeerID, error)
}

// peerState is the explicit two-slot record: a tile is produced once both
// stream and info are present, exactly once.
type peerState struct {
	id        domain.PeerID
	name      string
	link      media.Link
	stream    media.Stream
	info      *domain.StreamInfo
	bound     bool
	replacing bool
	failed    bool
	timer     *time.Timer
}

type Coordinator struct {
	cfg Config
	ctx context.Context

	mu    sync.Mutex
	peers map[domain.PeerID]*peerState
	seen  map[domain.PeerID]struct{}
}

func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		ctx:   context.Background(),
		peers: make(map[domain.PeerID]*peerState),
		seen:  make(map[domain.PeerID]struct{}),
	}
}

// Start registers for incoming calls. ctx bounds all outgoing dials.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx = ctx
	c.cfg.Dialer.OnIncoming(c.handleIncoming)
}

// PeerJoined dials a media link to a newly-announced peer.
func (c *Coordinator) PeerJoined(id domain.PeerID, name string) {
	c.mu.Lock()
	st := c.ensurePeer(id, name)
	c.mu.Unlock()

	link, err := c.cfg.Dialer.Call(c.ctx, id, c.cfg.Local)
	if err != nil {
		c.fail(id, err)
		return
	}
	c.attachLink(st, link)
}

func (c *Coordinator) handleIncoming(call media.IncomingCall) {
	id := call.From()
	c.mu.Lock()
	st := c.ensurePeer(id, "")
	c.mu.Unlock()

	link, err := call.Answer(c.cfg.Local)
	if err != nil {
		c.fail(id, err)
		return
	}
	c.attachLink(st, link)
}

func (c *Coordinator) attachLink(st *peerState, link media.Link) {
	c.mu.Lock()
	st.link = link
	c.mu.Unlock()
	link.OnStream(func(s media.Stream) {
		c.streamReady(st.id, link, s)
	})
}

// streamReady fills the stream slot and mirrors our own track state back so
// the remote side can complete its matching join. A stream delivered by a
// link that is no longer the peer's current one is stale (the peer replaced
// its stream and the old link was closed) and is dropped.
func (c *Coordinator) streamReady(id domain.PeerID, from media.Link, stream media.Stream) {
	c.mu.Lock()
	st, ok := c.peers[id]
	if !ok || st.failed || st.link != from {
		c.mu.Unlock()
		return
	}
	st.stream = stream
	c.maybeBindLocked(st)
	c.mu.Unlock()

	info := media.CaptureInfo(c.cfg.Local)
	if err := c.cfg.Signals.SendInfo(c.cfg.SelfID, id, c.cfg.SelfName, info); err != nil {
		log.Error().Err(err).Str("module", "coordinator").Str("peer", string(id)).Msg("send info")
	}
}

// InfoReceived is the single demultiplexing handshake entry point. Every
// fan-out message lands here; anything not addressed to us, or naming a
// peer we are not negotiating with, is ignored.
func (c *Coordinator) InfoReceived(src, dest domain.PeerID, name string, info domain.StreamInfo) {
	if dest != c.cfg.SelfID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.peers[src]
	if !ok || st.failed {
		return
	}
	st.info = &info
	if name != "" {
		st.name = name
	}
	c.maybeBindLocked(st)
}

// StreamReplaced re-runs the two-event join for a known peer, swapping the
// existing tile's stream in place once the new negotiation completes.
func (c *Coordinator) StreamReplaced(id domain.PeerID, name string) {
	c.mu.Lock()
	st, ok := c.peers[id]
	if !ok {
		c.mu.Unlock()
		log.Warn().Str("module", "coordinator").Str("peer", string(id)).Msg("stream-replaced for unknown peer")
		return
	}
	if name != "" {
		st.name = name
	}
	st.stream = nil
	st.info = nil
	st.bound = false
	st.failed = false
	st.replacing = true
	delete(c.seen, id)
	if old := st.link; old != nil {
		old.Close()
		st.link = nil
	}
	c.armTimerLocked(st)
	c.mu.Unlock()

	link, err := c.cfg.Dialer.Call(c.ctx, id, c.cfg.Local)
	if err != nil {
		c.fail(id, err)
		return
	}
	c.attachLink(st, link)
}

// PeerLeft abandons any in-flight negotiation and removes the tile.
func (c *Coordinator) PeerLeft(id domain.PeerID) {
	c.mu.Lock()
	st, ok := c.peers[id]
	if ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		if st.link != nil {
			st.link.Close()
		}
		delete(c.peers, id)
	}
	delete(c.seen, id)
	c.mu.Unlock()

	c.cfg.Roster.Remove(id)
}

// Close tears down every link.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, st := range c.peers {
		if st.timer != nil {
			st.timer.Stop()
		}
		if st.link != nil {
			st.link.Close()
		}
		delete(c.peers, id)
		delete(c.seen, id)
	}
}

func (c *Coordinator) ensurePeer(id domain.PeerID, name string) *peerState {
	st, ok := c.peers[id]
	if !ok {
		st = &peerState{id: id, name: name}
		c.peers[id] = st
		c.armTimerLocked(st)
	} else if name != "" {
		st.name = name
	}
	return st
}

// maybeBindLocked is the both-present transition: it fires at most once per
// negotiation, applies the handshake policy, and registers the tile. The
// seen set makes replayed events no-ops.
func (c *Coordinator) maybeBindLocked(st *peerState) {
	if st.bound || st.failed || st.stream == nil || st.info == nil {
		return
	}
	st.bound = true
	if st.timer != nil {
		st.timer.Stop()
	}

	media.ApplyInfo(*st.info, st.stream)

	if _, dup := c.seen[st.id]; dup {
		return
	}
	if st.replacing {
		st.replacing = false
		c.cfg.Roster.ReplaceStream(st.id, st.stream)
	} else {
		c.cfg.Roster.Add(st.id, st.name, st.stream)
	}
	c.seen[st.id] = struct{}{}
	log.Info().Str("module", "coordinator").Str("peer", string(st.id)).Str("name", st.name).Msg("peer bound")
}

func (c *Coordinator) armTimerLocked(st *peerState) {
	if c.cfg.NegotiationTimeout <= 0 {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	id := st.id
	st.timer = time.AfterFunc(c.cfg.NegotiationTimeout, func() {
		c.fail(id, ErrNegotiationTimeout)
	})
}

func (c *Coordinator) fail(id domain.PeerID, err error) {
	c.mu.Lock()
	st, ok := c.peers[id]
	if !ok || st.bound || st.failed {
		c.mu.Unlock()
		return
	}
	st.failed = true
	if st.timer != nil {
		st.timer.Stop()
	}
	if st.link != nil {
		st.link.Close()
		st.link = nil
	}
	c.mu.Unlock()

	log.Error().Err(err).Str("module", "coordinator").Str("peer", string(id)).Msg("negotiation failed")
	if c.cfg.OnFailure != nil {
		c.cfg.OnFailure(id, err)
	}
}
