package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/media"
	"github.com/huddlelabs/huddle/internal/roster"
)

type fakeTrack struct {
	kind    media.TrackKind
	enabled bool
	state   domain.TrackState
}

func (t *fakeTrack) Kind() media.TrackKind    { return t.kind }
func (t *fakeTrack) Enabled() bool            { return t.enabled }
func (t *fakeTrack) SetEnabled(on bool)       { t.enabled = on }
func (t *fakeTrack) Stop()                    { t.state = domain.TrackEnded }
func (t *fakeTrack) State() domain.TrackState { return t.state }

type fakeStream struct {
	id    string
	audio *fakeTrack
	video *fakeTrack
}

func newFakeStream(id string) *fakeStream {
	return &fakeStream{
		id:    id,
		audio: &fakeTrack{kind: media.KindAudio, enabled: true, state: domain.TrackLive},
		video: &fakeTrack{kind: media.KindVideo, enabled: true, state: domain.TrackLive},
	}
}

func (s *fakeStream) ID() string              { return s.id }
func (s *fakeStream) AudioTrack() media.Track { return s.audio }
func (s *fakeStream) VideoTrack() media.Track { return s.video }

type fakeLink struct {
	peer domain.PeerID

	mu     sync.Mutex
	cb     func(media.Stream)
	closed int
}

func (l *fakeLink) PeerID() domain.PeerID { return l.peer }

func (l *fakeLink) OnStream(cb func(media.Stream)) {
	l.mu.Lock()
	l.cb = cb
	l.mu.Unlock()
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
}

// deliver simulates the remote stream arriving on the link.
func (l *fakeLink) deliver(s media.Stream) {
	l.mu.Lock()
	cb := l.cb
	l.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	links    []*fakeLink
	incoming func(media.IncomingCall)
}

func (d *fakeDialer) Call(ctx context.Context, peer domain.PeerID, local media.Stream) (media.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &fakeLink{peer: peer}
	d.links = append(d.links, l)
	return l, nil
}

func (d *fakeDialer) OnIncoming(cb func(media.IncomingCall)) { d.incoming = cb }
func (d *fakeDialer) Close()                                 {}

func (d *fakeDialer) lastLink(t *testing.T) *fakeLink {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.links) == 0 {
		t.Fatal("no link dialed")
	}
	return d.links[len(d.links)-1]
}

type fakeCall struct {
	from domain.PeerID
	link *fakeLink
}

func (c *fakeCall) From() domain.PeerID { return c.from }

func (c *fakeCall) Answer(local media.Stream) (media.Link, error) {
	return c.link, nil
}

type sentInfo struct {
	src, dest domain.PeerID
	info      domain.StreamInfo
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sentInfo
}

func (s *fakeSignaler) SendInfo(src, dest domain.PeerID, name string, info domain.StreamInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentInfo{src: src, dest: dest, info: info})
	return nil
}

func (s *fakeSignaler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fixture struct {
	coord  *Coordinator
	dialer *fakeDialer
	sig    *fakeSignaler
	view   *roster.Roster
	local  *fakeStream
}

func newFixture(t *testing.T, timeout time.Duration, onFailure func(domain.PeerID, error)) *fixture {
	t.Helper()
	local := newFakeStream("local")
	dialer := &fakeDialer{}
	sig := &fakeSignaler{}
	view := roster.New(roster.Tile{ID: "self", Name: "me", Stream: local})
	coord := New(Config{
		SelfID:             "self",
		SelfName:           "me",
		Local:              local,
		Dialer:             dialer,
		Signals:            sig,
		Roster:             view,
		NegotiationTimeout: timeout,
		OnFailure:          onFailure,
	})
	coord.Start(context.Background())
	t.Cleanup(coord.Close)
	return &fixture{coord: coord, dialer: dialer, sig: sig, view: view, local: local}
}

func liveInfo() domain.StreamInfo {
	return domain.StreamInfo{Video: domain.TrackLive, Audio: true}
}

func TestStreamThenInfoBindsOnce(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")

	f.dialer.lastLink(t).deliver(newFakeStream("r1"))
	if f.view.Len() != 1 {
		t.Fatal("tile appeared before the handshake completed")
	}
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())

	if f.view.Len() != 2 {
		t.Fatalf("Len = %d, want 2 after both events", f.view.Len())
	}
	tile := f.view.Snapshot()[1]
	if tile.ID != "p1" || tile.Name != "alice" || tile.Stream.ID() != "r1" {
		t.Errorf("tile = %+v", tile)
	}
}

func TestInfoThenStreamBindsOnce(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")

	f.coord.InfoReceived("p1", "self", "alice", liveInfo())
	if f.view.Len() != 1 {
		t.Fatal("tile appeared before the stream arrived")
	}
	f.dialer.lastLink(t).deliver(newFakeStream("r1"))

	if f.view.Len() != 2 {
		t.Fatalf("Len = %d, want 2 after both events", f.view.Len())
	}
}

func TestStreamReadyEmitsOutboundInfo(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.local.audio.enabled = false
	f.coord.PeerJoined("p1", "alice")
	f.dialer.lastLink(t).deliver(newFakeStream("r1"))

	if f.sig.count() != 1 {
		t.Fatalf("SendInfo calls = %d, want 1", f.sig.count())
	}
	got := f.sig.sent[0]
	if got.src != "self" || got.dest != "p1" {
		t.Errorf("sent src=%q dest=%q", got.src, got.dest)
	}
	if got.info.Audio {
		t.Error("outbound info should mirror the muted local audio")
	}
}

func TestReplayedInfoIsIgnored(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")
	f.dialer.lastLink(t).deliver(newFakeStream("r1"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())

	if f.view.Len() != 2 {
		t.Errorf("Len = %d, want 2 after replayed handshake", f.view.Len())
	}
}

func TestInfoForOtherDestIgnored(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")
	f.dialer.lastLink(t).deliver(newFakeStream("r1"))

	f.coord.InfoReceived("p1", "someone-else", "alice", liveInfo())
	if f.view.Len() != 1 {
		t.Error("handshake addressed elsewhere must not bind")
	}
}

func TestInfoFromUnknownPeerIgnored(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.InfoReceived("ghost", "self", "ghost", liveInfo())
	if f.view.Len() != 1 {
		t.Error("handshake from an unannounced peer must not bind")
	}
}

func TestInfoPolicyAppliedToRemoteStream(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")
	remote := newFakeStream("r1")
	f.dialer.lastLink(t).deliver(remote)
	f.coord.InfoReceived("p1", "self", "alice", domain.StreamInfo{Video: domain.TrackEnded, Audio: false})

	if remote.video.state != domain.TrackEnded {
		t.Error("ended video should stop the remote video track")
	}
	if remote.audio.enabled {
		t.Error("muted sender should disable the remote audio track")
	}
}

func TestIncomingCallBinds(t *testing.T) {
	f := newFixture(t, 0, nil)
	link := &fakeLink{peer: "p1"}
	f.dialer.incoming(&fakeCall{from: "p1", link: link})

	link.deliver(newFakeStream("r1"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())

	if f.view.Len() != 2 {
		t.Fatalf("Len = %d, want 2 after answered call", f.view.Len())
	}
}

func TestPeerLeftRemovesTileAndClosesLink(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")
	link := f.dialer.lastLink(t)
	link.deliver(newFakeStream("r1"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())

	f.coord.PeerLeft("p1")
	if f.view.Len() != 1 {
		t.Errorf("Len = %d, want 1 after departure", f.view.Len())
	}
	if link.closed == 0 {
		t.Error("departed peer's link was not closed")
	}
}

func TestStreamReplacedSwapsInPlace(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")
	old := f.dialer.lastLink(t)
	old.deliver(newFakeStream("r1"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())
	f.view.Add("p2", "bob", newFakeStream("r2"))

	f.coord.StreamReplaced("p1", "alice")
	if old.closed == 0 {
		t.Error("replaced link should be closed")
	}
	fresh := f.dialer.lastLink(t)
	if fresh == old {
		t.Fatal("replace should dial a new link")
	}
	fresh.deliver(newFakeStream("r1b"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())

	if f.view.Len() != 3 {
		t.Fatalf("Len = %d, want 3; replace must not add a tile", f.view.Len())
	}
	tile := f.view.Snapshot()[1]
	if tile.ID != "p1" || tile.Stream.ID() != "r1b" {
		t.Errorf("tile after replace = %+v; want same position, new stream", tile)
	}
}

func TestStreamReplacedDropsStreamFromOldLink(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.coord.PeerJoined("p1", "alice")
	old := f.dialer.lastLink(t)
	old.deliver(newFakeStream("r1"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())

	f.coord.StreamReplaced("p1", "alice")
	// The closed link delivers late, then the handshake lands, then the
	// fresh link's stream arrives. Only the fresh stream may bind.
	old.deliver(newFakeStream("stale"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())
	fresh := f.dialer.lastLink(t)
	fresh.deliver(newFakeStream("r1b"))

	if f.view.Len() != 2 {
		t.Fatalf("Len = %d, want 2", f.view.Len())
	}
	tile := f.view.Snapshot()[1]
	if tile.Stream.ID() != "r1b" {
		t.Errorf("tile stream = %q, want %q", tile.Stream.ID(), "r1b")
	}
}

func TestNegotiationTimeoutReportsFailure(t *testing.T) {
	failed := make(chan error, 1)
	f := newFixture(t, 20*time.Millisecond, func(_ domain.PeerID, err error) {
		failed <- err
	})
	f.coord.PeerJoined("p1", "alice")
	// Only the stream arrives; the handshake never completes.
	f.dialer.lastLink(t).deliver(newFakeStream("r1"))

	select {
	case err := <-failed:
		if !errors.Is(err, ErrNegotiationTimeout) {
			t.Errorf("err = %v, want ErrNegotiationTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout diagnostic never fired")
	}
	if f.view.Len() != 1 {
		t.Error("failed negotiation must not produce a tile")
	}
}

func TestBoundPeerDoesNotTimeOut(t *testing.T) {
	failed := make(chan error, 1)
	f := newFixture(t, 20*time.Millisecond, func(_ domain.PeerID, err error) {
		failed <- err
	})
	f.coord.PeerJoined("p1", "alice")
	f.dialer.lastLink(t).deliver(newFakeStream("r1"))
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())

	select {
	case err := <-failed:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if f.view.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.view.Len())
	}
}

func TestLateInfoAfterTimeoutIgnored(t *testing.T) {
	failed := make(chan error, 1)
	f := newFixture(t, 20*time.Millisecond, func(_ domain.PeerID, err error) {
		failed <- err
	})
	f.coord.PeerJoined("p1", "alice")
	f.dialer.lastLink(t).deliver(newFakeStream("r1"))

	<-failed
	f.coord.InfoReceived("p1", "self", "alice", liveInfo())
	if f.view.Len() != 1 {
		t.Error("handshake completing after failure must not bind")
	}
}
