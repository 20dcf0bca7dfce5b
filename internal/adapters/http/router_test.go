package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/huddlelabs/huddle/internal/adapters/peerx"
	"github.com/huddlelabs/huddle/internal/adapters/signal"
	"github.com/huddlelabs/huddle/internal/app"
	"github.com/huddlelabs/huddle/internal/client"
	"github.com/huddlelabs/huddle/internal/config"
	"github.com/huddlelabs/huddle/internal/domain"
)

type presenceEvent struct {
	id   domain.PeerID
	name string
}

type infoEvent struct {
	src, dest domain.PeerID
	info      domain.StreamInfo
}

type chatEvent struct {
	name, body string
}

type audioEvent struct {
	id    domain.PeerID
	audio bool
}

// recorder funnels the fan-out into channels the test can wait on.
type recorder struct {
	connected    chan presenceEvent
	disconnected chan presenceEvent
	infos        chan infoEvent
	replaced     chan presenceEvent
	messages     chan chatEvent
	audio        chan audioEvent
}

func newRecorder() *recorder {
	return &recorder{
		connected:    make(chan presenceEvent, 8),
		disconnected: make(chan presenceEvent, 8),
		infos:        make(chan infoEvent, 8),
		replaced:     make(chan presenceEvent, 8),
		messages:     make(chan chatEvent, 8),
		audio:        make(chan audioEvent, 8),
	}
}

func (r *recorder) OnUserConnected(id domain.PeerID, name string) {
	r.connected <- presenceEvent{id: id, name: name}
}

func (r *recorder) OnUserDisconnected(id domain.PeerID, name string) {
	r.disconnected <- presenceEvent{id: id, name: name}
}

func (r *recorder) OnInfo(src, dest domain.PeerID, name string, info domain.StreamInfo) {
	r.infos <- infoEvent{src: src, dest: dest, info: info}
}

func (r *recorder) OnStreamReplaced(id domain.PeerID, name string) {
	r.replaced <- presenceEvent{id: id, name: name}
}

func (r *recorder) OnMessage(name, body string) {
	r.messages <- chatEvent{name: name, body: body}
}

func (r *recorder) OnAudioToggled(id domain.PeerID, audio bool) {
	r.audio <- audioEvent{id: id, audio: audio}
}

func (r *recorder) OnVideoToggled(id domain.PeerID, video domain.TrackState) {}

func startRelay(t *testing.T) (string, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	relay := app.NewRelay(app.NewRegistry(), app.NewRoomManager(), app.KickPolicy{})
	ctl := signal.NewController(relay, 32768, 54*time.Second)
	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		Secret:     "test-secret",
	}
	r := SetupRouter(ctx, cfg, ctl, peerx.NewExchange())

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv
}

func joinClient(t *testing.T, base string, room domain.RoomID, id domain.PeerID, name string) (*client.Client, *recorder) {
	t.Helper()
	rec := newRecorder()
	c, err := client.Dial(base, rec)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.JoinRoom(room, id, name); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	// Let the relay process the join before the next client races it.
	time.Sleep(100 * time.Millisecond)
	return c, rec
}

func waitPresence(t *testing.T, ch chan presenceEvent) presenceEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("presence event never arrived")
		return presenceEvent{}
	}
}

func TestJoinAnnouncesToExistingMembers(t *testing.T) {
	base, _ := startRelay(t)
	_, recA := joinClient(t, base, "room-1", "pa", "alice")
	joinClient(t, base, "room-1", "pb", "bob")

	e := waitPresence(t, recA.connected)
	if e.id != "pb" || e.name != "bob" {
		t.Errorf("user-connected = %+v", e)
	}
}

func TestJoinerGetsNoEcho(t *testing.T) {
	base, _ := startRelay(t)
	joinClient(t, base, "room-1", "pa", "alice")
	_, recB := joinClient(t, base, "room-1", "pb", "bob")

	select {
	case e := <-recB.connected:
		t.Errorf("joiner received user-connected: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRoomIsolation(t *testing.T) {
	base, _ := startRelay(t)
	_, recA := joinClient(t, base, "room-1", "pa", "alice")
	joinClient(t, base, "room-2", "pc", "carol")

	select {
	case e := <-recA.connected:
		t.Errorf("event leaked across rooms: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInfoFanOut(t *testing.T) {
	base, _ := startRelay(t)
	_, recA := joinClient(t, base, "room-1", "pa", "alice")
	b, recB := joinClient(t, base, "room-1", "pb", "bob")
	waitPresence(t, recA.connected)

	info := domain.StreamInfo{Video: domain.TrackLive, Audio: false}
	if err := b.SendInfo("pb", "pa", "bob", info); err != nil {
		t.Fatalf("SendInfo: %v", err)
	}

	select {
	case e := <-recA.infos:
		if e.src != "pb" || e.dest != "pa" || e.info != info {
			t.Errorf("get-info = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("get-info never arrived")
	}

	// The relay excludes the sender from the handshake fan-out.
	select {
	case e := <-recB.infos:
		t.Errorf("sender received its own handshake: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChatExcludesSender(t *testing.T) {
	base, _ := startRelay(t)
	a, recA := joinClient(t, base, "room-1", "pa", "alice")
	_, recB := joinClient(t, base, "room-1", "pb", "bob")
	waitPresence(t, recA.connected)

	if err := a.SendMessage("alice", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	select {
	case e := <-recB.messages:
		if e.name != "alice" || e.body != "hello" {
			t.Errorf("message = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
	select {
	case e := <-recA.messages:
		t.Errorf("sender received its own message: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAudioToggleReachesSenderToo(t *testing.T) {
	base, _ := startRelay(t)
	a, recA := joinClient(t, base, "room-1", "pa", "alice")
	_, recB := joinClient(t, base, "room-1", "pb", "bob")
	waitPresence(t, recA.connected)

	if err := a.SendAudio("pa", false); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	for _, ch := range []chan audioEvent{recA.audio, recB.audio} {
		select {
		case e := <-ch:
			if e.id != "pa" || e.audio {
				t.Errorf("get-audio = %+v", e)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("get-audio never arrived")
		}
	}
}

func TestStreamReplacedFanOut(t *testing.T) {
	base, _ := startRelay(t)
	_, recA := joinClient(t, base, "room-1", "pa", "alice")
	b, _ := joinClient(t, base, "room-1", "pb", "bob")
	waitPresence(t, recA.connected)

	if err := b.SendReplaceStream("pb", "bob"); err != nil {
		t.Fatalf("SendReplaceStream: %v", err)
	}
	e := waitPresence(t, recA.replaced)
	if e.id != "pb" {
		t.Errorf("stream-replaced = %+v", e)
	}
}

func TestDisconnectAnnounced(t *testing.T) {
	base, _ := startRelay(t)
	_, recA := joinClient(t, base, "room-1", "pa", "alice")
	b, _ := joinClient(t, base, "room-1", "pb", "bob")
	waitPresence(t, recA.connected)

	b.Close()
	e := waitPresence(t, recA.disconnected)
	if e.id != "pb" || e.name != "bob" {
		t.Errorf("user-disconnected = %+v", e)
	}
}

func TestRoomAPI(t *testing.T) {
	base, srv := startRelay(t)
	joinClient(t, base, "room-1", "pa", "alice")
	joinClient(t, base, "room-1", "pb", "bob")

	resp, err := http.Get(srv.URL + "/api/rooms/room-1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		ID          string `json:"id"`
		MemberCount int    `json:"member_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "room-1" || body.MemberCount != 2 {
		t.Errorf("room = %+v", body)
	}

	missing, err := http.Get(srv.URL + "/api/rooms/ghost")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("status for unknown room = %d", missing.StatusCode)
	}
}

func TestMembersAPI(t *testing.T) {
	base, srv := startRelay(t)
	joinClient(t, base, "room-1", "pa", "alice")

	resp, err := http.Get(srv.URL + "/api/rooms/room-1/members")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var members []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(members) != 1 || members[0].ID != "pa" || members[0].Name != "alice" {
		t.Errorf("members = %+v", members)
	}
}
