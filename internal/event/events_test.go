package event

import (
	"testing"

	"github.com/huddlelabs/huddle/internal/domain"
)

func TestPeek(t *testing.T) {
	typ, err := Peek([]byte(`{"type":"join-room","room":"r1","id":"p1"}`))
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if typ != TypeJoinRoom {
		t.Errorf("type = %q, want %q", typ, TypeJoinRoom)
	}
}

func TestPeekRejectsMissingType(t *testing.T) {
	if _, err := Peek([]byte(`{"room":"r1"}`)); err == nil {
		t.Error("expected error for missing type")
	}
	if _, err := Peek([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}

func TestDecodeJoinRoom(t *testing.T) {
	var e JoinRoom
	err := Decode([]byte(`{"type":"join-room","room":"meet/abc","id":"p1","name":"alice"}`), &e)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Room != "meet/abc" || e.ID != "p1" || e.Name != "alice" {
		t.Errorf("unexpected payload: %+v", e)
	}
}

func TestDecodeJoinRoomMissingID(t *testing.T) {
	var e JoinRoom
	if err := Decode([]byte(`{"type":"join-room","room":"r1"}`), &e); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestDecodeJoinRoomEmptyRoomAccepted(t *testing.T) {
	// Room keys are opaque; empty is a valid (if odd) key.
	var e JoinRoom
	if err := Decode([]byte(`{"type":"join-room","id":"p1"}`), &e); err != nil {
		t.Errorf("Decode: %v", err)
	}
}

func TestDecodeInfoExchange(t *testing.T) {
	var e InfoExchange
	err := Decode([]byte(`{"type":"set-info","src":"a","dest":"b","name":"alice","info":{"video":"live","audio":false}}`), &e)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Info.Video != domain.TrackLive || e.Info.Audio {
		t.Errorf("info = %+v", e.Info)
	}
}

func TestDecodeInfoExchangeRejectsBadVideoState(t *testing.T) {
	var e InfoExchange
	err := Decode([]byte(`{"type":"set-info","src":"a","dest":"b","info":{"video":"paused","audio":true}}`), &e)
	if err == nil {
		t.Error("expected error for unknown video state")
	}
}

func TestDecodeInfoExchangeRejectsMissingDest(t *testing.T) {
	var e InfoExchange
	err := Decode([]byte(`{"type":"set-info","src":"a","info":{"video":"live","audio":true}}`), &e)
	if err == nil {
		t.Error("expected error for missing dest")
	}
}

func TestDecodeChat(t *testing.T) {
	var e Chat
	if err := Decode([]byte(`{"type":"message-sent","name":"bob","body":"hi"}`), &e); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var empty Chat
	if err := Decode([]byte(`{"type":"message-sent","name":"bob"}`), &empty); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestDecodeVideoToggle(t *testing.T) {
	var e VideoToggle
	if err := Decode([]byte(`{"type":"set-video","id":"p1","video":"ended"}`), &e); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Video != domain.TrackEnded {
		t.Errorf("video = %q", e.Video)
	}
	if err := Decode([]byte(`{"type":"set-video","id":"p1","video":"off"}`), &e); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestDecodeAudioToggle(t *testing.T) {
	var e AudioToggle
	if err := Decode([]byte(`{"type":"set-audio","id":"p1","audio":true}`), &e); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !e.Audio {
		t.Error("audio should be true")
	}
}
