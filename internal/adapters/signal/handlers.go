package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/core"
	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/event"
)

func (ctl *Controller) handleJoinRoom(sid core.SessionID, data []byte) {
	var p event.JoinRoom
	if err := event.Decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join-room payload")
		return
	}

	participant, err := domain.NewParticipant(p.ID, p.Name)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad participant")
		return
	}

	if !ctl.Relay.Join(sid, p.Room, participant) {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("peer", string(p.ID)).Str("room", string(p.Room)).Msg("join-room")

	// Fire-and-forget announcement to everyone already in the room; the
	// joiner itself gets nothing back.
	frame, ok := marshalFrame(event.Presence{
		Type: event.TypeUserConnected,
		ID:   participant.ID,
		Name: participant.Name,
	})
	if !ok {
		return
	}
	ctl.Relay.BroadcastFrom(sid, frame)
}

// handleSetInfo re-broadcasts the handshake to the whole room. No dest
// filtering happens here: every listener receives every handshake and
// self-filters by comparing dest to its own id.
func (ctl *Controller) handleSetInfo(sid core.SessionID, data []byte) {
	var p event.InfoExchange
	if err := event.Decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad set-info payload")
		return
	}

	frame, ok := marshalFrame(event.InfoExchange{
		Type: event.TypeGetInfo,
		Src:  p.Src,
		Dest: p.Dest,
		Name: p.Name,
		Info: p.Info,
	})
	if !ok {
		return
	}
	ctl.Relay.BroadcastFrom(sid, frame)
}

func (ctl *Controller) handleReplaceStream(sid core.SessionID, data []byte) {
	var p event.Presence
	if err := event.Decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad replace-stream payload")
		return
	}

	frame, ok := marshalFrame(event.Presence{
		Type: event.TypeStreamReplaced,
		ID:   p.ID,
		Name: p.Name,
	})
	if !ok {
		return
	}
	ctl.Relay.BroadcastFrom(sid, frame)
}

func (ctl *Controller) handleMessageSent(sid core.SessionID, data []byte) {
	var p event.Chat
	if err := event.Decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message-sent payload")
		return
	}

	frame, ok := marshalFrame(event.Chat{
		Type: event.TypeMessage,
		Name: p.Name,
		Body: p.Body,
	})
	if !ok {
		return
	}
	ctl.Relay.BroadcastFrom(sid, frame)
}

// Audio/video toggles reach the whole room, sender included, so every
// client (the sender's own UI too) converges on the same flag.
func (ctl *Controller) handleSetAudio(sid core.SessionID, data []byte) {
	var p event.AudioToggle
	if err := event.Decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad set-audio payload")
		return
	}

	frame, ok := marshalFrame(event.AudioToggle{
		Type:  event.TypeGetAudio,
		ID:    p.ID,
		Audio: p.Audio,
	})
	if !ok {
		return
	}
	ctl.Relay.BroadcastRoom(sid, frame)
}

func (ctl *Controller) handleSetVideo(sid core.SessionID, data []byte) {
	var p event.VideoToggle
	if err := event.Decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad set-video payload")
		return
	}

	frame, ok := marshalFrame(event.VideoToggle{
		Type:  event.TypeGetVideo,
		ID:    p.ID,
		Video: p.Video,
	})
	if !ok {
		return
	}
	ctl.Relay.BroadcastRoom(sid, frame)
}

// onDisconnect announces the departure to the room the participant last
// joined. If the connection never joined, there is no room to target and
// the departure is silent.
func (ctl *Controller) onDisconnect(sid core.SessionID) {
	roomID, participant, ok := ctl.Relay.Disconnect(sid)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("disconnected")

	frame, fok := marshalFrame(event.Presence{
		Type: event.TypeUserDisconnected,
		ID:   participant.ID,
		Name: participant.Name,
	})
	if !fok {
		return
	}
	room, rok := ctl.Relay.Rooms.Get(roomID)
	if !rok {
		return
	}
	room.BroadcastAll(frame)
}
