package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/core"
	"github.com/huddlelabs/huddle/internal/event"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.onDisconnect(sid)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.readLimit)

	// Pongs must keep arriving within pongWait or the connection is treated
	// as half-open and torn down.
	pongWait := ctl.pingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(sid, c, data)
		}
	}
}

func (ctl *Controller) handleEvent(sid core.SessionID, c *wsConn, data []byte) {
	typ, err := event.Peek(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad frame")
		return
	}

	switch typ {
	case event.TypeJoinRoom:
		ctl.handleJoinRoom(sid, data)
	case event.TypeSetInfo:
		ctl.handleSetInfo(sid, data)
	case event.TypeReplaceStream:
		ctl.handleReplaceStream(sid, data)
	case event.TypeMessageSent:
		ctl.handleMessageSent(sid, data)
	case event.TypeSetAudio:
		ctl.handleSetAudio(sid, data)
	case event.TypeSetVideo:
		ctl.handleSetVideo(sid, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(typ)).Msg("unknown event")
	}
}

// marshalFrame encodes once per fan-out; a frame that cannot be encoded is
// dropped like any other malformed event.
func marshalFrame(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal frame")
		return nil, false
	}
	return b, true
}
