// Package client is the participant-side endpoint of the signaling relay:
// it emits the client events and dispatches the room fan-out to a handler.
package client

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/event"
)

const writeWait = 5 * time.Second

// EventHandler receives the room fan-out. Handlers run on the read loop;
// they must not block.
type EventHandler interface {
	OnUserConnected(id domain.PeerID, name string)
	OnUserDisconnected(id domain.PeerID, name string)
	OnInfo(src, dest domain.PeerID, name string, info domain.StreamInfo)
	OnStreamReplaced(id domain.PeerID, name string)
	OnMessage(name, body string)
	OnAudioToggled(id domain.PeerID, audio bool)
	OnVideoToggled(id domain.PeerID, video domain.TrackState)
}

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	conn    *websocket.Conn
	handler EventHandler

	mu     sync.Mutex
	closed chan struct{}
}

// Dial connects to the relay's signaling endpoint and starts the read loop.
// baseURL is the ws(s) origin of the relay server.
func Dial(baseURL string, handler EventHandler) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	u.Path = "/ws/signal"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	c := &Client{
		conn:    conn,
		handler: handler,
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// RoomFromPath derives the room key from a page path the way the UI does:
// the third path component ("/room/<id>/..." yields "<id>").
func RoomFromPath(path string) domain.RoomID {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return ""
	}
	return domain.RoomID(parts[2])
}

func (c *Client) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	_ = c.conn.Close()
}

func (c *Client) sendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// JoinRoom registers membership. The relay honors only the first join on a
// connection.
func (c *Client) JoinRoom(room domain.RoomID, id domain.PeerID, name string) error {
	return c.sendJSON(event.JoinRoom{Type: event.TypeJoinRoom, Room: room, ID: id, Name: name})
}

// SendInfo emits the StreamInfo handshake toward dest.
func (c *Client) SendInfo(src, dest domain.PeerID, name string, info domain.StreamInfo) error {
	return c.sendJSON(event.InfoExchange{Type: event.TypeSetInfo, Src: src, Dest: dest, Name: name, Info: info})
}

// SendReplaceStream announces that our outgoing stream changed and peers
// should renegotiate.
func (c *Client) SendReplaceStream(id domain.PeerID, name string) error {
	return c.sendJSON(event.Presence{Type: event.TypeReplaceStream, ID: id, Name: name})
}

func (c *Client) SendMessage(name, body string) error {
	return c.sendJSON(event.Chat{Type: event.TypeMessageSent, Name: name, Body: body})
}

func (c *Client) SendAudio(id domain.PeerID, audio bool) error {
	return c.sendJSON(event.AudioToggle{Type: event.TypeSetAudio, ID: id, Audio: audio})
}

func (c *Client) SendVideo(id domain.PeerID, video domain.TrackState) error {
	return c.sendJSON(event.VideoToggle{Type: event.TypeSetVideo, ID: id, Video: video})
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Error().Err(err).Str("module", "client").Msg("read error")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	typ, err := event.Peek(data)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("bad frame")
		return
	}

	switch typ {
	case event.TypeUserConnected:
		var p event.Presence
		if event.Decode(data, &p) == nil {
			c.handler.OnUserConnected(p.ID, p.Name)
		}
	case event.TypeUserDisconnected:
		var p event.Presence
		if event.Decode(data, &p) == nil {
			c.handler.OnUserDisconnected(p.ID, p.Name)
		}
	case event.TypeGetInfo:
		var p event.InfoExchange
		if event.Decode(data, &p) == nil {
			c.handler.OnInfo(p.Src, p.Dest, p.Name, p.Info)
		}
	case event.TypeStreamReplaced:
		var p event.Presence
		if event.Decode(data, &p) == nil {
			c.handler.OnStreamReplaced(p.ID, p.Name)
		}
	case event.TypeMessage:
		var p event.Chat
		if event.Decode(data, &p) == nil {
			c.handler.OnMessage(p.Name, p.Body)
		}
	case event.TypeGetAudio:
		var p event.AudioToggle
		if event.Decode(data, &p) == nil {
			c.handler.OnAudioToggled(p.ID, p.Audio)
		}
	case event.TypeGetVideo:
		var p event.VideoToggle
		if event.Decode(data, &p) == nil {
			c.handler.OnVideoToggled(p.ID, p.Video)
		}
	default:
		log.Warn().Str("module", "client").Str("type", string(typ)).Msg("unhandled event")
	}
}
