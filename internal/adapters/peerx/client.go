package peerx

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/domain"
)

// Client is the peer-side endpoint of the exchange: it registers the local
// peer id and delivers inbound frames to a single handler.
type Client struct {
	id      domain.PeerID
	conn    *websocket.Conn
	handler func(Frame)

	mu     sync.Mutex
	closed chan struct{}
}

// Dial connects to the exchange and starts the read loop. baseURL is the
// ws(s) origin of the relay server.
func Dial(baseURL string, id domain.PeerID, handler func(Frame)) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("peerx: parse url: %w", err)
	}
	u.Path = "/peer/ws"
	u.RawQuery = url.Values{"id": {string(id)}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("peerx: dial: %w", err)
	}

	c := &Client{
		id:      id,
		conn:    conn,
		handler: handler,
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send relays a negotiation payload to dst.
func (c *Client) Send(dst domain.PeerID, kind Kind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("peerx: marshal payload: %w", err)
	}
	f := Frame{Dst: dst, Src: c.id, Kind: kind, Payload: raw}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("peerx: marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("peerx: write: %w", err)
	}
	return nil
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
				log.Error().Err(err).Str("module", "peerx.client").Msg("read error")
			}
			return
		}

		f, err := parseFrame(data)
		if err != nil {
			log.Error().Err(err).Str("module", "peerx.client").Msg("bad frame")
			continue
		}
		if c.handler != nil {
			c.handler(f)
		}
	}
}
