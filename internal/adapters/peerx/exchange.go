package peerx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/domain"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type peerConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *peerConn) trySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("peer connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("peer backpressure")
	}
}

func (c *peerConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// Exchange is the server side: peers register under their id and frames are
// forwarded to whoever the dst names. Unknown destinations are dropped.
type Exchange struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*peerConn
}

func NewExchange() *Exchange {
	return &Exchange{peers: make(map[domain.PeerID]*peerConn)}
}

// HandlePeer upgrades the request and registers the peer under ?id=.
func (x *Exchange) HandlePeer(ctx context.Context, c *gin.Context) {
	id := domain.PeerID(c.Query("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "peerx").Msg("ws upgrade")
		return
	}

	conn := &peerConn{conn: ws, send: make(chan []byte, sendBuffer)}

	x.mu.Lock()
	if old, ok := x.peers[id]; ok {
		old.close()
	}
	x.peers[id] = conn
	x.mu.Unlock()
	log.Info().Str("module", "peerx").Str("peer", string(id)).Msg("peer registered")

	ctx, cancel := context.WithCancel(ctx)
	go x.writePump(ctx, cancel, conn)
	go x.readPump(ctx, cancel, id, conn)
}

func (x *Exchange) writePump(ctx context.Context, cancel context.CancelFunc, c *peerConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
	}()
	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "peerx").Msg("write error")
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

func (x *Exchange) readPump(ctx context.Context, cancel context.CancelFunc, id domain.PeerID, c *peerConn) {
	defer func() {
		cancel()
		x.unregister(id, c)
		c.close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			x.forward(id, data)
		}
	}
}

// forward stamps the sender and relays to the destination. The payload is
// never inspected.
func (x *Exchange) forward(src domain.PeerID, data []byte) {
	f, err := parseFrame(data)
	if err != nil {
		log.Error().Err(err).Str("module", "peerx").Msg("bad frame")
		return
	}
	f.Src = src

	x.mu.RLock()
	dst, ok := x.peers[f.Dst]
	x.mu.RUnlock()
	if !ok {
		log.Warn().Str("module", "peerx").Str("dst", string(f.Dst)).Msg("unknown destination")
		return
	}

	out, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("module", "peerx").Msg("marshal frame")
		return
	}
	if err := dst.trySend(out); err != nil {
		log.Warn().Err(err).Str("module", "peerx").Str("dst", string(f.Dst)).Msg("drop frame")
	}
}

func (x *Exchange) unregister(id domain.PeerID, c *peerConn) {
	x.mu.Lock()
	defer x.mu.Unlock()
	// A reconnect may have replaced the entry already.
	if cur, ok := x.peers[id]; ok && cur == c {
		delete(x.peers, id)
		log.Info().Str("module", "peerx").Str("peer", string(id)).Msg("peer unregistered")
	}
}
