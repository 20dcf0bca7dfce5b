// Package http wires the gin router: REST introspection under /api,
// the signaling WebSocket, and the peer exchange WebSocket.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/adapters/peerx"
	"github.com/huddlelabs/huddle/internal/adapters/signal"
	"github.com/huddlelabs/huddle/internal/config"
	"github.com/huddlelabs/huddle/internal/domain"
)

// ClientTokenMiddleware gives every browser a stable connection token; the
// signaling controller uses it as the session id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, exchange *peerx.Exchange) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// GET /api/rooms — list rooms
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": ctl.Relay.Rooms.List()})
	})

	// GET /api/rooms/:room — room info
	api.GET("/rooms/:room", func(c *gin.Context) {
		id := domain.RoomID(c.Param("room"))
		room, ok := ctl.Relay.Rooms.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":           room.Room().ID,
			"member_count": room.MemberCount(),
		})
	})

	// GET /api/rooms/:room/members — list members in a room
	api.GET("/rooms/:room/members", func(c *gin.Context) {
		id := domain.RoomID(c.Param("room"))
		room, ok := ctl.Relay.Rooms.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room.MembersSnapshot())
	})

	// DELETE /api/rooms/:room — drop a room. Operator tool; rooms are never
	// reaped automatically.
	api.DELETE("/rooms/:room", func(c *gin.Context) {
		ctl.Relay.Rooms.StopRoom(domain.RoomID(c.Param("room")))
		c.Status(http.StatusNoContent)
	})

	// Signaling WS: membership + handshake relay.
	r.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	// Peer exchange WS: point-to-point media negotiation.
	r.GET("/peer/ws", func(c *gin.Context) {
		exchange.HandlePeer(ctx, c)
	})

	return r
}
