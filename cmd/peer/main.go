// Command peer is a headless participant: it joins a room, negotiates media
// links with every other member, and keeps a live roster of their streams.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/huddlelabs/huddle/internal/adapters/rtc"
	"github.com/huddlelabs/huddle/internal/client"
	"github.com/huddlelabs/huddle/internal/coordinator"
	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/roster"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file")
	}

	baseURL := env("HUDDLE_URL", "ws://localhost:4000")
	room := domain.RoomID(env("HUDDLE_ROOM", "lobby"))
	name := env("HUDDLE_NAME", "guest")
	selfID := domain.PeerID(uuid.NewString())

	local, err := rtc.NewLocalStream()
	if err != nil {
		log.Fatal().Err(err).Msg("local stream")
	}
	go feedTrack(ctx, local.Audio(), 20*time.Millisecond, 960)
	go feedTrack(ctx, local.Video(), 33*time.Millisecond, 3000)

	dialer, err := rtc.NewDialer(baseURL, selfID)
	if err != nil {
		log.Fatal().Err(err).Msg("peer exchange")
	}
	defer dialer.Close()

	view := roster.New(roster.Tile{ID: selfID, Name: name, Stream: local})

	h := &handler{}
	sig, err := client.Dial(baseURL, h)
	if err != nil {
		log.Fatal().Err(err).Msg("signaling")
	}
	defer sig.Close()

	coord := coordinator.New(coordinator.Config{
		SelfID:             selfID,
		SelfName:           name,
		Local:              local,
		Dialer:             dialer,
		Signals:            sig,
		Roster:             view,
		NegotiationTimeout: 30 * time.Second,
		OnFailure: func(peer domain.PeerID, err error) {
			log.Error().Err(err).Str("peer", string(peer)).Msg("could not join peer")
		},
	})
	h.coord = coord
	coord.Start(ctx)
	defer coord.Close()

	if err := sig.JoinRoom(room, selfID, name); err != nil {
		log.Fatal().Err(err).Msg("join room")
	}
	log.Info().Str("room", string(room)).Str("id", string(selfID)).Str("name", name).Msg("joined")

	<-ctx.Done()
	log.Info().Int("tiles", view.Len()).Msg("leaving")
}

// feedTrack paces synthetic RTP into a local track so peers have bytes to
// receive. Real capture hardware would replace this loop.
func feedTrack(ctx context.Context, t *rtc.LocalTrack, interval time.Duration, step uint32) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, SSRC: uuid.New().ID()},
		Payload: make([]byte, 160),
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pkt.SequenceNumber++
			pkt.Timestamp += step
			if err := t.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("kind", string(t.Kind())).Msg("write rtp")
			}
		}
	}
}

// handler bridges the room fan-out into the coordinator.
type handler struct {
	coord *coordinator.Coordinator
}

func (h *handler) OnUserConnected(id domain.PeerID, name string) {
	log.Info().Str("peer", string(id)).Str("name", name).Msg("user connected")
	h.coord.PeerJoined(id, name)
}

func (h *handler) OnUserDisconnected(id domain.PeerID, name string) {
	log.Info().Str("peer", string(id)).Str("name", name).Msg("user disconnected")
	h.coord.PeerLeft(id)
}

func (h *handler) OnInfo(src, dest domain.PeerID, name string, info domain.StreamInfo) {
	h.coord.InfoReceived(src, dest, name, info)
}

func (h *handler) OnStreamReplaced(id domain.PeerID, name string) {
	h.coord.StreamReplaced(id, name)
}

func (h *handler) OnMessage(name, body string) {
	log.Info().Str("from", name).Msg(body)
}

func (h *handler) OnAudioToggled(id domain.PeerID, audio bool) {
	log.Info().Str("peer", string(id)).Bool("audio", audio).Msg("audio toggled")
}

func (h *handler) OnVideoToggled(id domain.PeerID, video domain.TrackState) {
	log.Info().Str("peer", string(id)).Str("video", string(video)).Msg("video toggled")
}
