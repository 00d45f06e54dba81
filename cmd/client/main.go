// Headless session client: joins a session, keeps the audio mesh up
// and logs playback/chat events. Useful for soak-testing a server
// without a browser.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/mesh"
	"github.com/syncsound/syncsound/internal/protocol"
)

func main() {
	var (
		server  = flag.String("server", "http://localhost:8080", "server base URL")
		session = flag.String("session", "", "session id to join")
		name    = flag.String("name", "headless", "display name")
		stun    = flag.String("stun", "", "comma-separated STUN server URLs (default: public Google STUN)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *session == "" {
		log.Fatal().Msg("-session is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := mesh.Dial(ctx, *server)
	if err != nil {
		log.Fatal().Err(err).Msg("dial failed")
	}
	defer conn.Close()

	var stunServers []string
	if *stun != "" {
		stunServers = strings.Split(*stun, ",")
	}

	// Listen-only: no local audio source, the mesh still forms and we
	// receive every peer's stream.
	client := mesh.NewClient(conn, mesh.NewWebRTCLink(mesh.DefaultRTCConfig(stunServers)), nil)
	client.OnRemoteStream(func(peerID string, track *webrtc.TrackRemote) {
		log.Info().Str("peer", peerID).Str("codec", track.Codec().MimeType).Msg("remote audio available")
	})

	user := domain.UserRef{ID: xid.New().String(), Name: *name}
	if err := conn.Join(*session, user); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}

	handlers := mesh.Handlers{
		OnSessionState: func(s protocol.SessionState) {
			log.Info().Str("session", s.SessionID).Int("queue", len(s.Queue)).
				Bool("playing", s.IsPlaying).Msg("session state")
		},
		OnTrackAdvanced: func(e protocol.TrackAdvanced) {
			title := "(none)"
			if e.CurrentTrack != nil {
				title = e.CurrentTrack.Title
			}
			log.Info().Str("track", title).Bool("playing", e.IsPlaying).Msg("track advanced")
		},
		OnPlayingChanged: func(e protocol.PlayingChanged) {
			log.Info().Bool("playing", e.IsPlaying).Msg("play state changed")
		},
		OnQueueUpdated: func(e protocol.QueueUpdated) {
			log.Info().Int("queue", len(e.Queue)).Msg("queue updated")
		},
		OnChat: func(e protocol.ChatMessage) {
			log.Info().Str("from", e.User.Name).Str("text", e.Text).Msg("chat")
		},
		OnError: func(e protocol.ErrorEvent) {
			log.Warn().Str("code", e.Code).Str("msg", e.Message).Msg("server error event")
		},
	}

	if err := conn.Run(ctx, client, handlers); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("connection lost")
	}
}
