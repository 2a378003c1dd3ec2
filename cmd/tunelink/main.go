package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"tunelink/internal/config"
	"tunelink/internal/discord"
	"tunelink/internal/logging"
	"tunelink/internal/music/engine"
	"tunelink/internal/music/resolver"
	"tunelink/internal/music/voice"
	"tunelink/internal/nowplaying"
	"tunelink/internal/poll"
	"tunelink/internal/spotify"
	"tunelink/internal/storage"
	"tunelink/internal/tts"
	"tunelink/internal/web"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	logging.Setup(cfg.LogPath)
	log.Info().Msg("starting tunelink")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer store.Close()

	var remote *spotify.Controller
	if cfg.SpotifyEnabled() {
		remote = spotify.New(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI, store)
		if err := remote.LoadFromStorage(); err != nil {
			log.Warn().Err(err).Msg("could not restore spotify credentials")
		}
	} else {
		log.Info().Msg("spotify credentials not set, remote playback disabled")
	}

	// The bot is created first so the voice session can ride its gateway
	// connection; the engine notifier is the bot itself.
	polls := poll.NewManager()
	speech := tts.New()

	var bot *discord.Bot
	var session *voice.Session
	var eng *engine.Engine
	var projector *nowplaying.Projector
	var server *web.Server

	deps := discord.Deps{
		Config:  cfg,
		Remote:  remote,
		Polls:   polls,
		Speech:  speech,
		Storage: store,
	}

	bot, err = discord.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("discord init failed")
	}

	session = voice.New(bot.Session(), cfg.GuildID, cfg.FFmpegPath)
	eng = engine.New(session, resolver.New(cfg.YTDLPPath), bot)

	// A nil *Controller must not end up inside the interface value.
	var remoteSrc nowplaying.RemoteSource
	if remote != nil {
		remoteSrc = remote
	}
	projector = nowplaying.New(remoteSrc, eng)
	server = web.New(cfg, eng, remote, projector, store)
	bot.Wire(eng, session, projector, server)

	go eng.Run(ctx)
	go func() {
		if err := server.Run(ctx); err != nil {
			log.Error().Err(err).Msg("web server error")
			cancel()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("discord bot error")
		}
		cancel()
	}

	log.Info().Msg("bye")
}
