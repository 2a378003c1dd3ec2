// Package discord is the chat-platform adapter: slash commands, poll
// buttons, and playback notifications for the single configured guild.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"tunelink/internal/config"
	"tunelink/internal/music/engine"
	"tunelink/internal/music/voice"
	"tunelink/internal/nowplaying"
	"tunelink/internal/poll"
	"tunelink/internal/spotify"
	"tunelink/internal/storage"
	"tunelink/internal/tts"
)

// Engine calls from interaction handlers are bounded so a stuck control
// loop degrades into an error reply instead of a hung interaction.
const engineTimeout = 5 * time.Second

// LinkURLProvider mints per-user Spotify OAuth URLs. Implemented by the web
// server, which owns the callback.
type LinkURLProvider interface {
	SpotifyLinkURL(userID string) string
}

// Bot owns the discordgo session and routes interactions to the playback
// subsystems.
type Bot struct {
	dg        *discordgo.Session
	cfg       *config.Config
	engine    *engine.Engine
	voice     *voice.Session
	remote    *spotify.Controller
	projector *nowplaying.Projector
	polls     *poll.Manager
	speech    *tts.Synthesizer
	store     *storage.Storage
	links     LinkURLProvider
}

// Deps carries the collaborators available at construction time. The
// subsystems built on top of the gateway session arrive later via Wire.
type Deps struct {
	Config  *config.Config
	Remote  *spotify.Controller
	Polls   *poll.Manager
	Speech  *tts.Synthesizer
	Storage *storage.Storage
}

func New(deps Deps) (*Bot, error) {
	dg, err := discordgo.New("Bot " + deps.Config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	b := &Bot{
		dg:     dg,
		cfg:    deps.Config,
		remote: deps.Remote,
		polls:  deps.Polls,
		speech: deps.Speech,
		store:  deps.Storage,
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteractionCreate)

	return b, nil
}

// Session exposes the underlying discordgo session so the voice subsystem
// can be wired onto it before Run.
func (b *Bot) Session() *discordgo.Session {
	return b.dg
}

// Wire attaches the subsystems built on top of the gateway session. Must be
// called before Run.
func (b *Bot) Wire(eng *engine.Engine, session *voice.Session, projector *nowplaying.Projector, links LinkURLProvider) {
	b.engine = eng
	b.voice = session
	b.projector = projector
	b.links = links
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	log.Info().Str("component", "discord").Msg("shutdown signal received, closing session")

	leaveCtx, cancel := context.WithTimeout(context.Background(), engineTimeout)
	defer cancel()
	if err := b.engine.Leave(leaveCtx); err != nil {
		log.Debug().Str("component", "discord").Err(err).Msg("voice cleanup on shutdown")
	}
	return nil
}

// onReady registers the guild slash commands and opens the engine's
// readiness gate. External callers get a "not ready" error until this fires.
func (b *Bot) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	if err := b.registerCommands(); err != nil {
		log.Error().Str("component", "discord").Err(err).Msg("slash command registration failed")
	}

	_ = s.UpdateListeningStatus("/queue")
	b.engine.SetReady()
	log.Info().Str("component", "discord").Str("user", s.State.User.Username).Msg("bot is ready")
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.dispatchCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.dispatchComponent(s, i)
	}
}

// Notify implements engine.Notifier: playback messages land in the channel
// the triggering command came from.
func (b *Bot) Notify(channelID, message string) {
	if channelID == "" {
		return
	}
	if _, err := b.dg.ChannelMessageSend(channelID, message); err != nil {
		log.Warn().Str("component", "discord").Str("channel", channelID).Err(err).Msg("notify failed")
	}
}

// userVoiceChannel returns the voice channel the interaction's user sits in.
func (b *Bot) userVoiceChannel(s *discordgo.Session, i *discordgo.InteractionCreate) (string, bool) {
	if i.Member == nil {
		return "", false
	}
	vs, err := s.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

func engineContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), engineTimeout)
}
