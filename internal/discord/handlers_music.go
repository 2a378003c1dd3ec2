package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"tunelink/internal/music/engine"
	"tunelink/internal/music/voice"
	"tunelink/internal/nowplaying"
)

func (b *Bot) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, ok := b.userVoiceChannel(s, i)
	if !ok {
		respondEphemeral(s, i, "You need to be in a voice channel first.")
		return
	}

	ctx, cancel := engineContext()
	defer cancel()
	if err := b.engine.Join(ctx, channelID); err != nil {
		respondEphemeral(s, i, engineErrorMessage(err))
		return
	}
	respond(s, i, "👋 Joined your voice channel.")
}

func (b *Bot) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := engineContext()
	defer cancel()
	if err := b.engine.Leave(ctx); err != nil {
		respondEphemeral(s, i, engineErrorMessage(err))
		return
	}
	respond(s, i, "👋 Left the voice channel, queue cleared.")
}

// handleQueue adds a source reference and nudges the engine; with no source
// it just shows the pending list.
func (b *Bot) handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	source := strings.TrimSpace(optionString(i, "source"))
	if source == "" {
		b.showQueue(s, i)
		return
	}

	if !b.voice.Connected() {
		channelID, ok := b.userVoiceChannel(s, i)
		if !ok {
			respondEphemeral(s, i, "Join a voice channel (or have me /join) before queueing.")
			return
		}
		ctx, cancel := engineContext()
		if err := b.engine.Join(ctx, channelID); err != nil {
			cancel()
			respondEphemeral(s, i, engineErrorMessage(err))
			return
		}
		cancel()
	}

	ctx, cancel := engineContext()
	defer cancel()
	if err := b.engine.Enqueue(ctx, source); err != nil {
		respondEphemeral(s, i, engineErrorMessage(err))
		return
	}
	respond(s, i, fmt.Sprintf("➕ Queued: %s", source))

	// Kick playback if idle. Errors here are advisory: the reply above
	// already went out.
	advCtx, advCancel := engineContext()
	defer advCancel()
	if err := b.engine.Advance(advCtx, i.ChannelID); err != nil && !errors.Is(err, engine.ErrQueueEmpty) {
		b.Notify(i.ChannelID, engineErrorMessage(err))
	}
}

func (b *Bot) showQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := engineContext()
	defer cancel()
	pending, err := b.engine.Pending(ctx)
	if err != nil {
		respondEphemeral(s, i, engineErrorMessage(err))
		return
	}
	if len(pending) == 0 {
		respondEphemeral(s, i, "The queue is empty.")
		return
	}

	var sb strings.Builder
	for n, ref := range pending {
		fmt.Fprintf(&sb, "%d. %s\n", n+1, ref)
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Queue (%d)", len(pending)),
		Description: sb.String(),
		Color:       embedColor,
	})
}

func (b *Bot) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := engineContext()
	defer cancel()
	if err := b.engine.Stop(ctx); err != nil {
		respondEphemeral(s, i, engineErrorMessage(err))
		return
	}
	respond(s, i, "⏹️ Stopped and cleared the queue.")
}

func (b *Bot) handleVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	delta := voice.VolumeStep
	if optionString(i, "direction") == "down" {
		delta = -voice.VolumeStep
	}

	ctx, cancel := engineContext()
	defer cancel()
	volume, err := b.engine.AdjustVolume(ctx, delta)
	if err != nil {
		respondEphemeral(s, i, engineErrorMessage(err))
		return
	}
	respond(s, i, fmt.Sprintf("🔊 Volume set to %d%% (voice playback only, your Spotify volume is untouched).", int(volume*100)))
}

func (b *Bot) handleNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := engineContext()
	defer cancel()

	var userID string
	if i.Member != nil {
		userID = i.Member.User.ID
	}
	snap := b.projector.Project(ctx, userID)

	switch snap.Status {
	case nowplaying.StatusNotLoggedIn:
		respondEphemeral(s, i, "Nothing queued and no Spotify linked. Try /link-spotify or /queue.")
		return
	case nowplaying.StatusNoMusic:
		respondEphemeral(s, i, "Nothing is playing right now.")
		return
	}

	title := "Now Playing"
	if snap.Status == nowplaying.StatusRemotePaused || snap.Status == nowplaying.StatusQueuePaused {
		title = "Paused"
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s**", snap.Title),
		Color:       embedColor,
	}
	if snap.Artist != "" {
		embed.Description += fmt.Sprintf("\nby %s", snap.Artist)
	}
	if snap.CoverArtURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: snap.CoverArtURL}
	}
	if snap.DurationMs > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s / %s", formatMs(snap.ProgressMs), formatMs(snap.DurationMs)),
		}
	}
	respondEmbed(s, i, embed)
}

func formatMs(ms int) string {
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// engineErrorMessage keeps chat replies friendly for the known states.
func engineErrorMessage(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotReady):
		return "⏳ I'm still starting up, try again in a moment."
	case errors.Is(err, engine.ErrTimeout):
		return "⏳ That took too long, try again."
	case errors.Is(err, engine.ErrNotConnected), errors.Is(err, voice.ErrNotConnected):
		return "I'm not in a voice channel. Use /join first."
	case errors.Is(err, engine.ErrQueueEmpty):
		return "The queue is empty."
	case errors.Is(err, engine.ErrNotPlaying), errors.Is(err, voice.ErrNotPlaying):
		return "Nothing is playing."
	case errors.Is(err, voice.ErrNotPaused):
		return "Playback is not paused."
	default:
		return fmt.Sprintf("❌ %v", err)
	}
}
