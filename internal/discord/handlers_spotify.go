package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"tunelink/internal/spotify"
)

const remoteTimeout = 10 * time.Second

func remoteContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), remoteTimeout)
}

func (b *Bot) handleRemotePlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if b.remote == nil {
		respondEphemeral(s, i, "Spotify is not configured on this bot.")
		return
	}
	userID := i.Member.User.ID
	query := optionString(i, "query")

	ctx, cancel := remoteContext()
	defer cancel()
	title, err := b.remote.Play(ctx, userID, query)
	if err != nil {
		respondEphemeral(s, i, remoteErrorMessage(err))
		return
	}
	if title == "" {
		respond(s, i, "▶️ Resumed your Spotify playback.")
		return
	}
	respond(s, i, fmt.Sprintf("🎵 Playing on your Spotify: **%s**", title))
}

// handleRemoteSimple covers the argument-free remote controls.
func (b *Bot) handleRemoteSimple(s *discordgo.Session, i *discordgo.InteractionCreate, action string) {
	if b.remote == nil {
		respondEphemeral(s, i, "Spotify is not configured on this bot.")
		return
	}
	userID := i.Member.User.ID

	ctx, cancel := remoteContext()
	defer cancel()

	var err error
	var reply string
	switch action {
	case "pause":
		err = b.remote.Pause(ctx, userID)
		reply = "⏸️ Paused your Spotify."
	case "resume":
		err = b.remote.Resume(ctx, userID)
		reply = "▶️ Resumed your Spotify."
	case "skip":
		err = b.remote.Next(ctx, userID)
		reply = "⏭️ Skipped."
	case "previous":
		err = b.remote.Previous(ctx, userID)
		reply = "⏮️ Went back a track."
	}
	if err != nil {
		respondEphemeral(s, i, remoteErrorMessage(err))
		return
	}
	respond(s, i, reply)
}

func (b *Bot) handleLinkSpotify(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if b.remote == nil || b.links == nil {
		respondEphemeral(s, i, "Spotify is not configured on this bot.")
		return
	}
	userID := i.Member.User.ID
	if b.remote.Linked(userID) {
		respondEphemeral(s, i, "Your Spotify is already linked. Linking again will replace it:\n"+b.links.SpotifyLinkURL(userID))
		return
	}
	respondEphemeral(s, i, "🔗 Link your Spotify account here:\n"+b.links.SpotifyLinkURL(userID))
}

func remoteErrorMessage(err error) string {
	switch {
	case errors.Is(err, spotify.ErrNotLinked):
		return "Your Spotify is not linked (or the link expired). Use /link-spotify."
	case errors.Is(err, spotify.ErrNoActiveDevice):
		return "No active Spotify device found. Open Spotify on any device and try again."
	case errors.Is(err, spotify.ErrPremiumRequired):
		return "Spotify Premium is required for playback control."
	case errors.Is(err, spotify.ErrRateLimited):
		return "Spotify is rate limiting us, wait a moment and retry."
	case errors.Is(err, spotify.ErrNothingFound):
		return "No matching track found on Spotify."
	default:
		return fmt.Sprintf("❌ Spotify error: %v", err)
	}
}
