package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Join your voice channel"},
		{Name: "leave", Description: "Leave the voice channel and clear the queue"},
		{
			Name:        "play",
			Description: "Play a track on your Spotify",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Track link or search text",
				Required:    true,
			}},
		},
		{Name: "pause", Description: "Pause your Spotify playback"},
		{Name: "resume", Description: "Resume your Spotify playback"},
		{Name: "skip", Description: "Skip to the next track on your Spotify"},
		{Name: "previous", Description: "Go back a track on your Spotify"},
		{
			Name:        "queue",
			Description: "Queue a link or search for voice-channel playback",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "source",
				Description: "URL, playlist link, or search text (empty shows the queue)",
			}},
		},
		{Name: "stop", Description: "Stop voice playback and clear the queue"},
		{
			Name:        "volume",
			Description: "Adjust voice playback volume (does not affect Spotify)",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "direction",
				Description: "Turn it up or down",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "up", Value: "up"},
					{Name: "down", Value: "down"},
				},
			}},
		},
		{Name: "nowplaying", Description: "Show what is playing right now"},
		{Name: "link-spotify", Description: "Link your Spotify account"},
		{
			Name:        "speak",
			Description: "Say something in the voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "What to say",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "lang",
					Description: "Language code, e.g. en, ru, de",
				},
			},
		},
		{
			Name:        "wake",
			Description: "Send someone a wake-up DM",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "target",
				Description: "Who to wake up",
				Required:    true,
			}},
		},
		{
			Name:        "random-name",
			Description: "Pick a random name from a list",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "names",
				Description: "Candidates, separated by commas",
				Required:    true,
			}},
		},
		{
			Name:        "poll",
			Description: "Start a poll with buttons",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "question",
					Description: "What to ask",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "options",
					Description: "Choices, separated by commas",
					Required:    true,
				},
			},
		},
	}
}

// registerCommands overwrites the guild's command set in one bulk call.
func (b *Bot) registerCommands() error {
	appID := b.dg.State.User.ID
	_, err := b.dg.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID, commandDefinitions())
	if err != nil {
		return fmt.Errorf("bulk overwrite commands: %w", err)
	}
	log.Info().Str("component", "discord").Str("guild", b.cfg.GuildID).Msg("slash commands registered")
	return nil
}

func (b *Bot) dispatchCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	log.Debug().Str("component", "discord").Str("command", name).Msg("command received")

	// Keep the display name on record for the web dashboard.
	if i.Member != nil {
		if err := b.store.UpsertUsername(i.Member.User.ID, i.Member.User.Username); err != nil {
			log.Debug().Str("component", "discord").Err(err).Msg("username upsert failed")
		}
	}

	switch name {
	case "join":
		b.handleJoin(s, i)
	case "leave":
		b.handleLeave(s, i)
	case "play":
		b.handleRemotePlay(s, i)
	case "pause":
		b.handleRemoteSimple(s, i, "pause")
	case "resume":
		b.handleRemoteSimple(s, i, "resume")
	case "skip":
		b.handleRemoteSimple(s, i, "skip")
	case "previous":
		b.handleRemoteSimple(s, i, "previous")
	case "queue":
		b.handleQueue(s, i)
	case "stop":
		b.handleStop(s, i)
	case "volume":
		b.handleVolume(s, i)
	case "nowplaying":
		b.handleNowPlaying(s, i)
	case "link-spotify":
		b.handleLinkSpotify(s, i)
	case "speak":
		b.handleSpeak(s, i)
	case "wake":
		b.handleWake(s, i)
	case "random-name":
		b.handleRandomName(s, i)
	case "poll":
		b.handlePoll(s, i)
	default:
		respondEphemeral(s, i, "Unknown command.")
	}
}

// optionString pulls a named string option from the interaction, or "".
func optionString(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// optionUser pulls a named user option from the interaction, or nil.
func optionUser(s *discordgo.Session, i *discordgo.InteractionCreate, name string) *discordgo.User {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionUser {
			return opt.UserValue(s)
		}
	}
	return nil
}
