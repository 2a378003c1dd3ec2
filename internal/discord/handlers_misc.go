package discord

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

func (b *Bot) handleSpeak(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.voice.Connected() {
		respondEphemeral(s, i, "I'm not in a voice channel. Use /join first.")
		return
	}
	if b.voice.Playing() {
		respondEphemeral(s, i, "I can't speak over music. Stop or wait for the track to end.")
		return
	}

	text := optionString(i, "text")
	lang := optionString(i, "lang")
	respond(s, i, fmt.Sprintf("🗣️ %s", text))

	// Synthesis is a network fetch; do it off the interaction path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		path, cleanup, err := b.speech.Synthesize(ctx, text, lang)
		if err != nil {
			log.Warn().Str("component", "discord").Err(err).Msg("tts synthesis failed")
			b.Notify(i.ChannelID, fmt.Sprintf("❌ Could not synthesize speech: %v", err))
			return
		}

		if err := b.voice.Play(path, func(error) { cleanup() }); err != nil {
			cleanup()
			log.Warn().Str("component", "discord").Err(err).Msg("tts playback failed")
			b.Notify(i.ChannelID, fmt.Sprintf("❌ Could not play speech: %v", err))
		}
	}()
}

func (b *Bot) handleWake(s *discordgo.Session, i *discordgo.InteractionCreate) {
	target := optionUser(s, i, "target")
	if target == nil {
		respondEphemeral(s, i, "Pick someone to wake up.")
		return
	}
	if target.Bot {
		respondEphemeral(s, i, "Bots don't sleep.")
		return
	}

	dm, err := s.UserChannelCreate(target.ID)
	if err != nil {
		respondEphemeral(s, i, fmt.Sprintf("Couldn't open a DM with %s: %v", target.Username, err))
		return
	}

	caller := i.Member.User.Username
	if _, err := s.ChannelMessageSend(dm.ID, fmt.Sprintf("⏰ WAKE UP! %s needs you in the server!", caller)); err != nil {
		respondEphemeral(s, i, fmt.Sprintf("Couldn't DM %s, they may have DMs closed.", target.Username))
		return
	}
	respond(s, i, fmt.Sprintf("⏰ Wake-up call sent to **%s**.", target.Username))
}

func (b *Bot) handleRandomName(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name, ok := pickName(optionString(i, "names"))
	if !ok {
		respondEphemeral(s, i, "Give me some names to choose from, separated by commas.")
		return
	}
	respond(s, i, fmt.Sprintf("🎲 The winner is **%s**!", name))
}

// pickName draws one entry from a comma-separated list, skipping blanks.
func pickName(raw string) (string, bool) {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	return names[rand.Intn(len(names))], true
}
