package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"tunelink/internal/poll"
)

func (b *Bot) handlePoll(s *discordgo.Session, i *discordgo.InteractionCreate) {
	question := strings.TrimSpace(optionString(i, "question"))
	var options []string
	for _, raw := range strings.Split(optionString(i, "options"), ",") {
		if opt := strings.TrimSpace(raw); opt != "" {
			options = append(options, opt)
		}
	}

	id, err := b.polls.Create(question, options)
	if err != nil {
		respondEphemeral(s, i, fmt.Sprintf("Can't start that poll: %v", err))
		return
	}

	_, results, _ := b.polls.Results(id)
	respondComponents(s, i, pollEmbed(question, results), pollButtons(id, options))
}

// dispatchComponent routes button presses. Poll buttons carry IDs shaped
// poll:<pollID>:<optionIndex>.
func (b *Bot) dispatchComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != "poll" {
		return
	}

	pollID := parts[1]
	option, err := strconv.Atoi(parts[2])
	if err != nil {
		return
	}

	voter := i.Member.User.ID
	if err := b.polls.Vote(pollID, option, voter); err != nil {
		respondEphemeral(s, i, fmt.Sprintf("Vote not counted: %v", err))
		return
	}

	question, results, err := b.polls.Results(pollID)
	if err != nil {
		respondEphemeral(s, i, fmt.Sprintf("Vote not counted: %v", err))
		return
	}

	options := make([]string, len(results))
	for n, r := range results {
		options[n] = r.Option
	}
	updateMessage(s, i, pollEmbed(question, results), pollButtons(pollID, options))
}

func pollEmbed(question string, results []poll.Result) *discordgo.MessageEmbed {
	var sb strings.Builder
	total := 0
	for _, r := range results {
		total += r.Votes
	}
	for _, r := range results {
		fmt.Fprintf(&sb, "**%s**: %d\n", r.Option, r.Votes)
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("📊 %s", question),
		Description: sb.String(),
		Color:       embedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d votes", total)},
	}
}

// pollButtons lays options out five per row, Discord's component limit.
func pollButtons(pollID string, options []string) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for n, opt := range options {
		row = append(row, discordgo.Button{
			Label:    opt,
			Style:    discordgo.SecondaryButton,
			CustomID: fmt.Sprintf("poll:%s:%d", pollID, n),
		})
		if len(row) == 5 || n == len(options)-1 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	return rows
}
