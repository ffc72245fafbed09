package services

import (
	"fmt"
	"strings"
	"time"

	"CODStatusChecker/logger"

	"github.com/bwmarrin/discordgo"
)

// StatusNotifier receives account status changes. A nil notifier disables
// announcements.
type StatusNotifier interface {
	NotifyStatusChange(email, oldStatus, newStatus string)
	NotifyBatchFinished(kind string, results []string)
}

// DiscordNotifier announces status changes and batch results to a Discord
// channel.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord session: %w", err)
	}
	return &DiscordNotifier{session: session, channelID: channelID}, nil
}

func (n *DiscordNotifier) Close() error {
	return n.session.Close()
}

// NotifyStatusChange sends an embed describing the transition. Failures are
// logged, never propagated to the batch.
func (n *DiscordNotifier) NotifyStatusChange(email, oldStatus, newStatus string) {
	embed := &discordgo.MessageEmbed{
		Title:       "Account Status Change",
		Description: fmt.Sprintf("Status for %s has changed", email),
		Color:       0xFFA500,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Previous Status", Value: orUnknown(oldStatus), Inline: true},
			{Name: "New Status", Value: orUnknown(newStatus), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if _, err := n.session.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
		logger.Log.WithError(err).Errorf("Failed to send status change notification for %s", email)
	}
}

// NotifyBatchFinished posts the batch result lines, split to stay under the
// Discord message length limit.
func (n *DiscordNotifier) NotifyBatchFinished(kind string, results []string) {
	header := fmt.Sprintf("Finished %s batch (%d accounts)", kind, len(results))

	const limit = 1900
	chunk := header
	for _, line := range results {
		line = strings.Split(line, "\n")[0]
		if len(chunk)+len(line)+1 > limit {
			n.send(chunk)
			chunk = line
			continue
		}
		chunk = chunk + "\n" + line
	}
	n.send(chunk)
}

func (n *DiscordNotifier) send(content string) {
	if _, err := n.session.ChannelMessageSend(n.channelID, content); err != nil {
		logger.Log.WithError(err).Error("Failed to send batch notification")
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return strings.Split(s, "\n")[0]
}
