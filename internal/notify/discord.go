package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// embedColorAmber marks review embeds as "needs attention".
const embedColorAmber = 0xE67E22

// Discord posts one embed per review request to a fixed channel. Only the
// REST API is used; the session never opens a gateway connection.
type Discord struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscord builds a Discord notifier from a bot token and channel id.
func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("notify: discord token and channel id are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID}, nil
}

// ReviewRequested implements Notifier.
func (d *Discord) ReviewRequested(ctx context.Context, n ReviewNotification) error {
	embed := &discordgo.MessageEmbed{
		Title:       "Learning review requested",
		Description: truncate(n.Content, 500),
		Color:       embedColorAmber,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: n.UserID, Inline: true},
			{Name: "Correction", Value: fmt.Sprintf("`%s`", n.CorrectionID), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "foyer-review approve " + n.CorrectionID,
		},
		Timestamp: n.SubmittedAt.UTC().Format(time.RFC3339),
	}

	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: send discord embed: %w", err)
	}
	return nil
}
