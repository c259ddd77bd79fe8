package notify

import (
	"context"
	"fmt"
)

// discordMaxContent is Discord's message length limit.
const discordMaxContent = 2000

// DiscordSender posts to a Discord channel webhook.
type DiscordSender struct {
	webhookURL string
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL}
}

// Send renders the title in bold and the body as a code block so symbols
// and order ids show verbatim. Mentions are disabled.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n```\n%s\n```", title, message)
	if len(content) > discordMaxContent {
		content = content[:discordMaxContent-3] + "```"
	}
	return postJSON(ctx, httpClient, d.Name(), d.webhookURL, map[string]any{
		"content":          content,
		"allowed_mentions": map[string][]string{"parse": {}},
	})
}

func (d *DiscordSender) Name() string { return "discord" }
