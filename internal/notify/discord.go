package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/physical-mcp/engine/internal/core"
)

// DiscordChannel delivers via a Discord webhook: a JSON embed carrying
// the alert text, with the photo attached as a second multipart file
// part when a thumbnail is present (spec §4.10: "Webhook JSON with
// embed + image URL or attachment").
type DiscordChannel struct {
	WebhookURL string
}

func NewDiscordChannel(webhookURL string) *DiscordChannel {
	return &DiscordChannel{WebhookURL: webhookURL}
}

func (c *DiscordChannel) Kind() core.ChannelKind { return core.ChannelDiscord }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Image       *struct {
		URL string `json:"url"`
	} `json:"image,omitempty"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

func (c *DiscordChannel) Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error {
	webhook := c.WebhookURL
	if v, ok := target.Routing["webhook_url"]; ok && v != "" {
		webhook = v
	}
	if webhook == "" {
		return fmt.Errorf("notify: discord channel has no webhook configured")
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("[%s] %s", event.Priority, event.RuleName),
		Description: sanitizeUTF8(messageText(event, target)),
		Color:       priorityColor(event.Priority),
	}

	if event.Thumbnail != "" {
		if data, err := decodeThumbnail(event.Thumbnail); err == nil {
			return c.deliverWithAttachment(ctx, webhook, embed, data)
		}
	}

	payload := discordPayload{Embeds: []discordEmbed{embed}}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return doPost(ctx, httpDefaultClient, webhook, "application/json", bytes.NewReader(body))
}

// deliverWithAttachment sends the embed plus the photo as a multipart
// "files[0]" part, referencing it back via the Discord
// "attachment://" URL scheme so the embed renders the image inline.
func (c *DiscordChannel) deliverWithAttachment(ctx context.Context, webhook string, embed discordEmbed, data []byte) error {
	embed.Image = &struct {
		URL string `json:"url"`
	}{URL: "attachment://alert.jpg"}
	payload := discordPayload{Embeds: []discordEmbed{embed}}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return multipartPostJSONPlusFile(ctx, webhook, "payload_json", payloadJSON, "files[0]", "alert.jpg", data)
}

func priorityColor(p core.Priority) int {
	switch p {
	case core.PriorityCritical:
		return 0xE01E1E
	case core.PriorityHigh:
		return 0xE0821E
	case core.PriorityMedium:
		return 0xE0C01E
	default:
		return 0x3DA5D9
	}
}
