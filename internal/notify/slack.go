package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/physical-mcp/engine/internal/core"
)

// SlackChannel delivers via a Slack incoming webhook using Block Kit
// (spec §4.10: "Webhook JSON, Block Kit layout", text only — Slack
// webhooks don't accept inline photo uploads).
type SlackChannel struct {
	WebhookURL string
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{WebhookURL: webhookURL}
}

func (c *SlackChannel) Kind() core.ChannelKind { return core.ChannelSlack }

type slackBlock struct {
	Type string      `json:"type"`
	Text *slackText  `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

func (c *SlackChannel) Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error {
	webhook := c.WebhookURL
	if v, ok := target.Routing["webhook_url"]; ok && v != "" {
		webhook = v
	}
	if webhook == "" {
		return fmt.Errorf("notify: slack channel has no webhook configured")
	}

	payload := slackPayload{
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*[%s] %s*", event.Priority, event.RuleName)}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: sanitizeUTF8(messageText(event, target))}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return doPost(ctx, httpDefaultClient, webhook, "application/json", bytes.NewReader(body))
}
