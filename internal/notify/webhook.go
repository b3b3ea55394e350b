package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/physical-mcp/engine/internal/core"
)

// WebhookChannel delivers a generic JSON POST with the image inlined
// as a base64 field (spec §4.10: "generic JSON; image as base64
// field").
type WebhookChannel struct {
	URL string
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{URL: url}
}

func (c *WebhookChannel) Kind() core.ChannelKind { return core.ChannelWebhook }

type webhookPayload struct {
	EventID    string  `json:"event_id"`
	EventType  string  `json:"event_type"`
	CameraID   string  `json:"camera_id"`
	CameraName string  `json:"camera_name"`
	RuleID     string  `json:"rule_id"`
	RuleName   string  `json:"rule_name"`
	Priority   string  `json:"priority"`
	Message    string  `json:"message"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

func (c *WebhookChannel) Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error {
	url := c.URL
	if v, ok := target.Routing["url"]; ok && v != "" {
		url = v
	}
	if url == "" {
		return fmt.Errorf("notify: webhook channel has no URL configured")
	}

	payload := webhookPayload{
		EventID: event.EventID, EventType: string(event.EventType),
		CameraID: event.CameraID, CameraName: event.CameraName,
		RuleID: event.RuleID, RuleName: event.RuleName,
		Priority: string(event.Priority), Message: sanitizeUTF8(messageText(event, target)),
		Reasoning: event.Reasoning, Confidence: event.Confidence,
	}
	if event.Thumbnail != "" {
		if _, err := base64.StdEncoding.DecodeString(event.Thumbnail); err == nil {
			payload.ImageBase64 = event.Thumbnail
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return doPost(ctx, httpDefaultClient, url, "application/json", bytes.NewReader(body))
}
