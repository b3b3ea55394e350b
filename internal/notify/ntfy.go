package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/physical-mcp/engine/internal/core"
)

// NtfyChannel delivers via an HTTP POST to an ntfy topic with the alert
// text as the body; the photo is uploaded separately and referenced by
// URL in the "Attach" header (spec §4.10: "HTTP POST to topic, photo as
// attachment header").
type NtfyChannel struct {
	Server string
	Topic  string
}

func NewNtfyChannel(server, topic string) *NtfyChannel {
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &NtfyChannel{Server: server, Topic: topic}
}

func (c *NtfyChannel) Kind() core.ChannelKind { return core.ChannelNtfy }

func (c *NtfyChannel) Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error {
	topic := c.Topic
	if v, ok := target.Routing["topic"]; ok && v != "" {
		topic = v
	}
	if topic == "" {
		return fmt.Errorf("notify: ntfy channel has no topic configured")
	}
	url := fmt.Sprintf("%s/%s", c.Server, topic)
	text := sanitizeUTF8(messageText(event, target))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(text)))
	if err != nil {
		return err
	}
	req.Header.Set("Title", fmt.Sprintf("[%s] %s", event.Priority, event.RuleName))
	req.Header.Set("Priority", ntfyPriority(event.Priority))
	if event.Thumbnail != "" {
		if data, derr := decodeThumbnail(event.Thumbnail); derr == nil {
			attachURL, aerr := uploadNtfyAttachment(ctx, c.Server, data)
			if aerr == nil {
				req.Header.Set("Attach", attachURL)
			}
		}
	}

	resp, err := httpDefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: ntfy delivery failed with status %d", resp.StatusCode)
	}
	return nil
}

// uploadNtfyAttachment PUTs the photo to the fixed <server>/file-upload
// path and returns that URL, which the main message references via the
// Attach header.
func uploadNtfyAttachment(ctx context.Context, server string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/file-upload", server)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := httpDefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("notify: ntfy attachment upload failed with status %d", resp.StatusCode)
	}
	return url, nil
}

func ntfyPriority(p core.Priority) string {
	switch p {
	case core.PriorityCritical:
		return "urgent"
	case core.PriorityHigh:
		return "high"
	case core.PriorityMedium:
		return "default"
	default:
		return "low"
	}
}
