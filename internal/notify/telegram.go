package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/physical-mcp/engine/internal/core"
)

// TelegramChannel delivers via the Bot API: sendPhoto with a caption
// when a thumbnail is present, sendMessage otherwise.
type TelegramChannel struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{BotToken: botToken, ChatID: chatID, Client: http.DefaultClient}
}

func (c *TelegramChannel) Kind() core.ChannelKind { return core.ChannelTelegram }

func (c *TelegramChannel) Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error {
	text := sanitizeUTF8(messageText(event, target))
	chatID := c.ChatID
	if v, ok := target.Routing["chat_id"]; ok && v != "" {
		chatID = v
	}

	if event.Thumbnail == "" {
		return c.sendMessage(ctx, chatID, text)
	}
	return c.sendPhoto(ctx, chatID, text, event.Thumbnail)
}

func (c *TelegramChannel) sendMessage(ctx context.Context, chatID, text string) error {
	body, _ := json.Marshal(map[string]string{"chat_id": chatID, "text": text})
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.BotToken)
	return doPost(ctx, c.Client, url, "application/json", bytes.NewReader(body))
}

func (c *TelegramChannel) sendPhoto(ctx context.Context, chatID, caption, thumbnailBase64 string) error {
	data, err := decodeThumbnail(thumbnailBase64)
	if err != nil {
		return c.sendMessage(ctx, chatID, caption)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", chatID)
	_ = w.WriteField("caption", caption)
	part, err := w.CreateFormFile("photo", "alert.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", c.BotToken)
	return doPost(ctx, c.Client, url, w.FormDataContentType(), &buf)
}

// doPost is shared plumbing for every HTTP-based channel adapter in
// this package.
func doPost(ctx context.Context, client *http.Client, url, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: delivery failed with status %d", resp.StatusCode)
	}
	return nil
}

// sanitizeUTF8 guarantees valid UTF-8 with no lone surrogate halves
// before text reaches the Telegram API (spec §4.10).
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

func messageText(event core.AlertEvent, target core.NotificationTarget) string {
	if target.CustomMessage != "" {
		return target.CustomMessage
	}
	if event.Message != "" {
		return fmt.Sprintf("[%s] %s: %s", event.Priority, event.RuleName, event.Message)
	}
	return fmt.Sprintf("[%s] %s", event.Priority, event.Reasoning)
}
