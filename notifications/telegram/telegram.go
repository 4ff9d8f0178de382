// Package telegram implements a notifications.NotificationService that posts
// messages to a Telegram chat through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepakselfhelp/deepak-payments/notifications"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultAPIURL is the public Telegram Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"
	// httpClientTimeout bounds a single sendMessage call.
	httpClientTimeout = 10 * time.Second
)

// Config holds the bot credentials and the default destination chat.
type Config struct {
	Token  string
	ChatID string
	APIURL string
}

// Telegram sends notifications with the sendMessage method.
type Telegram struct {
	config *Config
	client *http.Client
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// New validates the configuration and returns a ready sink.
func New(config *Config) (*Telegram, error) {
	if config == nil || config.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if config.ChatID == "" {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	return &Telegram{
		config: config,
		client: &http.Client{Timeout: httpClientTimeout},
	}, nil
}

// SendNotification posts the notification body to the configured chat, or to
// notification.Destination when set.
func (tg *Telegram) SendNotification(ctx context.Context, notification *notifications.Notification) error {
	chatID := notification.Destination
	if chatID == "" {
		chatID = tg.config.ChatID
	}
	payload, err := json.Marshal(&sendMessageRequest{
		ChatID:    chatID,
		Text:      notification.Body,
		ParseMode: string(notification.Format),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", tg.config.APIURL, tg.config.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tg.client.Do(req)
	if err != nil {
		// the URL embeds the bot token, never log it
		return fmt.Errorf("telegram request failed: %w", stripURL(err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("error closing telegram response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}
	var result sendMessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, result.Description)
	}
	return nil
}
