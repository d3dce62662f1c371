package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// telegramProvider is grounded on the teacher's TelegramNotifier.Send,
// trimmed to the single sendMessage call this system needs.
type telegramProvider struct {
	botToken string
	chatID   string
}

func newTelegramProvider(botToken, chatID string) *telegramProvider {
	return &telegramProvider{botToken: botToken, chatID: chatID}
}

func (t *telegramProvider) Send(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// discordProvider is grounded on the teacher's DiscordNotifier.Send.
type discordProvider struct {
	webhookURL string
}

func newDiscordProvider(webhookURL string) *discordProvider {
	return &discordProvider{webhookURL: webhookURL}
}

func (d *discordProvider) Send(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"content": text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}

// websocketProvider is the SPEC_FULL.md §10 optional live-dashboard
// push channel: a one-shot dial-send-close per message rather than a
// held connection, since this notifier has no subscriber registry to
// maintain and no counterpart teacher file holds one open either way.
type websocketProvider struct {
	url string
}

func newWebsocketProvider(url string) *websocketProvider {
	return &websocketProvider{url: url}
}

func (w *websocketProvider) Send(ctx context.Context, text string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial websocket dashboard: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write websocket dashboard message: %w", err)
	}
	return nil
}
