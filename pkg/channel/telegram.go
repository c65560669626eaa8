package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/notifykit/notifykit/pkg/notification"
)

const defaultTelegramAPIURL = "https://api.telegram.org"

// TelegramConfig holds the settings for the Telegram provider.
type TelegramConfig struct {
	BotToken string        `env:"TELEGRAM_BOT_TOKEN,required"`
	APIURL   string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	Timeout  time.Duration `env:"TELEGRAM_HTTP_TIMEOUT" envDefault:"10s"`
}

// Telegram delivers notifications through the Telegram Bot API sendMessage
// method. The recipient is the chat id as a string.
type Telegram struct {
	token  string
	apiURL string
	client *http.Client
}

// NewTelegram creates a Telegram provider from config.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("%w: bot token is required", ErrInvalidProviderConfig)
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultTelegramAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		token:  cfg.BotToken,
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Channel implements Provider.
func (t *Telegram) Channel() notification.Channel {
	return notification.ChannelTelegram
}

type telegramSendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramSendResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Send implements Provider. A 2xx response with ok=true counts as confirmed
// delivery: Telegram accepts the message into the recipient's chat
// synchronously. 4xx responses (bad chat id, blocked bot, oversized payload)
// are permanent; 429 and 5xx are retryable.
func (t *Telegram) Send(ctx context.Context, recipient string, payload notification.Payload) (Result, error) {
	text := payload.Body
	if payload.Title != "" {
		text = payload.Title + "\n\n" + payload.Body
	}

	body, err := json.Marshal(telegramSendRequest{ChatID: recipient, Text: text})
	if err != nil {
		return PermanentFailure("marshal request: " + err.Error()), nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// Transport errors (timeouts, connection resets) are retryable.
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var apiResp telegramSendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiResp); err != nil && resp.StatusCode == http.StatusOK {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK && apiResp.OK:
		return Delivered(), nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return RetryableFailure(fmt.Sprintf("telegram api: %s (%s)", resp.Status, apiResp.Description)), nil
	default:
		return PermanentFailure(fmt.Sprintf("telegram api: %s (%s)", resp.Status, apiResp.Description)), nil
	}
}
