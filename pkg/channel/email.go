package channel

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/notifykit/notifykit/pkg/notification"
)

// EmailConfig holds the settings for the Postmark-backed email provider.
type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	SenderEmail          string `env:"EMAIL_SENDER,required"`
}

// postmarkSender is the subset of the Postmark client the provider needs.
// Narrowed to an interface so tests can stub the API.
type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Email delivers notifications as transactional email through Postmark.
// The recipient is the destination address.
type Email struct {
	client postmarkSender
	from   string
}

// NewEmail creates a Postmark-backed email provider.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.PostmarkServerToken == "" || cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: postmark tokens are required", ErrInvalidProviderConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidProviderConfig)
	}
	return &Email{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.SenderEmail,
	}, nil
}

// Channel implements Provider.
func (e *Email) Channel() notification.Channel {
	return notification.ChannelEmail
}

// Send implements Provider. Postmark accepts mail for delivery but provides
// no synchronous delivery confirmation, so success maps to OutcomeSent.
// API-level rejections (invalid or inactive recipient, rejected content) are
// permanent; transport errors are retryable.
func (e *Email) Send(ctx context.Context, recipient string, payload notification.Payload) (Result, error) {
	resp, err := e.client.SendEmail(ctx, postmark.Email{
		From:     e.from,
		To:       recipient,
		Subject:  payload.Title,
		TextBody: payload.Body,
	})
	if err != nil {
		return Result{}, fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		return PermanentFailure(fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message)), nil
	}
	return Sent(), nil
}
