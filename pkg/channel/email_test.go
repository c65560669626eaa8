package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/notification"
)

type stubPostmark struct {
	resp postmark.EmailResponse
	err  error
	sent []postmark.Email
}

func (s *stubPostmark) SendEmail(_ context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	s.sent = append(s.sent, email)
	return s.resp, s.err
}

func TestNewEmail(t *testing.T) {
	t.Parallel()

	t.Run("missing tokens", func(t *testing.T) {
		t.Parallel()

		_, err := NewEmail(EmailConfig{SenderEmail: "noreply@example.com"})
		assert.ErrorIs(t, err, ErrInvalidProviderConfig)
	})

	t.Run("missing sender", func(t *testing.T) {
		t.Parallel()

		_, err := NewEmail(EmailConfig{PostmarkServerToken: "a", PostmarkAccountToken: "b"})
		assert.ErrorIs(t, err, ErrInvalidProviderConfig)
	})

	t.Run("channel identity", func(t *testing.T) {
		t.Parallel()

		e, err := NewEmail(EmailConfig{PostmarkServerToken: "a", PostmarkAccountToken: "b", SenderEmail: "noreply@example.com"})
		require.NoError(t, err)
		assert.Equal(t, notification.ChannelEmail, e.Channel())
	})
}

func TestEmail_Send(t *testing.T) {
	t.Parallel()

	payload := notification.Payload{Title: "Verify your account", Body: "click the link"}

	t.Run("sent on acceptance", func(t *testing.T) {
		t.Parallel()

		stub := &stubPostmark{}
		e := &Email{client: stub, from: "noreply@example.com"}

		res, err := e.Send(context.Background(), "user@example.com", payload)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, res.Outcome)
		assert.True(t, res.Success())

		require.Len(t, stub.sent, 1)
		assert.Equal(t, "user@example.com", stub.sent[0].To)
		assert.Equal(t, "noreply@example.com", stub.sent[0].From)
		assert.Equal(t, "Verify your account", stub.sent[0].Subject)
	})

	t.Run("permanent on api rejection", func(t *testing.T) {
		t.Parallel()

		stub := &stubPostmark{resp: postmark.EmailResponse{ErrorCode: 300, Message: "invalid email address"}}
		e := &Email{client: stub, from: "noreply@example.com"}

		res, err := e.Send(context.Background(), "not-an-address", payload)
		require.NoError(t, err)
		assert.Equal(t, OutcomePermanent, res.Outcome)
		assert.Contains(t, res.Reason, "invalid email address")
	})

	t.Run("transport error surfaces as err", func(t *testing.T) {
		t.Parallel()

		stub := &stubPostmark{err: errors.New("connection refused")}
		e := &Email{client: stub, from: "noreply@example.com"}

		_, err := e.Send(context.Background(), "user@example.com", payload)
		require.Error(t, err)
	})
}
