package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/CyberwizD/account-events/services/notification/internal/config"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSMTPConfig() config.SMTPConfig {
	return config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com", FromName: "DocLinker"}
}

func TestNewPicksLogSenderWithoutHost(t *testing.T) {
	s, err := New(config.SMTPConfig{}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = New(testSMTPConfig(), discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)
}

func TestSMTPSenderRequiresFrom(t *testing.T) {
	cfg := testSMTPConfig()
	cfg.From = ""
	_, err := NewSMTPSender(cfg, discardLogger())
	assert.Error(t, err)
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s, err := NewSMTPSender(testSMTPConfig(), discardLogger())
	require.NoError(t, err)

	var got *mail.Msg
	s.deliver = func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	}
	m, err := VerificationEmail("jane@example.com", "https://app.example/verify-email/abc")
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), m))

	require.NotNil(t, got)
	assert.Equal(t, []string{"Verify your email address"}, got.GetGenHeader(mail.HeaderSubject))
	var raw bytes.Buffer
	_, err = got.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "jane@example.com")
	assert.Contains(t, raw.String(), "https://app.example/verify-email/abc")
}

func TestSMTPSenderRejectsBadRecipient(t *testing.T) {
	s, err := NewSMTPSender(testSMTPConfig(), discardLogger())
	require.NoError(t, err)
	err = s.Send(context.Background(), Message{To: "not an address", Subject: "x", Text: "x"})
	assert.Error(t, err)
}

func TestSMTPSenderBreakerOpens(t *testing.T) {
	s, err := NewSMTPSender(testSMTPConfig(), discardLogger())
	require.NoError(t, err)
	calls := 0
	s.deliver = func(context.Context, *mail.Msg) error {
		calls++
		return errors.New("connection refused")
	}
	m := Message{To: "jane@example.com", Subject: "hi", Text: "hi"}
	for i := 0; i < 3; i++ {
		assert.Error(t, s.Send(context.Background(), m))
	}
	err = s.Send(context.Background(), m)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, calls)
}

func TestTemplatesEscapeHTML(t *testing.T) {
	m, err := WelcomeEmail("jane@example.com", "<b>Jane</b>")
	require.NoError(t, err)
	assert.Contains(t, m.Text, "Hi <b>Jane</b>")
	assert.Contains(t, m.HTML, "&lt;b&gt;Jane&lt;/b&gt;")

	m, err = PasswordResetEmail("jane@example.com", "https://app.example/reset-password/abc")
	require.NoError(t, err)
	assert.Equal(t, "Reset your password", m.Subject)
	assert.Contains(t, m.HTML, `href="https://app.example/reset-password/abc"`)
}
