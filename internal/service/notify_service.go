package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"grts/pkg/config"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
)

type Email struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Text    string `json:"text" validate:"required"`
}

type Notifier interface {
	Send(ctx context.Context, email Email) error
}

// PostmarkNotifier sends plain-text mail through the Postmark API.
type PostmarkNotifier struct {
	client *postmark.Client
	from   string
	logger *zap.Logger
}

// NewNotifier returns a no-op notifier when no Postmark token is configured.
func NewNotifier(cfg *config.EmailConfig, logger *zap.Logger) Notifier {
	if cfg.PostmarkToken == "" {
		logger.Warn("POSTMARK_TOKEN not set, outbound email disabled")
		return NopNotifier{logger: logger}
	}

	client := postmark.NewClient(cfg.PostmarkToken, "")
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if cfg.APIURL != "" {
		client.BaseURL = strings.TrimSuffix(strings.TrimSuffix(cfg.APIURL, "/"), "/email")
	}

	return &PostmarkNotifier{
		client: client,
		from:   cfg.SenderEmail,
		logger: logger,
	}
}

func (n *PostmarkNotifier) Send(ctx context.Context, email Email) error {
	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.from,
		To:       email.To,
		Subject:  email.Subject,
		TextBody: email.Text,
	})
	if err != nil {
		return fmt.Errorf("postmark send to %s failed: %w", email.To, err)
	}

	n.logger.Info("Email sent",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("message_id", resp.MessageID),
	)
	return nil
}

type NopNotifier struct {
	logger *zap.Logger
}

func (n NopNotifier) Send(_ context.Context, email Email) error {
	if n.logger != nil {
		n.logger.Debug("Email skipped", zap.String("to", email.To), zap.String("subject", email.Subject))
	}
	return nil
}

func emailEffect(n Notifier, email Email) SideEffect {
	return SideEffect{
		Name: "email:" + email.Subject,
		Run: func(ctx context.Context) error {
			return n.Send(ctx, email)
		},
	}
}
