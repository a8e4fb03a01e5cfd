package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

// SMSConfig points at an HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string        `env:"NOTIFY_SMS_GATEWAY_URL"`
	APIKey     string        `env:"NOTIFY_SMS_API_KEY"`
	From       string        `env:"NOTIFY_SMS_FROM"`
	Timeout    time.Duration `env:"NOTIFY_SMS_TIMEOUT" envDefault:"10s"`
}

// SMSSender posts {to, from, body, reference} to a gateway. It reuses the
// webhook transport, so gateway 4xx responses are permanent and 5xx transient.
type SMSSender struct {
	client *webhook.Sender
	cfg    SMSConfig
}

func NewSMSSender(client *webhook.Sender, cfg SMSConfig) *SMSSender {
	if client == nil {
		client = webhook.NewSender()
	}
	return &SMSSender{client: client, cfg: cfg}
}

type smsRequest struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Body      string `json:"body"`
	Reference string `json:"reference"`
}

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	text := strings.TrimSpace(msg.Content.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Content.Subject)
	}
	if text == "" {
		return Permanent(ErrEmptyContent)
	}
	to := strings.NewReplacer(" ", "", "-", "").Replace(msg.Recipient)
	if !strings.HasPrefix(to, "+") {
		return Permanent(fmt.Errorf("%w: %q is not E.164", ErrInvalidRecipient, msg.Recipient))
	}

	body, err := json.Marshal(smsRequest{
		To:        to,
		From:      s.cfg.From,
		Body:      text,
		Reference: msg.RecordID.String(),
	})
	if err != nil {
		return Permanent(err)
	}

	opts := []webhook.SendOption{
		webhook.WithDeliveryID(msg.RecordID.String()),
		webhook.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.APIKey != "" {
		opts = append(opts, webhook.WithHeader("Authorization", "Bearer "+s.cfg.APIKey))
	}

	return classifyWebhook(s.client.Send(ctx, s.cfg.GatewayURL, body, opts...))
}
