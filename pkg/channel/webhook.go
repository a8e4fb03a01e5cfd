package channel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/render"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

// WebhookConfig configures outgoing webhook deliveries.
type WebhookConfig struct {
	Secret  string        `env:"NOTIFY_WEBHOOK_SECRET"`
	Timeout time.Duration `env:"NOTIFY_WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// WebhookSender POSTs a JSON envelope to the recipient URL.
type WebhookSender struct {
	client *webhook.Sender
	cfg    WebhookConfig
}

func NewWebhookSender(client *webhook.Sender, cfg WebhookConfig) *WebhookSender {
	if client == nil {
		client = webhook.NewSender()
	}
	return &WebhookSender{client: client, cfg: cfg}
}

type webhookEnvelope struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Locale string `json:"locale,omitempty"`
	render.Content
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookEnvelope{
		ID:      msg.RecordID.String(),
		Type:    msg.Type,
		Locale:  msg.Locale,
		Content: msg.Content,
	})
	if err != nil {
		return Permanent(err)
	}

	opts := []webhook.SendOption{
		webhook.WithDeliveryID(msg.RecordID.String()),
		webhook.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Secret != "" {
		opts = append(opts, webhook.WithSignature(s.cfg.Secret))
	}

	return classifyWebhook(s.client.Send(ctx, msg.Recipient, body, opts...))
}

func classifyWebhook(err error) error {
	switch {
	case err == nil:
		return nil
	case webhook.IsPermanent(err):
		return Permanent(err)
	default:
		return Transient(err)
	}
}
