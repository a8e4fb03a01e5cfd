package channel

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// PushConfig names the Redis stream push gateways consume.
type PushConfig struct {
	Stream string `env:"NOTIFY_PUSH_STREAM" envDefault:"notifykit:push"`
	MaxLen int64  `env:"NOTIFY_PUSH_MAXLEN" envDefault:"100000"`
}

// PushSender appends push notifications to a Redis stream with XADD.
// Delivery to devices (APNs, FCM) is the gateway's job; a successful XADD
// means the message was handed over durably.
type PushSender struct {
	client redis.UniversalClient
	cfg    PushConfig
}

func NewPushSender(client redis.UniversalClient, cfg PushConfig) *PushSender {
	if cfg.Stream == "" {
		cfg.Stream = "notifykit:push"
	}
	return &PushSender{client: client, cfg: cfg}
}

func (s *PushSender) Send(ctx context.Context, msg Message) error {
	token := strings.TrimSpace(msg.Recipient)
	if token == "" {
		return Permanent(ErrInvalidRecipient)
	}
	if msg.Content.Subject == "" && msg.Content.Text == "" {
		return Permanent(ErrEmptyContent)
	}

	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]any{
			"id":     msg.RecordID.String(),
			"type":   msg.Type,
			"token":  token,
			"title":  msg.Content.Subject,
			"body":   msg.Content.Text,
			"locale": msg.Locale,
		},
	}
	if s.cfg.MaxLen > 0 {
		args.MaxLen = s.cfg.MaxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return Transient(err)
	}
	return nil
}
