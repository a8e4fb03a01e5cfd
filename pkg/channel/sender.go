package channel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/render"
)

// Message is one rendered notification addressed to one recipient.
type Message struct {
	RecordID  uuid.UUID
	Type      string
	Channel   notification.Channel
	Recipient string
	Locale    string
	Content   render.Content
}

// Sender delivers messages for one channel kind.
// Errors should be wrapped with Transient or Permanent.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Router dispatches a message to the sender registered for its channel.
type Router struct {
	mu      sync.RWMutex
	senders map[notification.Channel]Sender
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{senders: make(map[notification.Channel]Sender)}
}

// Handle registers s for ch, replacing any previous sender.
func (r *Router) Handle(ch notification.Channel, s Sender) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[ch] = s
	return r
}

// Channels lists the channels that have a sender.
func (r *Router) Channels() []notification.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]notification.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// Send implements Sender. A channel without a sender is a permanent failure.
func (r *Router) Send(ctx context.Context, msg Message) error {
	r.mu.RLock()
	s, ok := r.senders[msg.Channel]
	r.mu.RUnlock()

	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrNoSender, msg.Channel))
	}
	return s.Send(ctx, msg)
}
