package channel

import (
	"context"
	"sync"
)

// MemorySender records messages instead of sending them.
// An optional failure function decides, per message, what error to return.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	attempts int
	fail     func(attempt int, msg Message) error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// FailWith installs fn; attempt counts every Send call starting at 1.
// Messages are only recorded when fn returns nil.
func (s *MemorySender) FailWith(fn func(attempt int, msg Message) error) *MemorySender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
	return s
}

func (s *MemorySender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.fail != nil {
		if err := s.fail(s.attempts, msg); err != nil {
			return err
		}
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of everything sent successfully.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Attempts returns the number of Send calls, failed ones included.
func (s *MemorySender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
