package notification

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery medium a record is sent through.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// Valid reports whether c is one of the supported channel kinds.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}

// Priority orders claiming: higher is more important.
// Stored as a small integer so the claim index can sort on it directly.
type Priority int8

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// Valid checks if the priority is one of the four tiers.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int8(p))
}

// ParsePriority converts a tier name into a Priority.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority tier name.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending         Status = "pending"
	StatusClaimed         Status = "claimed"
	StatusSent            Status = "sent"
	StatusFailedRetryable Status = "failed_retryable"
	StatusDead            Status = "dead"
)

// IsTerminal reports whether no further processing happens for the status.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusDead
}

// LocaleSource tells where the resolved locale came from.
type LocaleSource string

const (
	LocaleSourceParams   LocaleSource = "PARAMS"
	LocaleSourceTenant   LocaleSource = "TENANT"
	LocaleSourceUser     LocaleSource = "USER"
	LocaleSourceFallback LocaleSource = "FALLBACK"
)

// Record is a persisted outbox row.
// Created pending by the outbox writer, mutated afterwards only by the dispatcher
// (or an operator dead-lettering it). Never deleted here.
type Record struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	TemplateCode   string          `json:"template_code"`
	Channel        Channel         `json:"channel"`
	Priority       Priority        `json:"priority"`
	Recipient      string          `json:"recipient"`
	Locale         string          `json:"locale"`
	LocaleSource   LocaleSource    `json:"locale_source"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	TenantID       *string         `json:"tenant_id,omitempty"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	LeaseUntil     *time.Time      `json:"lease_until,omitempty"`
	ClaimedBy      *uuid.UUID      `json:"claimed_by,omitempty"`
}

// Clone returns a deep copy so stores can hand out records without sharing pointers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payload != nil {
		c.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	c.IdempotencyKey = cloneString(r.IdempotencyKey)
	c.TenantID = cloneString(r.TenantID)
	c.LastError = cloneString(r.LastError)
	c.ClaimedAt = cloneTime(r.ClaimedAt)
	c.SentAt = cloneTime(r.SentAt)
	c.LeaseUntil = cloneTime(r.LeaseUntil)
	if r.ClaimedBy != nil {
		id := *r.ClaimedBy
		c.ClaimedBy = &id
	}
	return &c
}

// LeaseExpired reports whether a claimed record may be taken over by another worker.
func (r *Record) LeaseExpired(now time.Time) bool {
	return r.Status == StatusClaimed && (r.LeaseUntil == nil || !r.LeaseUntil.After(now))
}

// Key returns the idempotency key or an empty string.
func (r *Record) Key() string {
	if r.IdempotencyKey == nil {
		return ""
	}
	return *r.IdempotencyKey
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
