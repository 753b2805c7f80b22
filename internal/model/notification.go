package model

import (
	"errors"
	"fmt"
	"time"
)

// Channel is a delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// ParseChannel validates a raw channel string.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return Channel(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, s)
}

// Status of a notification intent. Terminal outcomes leave no status:
// delivered one-time intents are deleted, rejected deliveries produce a
// failure record instead.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
)

// Priority orders messages within a drained batch.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Rank maps a priority to a sortable weight, higher is more urgent.
// Unknown values rank below LOW so malformed input never jumps the queue.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// RecurrencePattern describes how a recurring intent advances.
type RecurrencePattern string

const (
	RecurDaily   RecurrencePattern = "DAILY"
	RecurWeekly  RecurrencePattern = "WEEKLY"
	RecurMonthly RecurrencePattern = "MONTHLY"
)

// NextOccurrence advances t by one recurrence step. An unrecognised
// pattern returns t unchanged, which keeps the row due until corrected.
func NextOccurrence(t time.Time, pattern RecurrencePattern) time.Time {
	switch pattern {
	case RecurDaily:
		return t.AddDate(0, 0, 1)
	case RecurWeekly:
		return t.AddDate(0, 0, 7)
	case RecurMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t
}

// Content is the rendered notification body, immutable once created.
type Content struct {
	Header   string `json:"header"`
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl,omitempty"`
	CtaURL   string `json:"ctaUrl,omitempty"`
}

// Intent is the durable unit of work: deliver this content to this user
// via this channel.
type Intent struct {
	ID            int64             `json:"id"`
	UserID        string            `json:"userId"`
	Content       Content           `json:"content"`
	Channel       Channel           `json:"channel"`
	Status        Status            `json:"status"`
	Priority      Priority          `json:"priority"`
	IsBatch       bool              `json:"isBatch"`
	ScheduledTime time.Time         `json:"scheduledTime"`
	Recurring     bool              `json:"recurring"`
	Pattern       RecurrencePattern `json:"recurrencePattern,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Due reports whether the intent is eligible for a scheduler claim.
func (n *Intent) Due(now time.Time) bool {
	return n.Status == StatusPending && !n.ScheduledTime.After(now)
}

// SendRequest is the inbound ask, before fan-out resolves it to intents.
type SendRequest struct {
	UserID        string
	Content       Content
	Channel       Channel
	ScheduledTime *time.Time
	Priority      Priority
	IsBatch       bool
}

var (
	ErrUnsupportedChannel  = errors.New("unsupported notification channel")
	ErrPreferencesNotFound = errors.New("user preferences not found")
	ErrNotFound            = errors.New("notification not found")
	ErrProfileNotFound     = errors.New("user profile not found")
)
