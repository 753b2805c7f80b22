// Package mq holds the wire contracts shared by the orchestrator's
// publisher and the channel delivery workers.
package mq

import "notifyhub/internal/model"

// NotificationMessage is the channel-agnostic bus payload, one message per
// (user, channel) pair produced by the fan-out router.
type NotificationMessage struct {
	UserID   string         `json:"userId"`
	Channel  model.Channel  `json:"channel"`
	Content  model.Content  `json:"content"`
	Priority model.Priority `json:"priority"`
	IsBatch  bool           `json:"isBatch"`
}
