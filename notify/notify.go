// Package notify publishes committed-message signals for downstream
// real-time consumers. Publishing is fire-and-forget: durable storage is the
// source of truth, a subscriber that missed a signal re-fetches state.
package notify

import (
	"context"

	"github.com/rakage/Chat-Bridge-sub000/models"
)

// MessageCommitted is the wire payload for a "message committed" signal.
type MessageCommitted struct {
	ConversationID int64          `json:"conversation_id"`
	TenantID       int64          `json:"tenant_id"`
	Message        models.Message `json:"message"`
}

// Notifier pushes a committed-message signal. A publish failure must never
// roll back the committed message; callers log the error and move on.
type Notifier interface {
	Publish(ctx context.Context, event MessageCommitted) error
	Close() error
}

// NopNotifier is used when no broker is configured (dev, tests).
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, event MessageCommitted) error { return nil }
func (NopNotifier) Close() error                                              { return nil }
