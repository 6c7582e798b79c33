package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rakage/Chat-Bridge-sub000/locks"
	"github.com/rakage/Chat-Bridge-sub000/notify"
)

// Processor runs one routing entry through the pipeline:
// resolve tenant → acquire pair lock → dispatch by kind → upsert → notify.
//
// The error contract with the ingest worker is simple: nil means the entry
// is finished (committed or intentionally dropped), non-nil means transient
// and the worker requeues with backoff. Unknown routing keys and malformed
// events are drops — retrying cannot fix them.
type Processor struct {
	creds    *CredentialStore
	locks    *locks.Registry
	upsert   *UpsertService
	notifier notify.Notifier
	log      *slog.Logger
}

func NewProcessor(creds *CredentialStore, lockReg *locks.Registry, upsert *UpsertService, notifier notify.Notifier, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Processor{creds: creds, locks: lockReg, upsert: upsert, notifier: notifier, log: logger}
}

// ProcessEntry handles all events of one routing unit. Events are processed
// in delivery order; a replay after a mid-entry requeue is harmless because
// every commit is idempotent on the external message id.
func (p *Processor) ProcessEntry(ctx context.Context, entry Entry) error {
	cred, err := p.creds.Resolve(entry.Platform, entry.RoutingKey)
	if err != nil {
		if errors.Is(err, ErrChannelNotFound) {
			// Already alerted by the store; nothing left to do.
			p.log.Warn("dropping entry for unknown routing key",
				"platform", entry.Platform, "routing_key", entry.RoutingKey)
			return nil
		}
		return err
	}

	for _, ev := range entry.Events {
		if err := p.processEvent(ctx, cred, ev); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processEvent(ctx context.Context, cred *Credential, ev Event) error {
	if err := ev.Validate(); err != nil {
		p.log.Warn("dropping invalid event",
			"kind", string(ev.Kind), "routing_key", cred.Channel.ExternalID, "error", err)
		return nil
	}

	var result *CommitResult
	err := p.locks.Do(locks.Key(ev.SenderID, ev.RecipientID), func() error {
		var err error
		result, err = p.dispatch(cred, ev)
		return err
	})
	if err != nil {
		return err
	}

	if result != nil && result.Created && result.Message != nil {
		// Best effort: the commit stands whether or not the signal lands.
		if pubErr := p.notifier.Publish(ctx, notify.MessageCommitted{
			ConversationID: result.Conversation.ID,
			TenantID:       result.Conversation.TenantID,
			Message:        *result.Message,
		}); pubErr != nil {
			p.log.Error("publish committed message failed",
				"conversation_id", result.Conversation.ID, "error", pubErr)
		}
	}
	return nil
}

// dispatch is the tagged-variant switch. New platform event kinds show up
// here as unknown and are dropped at low severity without blocking the rest
// of the entry.
func (p *Processor) dispatch(cred *Credential, ev Event) (*CommitResult, error) {
	switch ev.Kind {
	case KindMessage, KindPostback:
		return p.upsert.CommitInbound(cred, ev)
	case KindEcho:
		return p.upsert.ApplyEcho(cred, ev)
	case KindDelivery, KindRead:
		return p.upsert.ApplyReceipt(cred, ev)
	default:
		p.log.Debug("dropping event of unknown kind",
			"kind", string(ev.Kind), "routing_key", cred.Channel.ExternalID)
		return nil, nil
	}
}
