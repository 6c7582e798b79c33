package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinzhu/gorm"

	"github.com/rakage/Chat-Bridge-sub000/models"
	"github.com/rakage/Chat-Bridge-sub000/tools"
)

// ErrChannelNotFound means no connected channel claims the routing key.
// Retrying cannot fix a missing mapping, so callers drop the event.
var ErrChannelNotFound = errors.New("no channel for routing key")

// ErrCredentialDecrypt means the stored token could not be decrypted even
// after a retry; the channel has been marked degraded and the event should
// stay queued until an operator rotates the credential.
var ErrCredentialDecrypt = errors.New("credential decrypt failed")

// AlertFunc is the monitoring hook invoked on operational anomalies
// (unknown routing key, decrypt failure). Wired to slog by default; tests
// and deployments can swap in their own sink.
type AlertFunc func(event string, attrs ...slog.Attr)

// Credential is a resolved channel with its token decrypted. It is built per
// processing unit and must not be cached or stored.
type Credential struct {
	Channel      models.Channel
	Token        string
	Capabilities []string
}

// Subscribed reports whether the channel opted into a capability
// (messages, postbacks, receipts).
func (c *Credential) Subscribed(capability string) bool {
	for _, got := range c.Capabilities {
		if strings.TrimSpace(got) == capability {
			return true
		}
	}
	return false
}

// CredentialStore resolves routing keys to tenant credentials,
// decrypt-on-read. Pure lookup: no caching, no plaintext outside the
// returned Credential.
type CredentialStore struct {
	db     *gorm.DB
	cipher *tools.Cipher
	log    *slog.Logger
	alert  AlertFunc
}

func NewCredentialStore(db *gorm.DB, cipher *tools.Cipher, logger *slog.Logger, alert AlertFunc) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CredentialStore{db: db, cipher: cipher, log: logger, alert: alert}
	if s.alert == nil {
		s.alert = func(event string, attrs ...slog.Attr) {
			s.log.LogAttrs(context.Background(), slog.LevelWarn, "alert: "+event, attrs...)
		}
	}
	return s
}

// Resolve maps (platform, routingKey) to the owning tenant's credential.
// A disconnected channel resolves like a missing one: the subscription is
// stale and the event must be dropped with an alert, not retried.
func (s *CredentialStore) Resolve(platform, routingKey string) (*Credential, error) {
	var ch models.Channel
	err := s.db.
		Where("platform = ? AND external_id = ? AND status <> ?", platform, routingKey, models.CHANNEL_STATUS_DISCONNECTED).
		First(&ch).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			s.alert("unknown_routing_key",
				slog.String("platform", platform),
				slog.String("routing_key", routingKey))
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("channel lookup: %w", err)
	}

	token, err := s.decryptToken(ch)
	if err != nil {
		return nil, err
	}

	return &Credential{
		Channel:      ch,
		Token:        token,
		Capabilities: strings.Split(ch.Capabilities, ","),
	}, nil
}

// LookupWebhookSecret finds the channel that owns a path-embedded webhook
// secret. Used synchronously on POST for platforms without a signature
// header; no decryption happens here.
func (s *CredentialStore) LookupWebhookSecret(platform, secret string) (*models.Channel, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrChannelNotFound
	}
	var ch models.Channel
	err := s.db.
		Where("platform = ? AND webhook_secret = ? AND status <> ?", platform, secret, models.CHANNEL_STATUS_DISCONNECTED).
		First(&ch).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("channel lookup: %w", err)
	}
	return &ch, nil
}

// decryptToken tries twice, then marks the channel degraded and alerts.
// Degraded is reversible: reconnecting (token rotation) clears it.
func (s *CredentialStore) decryptToken(ch models.Channel) (string, error) {
	token, err := s.cipher.Decrypt(ch.AccessToken)
	if err == nil {
		return token, nil
	}
	token, retryErr := s.cipher.Decrypt(ch.AccessToken)
	if retryErr == nil {
		return token, nil
	}

	if ch.Status != models.CHANNEL_STATUS_DEGRADED {
		if dbErr := s.db.Model(&models.Channel{}).
			Where("id = ?", ch.ID).
			Update("status", models.CHANNEL_STATUS_DEGRADED).Error; dbErr != nil {
			s.log.Error("failed to mark channel degraded", "channel_id", ch.ID, "error", dbErr)
		}
	}
	s.alert("credential_decrypt_failed",
		slog.Int64("channel_id", ch.ID),
		slog.Int64("tenant_id", ch.TenantID),
		slog.String("platform", ch.Platform))

	return "", fmt.Errorf("%w: channel %d: %v", ErrCredentialDecrypt, ch.ID, retryErr)
}
