package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"

	dbpkg "github.com/rakage/Chat-Bridge-sub000/db"
	"github.com/rakage/Chat-Bridge-sub000/engine"
	"github.com/rakage/Chat-Bridge-sub000/models"
)

// GET /webhook/messenger
//
// Meta's subscription handshake:
// GET /webhook/messenger?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func MessengerWebhookVerify(c *gin.Context) {
	verifyToken := conf.Messenger.VerifyToken
	if verifyToken == "" {
		RespondError(c, "messenger verify token not configured", http.StatusInternalServerError)
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) == 1 && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}

	RespondError(c, "forbidden", http.StatusForbidden)
}

// POST /webhook/messenger
//
// Authenticates the payload, splits it into routing entries and queues them.
// Responds sub-second regardless of processing: a slow 200 triggers Meta
// retry storms. Malformed payloads are logged and still acked — retrying an
// unfixable body helps no one.
func MessengerWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}

	if ok, reason := verifyMessengerSignature(c, raw); !ok {
		RespondError(c, "forbidden: "+reason, http.StatusForbidden)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	entries, err := engine.ParseMessengerEnvelope(raw)
	if err != nil {
		log.Printf("[webhook] dropping malformed messenger envelope: %v", err)
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	for _, entry := range entries {
		if err := enqueueEntry(db, entry); err != nil {
			// An authenticated event we could not persist must come back:
			// a 5xx makes the platform redeliver, and the idempotent commit
			// on the external message id absorbs the replayed entries.
			log.Printf("[webhook] enqueue failed for routing key %s: %v", entry.RoutingKey, err)
			RespondError(c, "enqueue failed", http.StatusInternalServerError)
			return
		}
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
}

// POST /webhook/telegram/:secret
//
// Telegram has no signature header; the per-channel secret embedded in the
// webhook path is validated synchronously before any parsing.
func TelegramWebhook(c *gin.Context) {
	secret := strings.TrimSpace(c.Param("secret"))

	ch, err := credStore.LookupWebhookSecret(models.PLATFORM_TELEGRAM, secret)
	if err != nil {
		if errors.Is(err, engine.ErrChannelNotFound) {
			RespondError(c, "forbidden", http.StatusForbidden)
			return
		}
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	entry, err := engine.ParseTelegramUpdate(ch.ExternalID, raw)
	if err != nil {
		log.Printf("[webhook] dropping malformed telegram update: %v", err)
		c.String(http.StatusOK, "ok")
		return
	}

	if err := enqueueEntry(db, entry); err != nil {
		log.Printf("[webhook] enqueue failed for routing key %s: %v", entry.RoutingKey, err)
		RespondError(c, "enqueue failed", http.StatusInternalServerError)
		return
	}

	c.String(http.StatusOK, "ok")
}

// verifyMessengerSignature validates the raw body against Meta's
// X-Hub-Signature-256 header using the app secret.
func verifyMessengerSignature(c *gin.Context, rawBody []byte) (bool, string) {
	secret := strings.TrimSpace(conf.Messenger.AppSecret)
	if secret == "" {
		return false, "messenger app secret not configured"
	}

	sig := strings.TrimSpace(c.GetHeader("X-Hub-Signature-256"))
	if sig == "" {
		return false, "missing X-Hub-Signature-256"
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false, "invalid X-Hub-Signature-256 format"
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return false, "invalid signature hex"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return false, "signature mismatch"
	}

	return true, ""
}

// enqueueEntry persists one routing unit for the ingest worker, due
// immediately. Heavy work (resolve, lock, decrypt, upsert) happens there.
// The insert is retried once before the failure is surfaced to the handler.
func enqueueEntry(db *gorm.DB, entry engine.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	now := time.Now()
	ev := models.InboundEvent{
		Platform:    entry.Platform,
		RoutingKey:  entry.RoutingKey,
		Payload:     string(payload),
		Status:      models.INBOUND_STATUS_PENDING,
		ScheduledAt: &now,
	}
	if err := db.Create(&ev).Error; err == nil {
		return nil
	}
	ev.ID = 0
	return db.Create(&ev).Error
}
