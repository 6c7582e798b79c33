package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	dbpkg "github.com/rakage/Chat-Bridge-sub000/db"
	"github.com/rakage/Chat-Bridge-sub000/engine"
	"github.com/rakage/Chat-Bridge-sub000/locks"
	"github.com/rakage/Chat-Bridge-sub000/models"
	"github.com/rakage/Chat-Bridge-sub000/tools"
)

// GET /api/conversations?tenant_id=N
//
// Re-fetch surface for downstream consumers: a subscriber that missed an
// AMQP signal pulls current state from here.
func GetConversations(c *gin.Context) {
	tenantID, err := strconv.ParseInt(strings.TrimSpace(c.Query("tenant_id")), 10, 64)
	if err != nil || tenantID <= 0 {
		RespondError(c, "tenant_id is required", http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	var conversations []models.Conversation
	if err := db.
		Where("tenant_id = ?", tenantID).
		Order("last_activity_at desc").
		Limit(100).
		Find(&conversations).Error; err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, conversations)
}

// GET /api/conversations/:id/messages
func GetConversationMessages(c *gin.Context) {
	convID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	var conv models.Conversation
	if err := db.First(&conv, convID).Error; err != nil {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}

	var messages []models.Message
	if err := db.
		Where("conversation_id = ?", conv.ID).
		Order("id asc").
		Find(&messages).Error; err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, messages)
}

// POST /api/conversations/:id/read
func MarkConversationRead(c *gin.Context) {
	convID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	res := db.Model(&models.Conversation{}).
		Where("id = ?", convID).
		Update("unread_count", 0)
	if res.Error != nil {
		RespondError(c, res.Error.Error(), http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}

	RespondSuccess(c, true)
}

type sendMessageReq struct {
	Text string `json:"text" binding:"required"`
}

// POST /api/conversations/:id/messages
//
// Agent send path. The local record is committed before the platform call so
// the echo arriving on the webhook has something to reconcile against:
// pending row first, platform send, then attach the returned message id.
func SendMessage(c *gin.Context) {
	convID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	var conv models.Conversation
	if err := db.First(&conv, convID).Error; err != nil {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}

	var ch models.Channel
	if err := db.First(&ch, conv.ChannelID).Error; err != nil {
		RespondError(c, "channel not found", http.StatusNotFound)
		return
	}

	cred, err := credStore.Resolve(ch.Platform, ch.ExternalID)
	if err != nil {
		if errors.Is(err, engine.ErrChannelNotFound) {
			RespondError(c, "channel disconnected", http.StatusConflict)
			return
		}
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	// The pending row is created under the same pair lock the webhook
	// pipeline uses, so a send and an inbound event for this conversation
	// cannot interleave their conversation bookkeeping.
	now := time.Now()
	msg := models.Message{
		ConversationID: conv.ID,
		Role:           models.MESSAGE_ROLE_AGENT,
		Kind:           models.MESSAGE_KIND_TEXT,
		Text:           req.Text,
		DeliveryStatus: models.DELIVERY_STATUS_PENDING,
		SentAt:         &now,
	}
	err = lockReg.Do(locks.Key(ch.ExternalID, conv.CounterpartID), func() error {
		if err := db.Create(&msg).Error; err != nil {
			return err
		}
		return db.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Update("last_activity_at", &now).Error
	})
	if err != nil {
		if errors.Is(err, locks.ErrBusy) {
			RespondError(c, "conversation busy, retry", http.StatusServiceUnavailable)
			return
		}
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	externalID, err := sendViaPlatform(c, cred, conv.CounterpartID, req.Text)
	if err != nil {
		_ = db.Model(&models.Message{}).Where("id = ?", msg.ID).
			Update("delivery_status", models.DELIVERY_STATUS_FAILED).Error
		RespondError(c, "platform send failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	// The echo may have beaten the send response here and already attached
	// the id; in that case this update matches zero rows and the echo's
	// value (the same id) stands.
	_ = db.Model(&models.Message{}).
		Where("id = ? AND external_message_id IS NULL", msg.ID).
		Updates(map[string]any{
			"external_message_id": externalID,
			"delivery_status":     models.DELIVERY_STATUS_SENT,
		}).Error

	if err := db.First(&msg, msg.ID).Error; err == nil {
		RespondSuccess(c, msg)
		return
	}
	RespondSuccess(c, true)
}

func sendViaPlatform(c *gin.Context, cred *engine.Credential, counterpartID, text string) (string, error) {
	switch cred.Channel.Platform {
	case models.PLATFORM_TELEGRAM:
		client := tools.TelegramClient{BotToken: cred.Token, BaseURL: conf.Telegram.BaseURL}
		mid, err := client.SendText(c.Request.Context(), counterpartID, text)
		if err != nil {
			return "", err
		}
		// Match the adapter's composite id: Telegram message ids are only
		// unique per chat.
		return counterpartID + ":" + mid, nil
	default:
		client := tools.MessengerClient{AccessToken: cred.Token, ApiVersion: conf.Messenger.ApiVersion, BaseURL: conf.Messenger.BaseURL}
		return client.SendText(c.Request.Context(), counterpartID, text)
	}
}
