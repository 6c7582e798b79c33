package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/rakage/Chat-Bridge-sub000/models"
)

// UpsertService idempotently commits events into conversation/message
// storage. Every method that touches a conversation must be called inside
// the pair lock for that counterpart — the lookup-or-create below is not
// atomic without external serialization.
type UpsertService struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewUpsertService(db *gorm.DB, logger *slog.Logger) *UpsertService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpsertService{db: db, log: logger}
}

// CommitResult reports what a commit did. Message is nil for receipt
// updates; Created is false when idempotency resolved to an existing row.
type CommitResult struct {
	Conversation models.Conversation
	Message      *models.Message
	Created      bool
}

// CommitInbound records a customer-originated MESSAGE or POSTBACK. The
// insert is idempotent on (conversation, external message id): redelivery
// returns the existing row untouched.
func (s *UpsertService) CommitInbound(cred *Credential, ev Event) (*CommitResult, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	conv, err := s.findOrCreateConversation(tx, cred, ev.CounterpartID(), ev.SenderName)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if ev.ExternalMessageID != "" {
		var existing models.Message
		err := tx.Where("conversation_id = ? AND external_message_id = ?", conv.ID, ev.ExternalMessageID).
			First(&existing).Error
		if err == nil {
			// Duplicate delivery: not an error, nothing to write.
			tx.Rollback()
			return &CommitResult{Conversation: *conv, Message: &existing, Created: false}, nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			tx.Rollback()
			return nil, err
		}
	}

	msg := buildInboundMessage(conv.ID, ev)
	if err := tx.Create(&msg).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// Unread counts only move for customer-originated content events.
	updates := map[string]any{
		"last_activity_at": msg.SentAt,
		"unread_count":     gorm.Expr("unread_count + 1"),
		"status":           models.CONVERSATION_STATUS_OPEN,
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	conv.UnreadCount++
	return &CommitResult{Conversation: *conv, Message: &msg, Created: true}, nil
}

// ApplyEcho reconciles the platform's reflection of a message the tenant's
// own system sent. Known external id → no-op. Unknown id with a pending
// agent send → attach the id to that record. Neither → the page/bot sent the
// message through some other tool; record it as an agent message so the
// conversation history stays complete.
func (s *UpsertService) ApplyEcho(cred *Credential, ev Event) (*CommitResult, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	conv, err := s.findOrCreateConversation(tx, cred, ev.CounterpartID(), "")
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if ev.ExternalMessageID != "" {
		var existing models.Message
		err := tx.Where("conversation_id = ? AND external_message_id = ?", conv.ID, ev.ExternalMessageID).
			First(&existing).Error
		if err == nil {
			tx.Rollback()
			return &CommitResult{Conversation: *conv, Message: &existing, Created: false}, nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			tx.Rollback()
			return nil, err
		}

		// Echo raced ahead of the send call's response: attach the id to the
		// most recent pending local record instead of duplicating it.
		var pending models.Message
		err = tx.Where("conversation_id = ? AND external_message_id IS NULL AND role IN (?) AND delivery_status = ?",
			conv.ID, []string{models.MESSAGE_ROLE_AGENT, models.MESSAGE_ROLE_BOT}, models.DELIVERY_STATUS_PENDING).
			Order("id desc").
			First(&pending).Error
		if err == nil {
			mid := ev.ExternalMessageID
			if err := tx.Model(&models.Message{}).Where("id = ?", pending.ID).Updates(map[string]any{
				"external_message_id": mid,
				"delivery_status":     models.DELIVERY_STATUS_SENT,
			}).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			if err := tx.Commit().Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			pending.ExternalMessageID = &mid
			pending.DeliveryStatus = models.DELIVERY_STATUS_SENT
			return &CommitResult{Conversation: *conv, Message: &pending, Created: false}, nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			tx.Rollback()
			return nil, err
		}
	}

	msg := buildInboundMessage(conv.ID, ev)
	msg.Role = models.MESSAGE_ROLE_AGENT
	msg.DeliveryStatus = models.DELIVERY_STATUS_SENT
	if err := tx.Create(&msg).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
		Update("last_activity_at", msg.SentAt).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	return &CommitResult{Conversation: *conv, Message: &msg, Created: true}, nil
}

// ApplyReceipt moves delivery-state metadata forward. Receipts never create
// message rows, and a receipt for an unknown conversation is a no-op (the
// platform can replay receipts after a conversation was ingested elsewhere).
func (s *UpsertService) ApplyReceipt(cred *Credential, ev Event) (*CommitResult, error) {
	var conv models.Conversation
	err := s.db.Where("tenant_id = ? AND counterpart_id = ?", cred.Channel.TenantID, ev.CounterpartID()).
		First(&conv).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}

	target := models.DELIVERY_STATUS_DELIVERED
	eligible := []string{models.DELIVERY_STATUS_PENDING, models.DELIVERY_STATUS_SENT}
	if ev.Kind == KindRead {
		target = models.DELIVERY_STATUS_READ
		eligible = append(eligible, models.DELIVERY_STATUS_DELIVERED)
	}

	query := s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND role IN (?) AND delivery_status IN (?)",
			conv.ID, []string{models.MESSAGE_ROLE_AGENT, models.MESSAGE_ROLE_BOT}, eligible)

	switch {
	case len(ev.Receipt.MessageIDs) > 0:
		query = query.Where("external_message_id IN (?)", ev.Receipt.MessageIDs)
	case ev.Receipt.Watermark > 0:
		query = query.Where("sent_at <= ?", time.UnixMilli(ev.Receipt.Watermark))
	default:
		return nil, nil
	}

	if err := query.Update("delivery_status", target).Error; err != nil {
		return nil, fmt.Errorf("apply %s receipt: %w", ev.Kind, err)
	}
	return &CommitResult{Conversation: conv}, nil
}

// MarkConversationRead clears the unread counter (dashboard acknowledged).
func (s *UpsertService) MarkConversationRead(conversationID int64) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("unread_count", 0).Error
}

func (s *UpsertService) findOrCreateConversation(tx *gorm.DB, cred *Credential, counterpartID, counterpartName string) (*models.Conversation, error) {
	var conv models.Conversation
	err := tx.Where("tenant_id = ? AND counterpart_id = ?", cred.Channel.TenantID, counterpartID).
		First(&conv).Error
	if err == nil {
		if counterpartName != "" && conv.CounterpartName == "" {
			if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
				Update("counterpart_name", counterpartName).Error; err == nil {
				conv.CounterpartName = counterpartName
			}
		}
		return &conv, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	now := time.Now()
	conv = models.Conversation{
		TenantID:        cred.Channel.TenantID,
		CounterpartID:   counterpartID,
		ChannelID:       cred.Channel.ID,
		CounterpartName: counterpartName,
		Status:          models.CONVERSATION_STATUS_OPEN,
		LastActivityAt:  &now,
	}
	if err := tx.Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

func buildInboundMessage(conversationID int64, ev Event) models.Message {
	sentAt := time.Now()
	if ev.Timestamp > 0 {
		sentAt = time.UnixMilli(ev.Timestamp)
	}

	msg := models.Message{
		ConversationID: conversationID,
		Role:           models.MESSAGE_ROLE_CUSTOMER,
		Kind:           models.MESSAGE_KIND_TEXT,
		Text:           ev.Text,
		DeliveryStatus: models.DELIVERY_STATUS_DELIVERED,
		SentAt:         &sentAt,
	}
	if ev.ExternalMessageID != "" {
		mid := ev.ExternalMessageID
		msg.ExternalMessageID = &mid
	}
	if ev.Attachment != nil {
		msg.Kind = models.MESSAGE_KIND_ATTACHMENT
		msg.AttachmentType = ev.Attachment.Type
		msg.AttachmentURL = ev.Attachment.URL
	}
	// Postbacks become message-like records with a payload marker so
	// downstream consumers can tell a button click from free text.
	if ev.Kind == KindPostback && ev.Postback != nil {
		msg.Kind = models.MESSAGE_KIND_POSTBACK
		msg.PostbackPayload = ev.Postback.Payload
		if msg.Text == "" {
			msg.Text = ev.Postback.Title
		}
	}
	return msg
}
