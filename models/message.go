package models

import "time"

/************************************************
/**** MARK: MESSAGE ROLES / KINDS / DELIVERY ****/
/************************************************/
const MESSAGE_ROLE_CUSTOMER = "customer"
const MESSAGE_ROLE_AGENT = "agent"
const MESSAGE_ROLE_BOT = "bot"
const MESSAGE_ROLE_SYSTEM = "system"

// Kind marks how the content arrived so downstream consumers can tell a
// button click apart from free text.
const MESSAGE_KIND_TEXT = "text"
const MESSAGE_KIND_ATTACHMENT = "attachment"
const MESSAGE_KIND_POSTBACK = "postback"
const MESSAGE_KIND_SYSTEM = "system"

const DELIVERY_STATUS_PENDING = "pending"
const DELIVERY_STATUS_SENT = "sent"
const DELIVERY_STATUS_DELIVERED = "delivered"
const DELIVERY_STATUS_READ = "read"
const DELIVERY_STATUS_FAILED = "failed"

// Message belongs to exactly one Conversation. ExternalMessageID is the
// platform-assigned id; it is nil for engine-generated system rows and for
// agent sends whose confirmation has not landed yet. Within a conversation a
// non-nil external id is unique — duplicate webhook delivery hits the index
// and resolves to the existing row instead of creating a second one.
type Message struct {
	ID                int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	ConversationID    int64      `gorm:"not null;index;unique_index:idx_messages_external" json:"conversation_id"`
	ExternalMessageID *string    `gorm:"unique_index:idx_messages_external" json:"external_message_id"`
	Role              string     `gorm:"not null;index" json:"role"`
	Kind              string     `gorm:"not null;default:'text'" json:"kind"`
	Text              string     `gorm:"type:text" json:"text"`
	AttachmentType    string     `json:"attachment_type,omitempty"`
	AttachmentURL     string     `gorm:"type:text" json:"attachment_url,omitempty"`
	PostbackPayload   string     `json:"postback_payload,omitempty"`
	DeliveryStatus    string     `gorm:"not null;default:'sent';index" json:"delivery_status"`
	SentAt            *time.Time `gorm:"index" json:"sent_at"` // platform timestamp
	CreatedAt         *time.Time `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
}
