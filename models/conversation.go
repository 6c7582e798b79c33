package models

import "time"

/************************************************
/**** MARK: CONVERSATION STATUS ****/
/************************************************/
const CONVERSATION_STATUS_OPEN = "open"
const CONVERSATION_STATUS_CLOSED = "closed"

// Conversation is one thread between a tenant and an external counterpart.
// The (tenant_id, counterpart_id) pair is the conversation key: at most one
// live row per pair, enforced by the unique index plus the pair lock taken
// around every lookup-or-create (the two steps are not atomic on their own).
//
// Closing/archiving is a dashboard concern; this engine never deletes rows.
type Conversation struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID        int64      `gorm:"not null;unique_index:idx_conversations_key" json:"tenant_id"`
	CounterpartID   string     `gorm:"not null;unique_index:idx_conversations_key" json:"counterpart_id"`
	ChannelID       int64      `gorm:"not null;index" json:"channel_id"`
	CounterpartName string     `json:"counterpart_name"`
	Status          string     `gorm:"not null;default:'open';index" json:"status"`
	UnreadCount     int        `gorm:"not null;default:0" json:"unread_count"`
	LastActivityAt  *time.Time `gorm:"index" json:"last_activity_at"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}
