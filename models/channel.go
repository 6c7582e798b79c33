package models

import "time"

/************************************************
/**** MARK: CHANNEL PLATFORMS & STATUS ****/
/************************************************/
const PLATFORM_MESSENGER = "messenger"
const PLATFORM_TELEGRAM = "telegram"

const CHANNEL_STATUS_CONNECTED = "connected"
const CHANNEL_STATUS_DEGRADED = "degraded"
const CHANNEL_STATUS_DISCONNECTED = "disconnected"

// Channel is a tenant-owned messaging endpoint (a Messenger page or a
// Telegram bot). ExternalID is the platform-assigned id that inbound webhook
// entries are routed by. AccessToken is stored AES-GCM encrypted and only
// decrypted for the lifetime of a single processing unit.
//
// Disconnect is a soft delete: the row stays (status=disconnected) so late
// deliveries can be recognized and dropped with an alert instead of 500ing.
type Channel struct {
	ID             int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID       int64      `gorm:"not null;index" json:"tenant_id"`
	Platform       string     `gorm:"not null;unique_index:idx_channels_routing" json:"platform"`
	ExternalID     string     `gorm:"not null;unique_index:idx_channels_routing" json:"external_id"`
	DisplayName    string     `json:"display_name"`
	AccessToken    string     `gorm:"column:access_token;type:text;not null" json:"-"`
	WebhookSecret  string     `gorm:"column:webhook_secret;index" json:"-"`
	Capabilities   string     `gorm:"default:'messages'" json:"capabilities"` // csv: messages,postbacks,receipts
	Status         string     `gorm:"not null;default:'connected';index" json:"status"`
	DisconnectedAt *time.Time `json:"disconnected_at"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}
