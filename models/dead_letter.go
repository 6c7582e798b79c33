package models

import "time"

// DeadLetter keeps the raw payload of an inbound event that exhausted its
// retry budget, for manual reconciliation. Nothing in the engine reads these
// back; operators replay them by resetting the source InboundEvent.
type DeadLetter struct {
	ID             int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	InboundEventID int64      `gorm:"not null;index" json:"inbound_event_id"`
	Platform       string     `gorm:"not null" json:"platform"`
	RoutingKey     string     `gorm:"not null;index" json:"routing_key"`
	Payload        string     `gorm:"type:text;not null" json:"payload"`
	Reason         string     `gorm:"type:text" json:"reason"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	CreatedAt      *time.Time `json:"created_at"`
}
