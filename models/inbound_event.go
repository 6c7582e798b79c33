package models

import "time"

/************************************************
/**** MARK: INBOUND EVENT STATUS ****/
/************************************************/
const INBOUND_STATUS_PENDING = "pending"
const INBOUND_STATUS_PROCESSING = "processing"
const INBOUND_STATUS_DONE = "done"
const INBOUND_STATUS_DEAD = "dead"

// InboundEvent is one queued webhook entry (routing unit). The HTTP handler
// authenticates and parses the envelope, persists one row per entry and
// returns 200 immediately; the ingest worker drains due rows. A transient
// failure (lock contention, storage error) puts the row back to pending with
// a pushed-out ScheduledAt; once Attempts passes the configured cap the row
// goes to dead and a DeadLetter record is written.
type InboundEvent struct {
	ID          int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Platform    string     `gorm:"not null;index" json:"platform"`
	RoutingKey  string     `gorm:"not null;index" json:"routing_key"`
	Payload     string     `gorm:"type:text;not null" json:"payload"` // canonical events, JSON
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	Status      string     `gorm:"not null;default:'pending';index" json:"status"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}
