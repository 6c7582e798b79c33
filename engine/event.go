package engine

import (
	"errors"
	"fmt"
)

// Kind tags the canonical event variant. Dispatch is a closed switch on this
// tag — an unrecognized value is dropped, never an error that blocks the
// rest of the entry.
type Kind string

const (
	KindMessage  Kind = "message"
	KindEcho     Kind = "echo"
	KindPostback Kind = "postback"
	KindDelivery Kind = "delivery"
	KindRead     Kind = "read"
	KindUnknown  Kind = "unknown"
)

// Attachment references platform-hosted media; the engine stores the
// reference, never the bytes.
type Attachment struct {
	Type string `json:"type"` // image, video, audio, file
	URL  string `json:"url"`
}

// Postback carries structured button/quick-reply click data.
type Postback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload"`
}

// Receipt carries delivery/read acknowledgment data. Watermark semantics
// follow Messenger: everything the tenant sent at or before it is covered.
// MessageIDs is set when the platform names messages explicitly.
type Receipt struct {
	MessageIDs []string `json:"message_ids,omitempty"`
	Watermark  int64    `json:"watermark,omitempty"` // ms since epoch
}

// Event is the canonical, platform-agnostic shape every adapter normalizes
// into. Exactly one of Text/Attachment/Postback/Receipt is meaningful,
// depending on Kind.
type Event struct {
	Kind              Kind        `json:"kind"`
	SenderID          string      `json:"sender_id"`
	RecipientID       string      `json:"recipient_id"`
	Timestamp         int64       `json:"timestamp"` // ms since epoch
	ExternalMessageID string      `json:"external_message_id,omitempty"`
	SenderName        string      `json:"sender_name,omitempty"`
	Text              string      `json:"text,omitempty"`
	Attachment        *Attachment `json:"attachment,omitempty"`
	Postback          *Postback   `json:"postback,omitempty"`
	Receipt           *Receipt    `json:"receipt,omitempty"`
}

// Entry is one routing unit: the events one tenant endpoint received in a
// single delivery. Entries in the same envelope are independent and may
// belong to different tenants.
type Entry struct {
	Platform   string  `json:"platform"`
	RoutingKey string  `json:"routing_key"`
	Events     []Event `json:"events"`
}

var errMissingParty = errors.New("event is missing sender or recipient")

// Validate rejects events that cannot be routed. Invalid events are dropped
// with a log line, never passed downstream.
func (e Event) Validate() error {
	if e.SenderID == "" || e.RecipientID == "" {
		return errMissingParty
	}
	switch e.Kind {
	case KindMessage, KindEcho:
		if e.Text == "" && e.Attachment == nil {
			return fmt.Errorf("%s event has no content", e.Kind)
		}
	case KindPostback:
		if e.Postback == nil || e.Postback.Payload == "" {
			return errors.New("postback event has no payload")
		}
	case KindDelivery, KindRead:
		if e.Receipt == nil {
			return fmt.Errorf("%s event has no receipt data", e.Kind)
		}
	}
	return nil
}

// CounterpartID returns the external party's id relative to the tenant
// endpoint. Echoes travel endpoint→customer, everything else customer→endpoint.
func (e Event) CounterpartID() string {
	if e.Kind == KindEcho {
		return e.RecipientID
	}
	return e.SenderID
}
