package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rakage/Chat-Bridge-sub000/models"
)

// Messenger webhook wire format, trimmed to the fields we route on.
// https://developers.facebook.com/docs/messenger-platform/webhooks
type messengerPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string               `json:"id"` // page id == routing key
		Time      int64                `json:"time"`
		Messaging []messengerMessaging `json:"messaging"`
	} `json:"entry"`
}

type messengerMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`

	Message *struct {
		MID        string `json:"mid"`
		Text       string `json:"text"`
		IsEcho     bool   `json:"is_echo"`
		QuickReply *struct {
			Payload string `json:"payload"`
		} `json:"quick_reply"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`

	Postback *struct {
		Title   string `json:"title"`
		Payload string `json:"payload"`
	} `json:"postback"`

	Delivery *struct {
		MIDs      []string `json:"mids"`
		Watermark int64    `json:"watermark"`
	} `json:"delivery"`

	Read *struct {
		Watermark int64 `json:"watermark"`
	} `json:"read"`
}

// ParseMessengerEnvelope normalizes one Messenger webhook delivery into
// routing entries. Envelopes for objects other than "page" are rejected;
// messaging items that map to no known kind come back as KindUnknown and are
// dropped later by the dispatcher.
func ParseMessengerEnvelope(raw []byte) ([]Entry, error) {
	var payload messengerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid messenger payload: %w", err)
	}
	if payload.Object != "page" {
		return nil, fmt.Errorf("unsupported webhook object %q", payload.Object)
	}

	entries := make([]Entry, 0, len(payload.Entry))
	for _, e := range payload.Entry {
		if strings.TrimSpace(e.ID) == "" {
			continue
		}
		entry := Entry{
			Platform:   models.PLATFORM_MESSENGER,
			RoutingKey: e.ID,
			Events:     make([]Event, 0, len(e.Messaging)),
		}
		for _, m := range e.Messaging {
			entry.Events = append(entry.Events, normalizeMessengerEvent(m))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func normalizeMessengerEvent(m messengerMessaging) Event {
	ev := Event{
		Kind:        KindUnknown,
		SenderID:    m.Sender.ID,
		RecipientID: m.Recipient.ID,
		Timestamp:   m.Timestamp,
	}

	switch {
	case m.Message != nil:
		ev.Kind = KindMessage
		if m.Message.IsEcho {
			ev.Kind = KindEcho
		}
		ev.ExternalMessageID = m.Message.MID
		ev.Text = m.Message.Text
		// A quick-reply click arrives as a message but routes like a postback.
		if m.Message.QuickReply != nil && !m.Message.IsEcho {
			ev.Kind = KindPostback
			ev.Postback = &Postback{Payload: m.Message.QuickReply.Payload, Title: m.Message.Text}
		}
		if len(m.Message.Attachments) > 0 {
			a := m.Message.Attachments[0]
			ev.Attachment = &Attachment{Type: a.Type, URL: a.Payload.URL}
		}
	case m.Postback != nil:
		ev.Kind = KindPostback
		ev.Postback = &Postback{Title: m.Postback.Title, Payload: m.Postback.Payload}
	case m.Delivery != nil:
		ev.Kind = KindDelivery
		ev.Receipt = &Receipt{MessageIDs: m.Delivery.MIDs, Watermark: m.Delivery.Watermark}
	case m.Read != nil:
		ev.Kind = KindRead
		ev.Receipt = &Receipt{Watermark: m.Read.Watermark}
	}

	return ev
}
