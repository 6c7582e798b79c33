package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakage/Chat-Bridge-sub000/models"
)

func TestParseMessengerEnvelopeMessage(t *testing.T) {
	raw := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1700000000000,
			"messaging": [{
				"sender": {"id": "user-9"},
				"recipient": {"id": "page-1"},
				"timestamp": 1700000000123,
				"message": {"mid": "m-1", "text": "Hello"}
			}]
		}]
	}`)

	entries, err := ParseMessengerEnvelope(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, models.PLATFORM_MESSENGER, entry.Platform)
	assert.Equal(t, "page-1", entry.RoutingKey)
	require.Len(t, entry.Events, 1)

	ev := entry.Events[0]
	assert.Equal(t, KindMessage, ev.Kind)
	assert.Equal(t, "user-9", ev.SenderID)
	assert.Equal(t, "page-1", ev.RecipientID)
	assert.Equal(t, "m-1", ev.ExternalMessageID)
	assert.Equal(t, "Hello", ev.Text)
	assert.Equal(t, int64(1700000000123), ev.Timestamp)
}

func TestParseMessengerEnvelopeKinds(t *testing.T) {
	raw := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"messaging": [
				{"sender": {"id": "page-1"}, "recipient": {"id": "user-9"},
				 "message": {"mid": "m-echo", "text": "Hi", "is_echo": true}},
				{"sender": {"id": "user-9"}, "recipient": {"id": "page-1"},
				 "postback": {"title": "Buy", "payload": "BUY_NOW"}},
				{"sender": {"id": "user-9"}, "recipient": {"id": "page-1"},
				 "message": {"mid": "m-qr", "text": "Yes", "quick_reply": {"payload": "CONFIRM"}}},
				{"sender": {"id": "user-9"}, "recipient": {"id": "page-1"},
				 "delivery": {"mids": ["m-echo"], "watermark": 1700000001000}},
				{"sender": {"id": "user-9"}, "recipient": {"id": "page-1"},
				 "read": {"watermark": 1700000002000}},
				{"sender": {"id": "user-9"}, "recipient": {"id": "page-1"},
				 "reaction": {"emoji": "x"}}
			]
		}]
	}`)

	entries, err := ParseMessengerEnvelope(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	events := entries[0].Events
	require.Len(t, events, 6)

	assert.Equal(t, KindEcho, events[0].Kind)

	assert.Equal(t, KindPostback, events[1].Kind)
	assert.Equal(t, "BUY_NOW", events[1].Postback.Payload)

	// Quick-reply click routes like a postback but keeps its mid.
	assert.Equal(t, KindPostback, events[2].Kind)
	assert.Equal(t, "CONFIRM", events[2].Postback.Payload)
	assert.Equal(t, "m-qr", events[2].ExternalMessageID)

	assert.Equal(t, KindDelivery, events[3].Kind)
	assert.Equal(t, []string{"m-echo"}, events[3].Receipt.MessageIDs)

	assert.Equal(t, KindRead, events[4].Kind)
	assert.Equal(t, int64(1700000002000), events[4].Receipt.Watermark)

	// Unmapped item survives as unknown; the dispatcher drops it later.
	assert.Equal(t, KindUnknown, events[5].Kind)
}

func TestParseMessengerEnvelopeMultiTenantEntries(t *testing.T) {
	raw := []byte(`{
		"object": "page",
		"entry": [
			{"id": "page-A", "messaging": [{"sender": {"id": "u1"}, "recipient": {"id": "page-A"}, "message": {"mid": "a", "text": "to A"}}]},
			{"id": "page-B", "messaging": [{"sender": {"id": "u2"}, "recipient": {"id": "page-B"}, "message": {"mid": "b", "text": "to B"}}]}
		]
	}`)

	entries, err := ParseMessengerEnvelope(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "page-A", entries[0].RoutingKey)
	assert.Equal(t, "page-B", entries[1].RoutingKey)
}

func TestParseMessengerEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ParseMessengerEnvelope([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseMessengerEnvelope([]byte(`{"object": "instagram", "entry": []}`))
	assert.Error(t, err)
}

func TestParseMessengerEnvelopeAttachment(t *testing.T) {
	raw := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"messaging": [{
				"sender": {"id": "user-9"}, "recipient": {"id": "page-1"},
				"message": {"mid": "m-att", "attachments": [{"type": "image", "payload": {"url": "https://cdn/img.png"}}]}
			}]
		}]
	}`)

	entries, err := ParseMessengerEnvelope(raw)
	require.NoError(t, err)
	ev := entries[0].Events[0]
	require.NotNil(t, ev.Attachment)
	assert.Equal(t, "image", ev.Attachment.Type)
	assert.Equal(t, "https://cdn/img.png", ev.Attachment.URL)
	assert.NoError(t, ev.Validate())
}

func TestEventValidate(t *testing.T) {
	valid := Event{Kind: KindMessage, SenderID: "a", RecipientID: "b", Text: "hi"}
	assert.NoError(t, valid.Validate())

	missingSender := Event{Kind: KindMessage, RecipientID: "b", Text: "hi"}
	assert.Error(t, missingSender.Validate())

	emptyMessage := Event{Kind: KindMessage, SenderID: "a", RecipientID: "b"}
	assert.Error(t, emptyMessage.Validate())

	emptyPostback := Event{Kind: KindPostback, SenderID: "a", RecipientID: "b"}
	assert.Error(t, emptyPostback.Validate())

	bareReceipt := Event{Kind: KindRead, SenderID: "a", RecipientID: "b"}
	assert.Error(t, bareReceipt.Validate())
}
