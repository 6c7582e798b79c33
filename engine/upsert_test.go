package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakage/Chat-Bridge-sub000/models"
)

func inboundText(mid, sender, recipient, text string) Event {
	return Event{
		Kind:              KindMessage,
		SenderID:          sender,
		RecipientID:       recipient,
		Timestamp:         1700000000000,
		ExternalMessageID: mid,
		Text:              text,
		SenderName:        "Ada",
	}
}

func TestCommitInboundCreatesConversationAndMessage(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	res, err := svc.CommitInbound(cred, inboundText("m-1", "user-9", "page-1", "Hello"))
	require.NoError(t, err)
	require.True(t, res.Created)

	assert.Equal(t, int64(1), res.Conversation.TenantID)
	assert.Equal(t, "user-9", res.Conversation.CounterpartID)
	assert.Equal(t, models.MESSAGE_ROLE_CUSTOMER, res.Message.Role)
	assert.Equal(t, "Hello", res.Message.Text)
	assert.Equal(t, "Ada", res.Conversation.CounterpartName)
	assert.Equal(t, 1, res.Conversation.UnreadCount)

	var count int
	db.Model(&models.Conversation{}).Count(&count)
	assert.Equal(t, 1, count)
}

func TestCommitInboundIsIdempotentOnExternalID(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	ev := inboundText("m-dup", "user-9", "page-1", "Hello")
	first, err := svc.CommitInbound(cred, ev)
	require.NoError(t, err)
	require.True(t, first.Created)

	// Same envelope redelivered by the platform.
	for i := 0; i < 3; i++ {
		res, err := svc.CommitInbound(cred, ev)
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, first.Message.ID, res.Message.ID)
	}

	var msgCount int
	db.Model(&models.Message{}).Count(&msgCount)
	assert.Equal(t, 1, msgCount)

	var conv models.Conversation
	require.NoError(t, db.First(&conv, first.Conversation.ID).Error)
	assert.Equal(t, 1, conv.UnreadCount, "redelivery must not bump unread")
}

func TestCommitInboundPostbackMarker(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	ev := Event{
		Kind:              KindPostback,
		SenderID:          "user-9",
		RecipientID:       "page-1",
		ExternalMessageID: "m-pb",
		Postback:          &Postback{Title: "Buy", Payload: "BUY_NOW"},
	}
	res, err := svc.CommitInbound(cred, ev)
	require.NoError(t, err)
	assert.Equal(t, models.MESSAGE_KIND_POSTBACK, res.Message.Kind)
	assert.Equal(t, "BUY_NOW", res.Message.PostbackPayload)
	assert.Equal(t, "Buy", res.Message.Text)
}

func TestRoutingIsolationBetweenTenants(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cipher := newTestCipher(t)
	credA := testCredential(seedChannel(t, db, cipher, 1, models.PLATFORM_MESSENGER, "page-A"))
	credB := testCredential(seedChannel(t, db, cipher, 2, models.PLATFORM_MESSENGER, "page-B"))

	// Same counterpart id talking to two different tenants.
	_, err := svc.CommitInbound(credA, inboundText("a-1", "user-9", "page-A", "to A"))
	require.NoError(t, err)
	_, err = svc.CommitInbound(credB, inboundText("b-1", "user-9", "page-B", "to B"))
	require.NoError(t, err)

	var convs []models.Conversation
	require.NoError(t, db.Order("tenant_id asc").Find(&convs).Error)
	require.Len(t, convs, 2)
	assert.Equal(t, int64(1), convs[0].TenantID)
	assert.Equal(t, int64(2), convs[1].TenantID)

	var count int
	db.Model(&models.Message{}).Where("conversation_id = ?", convs[0].ID).Count(&count)
	assert.Equal(t, 1, count, "tenant A sees only its own message")
}

func TestApplyEchoSuppressesKnownMessage(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	// Agent message already recorded with its platform id (send response
	// processed before the echo arrived).
	first, err := svc.CommitInbound(cred, inboundText("m-1", "user-9", "page-1", "Hello"))
	require.NoError(t, err)
	mid := "ext-99"
	agent := models.Message{
		ConversationID:    first.Conversation.ID,
		ExternalMessageID: &mid,
		Role:              models.MESSAGE_ROLE_AGENT,
		Kind:              models.MESSAGE_KIND_TEXT,
		Text:              "Hi",
		DeliveryStatus:    models.DELIVERY_STATUS_SENT,
	}
	require.NoError(t, db.Create(&agent).Error)

	echo := Event{
		Kind:              KindEcho,
		SenderID:          "page-1",
		RecipientID:       "user-9",
		ExternalMessageID: "ext-99",
		Text:              "Hi",
	}
	res, err := svc.ApplyEcho(cred, echo)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, agent.ID, res.Message.ID)

	var count int
	db.Model(&models.Message{}).Count(&count)
	assert.Equal(t, 2, count)
}

func TestApplyEchoAttachesToPendingSend(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	first, err := svc.CommitInbound(cred, inboundText("m-1", "user-9", "page-1", "Hello"))
	require.NoError(t, err)

	// Send committed locally, platform confirmation not yet processed.
	pending := models.Message{
		ConversationID: first.Conversation.ID,
		Role:           models.MESSAGE_ROLE_AGENT,
		Kind:           models.MESSAGE_KIND_TEXT,
		Text:           "Hi",
		DeliveryStatus: models.DELIVERY_STATUS_PENDING,
	}
	require.NoError(t, db.Create(&pending).Error)

	echo := Event{
		Kind:              KindEcho,
		SenderID:          "page-1",
		RecipientID:       "user-9",
		ExternalMessageID: "ext-99",
		Text:              "Hi",
	}
	res, err := svc.ApplyEcho(cred, echo)
	require.NoError(t, err)
	assert.False(t, res.Created, "echo must reconcile, not create")
	assert.Equal(t, pending.ID, res.Message.ID)

	var got models.Message
	require.NoError(t, db.First(&got, pending.ID).Error)
	require.NotNil(t, got.ExternalMessageID)
	assert.Equal(t, "ext-99", *got.ExternalMessageID)
	assert.Equal(t, models.DELIVERY_STATUS_SENT, got.DeliveryStatus)

	var count int
	db.Model(&models.Message{}).Count(&count)
	assert.Equal(t, 2, count, "no duplicate row for the echoed send")
}

func TestApplyEchoRecordsForeignSend(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	// Page replied through some other tool; no local record exists.
	echo := Event{
		Kind:              KindEcho,
		SenderID:          "page-1",
		RecipientID:       "user-9",
		ExternalMessageID: "ext-77",
		Text:              "Sent elsewhere",
	}
	res, err := svc.ApplyEcho(cred, echo)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, models.MESSAGE_ROLE_AGENT, res.Message.Role)
	assert.Equal(t, "user-9", res.Conversation.CounterpartID)

	var conv models.Conversation
	require.NoError(t, db.First(&conv, res.Conversation.ID).Error)
	assert.Equal(t, 0, conv.UnreadCount, "agent content never bumps unread")
}

func TestApplyReceiptAdvancesDeliveryState(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	first, err := svc.CommitInbound(cred, inboundText("m-1", "user-9", "page-1", "Hello"))
	require.NoError(t, err)

	mid := "ext-1"
	agent := models.Message{
		ConversationID:    first.Conversation.ID,
		ExternalMessageID: &mid,
		Role:              models.MESSAGE_ROLE_AGENT,
		Kind:              models.MESSAGE_KIND_TEXT,
		Text:              "Hi",
		DeliveryStatus:    models.DELIVERY_STATUS_SENT,
	}
	require.NoError(t, db.Create(&agent).Error)

	res, err := svc.ApplyReceipt(cred, Event{
		Kind:        KindDelivery,
		SenderID:    "user-9",
		RecipientID: "page-1",
		Receipt:     &Receipt{MessageIDs: []string{"ext-1"}},
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	var got models.Message
	require.NoError(t, db.First(&got, agent.ID).Error)
	assert.Equal(t, models.DELIVERY_STATUS_DELIVERED, got.DeliveryStatus)

	// Receipts never add rows.
	var count int
	db.Model(&models.Message{}).Count(&count)
	assert.Equal(t, 2, count)
}

func TestApplyReceiptUnknownConversationIsNoop(t *testing.T) {
	db := newTestDB(t)
	svc := NewUpsertService(db, discardLogger())
	cred := testCredential(seedChannel(t, db, newTestCipher(t), 1, models.PLATFORM_MESSENGER, "page-1"))

	res, err := svc.ApplyReceipt(cred, Event{
		Kind:        KindRead,
		SenderID:    "stranger",
		RecipientID: "page-1",
		Receipt:     &Receipt{Watermark: 1700000000000},
	})
	require.NoError(t, err)
	assert.Nil(t, res)
}
