package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rakage/Chat-Bridge-sub000/models"
)

// Telegram Bot API update, trimmed to the fields we route on. Telegram
// delivers one update per request; the adapter wraps it into a single-event
// entry for the bot's routing key.
type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`

	CallbackQuery *struct {
		ID      string        `json:"id"`
		From    *telegramUser `json:"from"`
		Message *struct {
			MessageID int64 `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

type telegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *telegramUser `json:"from"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Date     int64  `json:"date"` // seconds since epoch
	Text     string `json:"text"`
	Document *struct {
		FileID string `json:"file_id"`
	} `json:"document"`
	Photo []struct {
		FileID string `json:"file_id"`
	} `json:"photo"`
}

type telegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// ParseTelegramUpdate normalizes one Bot API update. botID is the channel's
// routing key, resolved from the path-embedded webhook secret before parsing.
func ParseTelegramUpdate(botID string, raw []byte) (Entry, error) {
	var upd telegramUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		return Entry{}, fmt.Errorf("invalid telegram payload: %w", err)
	}

	entry := Entry{
		Platform:   models.PLATFORM_TELEGRAM,
		RoutingKey: botID,
	}

	switch {
	case upd.Message != nil:
		entry.Events = append(entry.Events, normalizeTelegramMessage(botID, upd.Message))
	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		ev := Event{
			Kind:        KindPostback,
			RecipientID: botID,
			// Callback ids are globally unique, so they carry duplicate
			// suppression even when the originating message is absent.
			ExternalMessageID: "cb:" + cb.ID,
			Postback:          &Postback{Payload: cb.Data},
		}
		if cb.From != nil {
			ev.SenderID = strconv.FormatInt(cb.From.ID, 10)
			ev.SenderName = telegramDisplayName(cb.From)
		}
		// Same chat-scoped counterpart as plain messages when the clicked
		// message is attached.
		if cb.Message != nil {
			ev.SenderID = strconv.FormatInt(cb.Message.Chat.ID, 10)
		}
		entry.Events = append(entry.Events, ev)
	default:
		// Future update types (edits, reactions, member changes) pass through
		// as unknown and get dropped by the dispatcher.
		entry.Events = append(entry.Events, Event{Kind: KindUnknown, RecipientID: botID})
	}

	return entry, nil
}

func normalizeTelegramMessage(botID string, m *telegramMessage) Event {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	ev := Event{
		Kind: KindMessage,
		// The chat is the conversation party in both directions. Keying on
		// the author would split a group chat across counterparts and the
		// send path targets the chat id anyway.
		SenderID:          chatID,
		RecipientID:       botID,
		Timestamp:         m.Date * 1000,
		ExternalMessageID: chatID + ":" + strconv.FormatInt(m.MessageID, 10),
		Text:              m.Text,
	}
	if m.From != nil {
		ev.SenderName = telegramDisplayName(m.From)
		// The bot's own sends come back on the update stream like an echo.
		if m.From.IsBot {
			ev.Kind = KindEcho
			ev.SenderID = botID
			ev.RecipientID = chatID
		}
	}
	if m.Document != nil {
		ev.Attachment = &Attachment{Type: "file", URL: m.Document.FileID}
	} else if len(m.Photo) > 0 {
		ev.Attachment = &Attachment{Type: "image", URL: m.Photo[len(m.Photo)-1].FileID}
	}
	return ev
}

func telegramDisplayName(u *telegramUser) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}
