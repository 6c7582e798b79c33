package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TelegramClient sends messages through the Bot API. Same lifetime rule as
// MessengerClient: built per invocation from a freshly decrypted token.
type TelegramClient struct {
	BotToken string
	BaseURL  string // defaults to the Bot API host
}

// SendText sends a text message to a chat and returns the message id
// (stringified; Telegram ids are per-chat integers).
func (c TelegramClient) SendText(ctx context.Context, chatID string, text string) (string, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, strings.TrimSpace(c.BotToken))

	reqBody := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}

	b, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("telegram api error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if !parsed.OK {
		return "", fmt.Errorf("telegram api returned ok=false")
	}
	return strconv.FormatInt(parsed.Result.MessageID, 10), nil
}
