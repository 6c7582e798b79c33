package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MessengerAPIError carries the raw Graph API error body for logging.
type MessengerAPIError struct {
	StatusCode int
	Body       string
}

func (e MessengerAPIError) Error() string {
	return fmt.Sprintf("messenger api error: status=%d body=%s", e.StatusCode, e.Body)
}

// MessengerClient sends messages through the Messenger Platform Send API
// using a page access token. One client per channel, built per invocation —
// the decrypted token never outlives the request that needed it.
type MessengerClient struct {
	AccessToken string
	ApiVersion  string // e.g. v20.0
	BaseURL     string // defaults to the Graph API host
}

// SendText sends a text message to a PSID and returns the platform message id.
func (c MessengerClient) SendText(ctx context.Context, recipientID string, text string) (string, error) {
	apiVersion := strings.TrimSpace(c.ApiVersion)
	if apiVersion == "" {
		apiVersion = "v20.0"
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	url := fmt.Sprintf("%s/%s/me/messages?access_token=%s", base, apiVersion, strings.TrimSpace(c.AccessToken))

	reqBody := map[string]any{
		"recipient":      map[string]any{"id": recipientID},
		"messaging_type": "RESPONSE",
		"message":        map[string]any{"text": text},
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
		return "", MessengerAPIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed struct {
		RecipientID string `json:"recipient_id"`
		MessageID   string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.MessageID, nil
}
