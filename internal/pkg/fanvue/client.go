package fanvue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fanflowhq/fanflow/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.fanvue.com"

// SendConfirmation is the delivery receipt returned by the messaging API.
type SendConfirmation struct {
	MessageID string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sender delivers a message to a recipient. Transport retries are the
// sender's concern; callers treat a returned error as final.
type Sender interface {
	SendMessage(ctx context.Context, recipientID, text string) (*SendConfirmation, error)
}

// Client talks to the Fanvue messaging API.
type Client struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from FANVUE_API_KEY / FANVUE_API_BASE_URL.
// Missing configuration surfaces as an explicit error on first use, never as
// silent placeholder behavior.
func NewClientFromEnv() *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	rc.HTTPClient.Timeout = 15 * time.Second

	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("FANVUE_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("FANVUE_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: rc.StandardClient(),
	}
}

// SendMessage posts a chat message to one recipient.
func (c *Client) SendMessage(ctx context.Context, recipientID, text string) (*SendConfirmation, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("FANVUE_API_KEY is not configured")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return nil, errors.New("FANVUE_API_BASE_URL is not configured")
	}
	if strings.TrimSpace(recipientID) == "" {
		return nil, errors.New("recipient id is required")
	}

	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/chats/%s/message", c.APIBaseURL, url.PathEscape(recipientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fanvue send message failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out SendConfirmation
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
