// Package telegram is a thin client for the Telegram Bot API covering
// the calls the watcher needs: sending alerts and long-polling for
// subscribe commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const apiHost = "https://api.telegram.org"

// maxMediaGroup is the Bot API limit on photos per sendMediaGroup call.
const maxMediaGroup = 10

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(token string, httpClient *http.Client) *Client {
	return newClient(apiHost, token, httpClient)
}

func newClient(host, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    host + "/bot" + token,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *responseParams `json:"parameters"`
	Result      json.RawMessage `json:"result"`
}

type responseParams struct {
	RetryAfter int `json:"retry_after"`
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if !apiResp.OK {
		apiErr := &Error{
			Code:        apiResp.ErrorCode,
			Description: apiResp.Description,
		}
		if apiResp.Parameters != nil {
			apiErr.RetryAfterSeconds = apiResp.Parameters.RetryAfter
		}
		if apiErr.RetryAfterSeconds == 0 {
			apiErr.RetryAfterSeconds = retryHintFromDescription(apiResp.Description)
		}
		// A 429 without a usable hint still has to back off.
		if apiErr.Code == http.StatusTooManyRequests && apiErr.RetryAfterSeconds == 0 {
			apiErr.RetryAfterSeconds = defaultRetryAfterSeconds
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

type inputMediaPhoto struct {
	Type  string `json:"type"`
	Media string `json:"media"`
}

// SendImageGroup sends up to ten photos as a single media group.
func (c *Client) SendImageGroup(ctx context.Context, chatID int64, photoURLs []string) error {
	if len(photoURLs) == 0 {
		return nil
	}
	if len(photoURLs) > maxMediaGroup {
		photoURLs = photoURLs[:maxMediaGroup]
	}

	media := make([]inputMediaPhoto, len(photoURLs))
	for i, u := range photoURLs {
		media[i] = inputMediaPhoto{Type: "photo", Media: u}
	}

	return c.call(ctx, "sendMediaGroup", map[string]interface{}{
		"chat_id": chatID,
		"media":   media,
	}, nil)
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// GetUpdates long-polls the API for incoming messages. offset should be
// one past the highest update ID already handled.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]interface{}{
		"offset":  offset,
		"timeout": timeoutSec,
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}
