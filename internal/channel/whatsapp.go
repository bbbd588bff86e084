// Package channel sends outbound messages through the WhatsApp Cloud API.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/httpclient"
	"whatsbot/internal/common/logger"
)

// WhatsAppClient posts messages to one business phone number.
type WhatsAppClient struct {
	baseURL       string
	phoneNumberID string
	apiKey        string
	http          *httpclient.Client
	logger        logger.Logger
}

func NewWhatsAppClient(baseURL, phoneNumberID, apiKey string, timeout time.Duration, log logger.Logger) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		apiKey:        apiKey,
		http:          httpclient.NewClient(timeout),
		logger:        log,
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type sendTextResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText delivers a plain text reply to the recipient phone and returns the
// provider message id.
func (c *WhatsAppClient) SendText(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return "", errors.NewValidationFailedError(fmt.Sprintf("encode message: %v", err))
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.NewValidationFailedError(fmt.Sprintf("build send request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("Message delivery failed", map[string]interface{}{"to": to})
		return "", errors.NewDeliveryFailedError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Channel rejected message", map[string]interface{}{
			"to":     to,
			"status": resp.StatusCode,
			"body":   string(raw),
		})
		return "", errors.NewDeliveryFailedError(fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	var out sendTextResponse
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Messages) == 0 {
		return "", errors.NewMalformedUpstreamResponseError("send response carried no message id")
	}

	c.logger.Debug("Message delivered", map[string]interface{}{
		"to":         to,
		"message_id": out.Messages[0].ID,
	})
	return out.Messages[0].ID, nil
}
