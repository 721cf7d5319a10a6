package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Mailer delivers digest emails through an HTTP mail API.
type Mailer struct {
	client   *http.Client
	endpoint string
	apiKey   string
	from     string
}

func NewMailer(client *http.Client, endpoint, apiKey, from string) *Mailer {
	return &Mailer{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
	}
}

type sendRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (m *Mailer) Send(ctx context.Context, msg Message) (*Delivery, error) {
	// A fresh key per message lets the provider dedup retried requests
	idempotencyKey := uuid.New().String()

	payload, err := json.Marshal(sendRequest{
		From:           m.from,
		To:             msg.To,
		Subject:        msg.Subject,
		Text:           msg.TextBody,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mail provider returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var ack sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil || ack.ID == "" {
		// Provider accepted the message; fall back to our own key as the id
		return &Delivery{MessageID: idempotencyKey}, nil
	}
	return &Delivery{MessageID: ack.ID}, nil
}
