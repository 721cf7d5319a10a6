package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMailerSend(t *testing.T) {
	var received sendRequest
	var authHeader, idempotencyHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		idempotencyHeader = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		fmt.Fprint(w, `{"id":"provider-123"}`)
	}))
	defer server.Close()

	mailer := NewMailer(server.Client(), server.URL, "secret-key", "alerts@flathound.example")
	delivery, err := mailer.Send(context.Background(), Message{
		To:       "a@example.com",
		Subject:  "2 new listings match your alerts",
		TextBody: "body",
	})
	if err != nil {
		t.Fatalf("Expected send to succeed, got %v", err)
	}

	if delivery.MessageID != "provider-123" {
		t.Errorf("Expected provider message id, got %s", delivery.MessageID)
	}
	if authHeader != "Bearer secret-key" {
		t.Errorf("Expected bearer auth header, got %q", authHeader)
	}
	if idempotencyHeader == "" {
		t.Error("Expected an idempotency key header")
	}
	if received.From != "alerts@flathound.example" || received.To != "a@example.com" {
		t.Errorf("Unexpected envelope %s -> %s", received.From, received.To)
	}
	if received.IdempotencyKey != idempotencyHeader {
		t.Error("Expected idempotency key mirrored in the payload")
	}
}

func TestMailerSendFallbackMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	mailer := NewMailer(server.Client(), server.URL, "k", "from@example.com")
	delivery, err := mailer.Send(context.Background(), Message{To: "a@example.com"})
	if err != nil {
		t.Fatalf("Expected accepted send to succeed, got %v", err)
	}
	if delivery.MessageID == "" {
		t.Error("Expected fallback message id when the provider returns none")
	}
}

func TestMailerSendProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	mailer := NewMailer(server.Client(), server.URL, "k", "from@example.com")
	if _, err := mailer.Send(context.Background(), Message{To: "a@example.com"}); err == nil {
		t.Error("Expected error on provider rejection")
	}
}
