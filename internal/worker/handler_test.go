package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ecobazaar/ordercore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marshalEvent(t *testing.T, event domain.OrderEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return payload
}

func TestNotificationHandler(t *testing.T) {
	t.Run("sends confirmation email for created order", func(t *testing.T) {
		var sent map[string]string
		emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/send" {
				t.Errorf("expected /send, got %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
				t.Fatalf("failed to decode email request: %v", err)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"sent"}`))
		}))
		defer emailServer.Close()

		handler := NewNotificationHandler(emailServer.URL, emailServer.Client(), testLogger())

		payload := marshalEvent(t, domain.OrderEvent{
			Type:              domain.EventOrderCreated,
			OrderID:           "order-1",
			BuyerEmail:        "buyer@example.com",
			TotalCarbonPoints: 40,
			ItemCount:         2,
			Timestamp:         time.Now().UTC(),
		})

		if err := handler.Handle(context.Background(), payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sent["to"] != "buyer@example.com" {
			t.Errorf("expected email to buyer@example.com, got %s", sent["to"])
		}
		if sent["subject"] != "Order Confirmed: order-1" {
			t.Errorf("unexpected subject: %s", sent["subject"])
		}
	})

	t.Run("returns error when email service fails", func(t *testing.T) {
		emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer emailServer.Close()

		handler := NewNotificationHandler(emailServer.URL, emailServer.Client(), testLogger())

		payload := marshalEvent(t, domain.OrderEvent{
			Type:       domain.EventOrderCancelled,
			OrderID:    "order-2",
			BuyerEmail: "buyer@example.com",
		})

		if err := handler.Handle(context.Background(), payload); err == nil {
			t.Fatal("expected error when email service is down")
		}
	})

	t.Run("skips event without buyer email", func(t *testing.T) {
		handler := NewNotificationHandler("http://unused", http.DefaultClient, testLogger())

		payload := marshalEvent(t, domain.OrderEvent{
			Type:    domain.EventOrderReturned,
			OrderID: "order-3",
		})

		if err := handler.Handle(context.Background(), payload); err != nil {
			t.Fatalf("expected skip without error, got %v", err)
		}
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		handler := NewNotificationHandler("http://unused", http.DefaultClient, testLogger())

		if err := handler.Handle(context.Background(), []byte("not json")); err == nil {
			t.Fatal("expected error for malformed payload")
		}
	})
}
