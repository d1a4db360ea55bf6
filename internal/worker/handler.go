package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ecobazaar/ordercore/internal/domain"
)

// NotificationHandler consumes order lifecycle events and mails the buyer.
// It is purely a notification side channel: stock and reward consistency is
// handled by the adjustment outbox, not here.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order event: %w", err)
	}

	if event.BuyerEmail == "" {
		h.logger.Warn("order event without buyer email, skipping", "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("processing order event", "type", event.Type, "order_id", event.OrderID)

	var subject, body string
	switch event.Type {
	case domain.EventOrderCreated:
		subject = "Order Confirmed: " + event.OrderID
		body = fmt.Sprintf("Your order %s with %d items is confirmed. You earned %.1f eco points.",
			event.OrderID, event.ItemCount, event.TotalCarbonPoints)
	case domain.EventOrderCancelled:
		subject = "Order Cancelled: " + event.OrderID
		body = fmt.Sprintf("Your order %s has been cancelled and %.1f eco points were reversed.",
			event.OrderID, event.TotalCarbonPoints)
	case domain.EventOrderReturned:
		subject = "Order Returned: " + event.OrderID
		body = fmt.Sprintf("Your return of order %s is complete and %.1f eco points were reversed.",
			event.OrderID, event.TotalCarbonPoints)
	default:
		h.logger.Warn("unknown order event type, skipping", "type", event.Type, "order_id", event.OrderID)
		return nil
	}

	if err := h.sendEmail(ctx, event.BuyerEmail, subject, body); err != nil {
		h.logger.Error("failed to send email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send email for order %s: %w", event.OrderID, err)
	}

	h.logger.Info("buyer notified", "order_id", event.OrderID, "type", event.Type)
	return nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, to, subject, body string) error {
	data, err := json.Marshal(map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
