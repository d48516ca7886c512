package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the provider's webhook events.
type EventType string

const (
	EventMessageReceived       EventType = "message.received"
	EventSubscriberNew         EventType = "subscriber.new"
	EventTipReceived           EventType = "tip.received"
	EventPurchaseReceived      EventType = "purchase.received"
	EventSubscriptionRenewed   EventType = "subscription.renewed"
	EventSubscriptionCancelled EventType = "subscription.cancelled"

	// PPV payment confirmations, delivered on the payment endpoint.
	EventPPVPaymentReceived EventType = "ppv.payment.received"
	EventPPVPaymentFailed   EventType = "ppv.payment.failed"
	EventPPVUnlocked        EventType = "ppv.unlocked"
)

// MessagePayload is the chat message carried by message.received.
type MessagePayload struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// EventData is the variant payload of an event envelope; which fields are
// required depends on the event type.
type EventData struct {
	UserID           string          `json:"userUuid,omitempty"`
	Username         string          `json:"username,omitempty"`
	Message          *MessagePayload `json:"message,omitempty"`
	Amount           float64         `json:"amount,omitempty"`
	Currency         string          `json:"currency,omitempty"`
	SubscriptionTier string          `json:"subscriptionTier,omitempty"`

	// Payment confirmation fields
	TrackingID string `json:"trackingId,omitempty"`
	PurchaseID string `json:"purchaseId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Event is the typed webhook envelope.
type Event struct {
	Type      EventType `json:"event"`
	Timestamp string    `json:"timestamp"`
	Data      EventData `json:"data"`
}

// ParseEvent decodes a verified raw body into an event envelope.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("webhook payload has no event field")
	}
	return &ev, nil
}

// AsMap flattens the payload for ledger recording.
func (d EventData) AsMap() map[string]any {
	out := map[string]any{}
	if d.UserID != "" {
		out["userUuid"] = d.UserID
	}
	if d.Username != "" {
		out["username"] = d.Username
	}
	if d.Message != nil {
		out["message"] = map[string]any{
			"id":        d.Message.ID,
			"content":   d.Message.Content,
			"createdAt": d.Message.CreatedAt,
		}
	}
	if d.Amount != 0 {
		out["amount"] = d.Amount
	}
	if d.Currency != "" {
		out["currency"] = d.Currency
	}
	if d.SubscriptionTier != "" {
		out["subscriptionTier"] = d.SubscriptionTier
	}
	if d.TrackingID != "" {
		out["trackingId"] = d.TrackingID
	}
	if d.PurchaseID != "" {
		out["purchaseId"] = d.PurchaseID
	}
	if d.Reason != "" {
		out["reason"] = d.Reason
	}
	return out
}

// Ack is the synchronous acknowledgment returned before processing completes.
type Ack struct {
	Success    bool      `json:"success"`
	Event      EventType `json:"event"`
	ReceivedAt time.Time `json:"receivedAt"`
}
