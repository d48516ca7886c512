package ppv

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a tracked PPV offer.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentTracking records one outstanding PPV offer. It is created when the
// offer is sent and owned by the runner until it reaches a terminal status.
type PaymentTracking struct {
	ID        string
	CommandID string
	UserID    string
	Amount    float64
	Status    PaymentStatus
	CreatedAt time.Time
	PaidAt    *time.Time
	ExpiresAt time.Time
}

// NewPaymentTracking starts a pending tracking record with the given TTL.
func NewPaymentTracking(commandID, userID string, amount float64, ttl time.Duration) *PaymentTracking {
	now := time.Now()
	return &PaymentTracking{
		ID:        "ppv_" + uuid.New().String(),
		CommandID: commandID,
		UserID:    userID,
		Amount:    amount,
		Status:    PaymentPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the offer outlived its TTL without payment.
func (p *PaymentTracking) Expired() bool {
	return p.Status == PaymentPending && time.Now().After(p.ExpiresAt)
}
