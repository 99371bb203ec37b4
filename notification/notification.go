package notification

import (
	"context"
	"time"
)

// Defining the event types emitted on state transitions
const (
	OrderPaid           string = "order.paid"
	OrderShipped               = "order.shipped"
	OrderDelivered             = "order.delivered"
	OrderCancelled             = "order.cancelled"
	ReturnRequested            = "order.return_requested"
	ReturnApproved             = "order.return_approved"
	ReturnDenied               = "order.return_denied"
	SubscriptionCreated        = "subscription.created"
	SubscriptionUpdated        = "subscription.updated"
	SubscriptionExpired        = "subscription.expired"
)

// Event describes one notification to be delivered out-of-band (email,
// in-app). Delivery is fire-and-forget: a lost notification never rolls
// back the state transition that produced it
type Event struct {
	Type        string            `json:"type"`
	RecipientID string            `json:"recipientId"`
	OrderID     string            `json:"orderId,omitempty"`
	OrderNumber string            `json:"orderNumber,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	At          time.Time         `json:"at"`
}

// Notifier defines the producing side of the notification collaborator
type Notifier interface {
	Emit(ctx context.Context, event Event)
	Close()
}
