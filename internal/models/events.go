package models

import "time"

// Event types
const (
	EventTypeOrderCreated         = "ORDER_CREATED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypePaymentIntentCreated = "PAYMENT_INTENT_CREATED"
	EventTypePaymentSucceeded     = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed        = "PAYMENT_FAILED"
	EventTypeGatewayIntentUpdated = "GATEWAY_INTENT_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order and its lines are committed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after a committed status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64       `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	BeatIDs   []int64     `json:"beat_ids"`
	ChangedBy string      `json:"changed_by"`
}

// PaymentIntentCreatedEvent published when a gateway intent is attached to an order
type PaymentIntentCreatedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	IntentID  string `json:"intent_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// PaymentSucceededEvent published when the gateway reports a captured payment
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	ChargeID  string `json:"charge_id"`
}

// PaymentFailedEvent published when the gateway reports a canceled intent
type PaymentFailedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Reason    string `json:"reason"`
}

// GatewayIntentUpdatedEvent carries a verified webhook notification to the payment worker
type GatewayIntentUpdatedEvent struct {
	BaseEvent
	GatewayEventID string `json:"gateway_event_id"`
	GatewayType    string `json:"gateway_type"`
	IntentID       string `json:"intent_id"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	BeatID    int64  `json:"beat_id"`
	ItemName  string `json:"item_name"`
	UnitPrice int64  `json:"unit_price"`
}
