package models

import (
	"fmt"
	"strings"
	"time"
)

// BeatStatus is the availability of a catalog beat
type BeatStatus string

const (
	BeatStatusAvailable BeatStatus = "AVAILABLE"
	BeatStatusSold      BeatStatus = "SOLD"
	BeatStatusReserved  BeatStatus = "RESERVED"
	BeatStatusInactive  BeatStatus = "INACTIVE"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// PaymentStatus is the state of a gateway payment attempt
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// PaymentMethod is the tag a customer picks at checkout
type PaymentMethod string

const (
	PaymentMethodStripe   PaymentMethod = "STRIPE"
	PaymentMethodPayPal   PaymentMethod = "PAYPAL"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

// Role of a registered user
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleAdministrator Role = "administrator"
)

// ParseBeatStatus validates a beat status coming from a client
func ParseBeatStatus(raw string) (BeatStatus, error) {
	s := BeatStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case BeatStatusAvailable, BeatStatusSold, BeatStatusReserved, BeatStatusInactive:
		return s, nil
	}
	return "", fmt.Errorf("unknown beat status %q", raw)
}

// ParseOrderStatus validates an order status coming from a client
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return s, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

// ParsePaymentMethod validates a payment method tag; empty defaults to STRIPE
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case "":
		return PaymentMethodStripe, nil
	case PaymentMethodStripe, PaymentMethodPayPal, PaymentMethodTransfer:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}

// Beat represents a sellable catalog item
type Beat struct {
	ID           int64      `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	Slug         string     `db:"slug" json:"slug"`
	Artist       string     `db:"artist" json:"artist,omitempty"`
	Price        int64      `db:"price" json:"price"`
	BPM          int        `db:"bpm" json:"bpm,omitempty"`
	MusicalKey   string     `db:"musical_key" json:"musical_key,omitempty"`
	DurationSecs int        `db:"duration_secs" json:"duration_secs,omitempty"`
	Genre        string     `db:"genre" json:"genre,omitempty"`
	Tags         string     `db:"tags" json:"tags,omitempty"`
	Description  string     `db:"description" json:"description,omitempty"`
	ImageURL     string     `db:"image_url" json:"image_url,omitempty"`
	AudioURL     string     `db:"audio_url" json:"audio_url,omitempty"`
	DemoAudioURL string     `db:"demo_audio_url" json:"demo_audio_url,omitempty"`
	Plays        int64      `db:"plays" json:"plays"`
	Status       BeatStatus `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// User is a registered marketplace account
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer purchase of one or more beats
type Order struct {
	ID             int64         `db:"id" json:"id"`
	OrderNumber    string        `db:"order_number" json:"order_number"`
	UserID         int64         `db:"user_id" json:"user_id"`
	TotalAmount    int64         `db:"total_amount" json:"total_amount"`
	Status         OrderStatus   `db:"status" json:"status"`
	PaymentMethod  PaymentMethod `db:"payment_method" json:"payment_method"`
	IdempotencyKey *string       `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	Items          []OrderItem   `db:"-" json:"items"`
}

// ItemsTotal sums the snapshotted subtotals of the order lines
func (o *Order) ItemsTotal() int64 {
	var total int64
	for i := range o.Items {
		total += o.Items[i].Subtotal()
	}
	return total
}

// BeatIDs lists the beats referenced by the order lines in line order
func (o *Order) BeatIDs() []int64 {
	ids := make([]int64, len(o.Items))
	for i := range o.Items {
		ids[i] = o.Items[i].BeatID
	}
	return ids
}

// OrderItem is one purchased beat within an order
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	BeatID    int64  `db:"beat_id" json:"beat_id"`
	ItemName  string `db:"item_name" json:"item_name"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// Subtotal is always derived, never stored
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Payment represents a payment gateway transaction for an order
type Payment struct {
	ID              int64         `db:"id" json:"id"`
	OrderID         int64         `db:"order_id" json:"order_id"`
	GatewayIntentID string        `db:"gateway_intent_id" json:"gateway_intent_id"`
	GatewayChargeID *string       `db:"gateway_charge_id" json:"gateway_charge_id,omitempty"`
	Status          PaymentStatus `db:"status" json:"status"`
	Amount          int64         `db:"amount" json:"amount"`
	Currency        string        `db:"currency" json:"currency"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	ProcessedAt     *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}
