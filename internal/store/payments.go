package store

import (
	"context"

	"fullsound/internal/models"
)

const paymentColumns = `id, order_id, gateway_intent_id, gateway_charge_id, status, amount, currency, created_at, processed_at, updated_at`

// CreatePayment creates a new payment record
func (q *queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, gateway_intent_id, gateway_charge_id, status, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	row := q.db.QueryRowxContext(ctx, query,
		payment.OrderID, payment.GatewayIntentID, payment.GatewayChargeID, payment.Status, payment.Amount, payment.Currency)
	return translate(row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt))
}

// GetPaymentByID retrieves a payment by ID
func (q *queries) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	if err := q.get(ctx, &payment, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByIntentID retrieves the payment attached to a gateway intent
func (q *queries) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := q.get(ctx, &payment, "SELECT "+paymentColumns+" FROM payments WHERE gateway_intent_id = $1", intentID)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPaymentsByOrder retrieves every payment attempt of an order, oldest first
func (q *queries) ListPaymentsByOrder(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := q.selectAll(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return payments, err
}

// UpdatePayment persists the gateway outcome of a payment
func (q *queries) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		UPDATE payments SET status = $1, gateway_charge_id = $2, processed_at = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`

	row := q.db.QueryRowxContext(ctx, query, payment.Status, payment.GatewayChargeID, payment.ProcessedAt, payment.ID)
	return translate(row.Scan(&payment.UpdatedAt))
}
