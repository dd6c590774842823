package store

import (
	"context"

	"fullsound/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, order_number, user_id, total_amount, status, payment_method, idempotency_key, created_at, updated_at`

// CreateOrder inserts an order together with its line items.
// Callers run it inside WithTx so the lines commit with the order.
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, total_amount, status, payment_method, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	row := q.db.QueryRowxContext(ctx, query,
		order.OrderNumber, order.UserID, order.TotalAmount, order.Status, order.PaymentMethod, order.IdempotencyKey)
	if err := translate(row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)); err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := q.createOrderItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) createOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, beat_id, item_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	row := q.db.QueryRowxContext(ctx, query,
		item.OrderID, item.BeatID, item.ItemName, item.Quantity, item.UnitPrice)
	return translate(row.Scan(&item.ID))
}

// GetOrderByID retrieves an order with its items
func (q *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// GetOrderForUpdate retrieves an order with its items and locks the order row
func (q *queries) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

// GetOrderByNumber retrieves an order by its human-readable number
func (q *queries) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_number = $1", number)
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (q *queries) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1", key)
}

func (q *queries) getOrder(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	if err := q.get(ctx, &order, query, arg); err != nil {
		return nil, err
	}

	items, err := q.getOrderItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (q *queries) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := q.selectAll(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	return orders, q.attachItems(ctx, orders)
}

// ListOrders retrieves every order, newest first
func (q *queries) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := q.selectAll(ctx, &orders, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	return orders, q.attachItems(ctx, orders)
}

func (q *queries) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	items, err := q.getOrderItems(ctx, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return nil
}

func (q *queries) getOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	query, args, err := sqlx.In(
		"SELECT id, order_id, beat_id, item_name, quantity, unit_price FROM order_items WHERE order_id IN (?) ORDER BY id",
		orderIDs)
	if err != nil {
		return nil, err
	}

	var items []models.OrderItem
	if err := q.selectAll(ctx, &items, q.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byOrder := make(map[int64][]models.OrderItem, len(orderIDs))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	return byOrder, nil
}

// UpdateOrderStatus updates order status
func (q *queries) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	return q.exec(ctx, "UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
}
