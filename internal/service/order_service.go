package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/models"
	"fullsound/internal/store"
	"fullsound/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles order business logic
type OrderService struct {
	store          store.Transactor
	locks          *orderLocks
	eventPublisher EventPublisher
	numbers        *OrderNumberGenerator
	numberAttempts int
	logger         *zap.Logger
}

// OrderServiceConfig carries the tunables of OrderService
type OrderServiceConfig struct {
	LockTTL        time.Duration
	NumberAttempts int
}

// NewOrderService creates a new order service
func NewOrderService(
	store store.Transactor,
	locker Locker,
	eventPublisher EventPublisher,
	cfg OrderServiceConfig,
) *OrderService {
	attempts := cfg.NumberAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &OrderService{
		store:          store,
		locks:          newOrderLocks(locker, cfg.LockTTL),
		eventPublisher: eventPublisher,
		numbers:        NewOrderNumberGenerator(),
		numberAttempts: attempts,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	UserID         int64   `json:"-"`
	BeatIDs        []int64 `json:"beat_ids"`
	PaymentMethod  string  `json:"payment_method"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// CreateOrder validates the requested beats, snapshots their title and price
// and persists a PENDING order with its lines in one transaction.
// Beat availability is not changed here.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	order, err := s.createOrder(ctx, req)
	if err != nil {
		util.RecordError(span, err)
		util.OrdersFailedTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	if len(req.BeatIDs) == 0 {
		return nil, apperr.Validation("order must contain at least one beat")
	}
	seen := make(map[int64]bool, len(req.BeatIDs))
	for _, id := range req.BeatIDs {
		if seen[id] {
			return nil, apperr.Validation("beat %d is listed more than once", id)
		}
		seen[id] = true
	}

	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, apperr.Validation("invalid payment method: %s", req.PaymentMethod)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.findByIdempotencyKey(ctx, key, req.UserID)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	if _, err := s.store.GetUserByID(ctx, req.UserID); err != nil {
		return nil, notFound(err, "user", "id", req.UserID)
	}

	var order *models.Order
	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		order, err = s.insertOrder(ctx, req, method, key)
		if err == nil {
			break
		}
		if store.IsUniqueViolation(err, store.ConstraintOrderNumber) {
			s.logger.Warn("Order number collision, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		if key != "" && store.IsUniqueViolation(err, store.ConstraintOrderIdempotencyKey) {
			existing, lookupErr := s.findByIdempotencyKey(ctx, key, req.UserID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("allocate order number after %d attempts: %w", s.numberAttempts, err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", order.UserID),
		zap.Int64("total", order.TotalAmount))

	s.publishOrderCreated(ctx, order)
	return order, nil
}

// insertOrder runs one creation attempt with a fresh order number
func (s *OrderService) insertOrder(ctx context.Context, req *CreateOrderRequest, method models.PaymentMethod, key string) (*models.Order, error) {
	order := &models.Order{
		OrderNumber:   s.numbers.Next(),
		UserID:        req.UserID,
		Status:        models.OrderStatusPending,
		PaymentMethod: method,
	}
	if key != "" {
		order.IdempotencyKey = &key
	}

	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		// Lock in id order so concurrent checkouts of overlapping carts cannot deadlock
		lockOrder := append([]int64(nil), req.BeatIDs...)
		sort.Slice(lockOrder, func(i, j int) bool { return lockOrder[i] < lockOrder[j] })

		beats := make(map[int64]*models.Beat, len(lockOrder))
		for _, id := range lockOrder {
			beat, err := repo.GetBeatForUpdate(ctx, id)
			if err != nil {
				return notFound(err, "beat", "id", id)
			}
			if beat.Status != models.BeatStatusAvailable {
				return apperr.Conflict("beat %q is not available", beat.Title)
			}
			beats[id] = beat
		}

		order.Items = make([]models.OrderItem, 0, len(req.BeatIDs))
		for _, id := range req.BeatIDs {
			beat := beats[id]
			order.Items = append(order.Items, models.OrderItem{
				BeatID:    beat.ID,
				ItemName:  beat.Title,
				Quantity:  1,
				UnitPrice: beat.Price,
			})
		}
		order.TotalAmount = order.ItemsTotal()

		return repo.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, key string, userID int64) (*models.Order, error) {
	existing, err := s.store.GetOrderByIdempotencyKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing.UserID != userID {
		return nil, apperr.Conflict("idempotency key already used")
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))
	return existing, nil
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order) {
	if s.eventPublisher == nil {
		return
	}

	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			BeatID:    item.BeatID,
			ItemName:  item.ItemName,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}

	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

// UpdateStatus applies an order status transition and its beat side effects.
// Moving an order to its current status changes nothing.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, rawStatus, changedBy string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	to, err := models.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, apperr.Validation("invalid order status: %s", rawStatus)
	}

	var (
		order *models.Order
		t     *transition
	)
	err = s.locks.withOrder(ctx, orderID, func() error {
		return s.store.WithTx(ctx, func(repo store.Repository) error {
			var err error
			order, err = repo.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return notFound(err, "order", "id", orderID)
			}
			t, err = applyTransition(ctx, repo, order, to)
			return err
		})
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	recordTransition(ctx, s.eventPublisher, s.logger, t, order.BeatIDs(), changedBy)
	return s.GetOrder(ctx, orderID)
}

// GetOrder retrieves an order with its items by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", "id", orderID)
	}
	return order, nil
}

// GetOrderByNumber retrieves an order by its FS- number
func (s *OrderService) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, notFound(err, "order", "number", number)
	}
	return order, nil
}

// ListOrdersForUser lists a user's orders, newest first
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, err := s.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListAllOrders lists every order, newest first
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
