package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/gateway"
	"fullsound/internal/models"
	"fullsound/internal/store"
	"fullsound/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService coordinates payment intents with the payment gateway
type PaymentService struct {
	store          store.Transactor
	gateway        PaymentGateway
	locks          *orderLocks
	eventPublisher EventPublisher
	currency       string
	logger         *zap.Logger
	now            func() time.Time
}

// PaymentServiceConfig carries the tunables of PaymentService
type PaymentServiceConfig struct {
	Currency string
	LockTTL  time.Duration
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store store.Transactor,
	gateway PaymentGateway,
	locker Locker,
	eventPublisher EventPublisher,
	cfg PaymentServiceConfig,
) *PaymentService {
	return &PaymentService{
		store:          store,
		gateway:        gateway,
		locks:          newOrderLocks(locker, cfg.LockTTL),
		eventPublisher: eventPublisher,
		currency:       strings.ToUpper(cfg.Currency),
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// PaymentIntentResult is a persisted payment plus the secret the client confirms it with
type PaymentIntentResult struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

// CreatePaymentIntent opens a gateway intent for the order total, records a
// PENDING payment and moves the order to PROCESSING.
func (ps *PaymentService) CreatePaymentIntent(ctx context.Context, orderID int64) (*PaymentIntentResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePaymentIntent")
	defer span.End()

	var (
		result *PaymentIntentResult
		order  *models.Order
		t      *transition
	)
	err := ps.locks.withOrder(ctx, orderID, func() error {
		var err error
		order, err = ps.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return notFound(err, "order", "id", orderID)
		}
		if err := ps.checkPayable(ctx, ps.store, order); err != nil {
			return err
		}
		if err := ps.checkBeatsAvailable(ctx, order); err != nil {
			return err
		}

		intent, err := ps.gateway.CreateIntent(ctx, gateway.IntentRequest{
			Amount:      order.TotalAmount,
			Currency:    ps.currency,
			Description: fmt.Sprintf("FullSound beats - order %s", order.OrderNumber),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
		})
		if err != nil {
			return asGatewayError(err)
		}

		payment := &models.Payment{
			OrderID:         order.ID,
			GatewayIntentID: intent.ID,
			Status:          models.PaymentStatusPending,
			Amount:          order.TotalAmount,
			Currency:        ps.currency,
		}
		err = ps.store.WithTx(ctx, func(repo store.Repository) error {
			locked, err := repo.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return notFound(err, "order", "id", orderID)
			}
			if err := ps.checkPayable(ctx, repo, locked); err != nil {
				return err
			}
			if err := repo.CreatePayment(ctx, payment); err != nil {
				return fmt.Errorf("failed to create payment: %w", err)
			}
			t, err = applyTransition(ctx, repo, locked, models.OrderStatusProcessing)
			return err
		})
		if err != nil {
			ps.cancelIntent(ctx, intent.ID)
			return err
		}

		result = &PaymentIntentResult{Payment: payment, ClientSecret: intent.ClientSecret}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		util.PaymentIntentsTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}

	util.PaymentIntentsTotal.WithLabelValues("created").Inc()
	ps.logger.Info("Payment intent attached to order",
		zap.Int64("order_id", orderID),
		zap.Int64("payment_id", result.Payment.ID),
		zap.String("intent_id", result.Payment.GatewayIntentID))

	ps.publishIntentCreated(ctx, result.Payment)
	recordTransition(ctx, ps.eventPublisher, ps.logger, t, order.BeatIDs(), "payment")
	return result, nil
}

// checkPayable rejects orders that already have a successful payment or are past payment
func (ps *PaymentService) checkPayable(ctx context.Context, repo store.Repository, order *models.Order) error {
	paid, err := hasSucceededPayment(ctx, repo, order.ID)
	if err != nil {
		return err
	}
	if paid {
		return apperr.Conflict("order already has a successful payment")
	}

	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusProcessing {
		return apperr.Conflict("order %s is %s and cannot be paid", order.OrderNumber, order.Status)
	}
	return nil
}

// checkBeatsAvailable re-checks availability so a beat sold through another order is not charged twice
func (ps *PaymentService) checkBeatsAvailable(ctx context.Context, order *models.Order) error {
	beats, err := ps.store.GetBeatsByIDs(ctx, order.BeatIDs())
	if err != nil {
		return fmt.Errorf("load beats: %w", err)
	}
	if len(beats) != len(order.Items) {
		return apperr.Conflict("order %s references beats that no longer exist", order.OrderNumber)
	}
	for _, beat := range beats {
		if beat.Status != models.BeatStatusAvailable {
			return apperr.Conflict("beat %q is no longer available", beat.Title)
		}
	}
	return nil
}

func (ps *PaymentService) cancelIntent(ctx context.Context, intentID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := ps.gateway.CancelIntent(cancelCtx, intentID); err != nil {
		ps.logger.Error("Failed to cancel orphaned payment intent",
			zap.String("intent_id", intentID),
			zap.Error(err))
		return
	}
	ps.logger.Warn("Cancelled payment intent after failed commit", zap.String("intent_id", intentID))
}

// ConfirmPayment reconciles a payment with the gateway's view of its intent.
// Confirming the same succeeded intent again has no further effect.
func (ps *PaymentService) ConfirmPayment(ctx context.Context, intentID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ConfirmPayment")
	defer span.End()

	existing, err := ps.store.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		return nil, notFound(err, "payment", "intent id", intentID)
	}

	var (
		payment       *models.Payment
		order         *models.Order
		t             *transition
		paymentChange bool
		intent        *gateway.Intent
	)
	err = ps.locks.withOrder(ctx, existing.OrderID, func() error {
		var err error
		intent, err = ps.gateway.RetrieveIntent(ctx, intentID)
		if err != nil {
			return asGatewayError(err)
		}

		return ps.store.WithTx(ctx, func(repo store.Repository) error {
			var err error
			payment, err = repo.GetPaymentByIntentID(ctx, intentID)
			if err != nil {
				return notFound(err, "payment", "intent id", intentID)
			}
			order, err = repo.GetOrderForUpdate(ctx, payment.OrderID)
			if err != nil {
				return notFound(err, "order", "id", payment.OrderID)
			}

			paymentChange, err = ps.applyIntent(ctx, repo, payment, intent)
			if err != nil {
				return err
			}

			switch intent.Status {
			case gateway.IntentSucceeded:
				t, err = applyTransition(ctx, repo, order, models.OrderStatusCompleted)
			case gateway.IntentCanceled:
				var paid bool
				paid, err = hasSucceededPayment(ctx, repo, order.ID)
				if err == nil && !paid {
					t, err = applyTransition(ctx, repo, order, models.OrderStatusCancelled)
				}
			}
			return err
		})
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.PaymentConfirmationsTotal.WithLabelValues(string(payment.Status)).Inc()
	ps.logger.Info("Payment confirmed",
		zap.Int64("payment_id", payment.ID),
		zap.String("intent_id", intentID),
		zap.String("gateway_status", string(intent.Status)),
		zap.String("payment_status", string(payment.Status)))

	if paymentChange {
		ps.publishPaymentOutcome(ctx, payment, string(intent.Status))
	}
	recordTransition(ctx, ps.eventPublisher, ps.logger, t, order.BeatIDs(), "payment")
	return payment, nil
}

// applyIntent copies the gateway status onto the payment and reports whether it changed
func (ps *PaymentService) applyIntent(ctx context.Context, repo store.Repository, payment *models.Payment, intent *gateway.Intent) (bool, error) {
	switch intent.Status {
	case gateway.IntentSucceeded:
		if payment.Status == models.PaymentStatusSucceeded {
			return false, nil
		}
		now := ps.now()
		payment.Status = models.PaymentStatusSucceeded
		payment.ProcessedAt = &now
		if intent.ChargeID != "" {
			chargeID := intent.ChargeID
			payment.GatewayChargeID = &chargeID
		}

	case gateway.IntentCanceled:
		if payment.Status == models.PaymentStatusFailed {
			return false, nil
		}
		payment.Status = models.PaymentStatusFailed

	default:
		// Stripe never moves a finished intent back, so only open payments advance
		if payment.Status != models.PaymentStatusPending {
			return false, nil
		}
		payment.Status = models.PaymentStatusProcessing
	}

	if err := repo.UpdatePayment(ctx, payment); err != nil {
		if store.IsUniqueViolation(err, store.ConstraintPaymentSucceeded) {
			return false, apperr.Conflict("order already has a successful payment")
		}
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	return true, nil
}

// hasSucceededPayment reports whether a sibling attempt already paid the order
func hasSucceededPayment(ctx context.Context, repo store.Repository, orderID int64) (bool, error) {
	payments, err := repo.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range payments {
		if p.Status == models.PaymentStatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}

// GetPayment retrieves a payment by ID
func (ps *PaymentService) GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	payment, err := ps.store.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, "payment", "id", paymentID)
	}
	return payment, nil
}

// GetPaymentByIntentID retrieves the payment attached to a gateway intent
func (ps *PaymentService) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	payment, err := ps.store.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		return nil, notFound(err, "payment", "intent id", intentID)
	}
	return payment, nil
}

func (ps *PaymentService) publishIntentCreated(ctx context.Context, payment *models.Payment) {
	if ps.eventPublisher == nil {
		return
	}
	event := &models.PaymentIntentCreatedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentIntentCreated),
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		IntentID:  payment.GatewayIntentID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
	}
	if err := ps.eventPublisher.PublishPaymentIntentCreated(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentIntentCreated event", zap.Error(err))
	}
}

func (ps *PaymentService) publishPaymentOutcome(ctx context.Context, payment *models.Payment, gatewayStatus string) {
	if ps.eventPublisher == nil {
		return
	}

	switch payment.Status {
	case models.PaymentStatusSucceeded:
		event := &models.PaymentSucceededEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentSucceeded),
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Amount:    payment.Amount,
		}
		if payment.GatewayChargeID != nil {
			event.ChargeID = *payment.GatewayChargeID
		}
		if err := ps.eventPublisher.PublishPaymentSucceeded(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentSucceeded event", zap.Error(err))
		}

	case models.PaymentStatusFailed:
		event := &models.PaymentFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentFailed),
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Reason:    "gateway_" + gatewayStatus,
		}
		if err := ps.eventPublisher.PublishPaymentFailed(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// asGatewayError keeps typed gateway errors and wraps anything else as one
func asGatewayError(err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Gateway("payment gateway error", err)
}
