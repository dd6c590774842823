package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/gateway"
	"fullsound/internal/models"
	"fullsound/internal/store"
)

// PaymentGateway is the external payment processor
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*gateway.Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// Locker provides short-lived mutual exclusion across service instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher emits domain events after commit
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPaymentIntentCreated(ctx context.Context, event *models.PaymentIntentCreatedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// notFound turns store.ErrNotFound into a NotFoundError and wraps anything else
func notFound(err error, entity, field string, value any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(entity, field, value)
	}
	return fmt.Errorf("load %s: %w", entity, err)
}
