package service

import (
	"context"
	"fmt"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/models"
	"fullsound/internal/store"
	"fullsound/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transition is the committed outcome of moving an order to a new status
type transition struct {
	OrderID  int64
	From     models.OrderStatus
	To       models.OrderStatus
	Changed  bool
	Sold     int
	Released int
}

// applyTransition moves a row-locked order to status `to` inside the caller's
// transaction, updating its beats and, on refund, its successful payment.
// A beat held by another COMPLETED order is never released, and an order
// cannot complete over it.
func applyTransition(ctx context.Context, repo store.Repository, order *models.Order, to models.OrderStatus) (*transition, error) {
	t := &transition{OrderID: order.ID, From: order.Status, To: to}
	if order.Status == to {
		return t, nil
	}
	if !models.CanTransition(order.Status, to) {
		return nil, apperr.Conflict("order %s cannot move from %s to %s", order.OrderNumber, order.Status, to)
	}

	switch models.BeatEffectFor(to) {
	case models.BeatEffectSell:
		for _, beatID := range order.BeatIDs() {
			beat, err := repo.GetBeatForUpdate(ctx, beatID)
			if err != nil {
				return nil, notFound(err, "beat", "id", beatID)
			}
			if beat.Status == models.BeatStatusSold {
				sold, err := repo.IsBeatSoldElsewhere(ctx, beatID, order.ID)
				if err != nil {
					return nil, fmt.Errorf("check beat %d ownership: %w", beatID, err)
				}
				if sold {
					return nil, apperr.Conflict("beat %s was already sold to another order", beat.Title)
				}
				continue
			}
			if err := repo.UpdateBeatStatus(ctx, beatID, models.BeatStatusSold); err != nil {
				return nil, fmt.Errorf("mark beat %d sold: %w", beatID, err)
			}
			t.Sold++
		}

	case models.BeatEffectRelease:
		for _, beatID := range order.BeatIDs() {
			beat, err := repo.GetBeatForUpdate(ctx, beatID)
			if err != nil {
				return nil, notFound(err, "beat", "id", beatID)
			}
			if !beat.Status.Releasable() {
				continue
			}
			sold, err := repo.IsBeatSoldElsewhere(ctx, beatID, order.ID)
			if err != nil {
				return nil, fmt.Errorf("check beat %d ownership: %w", beatID, err)
			}
			if sold {
				continue
			}
			if err := repo.UpdateBeatStatus(ctx, beatID, models.BeatStatusAvailable); err != nil {
				return nil, fmt.Errorf("release beat %d: %w", beatID, err)
			}
			t.Released++
		}
	}

	if to == models.OrderStatusRefunded {
		if err := refundSucceededPayment(ctx, repo, order.ID); err != nil {
			return nil, err
		}
	}

	if err := repo.UpdateOrderStatus(ctx, order.ID, to); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	order.Status = to
	t.Changed = true
	return t, nil
}

func refundSucceededPayment(ctx context.Context, repo store.Repository, orderID int64) error {
	payments, err := repo.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	for i := range payments {
		if payments[i].Status != models.PaymentStatusSucceeded {
			continue
		}
		payments[i].Status = models.PaymentStatusRefunded
		if err := repo.UpdatePayment(ctx, &payments[i]); err != nil {
			return fmt.Errorf("refund payment %d: %w", payments[i].ID, err)
		}
	}
	return nil
}

// recordTransition emits metrics and the status-changed event of a committed transition
func recordTransition(ctx context.Context, publisher EventPublisher, logger *zap.Logger, t *transition, beatIDs []int64, changedBy string) {
	if t == nil || !t.Changed {
		return
	}

	util.OrderTransitionsTotal.WithLabelValues(string(t.From), string(t.To)).Inc()
	util.BeatsSoldTotal.Add(float64(t.Sold))
	util.BeatsReleasedTotal.Add(float64(t.Released))

	logger.Info("Order status changed",
		zap.Int64("order_id", t.OrderID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.Int("beats_sold", t.Sold),
		zap.Int("beats_released", t.Released),
		zap.String("changed_by", changedBy))

	if publisher == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:   t.OrderID,
		From:      t.From,
		To:        t.To,
		BeatIDs:   beatIDs,
		ChangedBy: changedBy,
	}
	if err := publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}
