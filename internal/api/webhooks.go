package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/models"
	"fullsound/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// stripeWebhook verifies a Stripe notification and queues it for the payment worker
func (h *Handler) stripeWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	logger := util.LoggerFrom(ctx)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		abortWithError(c, apperr.Validation("unreadable webhook body"))
		return
	}

	event, accepted, err := h.Webhooks.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("rejected").Inc()
		abortWithError(c, err)
		return
	}
	if !accepted {
		util.WebhooksReceivedTotal.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	dedupKey := "stripe:" + event.ID
	if h.Dedup != nil {
		first, err := h.Dedup.MarkOnce(ctx, dedupKey, h.DedupTTL)
		if err != nil {
			logger.Warn("Webhook dedup unavailable", zap.Error(err))
		} else if !first {
			util.WebhooksReceivedTotal.WithLabelValues("duplicate").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	if err := h.dispatchWebhook(ctx, event.ID, event.Type, event.IntentID); err != nil {
		if h.Dedup != nil {
			if forgetErr := h.Dedup.Forget(ctx, dedupKey); forgetErr != nil {
				logger.Warn("Failed to clear webhook dedup key", zap.Error(forgetErr))
			}
		}
		util.WebhooksReceivedTotal.WithLabelValues("failed").Inc()
		abortWithError(c, err)
		return
	}

	util.WebhooksReceivedTotal.WithLabelValues("accepted").Inc()
	logger.Info("Webhook accepted",
		zap.String("gateway_event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("intent_id", event.IntentID))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) dispatchWebhook(ctx context.Context, eventID, eventType, intentID string) error {
	if h.WebhookQueue == nil {
		_, err := h.Payments.ConfirmPayment(ctx, intentID)
		return err
	}

	return h.WebhookQueue.PublishGatewayIntentUpdated(ctx, &models.GatewayIntentUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeGatewayIntentUpdated,
			Timestamp: time.Now(),
		},
		GatewayEventID: eventID,
		GatewayType:    eventType,
		IntentID:       intentID,
	})
}
