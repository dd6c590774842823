package worker

import (
	"context"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/broker"
	"fullsound/internal/models"
	"fullsound/internal/util"

	"go.uber.org/zap"
)

const (
	confirmAttempts = 3
	confirmBackoff  = 2 * time.Second
)

// PaymentConfirmer reconciles a payment with the gateway
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, intentID string) (*models.Payment, error)
}

// PaymentWorker applies gateway notifications queued by the webhook endpoint
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	payments     PaymentConfirmer
	backoff      time.Duration
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, payments PaymentConfirmer) *PaymentWorker {
	w := &PaymentWorker{
		consumer: consumer,
		payments: payments,
		backoff:  confirmBackoff,
		logger:   util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnGatewayIntentUpdated(w.handleIntentUpdated)
	return w
}

// Start starts the payment worker
func (w *PaymentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting payment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (w *PaymentWorker) Stop() error {
	w.logger.Info("Stopping payment worker")
	return w.consumer.Close()
}

// handleIntentUpdated confirms the payment behind a notification.
// Gateway errors are retried; notifications about unknown intents or illegal
// transitions are logged and dropped.
func (w *PaymentWorker) handleIntentUpdated(ctx context.Context, event *models.GatewayIntentUpdatedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentWorker.HandleIntentUpdated")
	defer span.End()

	var err error
	for attempt := 1; attempt <= confirmAttempts; attempt++ {
		var payment *models.Payment
		payment, err = w.payments.ConfirmPayment(ctx, event.IntentID)
		if err == nil {
			w.logger.Info("Gateway notification applied",
				zap.String("gateway_event_id", event.GatewayEventID),
				zap.String("intent_id", event.IntentID),
				zap.String("payment_status", string(payment.Status)))
			return nil
		}

		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindConflict, apperr.KindValidation:
			w.logger.Warn("Dropping gateway notification",
				zap.String("gateway_event_id", event.GatewayEventID),
				zap.String("intent_id", event.IntentID),
				zap.Error(err))
			return nil
		}

		w.logger.Warn("Confirm payment failed, retrying",
			zap.String("intent_id", event.IntentID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff):
		}
	}

	util.RecordError(span, err)
	return err
}
