// Package gateway talks to the Stripe API on behalf of the payment service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fullsound/config"
	"fullsound/internal/apperr"
	"fullsound/internal/util"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// IntentStatus is the raw Stripe status of a payment intent
type IntentStatus string

const (
	IntentSucceeded  IntentStatus = IntentStatus(stripe.PaymentIntentStatusSucceeded)
	IntentCanceled   IntentStatus = IntentStatus(stripe.PaymentIntentStatusCanceled)
	IntentProcessing IntentStatus = IntentStatus(stripe.PaymentIntentStatusProcessing)
)

// IntentRequest describes the charge to open for an order
type IntentRequest struct {
	Amount      int64
	Currency    string
	Description string
	OrderID     int64
	OrderNumber string
	UserID      int64
}

// Intent is the part of a Stripe payment intent the service relies on
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	ChargeID     string
}

// Stripe is the payment gateway backed by stripe-go
type Stripe struct {
	api     *client.API
	timeout time.Duration
	logger  *zap.Logger
}

// NewStripe creates a Stripe gateway from configuration
func NewStripe(cfg config.StripeConfig) *Stripe {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	api := &client.API{}
	api.Init(cfg.SecretKey, stripe.NewBackends(httpClient))
	return newStripe(api, cfg.Timeout)
}

func newStripe(api *client.API, timeout time.Duration) *Stripe {
	return &Stripe{
		api:     api,
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// CreateIntent opens a payment intent for the order total
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, span := util.StartSpan(ctx, "Stripe.CreateIntent")
	defer span.End()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	params.AddMetadata("order_number", req.OrderNumber)
	params.AddMetadata("user_id", strconv.FormatInt(req.UserID, 10))

	start := time.Now()
	pi, err := s.api.PaymentIntents.New(params)
	util.GatewayRequestDuration.WithLabelValues("create_intent").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.gatewayError(ctx, "create payment intent", err)
	}

	s.logger.Info("Payment intent created",
		zap.String("intent_id", pi.ID),
		zap.Int64("order_id", req.OrderID),
		zap.Int64("amount", req.Amount))
	return toIntent(pi), nil
}

// RetrieveIntent fetches the current state of an intent
func (s *Stripe) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	ctx, span := util.StartSpan(ctx, "Stripe.RetrieveIntent")
	defer span.End()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	start := time.Now()
	pi, err := s.api.PaymentIntents.Get(intentID, params)
	util.GatewayRequestDuration.WithLabelValues("retrieve_intent").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.gatewayError(ctx, "retrieve payment intent", err)
	}
	return toIntent(pi), nil
}

// CancelIntent cancels an intent that will never be used
func (s *Stripe) CancelIntent(ctx context.Context, intentID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	start := time.Now()
	_, err := s.api.PaymentIntents.Cancel(intentID, params)
	util.GatewayRequestDuration.WithLabelValues("cancel_intent").Observe(time.Since(start).Seconds())
	if err != nil {
		return s.gatewayError(ctx, "cancel payment intent", err)
	}
	return nil
}

func (s *Stripe) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// gatewayError converts a stripe-go failure into a GatewayError carrying the upstream message
func (s *Stripe) gatewayError(ctx context.Context, op string, err error) error {
	util.GatewayErrorsTotal.WithLabelValues(op).Inc()

	var stripeErr *stripe.Error
	switch {
	case errors.As(err, &stripeErr) && stripeErr.Msg != "":
		s.logger.Warn("Stripe rejected request",
			zap.String("op", op),
			zap.String("code", string(stripeErr.Code)),
			zap.String("message", stripeErr.Msg))
		return apperr.Gateway(fmt.Sprintf("payment gateway error: %s", stripeErr.Msg), err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.logger.Warn("Stripe request timed out", zap.String("op", op))
		return apperr.Gateway("payment gateway timed out", err)
	default:
		s.logger.Error("Stripe request failed", zap.String("op", op), zap.Error(err))
		return apperr.Gateway("payment gateway unavailable", err)
	}
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
	}
	if pi.LatestCharge != nil {
		intent.ChargeID = pi.LatestCharge.ID
	}
	return intent
}
