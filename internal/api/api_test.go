package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fullsound/config"
	"fullsound/internal/apperr"
	"fullsound/internal/auth"
	"fullsound/internal/gateway"
	"fullsound/internal/models"
	"fullsound/internal/service"
	"fullsound/internal/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_api_test"

type stubGateway struct {
	next     int
	statuses map[string]gateway.IntentStatus
}

func (g *stubGateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.next++
	id := fmt.Sprintf("pi_%d", g.next)
	g.statuses[id] = "requires_payment_method"
	return &gateway.Intent{ID: id, ClientSecret: id + "_secret", Status: g.statuses[id]}, nil
}

func (g *stubGateway) RetrieveIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	return &gateway.Intent{ID: intentID, Status: g.statuses[intentID], ChargeID: "ch_" + intentID}, nil
}

func (g *stubGateway) CancelIntent(ctx context.Context, intentID string) error { return nil }

type memoryQueue struct {
	events []*models.GatewayIntentUpdatedEvent
}

func (q *memoryQueue) PublishGatewayIntentUpdated(ctx context.Context, event *models.GatewayIntentUpdatedEvent) error {
	q.events = append(q.events, event)
	return nil
}

type memoryDedup struct {
	seen map[string]bool
}

func (d *memoryDedup) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memoryDedup) Forget(ctx context.Context, key string) error {
	delete(d.seen, key)
	return nil
}

type testServer struct {
	router   *gin.Engine
	mem      *storetest.Memory
	gateway  *stubGateway
	queue    *memoryQueue
	tokens   *auth.TokenManager
	customer string
	other    string
	admin    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := storetest.New()
	tokens := auth.NewTokenManager(config.AuthConfig{JWTSecret: "api-test", TokenTTL: time.Hour})
	gw := &stubGateway{statuses: map[string]gateway.IntentStatus{}}
	queue := &memoryQueue{}

	h := NewHandler(Deps{
		Orders:       service.NewOrderService(mem, nil, nil, service.OrderServiceConfig{NumberAttempts: 3}),
		Payments:     service.NewPaymentService(mem, gw, nil, nil, service.PaymentServiceConfig{Currency: "clp"}),
		Catalog:      service.NewCatalogService(mem),
		Auth:         service.NewAuthService(mem, tokens),
		Tokens:       tokens,
		Webhooks:     gateway.NewWebhookVerifier(webhookSecret),
		WebhookQueue: queue,
		Dedup:        &memoryDedup{seen: map[string]bool{}},
		DedupTTL:     time.Hour,
		ReadinessChecks: map[string]func(context.Context) error{
			"database": func(context.Context) error { return nil },
		},
	})
	router := gin.New()
	h.SetupRoutes(router)

	ts := &testServer{router: router, mem: mem, gateway: gw, queue: queue, tokens: tokens}
	ts.customer = ts.token(t, mem.AddUser(models.User{Username: "customer", Email: "customer@fullsound.test"}))
	ts.other = ts.token(t, mem.AddUser(models.User{Username: "other", Email: "other@fullsound.test"}))
	ts.admin = ts.token(t, mem.AddUser(models.User{Username: "admin", Email: "admin@fullsound.test", Role: models.RoleAdministrator}))
	return ts
}

func (ts *testServer) token(t *testing.T, user models.User) string {
	token, _, err := ts.tokens.Issue(&user)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	w = ts.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrdersRequireToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/orders", "", map[string]any{"beat_ids": []int64{1}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	resp := decode[errorResponse](t, w)
	assert.Equal(t, string(apperr.KindUnauthenticated), resp.Error.Type)
}

func TestCreateOrderErrorsMapToStatuses(t *testing.T) {
	ts := newTestServer(t)
	sold := ts.mem.AddBeat(models.Beat{Title: "Sold", Price: 1000, Status: models.BeatStatusSold})

	w := ts.do(http.MethodPost, "/api/v1/orders", ts.customer, map[string]any{"beat_ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.KindValidation), decode[errorResponse](t, w).Error.Type)

	w = ts.do(http.MethodPost, "/api/v1/orders", ts.customer, map[string]any{"beat_ids": []int64{sold.ID}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/orders", ts.customer, map[string]any{"beat_ids": []int64{404}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "beat not found with id: 404", decode[errorResponse](t, w).Error.Message)
}

func TestCheckoutOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	a := ts.mem.AddBeat(models.Beat{Title: "A", Price: 1000})
	b := ts.mem.AddBeat(models.Beat{Title: "B", Price: 1500})

	w := ts.do(http.MethodPost, "/api/v1/orders", ts.customer, map[string]any{"beat_ids": []int64{a.ID, b.ID}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[models.Order](t, w)
	assert.Equal(t, int64(2500), order.TotalAmount)

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", order.ID), ts.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(http.MethodPost, "/api/v1/payments/intents", ts.other, map[string]any{"order_id": order.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/payments/intents", ts.customer, map[string]any{"order_id": order.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	intent := decode[service.PaymentIntentResult](t, w)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)

	ts.gateway.statuses["pi_1"] = gateway.IntentSucceeded
	w = ts.do(http.MethodPost, "/api/v1/payments/confirm", ts.customer, map[string]any{"payment_intent_id": "pi_1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PaymentStatusSucceeded, decode[models.Payment](t, w).Status)

	w = ts.do(http.MethodGet, "/api/v1/orders/number/"+order.OrderNumber, ts.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusCompleted, decode[models.Order](t, w).Status)
	assert.Equal(t, models.BeatStatusSold, ts.mem.Beat(a.ID).Status)

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/payments/%d", intent.Payment.ID), ts.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/orders/mine", ts.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Order](t, w), 1)
}

func TestAdminOnlyRoutes(t *testing.T) {
	ts := newTestServer(t)
	beat := ts.mem.AddBeat(models.Beat{Title: "A", Price: 1000})
	w := ts.do(http.MethodPost, "/api/v1/orders", ts.customer, map[string]any{"beat_ids": []int64{beat.ID}})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[models.Order](t, w)

	statusPath := fmt.Sprintf("/api/v1/orders/%d/status", order.ID)
	w = ts.do(http.MethodPatch, statusPath, ts.customer, map[string]any{"status": "CANCELLED"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(http.MethodGet, "/api/v1/orders", ts.customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPatch, statusPath, ts.admin, map[string]any{"status": "COMPLETED"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = ts.do(http.MethodPatch, statusPath, ts.admin, map[string]any{"status": "CANCELLED"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusCancelled, decode[models.Order](t, w).Status)

	w = ts.do(http.MethodGet, "/api/v1/orders", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Order](t, w), 1)
}

func TestBeatCatalogRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/beats", ts.customer, map[string]any{"title": "Lo-Fi Dreams", "price": 5000})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/beats", ts.admin, map[string]any{"title": "Lo-Fi Dreams", "price": 5000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	beat := decode[models.Beat](t, w)
	assert.Equal(t, "lo-fi-dreams", beat.Slug)

	w = ts.do(http.MethodGet, "/api/v1/beats/slug/lo-fi-dreams", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, beat.ID, decode[models.Beat](t, w).ID)

	w = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/beats/%d/play", beat.ID), "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/beats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Beat](t, w), 1)

	w = ts.do(http.MethodGet, "/api/v1/beats/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodDelete, fmt.Sprintf("/api/v1/beats/%d", beat.ID), ts.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRegisterAndLoginRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "newbie", "email": "newbie@fullsound.test", "password": "longenough",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = ts.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{"login": "newbie", "password": "longenough"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[service.LoginResult](t, w)

	w = ts.do(http.MethodGet, "/api/v1/orders/mine", login.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{"login": "newbie", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func signedWebhook(t *testing.T, ts *testServer, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestStripeWebhook(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_7","object":"payment_intent"}}}`)

	w := signedWebhook(t, ts, payload, webhookSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, ts.queue.events, 1)
	assert.Equal(t, "pi_7", ts.queue.events[0].IntentID)
	assert.Equal(t, "evt_1", ts.queue.events[0].GatewayEventID)

	w = signedWebhook(t, ts, payload, webhookSecret)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	assert.Len(t, ts.queue.events, 1)

	w = signedWebhook(t, ts, payload, "whsec_wrong")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ignored := []byte(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	w = signedWebhook(t, ts, ignored, webhookSecret)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Len(t, ts.queue.events, 1)
}

func TestMapErrorHidesInternalErrors(t *testing.T) {
	status, payload := mapError(errors.New("pq: relation \"orders\" does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", payload.Message)

	status, payload = mapError(fmt.Errorf("wrapped: %w", apperr.Gateway("payment gateway timed out", errors.New("deadline"))))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "payment gateway timed out", payload.Message)
}
