package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/gateway"
	"fullsound/internal/models"
	"fullsound/internal/store/storetest"
)

type fakeGateway struct {
	mu        sync.Mutex
	next      int
	created   []gateway.IntentRequest
	cancelled []string
	statuses  map[string]*gateway.Intent
	createErr error
	getErr    error
	// fixedID makes every new intent reuse one id
	fixedID string
	// retrieveDelay holds RetrieveIntent open to expose overlapping callers
	retrieveDelay time.Duration
	inFlight      int
	maxInFlight   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]*gateway.Intent{}}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.next++
	id := fmt.Sprintf("pi_%d", g.next)
	if g.fixedID != "" {
		id = g.fixedID
	}
	g.created = append(g.created, req)
	intent := &gateway.Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}
	g.statuses[id] = intent
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	g.mu.Lock()
	if g.getErr != nil {
		g.mu.Unlock()
		return nil, g.getErr
	}
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	delay := g.retrieveDelay
	g.mu.Unlock()

	time.Sleep(delay)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
	intent, ok := g.statuses[intentID]
	if !ok {
		return nil, apperr.Gateway("payment gateway error: No such payment_intent", errors.New("404"))
	}
	copied := *intent
	return &copied, nil
}

func (g *fakeGateway) CancelIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

// settle sets the status the gateway reports for an intent
func (g *fakeGateway) settle(intentID string, status gateway.IntentStatus, chargeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[intentID] = &gateway.Intent{ID: intentID, Status: status, ChargeID: chargeID}
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	acquired int
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.acquired++
	token := fmt.Sprintf("t%d", l.acquired)
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	status []*models.OrderStatusChangedEvent
}

func (p *fakePublisher) record(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	p.record(event.EventType)
	return nil
}

func (p *fakePublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	p.record(event.EventType)
	p.mu.Lock()
	p.status = append(p.status, event)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) PublishPaymentIntentCreated(ctx context.Context, event *models.PaymentIntentCreatedEvent) error {
	p.record(event.EventType)
	return nil
}

func (p *fakePublisher) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	p.record(event.EventType)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	p.record(event.EventType)
	return errors.New("kafka unavailable")
}

// fixture wires the services over an in-memory store
type fixture struct {
	mem       *storetest.Memory
	gateway   *fakeGateway
	locker    *fakeLocker
	publisher *fakePublisher
	orders    *OrderService
	payments  *PaymentService
	user      models.User
}

func newFixture() *fixture {
	f := &fixture{
		mem:       storetest.New(),
		gateway:   newFakeGateway(),
		locker:    newFakeLocker(),
		publisher: &fakePublisher{},
	}
	f.orders = NewOrderService(f.mem, f.locker, f.publisher, OrderServiceConfig{LockTTL: time.Second, NumberAttempts: 3})
	f.payments = NewPaymentService(f.mem, f.gateway, f.locker, f.publisher, PaymentServiceConfig{Currency: "clp", LockTTL: time.Second})
	f.user = f.mem.AddUser(models.User{Username: "camila", Email: "camila@fullsound.test"})
	return f
}

func (f *fixture) beat(title string, price int64) models.Beat {
	return f.mem.AddBeat(models.Beat{Title: title, Price: price})
}

func (f *fixture) order(beatIDs ...int64) *models.Order {
	order, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{UserID: f.user.ID, BeatIDs: beatIDs})
	if err != nil {
		panic(err)
	}
	return order
}
