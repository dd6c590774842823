// Package storetest provides an in-memory store.Transactor for tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fullsound/internal/models"
	"fullsound/internal/store"
)

// Memory keeps every table in maps. Transactions are serialized and roll back
// by restoring a snapshot taken when they started.
type Memory struct {
	mu   sync.Mutex
	txMu sync.Mutex

	nextID   int64
	beats    map[int64]models.Beat
	users    map[int64]models.User
	orders   map[int64]models.Order
	payments map[int64]models.Payment

	// FailBeatStatusUpdate, when set, is returned by UpdateBeatStatus for the given beat
	FailBeatStatusUpdate map[int64]error
}

func New() *Memory {
	return &Memory{
		beats:    map[int64]models.Beat{},
		users:    map[int64]models.User{},
		orders:   map[int64]models.Order{},
		payments: map[int64]models.Payment{},
	}
}

var _ store.Transactor = (*Memory)(nil)

func (m *Memory) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	nextID   int64
	beats    map[int64]models.Beat
	users    map[int64]models.User
	orders   map[int64]models.Order
	payments map[int64]models.Payment
}

func (m *Memory) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		nextID:   m.nextID,
		beats:    make(map[int64]models.Beat, len(m.beats)),
		users:    make(map[int64]models.User, len(m.users)),
		orders:   make(map[int64]models.Order, len(m.orders)),
		payments: make(map[int64]models.Payment, len(m.payments)),
	}
	for k, v := range m.beats {
		s.beats[k] = v
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = copyOrder(v)
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	return s
}

func (m *Memory) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = s.nextID
	m.beats = s.beats
	m.users = s.users
	m.orders = s.orders
	m.payments = s.payments
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

// Seeding helpers

// AddUser stores a user and returns it with its ID set
func (m *Memory) AddUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.id()
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return u
}

// AddBeat stores a beat and returns it with its ID set
func (m *Memory) AddBeat(b models.Beat) models.Beat {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.id()
	if b.Status == "" {
		b.Status = models.BeatStatusAvailable
	}
	if b.Slug == "" {
		b.Slug = strings.ToLower(strings.ReplaceAll(b.Title, " ", "-"))
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.beats[b.ID] = b
	return b
}

// Beat returns the current state of a beat
func (m *Memory) Beat(id int64) models.Beat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beats[id]
}

// OrderCount returns how many orders exist
func (m *Memory) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// PaymentCount returns how many payments exist
func (m *Memory) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

// Beats

func (m *Memory) CreateBeat(ctx context.Context, beat *models.Beat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.beats {
		if b.Slug == beat.Slug {
			return &store.UniqueViolationError{Constraint: store.ConstraintBeatSlug}
		}
	}
	beat.ID = m.id()
	beat.CreatedAt = time.Now()
	beat.UpdatedAt = beat.CreatedAt
	m.beats[beat.ID] = *beat
	return nil
}

func (m *Memory) GetBeatByID(ctx context.Context, id int64) (*models.Beat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (m *Memory) GetBeatForUpdate(ctx context.Context, id int64) (*models.Beat, error) {
	return m.GetBeatByID(ctx, id)
}

func (m *Memory) GetBeatBySlug(ctx context.Context, slug string) (*models.Beat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.beats {
		if b.Slug == slug {
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) GetBeatsByIDs(ctx context.Context, ids []int64) ([]models.Beat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Beat{}
	for _, id := range ids {
		if b, ok := m.beats[id]; ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListBeatsByStatus(ctx context.Context, status models.BeatStatus) ([]models.Beat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Beat{}
	for _, b := range m.beats {
		if b.Status == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.beats {
		if b.Slug == slug && b.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) UpdateBeat(ctx context.Context, beat *models.Beat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.beats[beat.ID]; !ok {
		return store.ErrNotFound
	}
	beat.UpdatedAt = time.Now()
	m.beats[beat.ID] = *beat
	return nil
}

func (m *Memory) UpdateBeatStatus(ctx context.Context, id int64, status models.BeatStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailBeatStatusUpdate[id]; err != nil {
		return err
	}
	b, ok := m.beats[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	m.beats[id] = b
	return nil
}

func (m *Memory) IncrementBeatPlays(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beats[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Plays++
	m.beats[id] = b
	return nil
}

func (m *Memory) IsBeatReferenced(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		for _, item := range o.Items {
			if item.BeatID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *Memory) IsBeatSoldElsewhere(ctx context.Context, beatID, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID || o.Status != models.OrderStatusCompleted {
			continue
		}
		for _, item := range o.Items {
			if item.BeatID == beatID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *Memory) DeleteBeat(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.beats[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.beats, id)
	return nil
}

// Users

func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return &store.UniqueViolationError{Constraint: store.ConstraintUsername}
		}
		if strings.EqualFold(u.Email, user.Email) {
			return &store.UniqueViolationError{Constraint: store.ConstraintUserEmail}
		}
	}
	user.ID = m.id()
	user.CreatedAt = time.Now()
	m.users[user.ID] = *user
	return nil
}

func (m *Memory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == login || strings.EqualFold(u.Email, login) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

// Orders

func (m *Memory) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == order.OrderNumber {
			return &store.UniqueViolationError{Constraint: store.ConstraintOrderNumber}
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
			return &store.UniqueViolationError{Constraint: store.ConstraintOrderIdempotencyKey}
		}
	}
	order.ID = m.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = m.id()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = copyOrder(*order)
	return nil
}

func (m *Memory) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (m *Memory) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return m.GetOrderByID(ctx, id)
}

func (m *Memory) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return m.findOrder(func(o models.Order) bool { return o.OrderNumber == number })
}

func (m *Memory) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return m.findOrder(func(o models.Order) bool { return o.IdempotencyKey != nil && *o.IdempotencyKey == key })
}

func (m *Memory) findOrder(match func(models.Order) bool) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if match(o) {
			o = copyOrder(o)
			return &o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return m.listOrders(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (m *Memory) ListOrders(ctx context.Context) ([]models.Order, error) {
	return m.listOrders(func(models.Order) bool { return true }), nil
}

func (m *Memory) listOrders(match func(models.Order) bool) []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if match(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	m.orders[id] = o
	return nil
}

// Payments

func (m *Memory) CreatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.GatewayIntentID == payment.GatewayIntentID {
			return &store.UniqueViolationError{Constraint: store.ConstraintPaymentIntent}
		}
	}
	payment.ID = m.id()
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	m.payments[payment.ID] = *payment
	return nil
}

func (m *Memory) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.GatewayIntentID == intentID {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) ListPaymentsByOrder(ctx context.Context, orderID int64) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[payment.ID]; !ok {
		return store.ErrNotFound
	}
	if payment.Status == models.PaymentStatusSucceeded {
		for _, p := range m.payments {
			if p.ID != payment.ID && p.OrderID == payment.OrderID && p.Status == models.PaymentStatusSucceeded {
				return &store.UniqueViolationError{Constraint: store.ConstraintPaymentSucceeded}
			}
		}
	}
	payment.UpdatedAt = time.Now()
	m.payments[payment.ID] = *payment
	return nil
}
