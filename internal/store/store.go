package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fullsound/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// Unique constraints the services react to
const (
	ConstraintOrderNumber         = "orders_order_number_key"
	ConstraintOrderIdempotencyKey = "orders_idempotency_key_key"
	ConstraintBeatSlug            = "beats_slug_key"
	ConstraintUsername            = "users_username_key"
	ConstraintUserEmail           = "users_email_key"
	ConstraintPaymentIntent       = "payments_gateway_intent_id_key"
	ConstraintPaymentSucceeded    = "payments_one_succeeded_per_order"
)

// UniqueViolationError is returned when an insert or update hits a unique constraint
type UniqueViolationError struct {
	Constraint string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint %s violated", e.Constraint)
}

// IsUniqueViolation reports whether err is a violation of the named constraint
func IsUniqueViolation(err error, constraint string) bool {
	var uv *UniqueViolationError
	return errors.As(err, &uv) && uv.Constraint == constraint
}

// Repository is the persistence contract of the FullSound domain
type Repository interface {
	CreateBeat(ctx context.Context, beat *models.Beat) error
	GetBeatByID(ctx context.Context, id int64) (*models.Beat, error)
	GetBeatForUpdate(ctx context.Context, id int64) (*models.Beat, error)
	GetBeatBySlug(ctx context.Context, slug string) (*models.Beat, error)
	GetBeatsByIDs(ctx context.Context, ids []int64) ([]models.Beat, error)
	ListBeatsByStatus(ctx context.Context, status models.BeatStatus) ([]models.Beat, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	UpdateBeat(ctx context.Context, beat *models.Beat) error
	UpdateBeatStatus(ctx context.Context, id int64, status models.BeatStatus) error
	IncrementBeatPlays(ctx context.Context, id int64) error
	IsBeatReferenced(ctx context.Context, id int64) (bool, error)
	IsBeatSoldElsewhere(ctx context.Context, beatID, orderID int64) (bool, error)
	DeleteBeat(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID int64) ([]models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
}

// Transactor is a Repository that can run a function inside one transaction
type Transactor interface {
	Repository
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}

// queries implements Repository over either the pool or a transaction
type queries struct {
	db sqlx.ExtContext
}

type Store struct {
	*queries
	pool *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{queries: &queries{db: db}, pool: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks database connectivity for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.PingContext(ctx)
}

// WithTx runs fn in a transaction, committing when fn returns nil
func (s *Store) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.pool.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translate(err))
	}
	return nil
}

// translate maps driver errors onto store errors
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &UniqueViolationError{Constraint: pqErr.Constraint}
	}
	return err
}

func (q *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return translate(sqlx.GetContext(ctx, q.db, dest, query, args...))
}

func (q *queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return translate(sqlx.SelectContext(ctx, q.db, dest, query, args...))
}

// exec runs a statement and reports ErrNotFound when no row was affected
func (q *queries) exec(ctx context.Context, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
