package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
)

var (
	ErrPaymentNotFound           = errors.New("payment not found")
	ErrPaymentAlreadyExists      = errors.New("payment already exists")
	ErrPaymentConflict           = errors.New("payment was modified concurrently")
	ErrAccessCodeTaken           = errors.New("access code already taken")
	ErrSubscriptionAlreadyIssued = errors.New("subscription already issued for payment")
)

// IsConflict reports whether err means another transaction touched the same
// rows first. The whole unit of work can be retried on a fresh read.
func IsConflict(err error) bool {
	switch {
	case errors.Is(err, ErrPaymentConflict),
		errors.Is(err, ErrSubscriptionAlreadyIssued),
		errors.Is(err, ErrPaymentAlreadyExists):
		return true
	default:
		return isLockContentionError(err)
	}
}

type PaymentStore interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (*entity.Payment, error)
	FindByExternalIDForUpdate(ctx context.Context, externalID string) (*entity.Payment, error)
	ListExpiredPending(ctx context.Context, now, createdBefore time.Time, limit int32) ([]*entity.Payment, error)
	ListDueNotify(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error)
}

type SubscriptionStore interface {
	Create(ctx context.Context, subscription *entity.Subscription) error
	FindByIDOrCode(ctx context.Context, idOrCode string) (*entity.Subscription, error)
	FindByPaymentID(ctx context.Context, paymentID uint64) (*entity.Subscription, error)
}

type PaymentEventStore interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type WebhookDeliveryStore interface {
	Create(ctx context.Context, delivery *entity.WebhookDelivery) error
}

// Store groups the repositories behind one transaction boundary. Inside
// WithTx every repository returned by tx shares the same database transaction.
type Store interface {
	Payments() PaymentStore
	Subscriptions() SubscriptionStore
	Events() PaymentEventStore
	Deliveries() WebhookDeliveryStore
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

var _ Store = (*SQLStore)(nil)

type SQLStore struct {
	db *sql.DB
	q  DBTX
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

func (s *SQLStore) Payments() PaymentStore {
	return NewPaymentRepository(s.q)
}

func (s *SQLStore) Subscriptions() SubscriptionStore {
	return NewSubscriptionRepository(s.q)
}

func (s *SQLStore) Events() PaymentEventStore {
	return NewPaymentEventRepository(s.q)
}

func (s *SQLStore) Deliveries() WebhookDeliveryStore {
	return NewWebhookDeliveryRepository(s.q)
}

// WithTx runs fn in a database transaction, committing when fn returns nil.
// Calling WithTx on a store that is already transactional reuses the open tx.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &SQLStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
