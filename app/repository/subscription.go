package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
)

const (
	subscriptionCodeKey    = "uq_subscriptions_code"
	subscriptionPaymentKey = "uq_subscriptions_payment"
)

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create maps unique-index violations to ErrAccessCodeTaken (retry with a new
// code) and ErrSubscriptionAlreadyIssued (another delivery won the race).
func (r *SubscriptionRepository) Create(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, code, status, expires_at, payment_id, plan_id, external_user_ref, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		subscription.ID,
		subscription.Code,
		subscription.Status,
		subscription.ExpiresAt,
		nullableUint64Value(subscription.PaymentID),
		nullableStringValue(subscription.PlanID),
		nullableStringValue(subscription.ExternalUserRef),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isDuplicateKey(err, subscriptionCodeKey):
		return ErrAccessCodeTaken
	case isDuplicateKey(err, subscriptionPaymentKey):
		return ErrSubscriptionAlreadyIssued
	default:
		return err
	}
}

func (r *SubscriptionRepository) FindByIDOrCode(ctx context.Context, idOrCode string) (*entity.Subscription, error) {
	query := `
		SELECT id, code, status, expires_at, payment_id, plan_id, external_user_ref, created_at, updated_at
		FROM subscriptions
		WHERE id = ? OR code = ?
		LIMIT 1
	`
	return r.findOne(ctx, query, idOrCode, idOrCode)
}

func (r *SubscriptionRepository) FindByPaymentID(ctx context.Context, paymentID uint64) (*entity.Subscription, error) {
	query := `
		SELECT id, code, status, expires_at, payment_id, plan_id, external_user_ref, created_at, updated_at
		FROM subscriptions
		WHERE payment_id = ?
		LIMIT 1
	`
	return r.findOne(ctx, query, paymentID)
}

func (r *SubscriptionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Subscription, error) {
	var paymentID sql.NullInt64
	var planID sql.NullString
	var externalUserRef sql.NullString

	item := &entity.Subscription{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&item.ID,
		&item.Code,
		&item.Status,
		&item.ExpiresAt,
		&paymentID,
		&planID,
		&externalUserRef,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	item.PaymentID = uint64PtrFromNull(paymentID)
	item.PlanID = stringPtrFromNull(planID)
	item.ExternalUserRef = stringPtrFromNull(externalUserRef)
	return item, nil
}
