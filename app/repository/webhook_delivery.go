package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
)

type WebhookDeliveryRepository struct {
	db DBTX
}

func NewWebhookDeliveryRepository(db DBTX) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

func (r *WebhookDeliveryRepository) Create(ctx context.Context, delivery *entity.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			payment_id, external_id, request_id, signature, payload_json, outcome, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(delivery.PaymentID),
		nullableStringValue(delivery.ExternalID),
		delivery.RequestID,
		delivery.Signature,
		delivery.PayloadJSON,
		delivery.Outcome,
		nullableStringValue(delivery.Error),
		delivery.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	delivery.ID = uint64(id)

	return nil
}
