package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
)

const paymentColumns = `id, external_id, status, amount_cents, currency, qr_code, plan_id, expires_at, metadata_json,
			notify_status, notify_attempts, notify_next_at, notify_last_error,
			version, created_at, updated_at`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}
	if payment.Version == 0 {
		payment.Version = 1
	}

	query := `
		INSERT INTO payments (
			external_id, status, amount_cents, currency, qr_code, plan_id, expires_at, metadata_json,
			notify_status, notify_attempts, notify_next_at, notify_last_error,
			version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(payment.ExternalID),
		payment.Status,
		payment.AmountCents,
		payment.Currency,
		nullableStringValue(payment.QRCode),
		nullableStringValue(payment.PlanID),
		nullableTimeValue(payment.ExpiresAt),
		metadataJSON,
		payment.NotifyStatus,
		payment.NotifyAttempts,
		nullableTimeValue(payment.NotifyNextAt),
		nullableStringValue(payment.NotifyLastErr),
		payment.Version,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// Update writes the payment only if nobody bumped its version since it was
// read. external_id is write-once: an already stored value is never replaced.
func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE payments SET
			external_id = COALESCE(external_id, ?),
			status = ?,
			amount_cents = ?,
			currency = ?,
			qr_code = ?,
			plan_id = ?,
			expires_at = ?,
			metadata_json = ?,
			notify_status = ?,
			notify_attempts = ?,
			notify_next_at = ?,
			notify_last_error = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(payment.ExternalID),
		payment.Status,
		payment.AmountCents,
		payment.Currency,
		nullableStringValue(payment.QRCode),
		nullableStringValue(payment.PlanID),
		nullableTimeValue(payment.ExpiresAt),
		metadataJSON,
		payment.NotifyStatus,
		payment.NotifyAttempts,
		nullableTimeValue(payment.NotifyNextAt),
		nullableStringValue(payment.NotifyLastErr),
		payment.UpdatedAt,
		payment.ID,
		payment.Version,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentConflict
	}

	payment.Version++
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *PaymentRepository) FindByExternalID(ctx context.Context, externalID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_id = ? LIMIT 1`
	return r.findOne(ctx, query, externalID)
}

// FindByExternalIDForUpdate takes a row lock held until the surrounding
// transaction ends. Outside a transaction it behaves like FindByExternalID.
func (r *PaymentRepository) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_id = ? LIMIT 1 FOR UPDATE`
	return r.findOne(ctx, query, externalID)
}

func (r *PaymentRepository) ListExpiredPending(ctx context.Context, now, createdBefore time.Time, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ?
		  AND (
			(expires_at IS NOT NULL AND expires_at <= ?)
			OR (expires_at IS NULL AND created_at <= ?)
		  )
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query, entity.PaymentStatusPending, now, createdBefore, limit)
}

func (r *PaymentRepository) ListDueNotify(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE notify_status = ?
		  AND notify_next_at IS NOT NULL
		  AND notify_next_at <= ?
		ORDER BY notify_next_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query, entity.NotifyPending, now, limit)
}

func (r *PaymentRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Payment, error) {
	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, args...), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var externalID sql.NullString
	var qrCode sql.NullString
	var planID sql.NullString
	var expiresAt sql.NullTime
	var metadataJSON string
	var notifyNextAt sql.NullTime
	var notifyLastErr sql.NullString

	err := scan.Scan(
		&payment.ID,
		&externalID,
		&payment.Status,
		&payment.AmountCents,
		&payment.Currency,
		&qrCode,
		&planID,
		&expiresAt,
		&metadataJSON,
		&payment.NotifyStatus,
		&payment.NotifyAttempts,
		&notifyNextAt,
		&notifyLastErr,
		&payment.Version,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.ExternalID = stringPtrFromNull(externalID)
	payment.QRCode = stringPtrFromNull(qrCode)
	payment.PlanID = stringPtrFromNull(planID)
	payment.ExpiresAt = timePtrFromNull(expiresAt)
	payment.NotifyNextAt = timePtrFromNull(notifyNextAt)
	payment.NotifyLastErr = stringPtrFromNull(notifyLastErr)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}
