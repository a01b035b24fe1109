package entity

import "time"

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusExpired = "EXPIRED"
)

const (
	NotifyNone    int32 = 0
	NotifyPending int32 = 1
	NotifySuccess int32 = 10
	NotifyFailed  int32 = 20
)

// Metadata keys written at payment creation. They form the local plan
// annotation and take precedence over anything a webhook claims.
const (
	MetaLocalPlanID       = "localPlanId"
	MetaLocalDurationDays = "localDurationDays"
	MetaLocalPriceCents   = "localPriceCents"
	MetaTelegramUserID    = "telegramUserId"
)

type Payment struct {
	ID uint64

	ExternalID *string

	Status      string
	AmountCents int64
	Currency    string

	QRCode    *string
	PlanID    *string
	ExpiresAt *time.Time

	Metadata map[string]any

	NotifyStatus   int32
	NotifyAttempts int32
	NotifyNextAt   *time.Time
	NotifyLastErr  *string

	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Payment) IsPaid() bool {
	return p != nil && p.Status == PaymentStatusPaid
}

func (p *Payment) ExternalIDValue() string {
	if p == nil || p.ExternalID == nil {
		return ""
	}
	return *p.ExternalID
}
