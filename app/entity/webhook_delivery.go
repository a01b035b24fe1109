package entity

import "time"

type WebhookDelivery struct {
	ID uint64

	PaymentID  *uint64
	ExternalID *string

	RequestID   string
	Signature   string
	PayloadJSON string
	Outcome     string
	Error       *string

	CreatedAt time.Time
}
