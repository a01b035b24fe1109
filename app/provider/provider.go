package provider

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingStatus    = errors.New("missing status")
	ErrGatewayRequest   = errors.New("payment gateway request failed")
)

type CreateInput struct {
	AmountCents int64
	Name        string
	Email       string
	Description string
	Metadata    map[string]any
}

type CreateOutput struct {
	ExternalPaymentID string
	QRCode            *string
	ExpiresAt         *time.Time
	Raw               map[string]any
}

// CallbackDelivery is one inbound webhook call exactly as received.
type CallbackDelivery struct {
	Body        []byte
	ContentType string
	Header      http.Header
}

type CallbackEvent struct {
	Status            string
	ExternalPaymentID string
	Metadata          map[string]any
	QRCode            *string
	AmountCents       *int64

	Signature string
	Verified  bool
	Payload   map[string]any
}

type Provider interface {
	CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error)
	VerifyAndParseCallback(ctx context.Context, delivery *CallbackDelivery) (*CallbackEvent, error)
}
