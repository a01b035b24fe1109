package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
	"github.com/vibast-solutions/ms-go-pix-access/app/plan"
	"github.com/vibast-solutions/ms-go-pix-access/app/provider"
	"github.com/vibast-solutions/ms-go-pix-access/app/types"
	"github.com/vibast-solutions/ms-go-pix-access/config"
)

const testSecret = "whsec_test"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	createFn func(ctx context.Context, input *provider.CreateInput) (*provider.CreateOutput, error)
	verifyFn func(ctx context.Context, delivery *provider.CallbackDelivery) (*provider.CallbackEvent, error)
}

func (f *fakeGateway) CreatePayment(ctx context.Context, input *provider.CreateInput) (*provider.CreateOutput, error) {
	if f.createFn == nil {
		return nil, fmt.Errorf("create not configured")
	}
	return f.createFn(ctx, input)
}

func (f *fakeGateway) VerifyAndParseCallback(ctx context.Context, delivery *provider.CallbackDelivery) (*provider.CallbackEvent, error) {
	if f.verifyFn == nil {
		return nil, fmt.Errorf("verify not configured")
	}
	return f.verifyFn(ctx, delivery)
}

func testConfig() *config.Config {
	return &config.Config{
		Webhook: config.WebhookConfig{
			Secret:               testSecret,
			UnknownPaymentPolicy: config.UnknownPaymentStrict,
			FailureMode:          config.FailureModeSwallow,
		},
		Subscriptions: config.SubscriptionsConfig{
			DefaultDurationDays: 30,
			AccessCodeLength:    10,
			AccessCodeAttempts:  5,
			NotifyMaxAttempts:   3,
			NotifyRetryInterval: 5 * time.Minute,
		},
		Jobs: config.JobsConfig{
			BatchSize:      50,
			PendingTimeout: time.Hour,
		},
	}
}

// newTestService wires the service to an in-memory store and the real
// WiinPay callback parser.
func newTestService(db *memoryDB, cfg *config.Config) *PaymentService {
	gateway := provider.NewWiinPayProvider(provider.WiinPayConfig{
		WebhookSecret:    cfg.Webhook.Secret,
		RequireSignature: cfg.Webhook.RequireSignature,
	})
	svc := NewPaymentService(db.store(), gateway, plan.DefaultCatalog(), nil, cfg)
	svc.now = func() time.Time { return testNow }
	return svc
}

// sequenceCodes returns codes in order, repeating the last one.
func sequenceCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}

func signedWebhook(body string) *types.WebhookRequest {
	header := http.Header{}
	header.Set("X-Wiinpay-Signature", provider.ComputeSignature(testSecret, []byte(body)))
	return &types.WebhookRequest{
		RequestId:   "req-1",
		ContentType: "application/json",
		Header:      header,
		Body:        []byte(body),
	}
}

func unsignedWebhook(body string) *types.WebhookRequest {
	return &types.WebhookRequest{
		RequestId:   "req-unsigned",
		ContentType: "application/json",
		Header:      http.Header{},
		Body:        []byte(body),
	}
}

func strPtr(v string) *string { return &v }

func pendingPayment(externalID string, amountCents int64, metadata map[string]any) *entity.Payment {
	return &entity.Payment{
		ExternalID:  strPtr(externalID),
		Status:      entity.PaymentStatusPending,
		AmountCents: amountCents,
		Currency:    "BRL",
		Metadata:    metadata,
		CreatedAt:   testNow.Add(-10 * time.Minute),
		UpdatedAt:   testNow.Add(-10 * time.Minute),
	}
}
