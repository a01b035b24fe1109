package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
	"github.com/vibast-solutions/ms-go-pix-access/app/lock"
	"github.com/vibast-solutions/ms-go-pix-access/app/provider"
	"github.com/vibast-solutions/ms-go-pix-access/app/types"
)

func TestHandleWebhookSignedPaidDelivery(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	svc := newTestService(db, testConfig())

	result := svc.HandleWebhook(context.Background(), signedWebhook(`{"status":"paid","paymentId":"P1"}`))
	if !result.OK() || result.Outcome != OutcomeSubscriptionIssued {
		t.Fatalf("expected subscription_issued, got %+v", result)
	}
	if result.Subscription == nil || result.Subscription.Code == "" {
		t.Fatalf("expected issued subscription, got %+v", result.Subscription)
	}

	outcomes := db.deliveryOutcomes()
	if len(outcomes) != 1 || outcomes[0] != string(OutcomeSubscriptionIssued) {
		t.Fatalf("expected one recorded delivery, got %v", outcomes)
	}
}

func TestHandleWebhookInvalidSignatureDoesNotMutate(t *testing.T) {
	db := newMemoryDB()
	seeded := db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	svc := newTestService(db, testConfig())

	req := signedWebhook(`{"status":"PAID","paymentId":"P1"}`)
	req.Header.Set("X-Wiinpay-Signature", strings.Repeat("0", 64))

	result := svc.HandleWebhook(context.Background(), req)
	if result.Outcome != OutcomeInvalidSignature || result.OK() {
		t.Fatalf("expected invalid_signature, got %+v", result)
	}

	stored := db.paymentByExternalID("P1")
	if stored.Status != entity.PaymentStatusPending || stored.Version != seeded.Version {
		t.Fatalf("payment must not change on a bad signature: %+v", stored)
	}
	if _, subs := db.counts(); subs != 0 {
		t.Fatalf("expected no subscriptions, got %d", subs)
	}
	if outcomes := db.deliveryOutcomes(); len(outcomes) != 1 || outcomes[0] != string(OutcomeInvalidSignature) {
		t.Fatalf("expected rejected delivery recorded, got %v", outcomes)
	}
}

func TestHandleWebhookUnsignedAcceptedByDefault(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	svc := newTestService(db, testConfig())

	result := svc.HandleWebhook(context.Background(), unsignedWebhook(`{"status":"PAID","id":"P1"}`))
	if result.Outcome != OutcomeSubscriptionIssued {
		t.Fatalf("expected unsigned delivery to be processed, got %s", result.Outcome)
	}
}

func TestHandleWebhookUnsignedRejectedWhenSignatureRequired(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	cfg := testConfig()
	cfg.Webhook.RequireSignature = true
	svc := newTestService(db, cfg)

	result := svc.HandleWebhook(context.Background(), unsignedWebhook(`{"status":"PAID","id":"P1"}`))
	if result.Outcome != OutcomeInvalidSignature {
		t.Fatalf("expected invalid_signature, got %s", result.Outcome)
	}
	if stored := db.paymentByExternalID("P1"); stored.Status != entity.PaymentStatusPending {
		t.Fatalf("expected payment untouched, got %s", stored.Status)
	}
}

func TestHandleWebhookMalformedAndMissingStatus(t *testing.T) {
	svc := newTestService(newMemoryDB(), testConfig())

	if result := svc.HandleWebhook(context.Background(), signedWebhook(`not json`)); result.Outcome != OutcomeMalformedPayload {
		t.Fatalf("expected malformed_payload, got %s", result.Outcome)
	}
	if result := svc.HandleWebhook(context.Background(), signedWebhook(`{"paymentId":"P1"}`)); result.Outcome != OutcomeMissingStatus {
		t.Fatalf("expected missing_status, got %s", result.Outcome)
	}
}

func TestHandleWebhookGhostPaymentStrict(t *testing.T) {
	db := newMemoryDB()
	svc := newTestService(db, testConfig())

	result := svc.HandleWebhook(context.Background(), signedWebhook(`{"status":"PAID","paymentId":"GHOST"}`))
	if result.Outcome != OutcomePaymentNotFound || result.OK() {
		t.Fatalf("expected payment_not_found, got %+v", result)
	}
	if payments, subs := db.counts(); payments != 0 || subs != 0 {
		t.Fatalf("expected no rows, got payments=%d subscriptions=%d", payments, subs)
	}
}

func TestHandleWebhookFormEncodedDelivery(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 0, map[string]any{}))
	svc := newTestService(db, testConfig())

	body := `status=paid&paymentId=P1&value=15.00&metadata=%7B%22planId%22%3A%22monthly%22%7D`
	req := signedWebhook(body)
	req.ContentType = "application/x-www-form-urlencoded"

	result := svc.HandleWebhook(context.Background(), req)
	if result.Outcome != OutcomeSubscriptionIssued {
		t.Fatalf("expected subscription_issued, got %s", result.Outcome)
	}
	stored := db.paymentByExternalID("P1")
	if stored.AmountCents != 1500 {
		t.Fatalf("expected amount filled from delivery, got %d", stored.AmountCents)
	}
	if stored.Metadata["planId"] != "monthly" {
		t.Fatalf("expected decoded form metadata, got %v", stored.Metadata)
	}
}

func TestHandleWebhookInternalErrorCarriesCause(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	db.subscriptionCreateErr = errors.New("connection reset")
	svc := newTestService(db, testConfig())

	result := svc.HandleWebhook(context.Background(), signedWebhook(`{"status":"PAID","paymentId":"P1"}`))
	if result.Outcome != OutcomeInternalError || result.Err == nil {
		t.Fatalf("expected internal_error with cause, got %+v", result)
	}
	if !strings.Contains(result.Err.Error(), "connection reset") {
		t.Fatalf("unexpected cause: %v", result.Err)
	}
}

func TestHandleWebhookDeliveryRecordFailureIsNotFatal(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	db.deliveryCreateErr = errors.New("deliveries table locked")
	svc := newTestService(db, testConfig())

	result := svc.HandleWebhook(context.Background(), signedWebhook(`{"status":"PAID","paymentId":"P1"}`))
	if result.Outcome != OutcomeSubscriptionIssued {
		t.Fatalf("expected subscription_issued, got %s", result.Outcome)
	}
}

type recordingLocker struct {
	locked   []string
	unlocked []string
	err      error
}

func (l *recordingLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	l.locked = append(l.locked, key)
	return "token-" + key, nil
}

func (l *recordingLocker) Unlock(_ context.Context, key, token string) error {
	if token != "token-"+key {
		return errors.New("token mismatch")
	}
	l.unlocked = append(l.unlocked, key)
	return nil
}

func TestHandleWebhookTakesAndReleasesLock(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	svc := newTestService(db, testConfig())
	locker := &recordingLocker{}
	svc.locker = locker

	svc.HandleWebhook(context.Background(), signedWebhook(`{"status":"PAID","paymentId":"P1"}`))

	if len(locker.locked) != 1 || locker.locked[0] != "pix:webhook:P1" {
		t.Fatalf("unexpected locks: %v", locker.locked)
	}
	if len(locker.unlocked) != 1 || locker.unlocked[0] != "pix:webhook:P1" {
		t.Fatalf("unexpected unlocks: %v", locker.unlocked)
	}
}

func TestHandleWebhookProceedsWhenLockBusy(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	svc := newTestService(db, testConfig())
	svc.locker = &recordingLocker{err: lock.ErrLockBusy}

	result := svc.HandleWebhook(context.Background(), signedWebhook(`{"status":"PAID","paymentId":"P1"}`))
	if result.Outcome != OutcomeSubscriptionIssued {
		t.Fatalf("expected the database guard to carry the delivery, got %s", result.Outcome)
	}
}

func TestHandleWebhookUsesGatewayErrors(t *testing.T) {
	db := newMemoryDB()
	svc := newTestService(db, testConfig())
	svc.gateway = &fakeGateway{
		verifyFn: func(context.Context, *provider.CallbackDelivery) (*provider.CallbackEvent, error) {
			return nil, errors.New("boom")
		},
	}

	result := svc.HandleWebhook(context.Background(), &types.WebhookRequest{Header: http.Header{}, Body: []byte(`{}`)})
	if result.Outcome != OutcomeInternalError || result.Err == nil {
		t.Fatalf("expected internal_error, got %+v", result)
	}
}

func TestHandleWebhookDebugSignaturesNeverLogSecret(t *testing.T) {
	db := newMemoryDB()
	db.seedPayment(pendingPayment("P1", 1500, map[string]any{}))
	cfg := testConfig()
	cfg.Webhook.DebugSignatures = true
	svc := newTestService(db, cfg)

	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	svc.logger = logger

	body := `{"status":"PENDING","paymentId":"P1"}`
	req := signedWebhook(body)
	svc.HandleWebhook(context.Background(), req)

	var debugEntry *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, testSecret) {
			t.Fatalf("secret leaked in message %q", entry.Message)
		}
		for key, value := range entry.Data {
			if s, ok := value.(string); ok && strings.Contains(s, testSecret) {
				t.Fatalf("secret leaked in field %s", key)
			}
		}
		if entry.Message == "pix_webhook_signature" {
			debugEntry = entry
		}
	}
	if debugEntry == nil {
		t.Fatal("expected signature debug entry")
	}
	expected := provider.ComputeSignature(testSecret, []byte(body))
	if debugEntry.Data["signature_computed"] != expected || debugEntry.Data["signature_received"] != expected {
		t.Fatalf("unexpected debug fields: %+v", debugEntry.Data)
	}
}
