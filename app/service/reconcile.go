package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
	"github.com/vibast-solutions/ms-go-pix-access/app/plan"
	"github.com/vibast-solutions/ms-go-pix-access/app/provider"
	"github.com/vibast-solutions/ms-go-pix-access/app/repository"
	"github.com/vibast-solutions/ms-go-pix-access/config"
)

type Outcome string

const (
	OutcomeAlreadyProcessed   Outcome = "already_processed"
	OutcomeStatusUpdated      Outcome = "status_updated"
	OutcomeSubscriptionIssued Outcome = "subscription_issued"
	OutcomePaymentNotFound    Outcome = "payment_not_found"
	OutcomeInvalidSignature   Outcome = "invalid_signature"
	OutcomeMissingStatus      Outcome = "missing_status"
	OutcomeMalformedPayload   Outcome = "malformed_payload"
	OutcomeInternalError      Outcome = "internal_error"
)

// OK reports whether the delivery was accepted.
func (o Outcome) OK() bool {
	switch o {
	case OutcomeAlreadyProcessed, OutcomeStatusUpdated, OutcomeSubscriptionIssued:
		return true
	default:
		return false
	}
}

// metadataIDKeys are checked, in order, when the delivery carries no usable
// top-level payment id. Some gateway payloads only echo it in metadata.
var metadataIDKeys = []string{"paymentId", "payment_id", "externalPaymentId", "reference"}

// localAnnotationKeys are written at payment creation and never overwritten
// by delivery metadata.
var localAnnotationKeys = []string{
	entity.MetaLocalPlanID,
	entity.MetaLocalDurationDays,
	entity.MetaLocalPriceCents,
}

var maxDurationDays = decimal.NewFromInt(plan.MaxDurationDays)

type ReconcileResult struct {
	Outcome        Outcome
	Payment        *entity.Payment
	Subscription   *entity.Subscription
	PaymentCreated bool
}

// Reconcile applies one normalized delivery. The transition runs in a single
// transaction and is retried from a fresh read when a concurrent delivery
// for the same payment wins the race.
func (s *PaymentService) Reconcile(ctx context.Context, event *provider.CallbackEvent) (*ReconcileResult, error) {
	if event == nil || strings.TrimSpace(event.Status) == "" {
		return nil, provider.ErrMissingStatus
	}

	var lastErr error
	for attempt := 1; attempt <= maxReconcileAttempts; attempt++ {
		result, err := s.reconcileOnce(ctx, event)
		if err == nil {
			return result, nil
		}
		if !repository.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		s.logger.WithError(err).WithField("attempt", attempt).Debug("Reconcile conflict, retrying")
	}

	return nil, fmt.Errorf("%w: %v", ErrReconcileConflict, lastErr)
}

func (s *PaymentService) reconcileOnce(ctx context.Context, event *provider.CallbackEvent) (*ReconcileResult, error) {
	var result *ReconcileResult

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		now := s.now()

		payment, externalID, err := s.lockPayment(ctx, tx, event)
		if err != nil {
			return err
		}

		created := false
		if payment == nil {
			if s.webhookCfg.UnknownPaymentPolicy != config.UnknownPaymentLenient || externalID == "" {
				result = &ReconcileResult{Outcome: OutcomePaymentNotFound}
				return nil
			}
			payment, err = s.createPaymentFromDelivery(ctx, tx, externalID, event, now)
			if err != nil {
				return err
			}
			created = true
		}

		if payment.IsPaid() {
			result = &ReconcileResult{Outcome: OutcomeAlreadyProcessed, Payment: payment}
			return nil
		}

		if event.Status != entity.PaymentStatusPaid {
			if err := s.applyStatusUpdate(ctx, tx, payment, event, now); err != nil {
				return err
			}
			result = &ReconcileResult{Outcome: OutcomeStatusUpdated, Payment: payment, PaymentCreated: created}
			return nil
		}

		subscription, err := s.confirmAndIssue(ctx, tx, payment, event, now)
		if err != nil {
			return err
		}
		result = &ReconcileResult{
			Outcome:        OutcomeSubscriptionIssued,
			Payment:        payment,
			Subscription:   subscription,
			PaymentCreated: created,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// lockPayment returns the locked payment and the external id it was found
// by. When nothing matches, the id is the first candidate, so a lenient
// policy can create the payment under it.
func (s *PaymentService) lockPayment(ctx context.Context, tx repository.Store, event *provider.CallbackEvent) (*entity.Payment, string, error) {
	candidates := candidateExternalIDs(event)
	for _, id := range candidates {
		payment, err := tx.Payments().FindByExternalIDForUpdate(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if payment != nil {
			return payment, id, nil
		}
	}
	if len(candidates) == 0 {
		return nil, "", nil
	}
	return nil, candidates[0], nil
}

func candidateExternalIDs(event *provider.CallbackEvent) []string {
	ids := make([]string, 0, 1+len(metadataIDKeys))
	seen := map[string]bool{}
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	add(event.ExternalPaymentID)
	for _, key := range metadataIDKeys {
		if v, ok := event.Metadata[key]; ok && v != nil {
			add(cast.ToString(v))
		}
	}
	return ids
}

func (s *PaymentService) createPaymentFromDelivery(
	ctx context.Context,
	tx repository.Store,
	externalID string,
	event *provider.CallbackEvent,
	now time.Time,
) (*entity.Payment, error) {
	payment := &entity.Payment{
		ExternalID: &externalID,
		Status:     entity.PaymentStatusPending,
		Currency:   "BRL",
		QRCode:     event.QRCode,
		Metadata:   map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if event.AmountCents != nil {
		payment.AmountCents = *event.AmountCents
	}

	if err := tx.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}

	_ = tx.Events().Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "payment_created_from_webhook",
		NewStatus: payment.Status,
		CreatedAt: now,
	})

	return payment, nil
}

func (s *PaymentService) applyStatusUpdate(
	ctx context.Context,
	tx repository.Store,
	payment *entity.Payment,
	event *provider.CallbackEvent,
	now time.Time,
) error {
	oldStatus := payment.Status
	applyDeliveryFields(payment, event)
	payment.Status = event.Status
	payment.UpdatedAt = now

	if err := tx.Payments().Update(ctx, payment); err != nil {
		return err
	}

	_ = tx.Events().Create(ctx, &entity.PaymentEvent{
		PaymentID:   payment.ID,
		EventType:   "webhook_status_update",
		OldStatus:   &oldStatus,
		NewStatus:   payment.Status,
		PayloadJSON: encodePayload(event.Payload),
		CreatedAt:   now,
	})

	return nil
}

// confirmAndIssue moves the payment to PAID and creates its subscription.
// Both writes share tx, so a failure leaves neither behind.
func (s *PaymentService) confirmAndIssue(
	ctx context.Context,
	tx repository.Store,
	payment *entity.Payment,
	event *provider.CallbackEvent,
	now time.Time,
) (*entity.Subscription, error) {
	durationDays := s.resolveDurationDays(payment.Metadata, event.Metadata)

	oldStatus := payment.Status
	applyDeliveryFields(payment, event)
	payment.Status = entity.PaymentStatusPaid
	payment.UpdatedAt = now
	if s.notifyEnabled() {
		markForNotify(payment, now)
	}

	if err := tx.Payments().Update(ctx, payment); err != nil {
		return nil, err
	}

	paymentID := payment.ID
	subscription := &entity.Subscription{
		ID:              ulid.Make().String(),
		Status:          entity.SubscriptionStatusActive,
		ExpiresAt:       now.AddDate(0, 0, durationDays),
		PaymentID:       &paymentID,
		PlanID:          subscriptionPlanID(payment),
		ExternalUserRef: metadataString(payment.Metadata, entity.MetaTelegramUserID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.createSubscriptionWithCode(ctx, tx, subscription); err != nil {
		return nil, err
	}

	_ = tx.Events().Create(ctx, &entity.PaymentEvent{
		PaymentID:      payment.ID,
		EventType:      "webhook_paid",
		OldStatus:      &oldStatus,
		NewStatus:      payment.Status,
		SubscriptionID: &subscription.ID,
		PayloadJSON:    encodePayload(event.Payload),
		CreatedAt:      now,
	})

	return subscription, nil
}

func (s *PaymentService) createSubscriptionWithCode(ctx context.Context, tx repository.Store, subscription *entity.Subscription) error {
	attempts := s.subscriptionsCfg.AccessCodeAttempts
	if attempts <= 0 {
		attempts = defaultCodeAttempts
	}

	for i := 0; i < attempts; i++ {
		code, err := s.generateCode()
		if err != nil {
			return err
		}
		subscription.Code = code

		err = tx.Subscriptions().Create(ctx, subscription)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrAccessCodeTaken) {
			return err
		}
		s.logger.WithField("attempt", i+1).Warn("Access code collision, regenerating")
	}

	return ErrAccessCodeExhausted
}

// resolveDurationDays picks the first valid value among the local plan
// annotation, the delivery's durationDays and the configured default.
func (s *PaymentService) resolveDurationDays(stored, incoming map[string]any) int {
	if days := durationDaysValue(stored[entity.MetaLocalDurationDays]); days > 0 {
		return days
	}
	if days := durationDaysValue(incoming["durationDays"]); days > 0 {
		return days
	}
	if days := s.subscriptionsCfg.DefaultDurationDays; days > 0 && days <= plan.MaxDurationDays {
		return days
	}
	return defaultDurationDays
}

func applyDeliveryFields(payment *entity.Payment, event *provider.CallbackEvent) {
	payment.Metadata = mergeMetadata(payment.Metadata, event.Metadata)
	if event.QRCode != nil && strings.TrimSpace(*event.QRCode) != "" {
		qr := *event.QRCode
		payment.QRCode = &qr
	}
	if payment.AmountCents == 0 && event.AmountCents != nil {
		payment.AmountCents = *event.AmountCents
	}
}

// mergeMetadata overlays incoming on stored. Incoming keys win except for
// local plan annotation keys already present in stored.
func mergeMetadata(stored, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(stored)+len(incoming))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	for _, k := range localAnnotationKeys {
		if v, ok := stored[k]; ok {
			merged[k] = v
		}
	}
	return merged
}

func markForNotify(payment *entity.Payment, now time.Time) {
	payment.NotifyStatus = entity.NotifyPending
	payment.NotifyAttempts = 0
	payment.NotifyNextAt = &now
	payment.NotifyLastErr = nil
}

func subscriptionPlanID(payment *entity.Payment) *string {
	if payment.PlanID != nil && *payment.PlanID != "" {
		id := *payment.PlanID
		return &id
	}
	if id := metadataString(payment.Metadata, entity.MetaLocalPlanID); id != nil {
		return id
	}
	return metadataString(payment.Metadata, "planId")
}

func metadataString(metadata map[string]any, key string) *string {
	v, ok := metadata[key]
	if !ok || v == nil {
		return nil
	}
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return nil
	}
	return &s
}

// durationDaysValue returns v as a whole number of days in
// [1, plan.MaxDurationDays], or 0 when v is anything else.
func durationDaysValue(v any) int {
	if v == nil {
		return 0
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return 0
	}
	days, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !days.IsInteger() || days.Sign() <= 0 || days.GreaterThan(maxDurationDays) {
		return 0
	}
	return int(days.IntPart())
}

func encodePayload(payload map[string]any) *string {
	if len(payload) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}
