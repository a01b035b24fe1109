package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
	"github.com/vibast-solutions/ms-go-pix-access/app/metrics"
	"github.com/vibast-solutions/ms-go-pix-access/app/plan"
	"github.com/vibast-solutions/ms-go-pix-access/app/provider"
	"github.com/vibast-solutions/ms-go-pix-access/app/repository"
)

type createPaymentRequest interface {
	GetValueCents() int64
	GetName() string
	GetEmail() string
	GetPlanId() string
	GetDescription() string
	GetTelegramUserId() string
}

type CreatePaymentResult struct {
	Payment *entity.Payment
	Raw     map[string]any
}

// StatusEnvelope is the read-only answer to a status query by external
// payment id, subscription id or access code.
type StatusEnvelope struct {
	PaymentID          string
	Status             string
	SubscriptionID     string
	SubscriptionStatus string
	AccessCode         string
	PlanID             string
	ExpiresAt          *time.Time
}

func (s *PaymentService) CreatePayment(ctx context.Context, req createPaymentRequest) (*CreatePaymentResult, error) {
	name := strings.TrimSpace(req.GetName())
	email := strings.TrimSpace(req.GetEmail())
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidRequest)
	}

	amountCents := req.GetValueCents()
	metadata := map[string]any{}
	var planID *string

	if id := strings.TrimSpace(req.GetPlanId()); id != "" {
		p, err := s.catalog.Get(id)
		if err != nil {
			if errors.Is(err, plan.ErrPlanNotFound) {
				return nil, ErrPlanNotFound
			}
			return nil, err
		}
		// The catalog price wins over whatever the caller sent.
		amountCents = p.PriceCents
		planID = &p.ID
		metadata[entity.MetaLocalPlanID] = p.ID
		metadata[entity.MetaLocalDurationDays] = p.DurationDays
		metadata[entity.MetaLocalPriceCents] = p.PriceCents
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: valueCents must be > 0", ErrInvalidRequest)
	}
	if tg := strings.TrimSpace(req.GetTelegramUserId()); tg != "" {
		metadata[entity.MetaTelegramUserID] = tg
	}

	description := strings.TrimSpace(req.GetDescription())
	if description == "" {
		description = "Pagamento"
	}

	gatewayMetadata := map[string]any{"email": email, "name": name}
	for k, v := range metadata {
		gatewayMetadata[k] = v
	}
	if planID != nil {
		gatewayMetadata["planId"] = *planID
		gatewayMetadata["durationDays"] = metadata[entity.MetaLocalDurationDays]
	}

	output, err := s.gateway.CreatePayment(ctx, &provider.CreateInput{
		AmountCents: amountCents,
		Name:        name,
		Email:       email,
		Description: description,
		Metadata:    gatewayMetadata,
	})
	if err != nil {
		metrics.IncPaymentCreated("gateway_error")
		return nil, err
	}

	now := s.now()
	externalID := output.ExternalPaymentID
	payment := &entity.Payment{
		ExternalID:  &externalID,
		Status:      entity.PaymentStatusPending,
		AmountCents: amountCents,
		Currency:    "BRL",
		QRCode:      output.QRCode,
		PlanID:      planID,
		ExpiresAt:   output.ExpiresAt,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.Payments().Create(ctx, payment)
	if errors.Is(err, repository.ErrPaymentAlreadyExists) {
		// A lenient webhook got here first; attach the local annotation to it.
		payment, err = s.annotateExistingPayment(ctx, payment)
	}
	if err != nil {
		metrics.IncPaymentCreated("store_error")
		return nil, err
	}

	_ = s.store.Events().Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "payment_created",
		NewStatus: payment.Status,
		CreatedAt: now,
	})
	metrics.IncPaymentCreated("ok")

	return &CreatePaymentResult{Payment: payment, Raw: output.Raw}, nil
}

func (s *PaymentService) annotateExistingPayment(ctx context.Context, local *entity.Payment) (*entity.Payment, error) {
	var annotated *entity.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		existing, err := tx.Payments().FindByExternalIDForUpdate(ctx, local.ExternalIDValue())
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrPaymentNotFound
		}
		// The subscription was already issued from the delivery; annotating now
		// would describe a plan it was not issued for.
		if existing.IsPaid() {
			s.logger.WithField("external_id", existing.ExternalIDValue()).
				Warn("Payment already confirmed, skipping local annotation")
			annotated = existing
			return nil
		}

		merged := make(map[string]any, len(existing.Metadata)+len(local.Metadata))
		for k, v := range existing.Metadata {
			merged[k] = v
		}
		for k, v := range local.Metadata {
			merged[k] = v
		}
		existing.Metadata = merged
		existing.AmountCents = local.AmountCents
		if existing.PlanID == nil {
			existing.PlanID = local.PlanID
		}
		if existing.QRCode == nil {
			existing.QRCode = local.QRCode
		}
		if existing.ExpiresAt == nil {
			existing.ExpiresAt = local.ExpiresAt
		}
		existing.UpdatedAt = local.UpdatedAt

		if err := tx.Payments().Update(ctx, existing); err != nil {
			return err
		}
		annotated = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return annotated, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.store.Payments().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetStatus resolves id as an external payment id first, then as a
// subscription id or access code. It never writes.
func (s *PaymentService) GetStatus(ctx context.Context, id string) (*StatusEnvelope, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	now := s.now()

	payment, err := s.store.Payments().FindByExternalID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		envelope := &StatusEnvelope{
			PaymentID: payment.ExternalIDValue(),
			Status:    payment.Status,
			PlanID:    derefString(payment.PlanID),
			ExpiresAt: payment.ExpiresAt,
		}
		subscription, err := s.store.Subscriptions().FindByPaymentID(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if subscription != nil {
			applySubscription(envelope, subscription, now)
		}
		return envelope, nil
	}

	subscription, err := s.store.Subscriptions().FindByIDOrCode(ctx, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, ErrNotFound
	}

	envelope := &StatusEnvelope{Status: subscription.EffectiveStatus(now)}
	applySubscription(envelope, subscription, now)
	if subscription.PaymentID != nil {
		linked, err := s.store.Payments().FindByID(ctx, *subscription.PaymentID)
		if err != nil {
			return nil, err
		}
		if linked != nil {
			envelope.PaymentID = linked.ExternalIDValue()
		}
	}
	return envelope, nil
}

func applySubscription(envelope *StatusEnvelope, subscription *entity.Subscription, now time.Time) {
	expiresAt := subscription.ExpiresAt
	envelope.SubscriptionID = subscription.ID
	envelope.SubscriptionStatus = subscription.EffectiveStatus(now)
	envelope.AccessCode = subscription.Code
	envelope.ExpiresAt = &expiresAt
	if subscription.PlanID != nil {
		envelope.PlanID = *subscription.PlanID
	}
}
