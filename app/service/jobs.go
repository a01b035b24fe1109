package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
	"github.com/vibast-solutions/ms-go-pix-access/app/metrics"
	"github.com/vibast-solutions/ms-go-pix-access/app/types"
)

func (s *PaymentService) RunNotifyDispatchBatch(ctx context.Context) error {
	now := s.now()
	items, err := s.store.Payments().ListDueNotify(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil {
			continue
		}
		if err := s.dispatchNotification(ctx, payment, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpirePendingBatch marks stale PENDING payments as EXPIRED. EXPIRED is
// not terminal; a late PAID delivery still confirms the payment.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now()
	pendingTimeout := s.jobsCfg.PendingTimeout
	if pendingTimeout <= 0 {
		pendingTimeout = time.Hour
	}
	items, err := s.store.Payments().ListExpiredPending(ctx, now, now.Add(-pendingTimeout), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	expired := 0
	for _, payment := range items {
		if payment == nil || payment.Status != entity.PaymentStatusPending {
			continue
		}

		oldStatus := payment.Status
		payment.Status = entity.PaymentStatusExpired
		payment.UpdatedAt = now

		// A conflict means a delivery touched the payment meanwhile; it wins.
		if err := s.store.Payments().Update(ctx, payment); err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		expired++

		_ = s.store.Events().Create(ctx, &entity.PaymentEvent{
			PaymentID: payment.ID,
			EventType: "payment_expired",
			OldStatus: &oldStatus,
			NewStatus: payment.Status,
			CreatedAt: now,
		})
	}
	metrics.AddPaymentsExpired(expired)

	return firstErr
}

func (s *PaymentService) dispatchNotification(ctx context.Context, payment *entity.Payment, now time.Time) error {
	notifyURL := strings.TrimSpace(s.subscriptionsCfg.NotifyURL)
	if notifyURL == "" {
		errMsg := "notify url is not configured"
		payment.NotifyStatus = entity.NotifyFailed
		payment.NotifyNextAt = nil
		payment.NotifyLastErr = &errMsg
		payment.UpdatedAt = now
		return s.store.Payments().Update(ctx, payment)
	}

	subscription, err := s.store.Subscriptions().FindByPaymentID(ctx, payment.ID)
	if err != nil {
		return err
	}
	if subscription == nil {
		return s.recordNotifyFailure(ctx, payment, now, fmt.Errorf("no subscription issued for payment %d", payment.ID))
	}

	body, err := json.Marshal(buildSubscriptionNotification(payment, subscription))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifyURL, bytes.NewReader(body))
	if err != nil {
		return s.recordNotifyFailure(ctx, payment, now, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", subscription.ID)
	if s.appAPIKey != "" {
		req.Header.Set("X-API-Key", s.appAPIKey)
	}

	resp, err := s.notifier.Do(req)
	if err != nil {
		return s.recordNotifyFailure(ctx, payment, now, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.recordNotifyFailure(ctx, payment, now, fmt.Errorf("notify endpoint returned status=%d", resp.StatusCode))
	}

	payment.NotifyStatus = entity.NotifySuccess
	payment.NotifyNextAt = nil
	payment.NotifyLastErr = nil
	payment.UpdatedAt = now

	if err := s.store.Payments().Update(ctx, payment); err != nil {
		return err
	}
	metrics.IncNotifyDispatch("ok")

	_ = s.store.Events().Create(ctx, &entity.PaymentEvent{
		PaymentID:      payment.ID,
		EventType:      "notify_dispatched",
		NewStatus:      payment.Status,
		SubscriptionID: &subscription.ID,
		CreatedAt:      now,
	})

	return nil
}

func (s *PaymentService) recordNotifyFailure(ctx context.Context, payment *entity.Payment, now time.Time, dispatchErr error) error {
	payment.NotifyAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	payment.NotifyLastErr = &trimmed

	maxAttempts := s.subscriptionsCfg.NotifyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if payment.NotifyAttempts >= maxAttempts {
		payment.NotifyStatus = entity.NotifyFailed
		payment.NotifyNextAt = nil
	} else {
		retryInterval := s.subscriptionsCfg.NotifyRetryInterval
		if retryInterval <= 0 {
			retryInterval = defaultNotifyInterval
		}
		next := now.Add(retryInterval)
		payment.NotifyStatus = entity.NotifyPending
		payment.NotifyNextAt = &next
	}
	payment.UpdatedAt = now

	if err := s.store.Payments().Update(ctx, payment); err != nil {
		return err
	}
	metrics.IncNotifyDispatch("failed")

	_ = s.store.Events().Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "notify_dispatch_failed",
		NewStatus: payment.Status,
		CreatedAt: now,
	})

	return dispatchErr
}

func buildSubscriptionNotification(payment *entity.Payment, subscription *entity.Subscription) *types.SubscriptionNotification {
	return &types.SubscriptionNotification{
		Event:          "subscription_issued",
		PaymentId:      payment.ExternalIDValue(),
		SubscriptionId: subscription.ID,
		AccessCode:     subscription.Code,
		PlanId:         derefString(subscription.PlanID),
		TelegramUserId: derefString(subscription.ExternalUserRef),
		ExpiresAt:      subscription.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
