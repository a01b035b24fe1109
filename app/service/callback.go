package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
	"github.com/vibast-solutions/ms-go-pix-access/app/metrics"
	"github.com/vibast-solutions/ms-go-pix-access/app/provider"
)

const webhookLockPrefix = "pix:webhook:"

type handleWebhookRequest interface {
	GetRequestId() string
	GetContentType() string
	GetHeader() http.Header
	GetBody() []byte
}

type WebhookResult struct {
	Outcome      Outcome
	Payment      *entity.Payment
	Subscription *entity.Subscription
	Err          error
}

func (r *WebhookResult) OK() bool {
	return r != nil && r.Outcome.OK()
}

// HandleWebhook verifies, normalizes and reconciles one delivery. Every
// failure is mapped to an outcome; Err carries the cause of internal errors.
func (s *PaymentService) HandleWebhook(ctx context.Context, req handleWebhookRequest) *WebhookResult {
	started := s.now()
	body := req.GetBody()
	signature := provider.SignatureFromHeader(req.GetHeader())

	l := s.logger.WithField("request_id", req.GetRequestId())
	l.WithField("payload", string(body)).Info("pix_webhook_received")
	s.logSignatureDebug(l, body, signature)

	result := s.handleWebhook(ctx, req, l)

	delivery := &entity.WebhookDelivery{
		RequestID:   req.GetRequestId(),
		Signature:   truncate(signature, 255),
		PayloadJSON: string(body),
		Outcome:     string(result.Outcome),
		CreatedAt:   started,
	}
	if result.Payment != nil {
		paymentID := result.Payment.ID
		delivery.PaymentID = &paymentID
		delivery.ExternalID = result.Payment.ExternalID
	}
	if result.Err != nil {
		errMsg := truncate(result.Err.Error(), 1024)
		delivery.Error = &errMsg
	}
	if err := s.store.Deliveries().Create(ctx, delivery); err != nil {
		l.WithError(err).Warn("Failed to record webhook delivery")
	}

	metrics.IncWebhookOutcome(string(result.Outcome))
	metrics.ObserveWebhookDuration(s.now().Sub(started))

	entry := l.WithField("outcome", result.Outcome)
	if result.Err != nil {
		entry.WithError(result.Err).Error("pix_webhook_failed")
	} else {
		entry.Info("pix_webhook_handled")
	}

	return result
}

func (s *PaymentService) handleWebhook(ctx context.Context, req handleWebhookRequest, l logrus.FieldLogger) *WebhookResult {
	event, err := s.gateway.VerifyAndParseCallback(ctx, &provider.CallbackDelivery{
		Body:        req.GetBody(),
		ContentType: req.GetContentType(),
		Header:      req.GetHeader(),
	})
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrInvalidSignature):
			return &WebhookResult{Outcome: OutcomeInvalidSignature}
		case errors.Is(err, provider.ErrMalformedPayload):
			return &WebhookResult{Outcome: OutcomeMalformedPayload}
		case errors.Is(err, provider.ErrMissingStatus):
			return &WebhookResult{Outcome: OutcomeMissingStatus}
		default:
			return &WebhookResult{Outcome: OutcomeInternalError, Err: err}
		}
	}

	if !event.Verified {
		l.Debug("Processing unsigned webhook delivery")
	}

	if ids := candidateExternalIDs(event); len(ids) > 0 {
		key := webhookLockPrefix + ids[0]
		token, lockErr := s.locker.TryLock(ctx, key, s.lockTTL)
		if lockErr != nil {
			l.WithError(lockErr).Warn("Webhook lock not acquired, relying on database guard")
		} else {
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					l.WithError(err).Warn("Failed to release webhook lock")
				}
			}()
		}
	}

	reconciled, err := s.Reconcile(ctx, event)
	if err != nil {
		return &WebhookResult{Outcome: OutcomeInternalError, Err: err}
	}

	if reconciled.Outcome == OutcomeSubscriptionIssued && reconciled.Subscription != nil {
		metrics.IncSubscriptionIssued(derefString(reconciled.Subscription.PlanID))
	}

	return &WebhookResult{
		Outcome:      reconciled.Outcome,
		Payment:      reconciled.Payment,
		Subscription: reconciled.Subscription,
	}
}

// logSignatureDebug logs the received and computed digests. The secret
// itself is never logged.
func (s *PaymentService) logSignatureDebug(l logrus.FieldLogger, body []byte, signature string) {
	if !s.webhookCfg.DebugSignatures || strings.TrimSpace(s.webhookCfg.Secret) == "" {
		return
	}
	l.WithFields(logrus.Fields{
		"signature_received": signature,
		"signature_computed": provider.ComputeSignature(s.webhookCfg.Secret, body),
	}).Debug("pix_webhook_signature")
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
