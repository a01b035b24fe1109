package entity

import "time"

const (
	SubscriptionStatusPending = "PENDING"
	SubscriptionStatusActive  = "ACTIVE"
	SubscriptionStatusExpired = "EXPIRED"
)

type Subscription struct {
	ID   string
	Code string

	Status    string
	ExpiresAt time.Time

	PaymentID       *uint64
	PlanID          *string
	ExternalUserRef *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus reports EXPIRED for an active subscription past its
// expiration without requiring a write.
func (s *Subscription) EffectiveStatus(now time.Time) string {
	if s.Status == SubscriptionStatusActive && !now.Before(s.ExpiresAt) {
		return SubscriptionStatusExpired
	}
	return s.Status
}
