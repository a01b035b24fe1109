package service

import (
	"context"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-pix-access/app/entity"
	"github.com/vibast-solutions/ms-go-pix-access/app/repository"
)

// memoryDB emulates the parts of MySQL the reconciler relies on: staged
// writes per transaction, the optimistic version check on payment updates
// and the unique indexes on payments.external_id, subscriptions.code and
// subscriptions.payment_id.
type memoryDB struct {
	mu sync.Mutex

	payments      map[uint64]*entity.Payment
	subscriptions []*entity.Subscription
	events        []*entity.PaymentEvent
	deliveries    []*entity.WebhookDelivery
	nextPaymentID uint64

	subscriptionCreateErr error
	deliveryCreateErr     error
	commitHook            func()
}

func newMemoryDB() *memoryDB {
	return &memoryDB{payments: map[uint64]*entity.Payment{}, nextPaymentID: 1}
}

func (db *memoryDB) store() *memoryStore {
	return &memoryStore{db: db}
}

func (db *memoryDB) seedPayment(p *entity.Payment) *entity.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	p.ID = db.nextPaymentID
	db.nextPaymentID++
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	db.payments[p.ID] = clonePayment(p)
	return clonePayment(p)
}

func (db *memoryDB) seedSubscription(s *entity.Subscription) {
	db.mu.Lock()
	defer db.mu.Unlock()
	copyItem := *s
	db.subscriptions = append(db.subscriptions, &copyItem)
}

func (db *memoryDB) paymentByExternalID(externalID string) *entity.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, p := range db.payments {
		if p.ExternalIDValue() == externalID {
			return clonePayment(p)
		}
	}
	return nil
}

func (db *memoryDB) subscriptionsForPayment(paymentID uint64) []*entity.Subscription {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*entity.Subscription, 0)
	for _, s := range db.subscriptions {
		if s.PaymentID != nil && *s.PaymentID == paymentID {
			copyItem := *s
			out = append(out, &copyItem)
		}
	}
	return out
}

func (db *memoryDB) counts() (payments, subscriptions int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.payments), len(db.subscriptions)
}

func (db *memoryDB) eventTypes() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.events))
	for _, e := range db.events {
		out = append(out, e.EventType)
	}
	return out
}

func (db *memoryDB) deliveryOutcomes() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.deliveries))
	for _, d := range db.deliveries {
		out = append(out, d.Outcome)
	}
	return out
}

type stagedUpdate struct {
	payment         *entity.Payment
	expectedVersion int64
}

type memoryTx struct {
	created       map[uint64]*entity.Payment
	updated       map[uint64]stagedUpdate
	subscriptions []*entity.Subscription
	events        []*entity.PaymentEvent
}

func newMemoryTx() *memoryTx {
	return &memoryTx{created: map[uint64]*entity.Payment{}, updated: map[uint64]stagedUpdate{}}
}

// commit validates the staged writes against committed state and applies
// them atomically.
func (db *memoryDB) commit(tx *memoryTx) error {
	if db.commitHook != nil {
		db.commitHook()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for id, up := range tx.updated {
		current, ok := db.payments[id]
		if !ok || current.Version != up.expectedVersion {
			return repository.ErrPaymentConflict
		}
	}
	for _, p := range tx.created {
		if db.externalIDTakenLocked(p.ExternalIDValue(), nil) {
			return repository.ErrPaymentAlreadyExists
		}
	}
	for _, s := range tx.subscriptions {
		if err := db.subscriptionUniqueLocked(s, nil); err != nil {
			return err
		}
	}

	for id, p := range tx.created {
		db.payments[id] = clonePayment(p)
	}
	for id, up := range tx.updated {
		db.payments[id] = clonePayment(up.payment)
	}
	db.subscriptions = append(db.subscriptions, tx.subscriptions...)
	db.events = append(db.events, tx.events...)
	return nil
}

func (db *memoryDB) externalIDTakenLocked(externalID string, tx *memoryTx) bool {
	if externalID == "" {
		return false
	}
	for _, p := range db.payments {
		if p.ExternalIDValue() == externalID {
			return true
		}
	}
	if tx != nil {
		for _, p := range tx.created {
			if p.ExternalIDValue() == externalID {
				return true
			}
		}
	}
	return false
}

func (db *memoryDB) subscriptionUniqueLocked(s *entity.Subscription, tx *memoryTx) error {
	all := db.subscriptions
	if tx != nil {
		all = append(append([]*entity.Subscription{}, db.subscriptions...), tx.subscriptions...)
	}
	for _, existing := range all {
		if existing.Code == s.Code {
			return repository.ErrAccessCodeTaken
		}
		if existing.PaymentID != nil && s.PaymentID != nil && *existing.PaymentID == *s.PaymentID {
			return repository.ErrSubscriptionAlreadyIssued
		}
	}
	return nil
}

type memoryStore struct {
	db *memoryDB
	tx *memoryTx
}

var _ repository.Store = (*memoryStore)(nil)

func (s *memoryStore) Payments() repository.PaymentStore           { return &memoryPayments{s} }
func (s *memoryStore) Subscriptions() repository.SubscriptionStore { return &memorySubscriptions{s} }
func (s *memoryStore) Events() repository.PaymentEventStore        { return &memoryEvents{s} }
func (s *memoryStore) Deliveries() repository.WebhookDeliveryStore { return &memoryDeliveries{s} }

func (s *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	txStore := &memoryStore{db: s.db, tx: newMemoryTx()}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	return s.db.commit(txStore.tx)
}

// autocommit runs op in its own transaction when s is not transactional.
func (s *memoryStore) autocommit(op func(tx *memoryTx) error) error {
	if s.tx != nil {
		return op(s.tx)
	}
	tx := newMemoryTx()
	if err := op(tx); err != nil {
		return err
	}
	return s.db.commit(tx)
}

type memoryPayments struct{ s *memoryStore }

func (r *memoryPayments) Create(_ context.Context, payment *entity.Payment) error {
	return r.s.autocommit(func(tx *memoryTx) error {
		r.s.db.mu.Lock()
		defer r.s.db.mu.Unlock()
		if r.s.db.externalIDTakenLocked(payment.ExternalIDValue(), tx) {
			return repository.ErrPaymentAlreadyExists
		}
		payment.ID = r.s.db.nextPaymentID
		r.s.db.nextPaymentID++
		if payment.Version == 0 {
			payment.Version = 1
		}
		tx.created[payment.ID] = clonePayment(payment)
		return nil
	})
}

func (r *memoryPayments) Update(_ context.Context, payment *entity.Payment) error {
	return r.s.autocommit(func(tx *memoryTx) error {
		if staged, ok := tx.created[payment.ID]; ok {
			if staged.Version != payment.Version {
				return repository.ErrPaymentConflict
			}
			payment.Version++
			tx.created[payment.ID] = clonePayment(payment)
			return nil
		}

		expected := payment.Version
		if staged, ok := tx.updated[payment.ID]; ok {
			if staged.payment.Version != payment.Version {
				return repository.ErrPaymentConflict
			}
			expected = staged.expectedVersion
		} else {
			r.s.db.mu.Lock()
			current, exists := r.s.db.payments[payment.ID]
			conflict := !exists || current.Version != payment.Version
			r.s.db.mu.Unlock()
			if conflict {
				return repository.ErrPaymentConflict
			}
		}

		payment.Version++
		tx.updated[payment.ID] = stagedUpdate{payment: clonePayment(payment), expectedVersion: expected}
		return nil
	})
}

func (r *memoryPayments) FindByID(_ context.Context, id uint64) (*entity.Payment, error) {
	return r.find(func(p *entity.Payment) bool { return p.ID == id }), nil
}

func (r *memoryPayments) FindByExternalID(_ context.Context, externalID string) (*entity.Payment, error) {
	return r.find(func(p *entity.Payment) bool { return p.ExternalIDValue() == externalID }), nil
}

func (r *memoryPayments) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*entity.Payment, error) {
	return r.FindByExternalID(ctx, externalID)
}

func (r *memoryPayments) ListExpiredPending(_ context.Context, now, createdBefore time.Time, limit int32) ([]*entity.Payment, error) {
	return r.list(limit, func(p *entity.Payment) bool {
		if p.Status != entity.PaymentStatusPending {
			return false
		}
		if p.ExpiresAt != nil {
			return !p.ExpiresAt.After(now)
		}
		return !p.CreatedAt.After(createdBefore)
	}), nil
}

func (r *memoryPayments) ListDueNotify(_ context.Context, now time.Time, limit int32) ([]*entity.Payment, error) {
	return r.list(limit, func(p *entity.Payment) bool {
		return p.NotifyStatus == entity.NotifyPending && p.NotifyNextAt != nil && !p.NotifyNextAt.After(now)
	}), nil
}

func (r *memoryPayments) find(match func(p *entity.Payment) bool) *entity.Payment {
	if tx := r.s.tx; tx != nil {
		for _, up := range tx.updated {
			if match(up.payment) {
				return clonePayment(up.payment)
			}
		}
		for _, p := range tx.created {
			if match(p) {
				return clonePayment(p)
			}
		}
	}
	r.s.db.mu.Lock()
	defer r.s.db.mu.Unlock()
	for _, p := range r.s.db.payments {
		if match(p) {
			return clonePayment(p)
		}
	}
	return nil
}

func (r *memoryPayments) list(limit int32, match func(p *entity.Payment) bool) []*entity.Payment {
	r.s.db.mu.Lock()
	defer r.s.db.mu.Unlock()
	out := make([]*entity.Payment, 0)
	for id := uint64(1); id < r.s.db.nextPaymentID; id++ {
		p, ok := r.s.db.payments[id]
		if !ok || !match(p) {
			continue
		}
		out = append(out, clonePayment(p))
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
	}
	return out
}

type memorySubscriptions struct{ s *memoryStore }

func (r *memorySubscriptions) Create(_ context.Context, subscription *entity.Subscription) error {
	if r.s.db.subscriptionCreateErr != nil {
		return r.s.db.subscriptionCreateErr
	}
	return r.s.autocommit(func(tx *memoryTx) error {
		r.s.db.mu.Lock()
		defer r.s.db.mu.Unlock()
		if err := r.s.db.subscriptionUniqueLocked(subscription, tx); err != nil {
			return err
		}
		copyItem := *subscription
		tx.subscriptions = append(tx.subscriptions, &copyItem)
		return nil
	})
}

func (r *memorySubscriptions) FindByIDOrCode(_ context.Context, idOrCode string) (*entity.Subscription, error) {
	return r.find(func(s *entity.Subscription) bool { return s.ID == idOrCode || s.Code == idOrCode }), nil
}

func (r *memorySubscriptions) FindByPaymentID(_ context.Context, paymentID uint64) (*entity.Subscription, error) {
	return r.find(func(s *entity.Subscription) bool { return s.PaymentID != nil && *s.PaymentID == paymentID }), nil
}

func (r *memorySubscriptions) find(match func(s *entity.Subscription) bool) *entity.Subscription {
	candidates := []*entity.Subscription{}
	if r.s.tx != nil {
		candidates = append(candidates, r.s.tx.subscriptions...)
	}
	r.s.db.mu.Lock()
	candidates = append(candidates, r.s.db.subscriptions...)
	r.s.db.mu.Unlock()
	for _, s := range candidates {
		if match(s) {
			copyItem := *s
			return &copyItem
		}
	}
	return nil
}

type memoryEvents struct{ s *memoryStore }

func (r *memoryEvents) Create(_ context.Context, event *entity.PaymentEvent) error {
	return r.s.autocommit(func(tx *memoryTx) error {
		copyItem := *event
		tx.events = append(tx.events, &copyItem)
		return nil
	})
}

type memoryDeliveries struct{ s *memoryStore }

func (r *memoryDeliveries) Create(_ context.Context, delivery *entity.WebhookDelivery) error {
	if r.s.db.deliveryCreateErr != nil {
		return r.s.db.deliveryCreateErr
	}
	r.s.db.mu.Lock()
	defer r.s.db.mu.Unlock()
	copyItem := *delivery
	r.s.db.deliveries = append(r.s.db.deliveries, &copyItem)
	return nil
}

func clonePayment(p *entity.Payment) *entity.Payment {
	if p == nil {
		return nil
	}
	copyItem := *p
	copyItem.Metadata = make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		copyItem.Metadata[k] = v
	}
	return &copyItem
}
