package service

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-pix-access/app/factory"
	"github.com/vibast-solutions/ms-go-pix-access/app/lock"
	"github.com/vibast-solutions/ms-go-pix-access/app/plan"
	"github.com/vibast-solutions/ms-go-pix-access/app/provider"
	"github.com/vibast-solutions/ms-go-pix-access/app/repository"
	"github.com/vibast-solutions/ms-go-pix-access/config"
)

const (
	defaultBatchSize      = int32(100)
	defaultDurationDays   = 30
	defaultCodeAttempts   = 5
	maxReconcileAttempts  = 3
	defaultLockTTL        = 10 * time.Second
	defaultNotifyInterval = 5 * time.Minute
)

type PaymentService struct {
	store    repository.Store
	gateway  provider.Provider
	catalog  *plan.Catalog
	locker   lock.Locker
	logger   logrus.FieldLogger
	notifier *http.Client

	webhookCfg       config.WebhookConfig
	subscriptionsCfg config.SubscriptionsConfig
	jobsCfg          config.JobsConfig
	lockTTL          time.Duration
	appAPIKey        string

	now          func() time.Time
	generateCode func() (string, error)
}

func NewPaymentService(
	store repository.Store,
	gateway provider.Provider,
	catalog *plan.Catalog,
	locker lock.Locker,
	cfg *config.Config,
) *PaymentService {
	if catalog == nil {
		catalog = plan.DefaultCatalog()
	}
	if locker == nil {
		locker = lock.NoopLocker{}
	}

	notifyTimeout := cfg.Subscriptions.NotifyHTTPTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	lockTTL := cfg.Redis.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	codeLength := cfg.Subscriptions.AccessCodeLength
	return &PaymentService{
		store:            store,
		gateway:          gateway,
		catalog:          catalog,
		locker:           locker,
		logger:           factory.NewModuleLogger("pix-service"),
		notifier:         &http.Client{Timeout: notifyTimeout},
		webhookCfg:       cfg.Webhook,
		subscriptionsCfg: cfg.Subscriptions,
		jobsCfg:          cfg.Jobs,
		lockTTL:          lockTTL,
		appAPIKey:        strings.TrimSpace(cfg.App.APIKey),
		now:              func() time.Time { return time.Now().UTC() },
		generateCode:     func() (string, error) { return GenerateAccessCode(codeLength) },
	}
}

func (s *PaymentService) batchSize() int32 {
	if s.jobsCfg.BatchSize > 0 {
		return s.jobsCfg.BatchSize
	}
	return defaultBatchSize
}

func (s *PaymentService) notifyEnabled() bool {
	return strings.TrimSpace(s.subscriptionsCfg.NotifyURL) != ""
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
