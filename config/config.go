package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	UnknownPaymentStrict  = "strict"
	UnknownPaymentLenient = "lenient"

	FailureModeSwallow = "swallow"
	FailureModeRetry   = "retry"

	maxDurationDays = 36500
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Redis             RedisConfig
	WiinPay           WiinPayConfig
	Webhook           WebhookConfig
	Subscriptions     SubscriptionsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type WiinPayConfig struct {
	APIKey      string
	BaseURL     string
	WebhookURL  string
	HTTPTimeout time.Duration
}

// WebhookConfig holds the inbound delivery policies. Every relaxed behaviour
// here has a strict counterpart selectable per deployment.
type WebhookConfig struct {
	Secret               string
	RequireSignature     bool
	UnknownPaymentPolicy string
	FailureMode          string
	DebugSignatures      bool
}

type SubscriptionsConfig struct {
	DefaultDurationDays int
	AccessCodeLength    int
	AccessCodeAttempts  int
	PlansFile           string
	NotifyURL           string
	NotifyMaxAttempts   int32
	NotifyRetryInterval time.Duration
	NotifyHTTPTimeout   time.Duration
}

type JobsConfig struct {
	BatchSize              int32
	PendingTimeout         time.Duration
	NotifyDispatchInterval time.Duration
	ExpirePendingInterval  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	cfg := &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "pix-access-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "3001"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			LockTTL:  getSecondsEnv("REDIS_LOCK_TTL_SECONDS", 10*time.Second),
		},
		WiinPay: WiinPayConfig{
			APIKey:      getEnv("WIINPAY_API_KEY", ""),
			BaseURL:     getEnv("WIINPAY_BASE_URL", "https://api.wiinpay.com.br"),
			WebhookURL:  getEnv("WIINPAY_WEBHOOK_URL", ""),
			HTTPTimeout: getSecondsEnv("WIINPAY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:               getEnv("PIX_WEBHOOK_SECRET", ""),
			RequireSignature:     getBoolEnv("PIX_WEBHOOK_REQUIRE_SIGNATURE", false),
			UnknownPaymentPolicy: strings.ToLower(getEnv("PIX_WEBHOOK_UNKNOWN_PAYMENT_POLICY", UnknownPaymentStrict)),
			FailureMode:          strings.ToLower(getEnv("PIX_WEBHOOK_FAILURE_MODE", FailureModeSwallow)),
			DebugSignatures:      getBoolEnv("PIX_WEBHOOK_DEBUG_SIGNATURES", false),
		},
		Subscriptions: SubscriptionsConfig{
			DefaultDurationDays: getIntEnv("PIX_DEFAULT_DURATION_DAYS", 30),
			AccessCodeLength:    getIntEnv("PIX_ACCESS_CODE_LENGTH", 10),
			AccessCodeAttempts:  getIntEnv("PIX_ACCESS_CODE_MAX_ATTEMPTS", 5),
			PlansFile:           getEnv("PIX_PLANS_FILE", ""),
			NotifyURL:           getEnv("PIX_NOTIFY_URL", ""),
			NotifyMaxAttempts:   int32(getIntEnv("PIX_NOTIFY_MAX_ATTEMPTS", 10)),
			NotifyRetryInterval: getMinutesEnv("PIX_NOTIFY_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			NotifyHTTPTimeout:   getSecondsEnv("PIX_NOTIFY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Jobs: JobsConfig{
			BatchSize:              int32(getIntEnv("PIX_JOB_BATCH_SIZE", 100)),
			PendingTimeout:         getMinutesEnv("PIX_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			NotifyDispatchInterval: getMinutesEnv("PIX_NOTIFY_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:  getMinutesEnv("PIX_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
	}

	if err := cfg.Webhook.validate(); err != nil {
		return nil, err
	}
	if days := cfg.Subscriptions.DefaultDurationDays; days <= 0 || days > maxDurationDays {
		return nil, fmt.Errorf("PIX_DEFAULT_DURATION_DAYS must be between 1 and %d", maxDurationDays)
	}
	if cfg.Subscriptions.AccessCodeLength < 6 {
		return nil, errors.New("PIX_ACCESS_CODE_LENGTH must be >= 6")
	}

	return cfg, nil
}

func (c WebhookConfig) validate() error {
	if c.RequireSignature && strings.TrimSpace(c.Secret) == "" {
		return errors.New("PIX_WEBHOOK_SECRET is required when PIX_WEBHOOK_REQUIRE_SIGNATURE is enabled")
	}
	switch c.UnknownPaymentPolicy {
	case UnknownPaymentStrict, UnknownPaymentLenient:
	default:
		return fmt.Errorf("invalid PIX_WEBHOOK_UNKNOWN_PAYMENT_POLICY %q", c.UnknownPaymentPolicy)
	}
	switch c.FailureMode {
	case FailureModeSwallow, FailureModeRetry:
	default:
		return fmt.Errorf("invalid PIX_WEBHOOK_FAILURE_MODE %q", c.FailureMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
