package types

import "net/http"

type CreatePaymentRequest struct {
	ValueCents     int64  `json:"valueCents"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	PlanId         string `json:"planId"`
	Description    string `json:"description"`
	TelegramUserId string `json:"telegramUserId"`
}

func (r *CreatePaymentRequest) GetValueCents() int64 {
	if r == nil {
		return 0
	}
	return r.ValueCents
}

func (r *CreatePaymentRequest) GetName() string {
	if r == nil {
		return ""
	}
	return r.Name
}

func (r *CreatePaymentRequest) GetEmail() string {
	if r == nil {
		return ""
	}
	return r.Email
}

func (r *CreatePaymentRequest) GetPlanId() string {
	if r == nil {
		return ""
	}
	return r.PlanId
}

func (r *CreatePaymentRequest) GetDescription() string {
	if r == nil {
		return ""
	}
	return r.Description
}

func (r *CreatePaymentRequest) GetTelegramUserId() string {
	if r == nil {
		return ""
	}
	return r.TelegramUserId
}

type GetStatusRequest struct {
	Id string `json:"id"`
}

func (r *GetStatusRequest) GetId() string {
	if r == nil {
		return ""
	}
	return r.Id
}

// WebhookRequest carries the untouched delivery; the body must not be
// re-encoded before signature verification.
type WebhookRequest struct {
	RequestId   string
	ContentType string
	Header      http.Header
	Body        []byte
}

func (r *WebhookRequest) GetRequestId() string {
	if r == nil {
		return ""
	}
	return r.RequestId
}

func (r *WebhookRequest) GetContentType() string {
	if r == nil {
		return ""
	}
	return r.ContentType
}

func (r *WebhookRequest) GetHeader() http.Header {
	if r == nil || r.Header == nil {
		return http.Header{}
	}
	return r.Header
}

func (r *WebhookRequest) GetBody() []byte {
	if r == nil {
		return nil
	}
	return r.Body
}

type CreatePaymentResponse struct {
	Ok        bool           `json:"ok"`
	PaymentId string         `json:"paymentId"`
	QrCode    string         `json:"qrCode,omitempty"`
	ExpiresAt string         `json:"expiresAt,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

type StatusResponse struct {
	PaymentId          string `json:"paymentId,omitempty"`
	Status             string `json:"status"`
	SubscriptionId     string `json:"subscriptionId,omitempty"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
	AccessCode         string `json:"accessCode,omitempty"`
	PlanId             string `json:"planId,omitempty"`
	ExpiresAt          string `json:"expiresAt,omitempty"`
}

type WebhookResponse struct {
	Ok     bool                 `json:"ok"`
	Reason string               `json:"reason"`
	Error  string               `json:"error,omitempty"`
	Result *WebhookResultDetail `json:"result,omitempty"`
}

type WebhookResultDetail struct {
	PaymentId      string `json:"paymentId,omitempty"`
	Status         string `json:"status,omitempty"`
	SubscriptionId string `json:"subscriptionId,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
}

// SubscriptionNotification is POSTed to the subscriber notify URL once a
// subscription is issued.
type SubscriptionNotification struct {
	Event          string `json:"event"`
	PaymentId      string `json:"paymentId"`
	SubscriptionId string `json:"subscriptionId"`
	AccessCode     string `json:"accessCode"`
	PlanId         string `json:"planId,omitempty"`
	TelegramUserId string `json:"telegramUserId,omitempty"`
	ExpiresAt      string `json:"expiresAt"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
