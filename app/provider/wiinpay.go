package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

type WiinPayConfig struct {
	APIKey           string
	BaseURL          string
	WebhookURL       string
	WebhookSecret    string
	RequireSignature bool
	HTTPTimeout      time.Duration
}

type WiinPayProvider struct {
	cfg    WiinPayConfig
	client *http.Client
}

func NewWiinPayProvider(cfg WiinPayConfig) *WiinPayProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &WiinPayProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// CreatePayment registers a charge with the gateway. Every failure wraps
// ErrGatewayRequest.
func (p *WiinPayProvider) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	output, err := p.createPayment(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayRequest, err)
	}
	return output, nil
}

func (p *WiinPayProvider) createPayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("wiinpay api key is not configured")
	}
	if p.cfg.BaseURL == "" {
		return nil, errors.New("wiinpay base url is not configured")
	}

	value, _ := decimal.NewFromInt(input.AmountCents).Shift(-2).Float64()
	request := map[string]any{
		"api_key":     p.cfg.APIKey,
		"value":       value,
		"name":        input.Name,
		"email":       input.Email,
		"description": input.Description,
		"metadata":    input.Metadata,
	}
	if p.cfg.WebhookURL != "" {
		request["webhook_url"] = p.cfg.WebhookURL
	}

	body, err := p.postJSON(ctx, "/payment/create", request)
	if err != nil {
		return nil, err
	}

	raw, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("wiinpay create payment returned an empty body")
	}

	externalID := firstString(raw, createIDExtractors)
	if externalID == "" {
		return nil, errors.New("wiinpay payment id missing")
	}

	output := &CreateOutput{
		ExternalPaymentID: externalID,
		QRCode:            optionalString(firstString(raw, createQRCodeExtractors)),
		Raw:               raw,
	}
	if s := firstString(raw, createExpiresAtExtractors); s != "" {
		if expiresAt, err := cast.ToTimeE(s); err == nil {
			utc := expiresAt.UTC()
			output.ExpiresAt = &utc
		}
	}

	return output, nil
}

// VerifyAndParseCallback checks the delivery signature before decoding the
// body. Unsigned deliveries pass unless signatures are required.
func (p *WiinPayProvider) VerifyAndParseCallback(_ context.Context, delivery *CallbackDelivery) (*CallbackEvent, error) {
	signature := SignatureFromHeader(delivery.Header)
	verified := false

	switch {
	case p.cfg.WebhookSecret != "" && signature != "":
		if !VerifySignature(p.cfg.WebhookSecret, delivery.Body, signature) {
			return nil, ErrInvalidSignature
		}
		verified = true
	case p.cfg.RequireSignature:
		return nil, fmt.Errorf("%w: signature header missing", ErrInvalidSignature)
	}

	payload, err := ParseCallbackBody(delivery.Body, delivery.ContentType)
	if err != nil {
		return nil, err
	}

	event, err := NormalizeCallback(payload)
	if err != nil {
		return nil, err
	}
	event.Signature = signature
	event.Verified = verified

	return event, nil
}

func (p *WiinPayProvider) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("wiinpay request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}
