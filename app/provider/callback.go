package provider

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// SignatureHeaders lists the accepted signature header names in lookup order.
var SignatureHeaders = []string{
	"X-Wiinpay-Signature",
	"X-Signature",
	"X-Webhook-Signature",
}

func SignatureFromHeader(header http.Header) string {
	for _, name := range SignatureHeaders {
		if v := strings.TrimSpace(header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of payload.
func ComputeSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts the bare digest as well as wrapped forms such as
// "sha256=<digest>".
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := ComputeSignature(secret, payload)
	received := strings.ToLower(strings.TrimSpace(signature))
	if hmac.Equal([]byte(received), []byte(expected)) {
		return true
	}
	return strings.Contains(received, expected)
}

// ParseCallbackBody decodes a JSON object or a form-encoded body.
func ParseCallbackBody(body []byte, contentType string) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		return parseFormBody(trimmed)
	}

	payload, err := decodeObject(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrMalformedPayload)
	}
	return payload, nil
}

func parseFormBody(body []byte) (map[string]any, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty form", ErrMalformedPayload)
	}

	payload := make(map[string]any, len(values))
	for k := range values {
		v := values.Get(k)
		if m := asMap(v); m != nil && (k == "metadata" || k == "meta") {
			payload[k] = m
			continue
		}
		payload[k] = v
	}
	return payload, nil
}

// NormalizeCallback maps a decoded payload onto a CallbackEvent using the
// ordered extractor lists. A payload without a status is rejected.
func NormalizeCallback(payload map[string]any) (*CallbackEvent, error) {
	status := strings.ToUpper(firstString(payload, statusExtractors))
	if status == "" {
		return nil, ErrMissingStatus
	}

	return &CallbackEvent{
		Status:            status,
		ExternalPaymentID: firstString(payload, externalIDExtractors),
		Metadata:          firstMap(payload, metadataExtractors),
		QRCode:            optionalString(firstString(payload, qrCodeExtractors)),
		AmountCents:       firstAmountCents(payload, amountExtractors),
		Payload:           payload,
	}, nil
}
