package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// fieldExtractor reads one candidate location of a field from a decoded
// payload. Lists of extractors are evaluated in order and the first
// non-empty value wins.
type fieldExtractor func(payload map[string]any) (any, bool)

var (
	statusExtractors = []fieldExtractor{
		key("status"),
		key("paymentStatus"),
		key("state"),
		nested("data", "status"),
	}
	externalIDExtractors = []fieldExtractor{
		key("paymentId"),
		key("id"),
		key("reference"),
		nested("data", "paymentId"),
		nested("data", "id"),
	}
	metadataExtractors = []fieldExtractor{
		key("metadata"),
		key("meta"),
		nested("data", "metadata"),
	}
	qrCodeExtractors = []fieldExtractor{
		key("qrCode"),
		key("qrcode"),
		nested("data", "qrCode"),
	}
	amountExtractors = []fieldExtractor{
		key("value"),
		key("amount"),
		nested("data", "value"),
		nested("data", "amount"),
	}

	// Gateway create-payment responses are not consistent about casing.
	createIDExtractors = []fieldExtractor{
		key("paymentId"),
		key("id"),
		nested("data", "paymentId"),
		nested("data", "id"),
	}
	createQRCodeExtractors = []fieldExtractor{
		key("qrCode"),
		key("qrcode"),
		key("qr_code"),
		nested("data", "qrCode"),
		nested("data", "qr_code"),
	}
	createExpiresAtExtractors = []fieldExtractor{
		key("expiresAt"),
		key("expires_at"),
		nested("data", "expiresAt"),
		nested("data", "expires_at"),
	}
)

func key(name string) fieldExtractor {
	return func(payload map[string]any) (any, bool) {
		v, ok := payload[name]
		return v, ok && v != nil
	}
}

func nested(path ...string) fieldExtractor {
	return func(payload map[string]any) (any, bool) {
		current := payload
		for i, name := range path {
			v, ok := current[name]
			if !ok || v == nil {
				return nil, false
			}
			if i == len(path)-1 {
				return v, true
			}
			next, ok := v.(map[string]any)
			if !ok {
				return nil, false
			}
			current = next
		}
		return nil, false
	}
}

func firstString(payload map[string]any, extractors []fieldExtractor) string {
	for _, extract := range extractors {
		v, ok := extract(payload)
		if !ok {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func firstMap(payload map[string]any, extractors []fieldExtractor) map[string]any {
	for _, extract := range extractors {
		v, ok := extract(payload)
		if !ok {
			continue
		}
		if m := asMap(v); m != nil {
			return m
		}
	}
	return map[string]any{}
}

// firstAmountCents converts the first parseable amount from currency units
// to minor units, rounding half away from zero.
func firstAmountCents(payload map[string]any, extractors []fieldExtractor) *int64 {
	for _, extract := range extractors {
		v, ok := extract(payload)
		if !ok {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil || strings.TrimSpace(s) == "" {
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		cents := amount.Shift(2).Round(0).IntPart()
		return &cents
	}
	return nil
}

// decodeObject decodes a single JSON value into a map, keeping numbers as
// json.Number so large ids and amounts survive unchanged. A JSON null
// yields a nil map.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var decoded map[string]any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return decoded, nil
}

// asMap accepts an object or a JSON-encoded object string.
func asMap(v any) map[string]any {
	switch typed := v.(type) {
	case map[string]any:
		return typed
	case string:
		if decoded, err := decodeObject([]byte(typed)); err == nil && decoded != nil {
			return decoded
		}
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
