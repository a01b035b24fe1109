package types

import (
	"encoding/json"
	"errors"
	"io"
	"net/mail"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
)

const maxWebhookBodyBytes = 1 << 20

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body struct {
		ValueCents     json.Number `json:"valueCents"`
		Name           string      `json:"name"`
		Email          string      `json:"email"`
		PlanId         string      `json:"planId"`
		Description    string      `json:"description"`
		TelegramUserId any         `json:"telegramUserId"`
	}
	if err := json.NewDecoder(ctx.Request().Body).Decode(&body); err != nil {
		return nil, err
	}

	req := &CreatePaymentRequest{
		Name:        strings.TrimSpace(body.Name),
		Email:       strings.TrimSpace(body.Email),
		PlanId:      strings.TrimSpace(body.PlanId),
		Description: strings.TrimSpace(body.Description),
	}
	if body.ValueCents != "" {
		cents, err := cast.ToInt64E(body.ValueCents.String())
		if err != nil {
			return nil, err
		}
		req.ValueCents = cents
	}
	if body.TelegramUserId != nil {
		req.TelegramUserId = strings.TrimSpace(cast.ToString(body.TelegramUserId))
	}

	return req, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if strings.TrimSpace(r.GetName()) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.GetEmail()) == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.GetEmail()); err != nil {
		return errors.New("email is invalid")
	}
	if strings.TrimSpace(r.GetPlanId()) == "" && r.GetValueCents() <= 0 {
		return errors.New("valueCents must be > 0 when planId is empty")
	}
	if r.GetValueCents() < 0 {
		return errors.New("valueCents must not be negative")
	}
	return nil
}

func NewGetStatusRequestFromContext(ctx echo.Context) (*GetStatusRequest, error) {
	return &GetStatusRequest{Id: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetStatusRequest) Validate() error {
	if r.GetId() == "" {
		return errors.New("id is required")
	}
	if len(r.GetId()) > 128 {
		return errors.New("id is too long")
	}
	return nil
}

func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxWebhookBodyBytes {
		return nil, errors.New("webhook body is too large")
	}

	requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	if requestID == "" {
		requestID = strings.TrimSpace(ctx.Response().Header().Get(echo.HeaderXRequestID))
	}

	return &WebhookRequest{
		RequestId:   requestID,
		ContentType: ctx.Request().Header.Get(echo.HeaderContentType),
		Header:      ctx.Request().Header.Clone(),
		Body:        body,
	}, nil
}
