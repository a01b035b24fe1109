package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-pix-access/app/factory"
	"github.com/vibast-solutions/ms-go-pix-access/app/mapper"
	"github.com/vibast-solutions/ms-go-pix-access/app/provider"
	"github.com/vibast-solutions/ms-go-pix-access/app/service"
	"github.com/vibast-solutions/ms-go-pix-access/app/types"
	"github.com/vibast-solutions/ms-go-pix-access/config"
)

type PixController struct {
	paymentService *service.PaymentService
	failureMode    string
	logger         logrus.FieldLogger
}

func NewPixController(paymentService *service.PaymentService, failureMode string) *PixController {
	return &PixController{
		paymentService: paymentService,
		failureMode:    failureMode,
		logger:         factory.NewModuleLogger("pix-controller"),
	}
}

func (c *PixController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// Webhook answers 200 for every delivery it could inspect, including
// rejected ones, so the gateway does not retry them. Only unparseable bodies
// get 400, and internal failures get 500 when the retry mode is configured.
func (c *PixController) Webhook(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}

	result := c.paymentService.HandleWebhook(ctx.Request().Context(), req)
	resp := mapper.WebhookToResponse(result)

	switch result.Outcome {
	case service.OutcomeMalformedPayload:
		return ctx.JSON(http.StatusBadRequest, resp)
	case service.OutcomeInternalError:
		if c.failureMode == config.FailureModeRetry {
			return ctx.JSON(http.StatusInternalServerError, resp)
		}
	}

	return ctx.JSON(http.StatusOK, resp)
}

func (c *PixController) Status(ctx echo.Context) error {
	req, err := types.NewGetStatusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	envelope, err := c.paymentService.GetStatus(ctx.Request().Context(), req.GetId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return ctx.JSON(http.StatusNotFound, mapper.StatusToResponse(nil))
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get status failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.StatusToResponse(envelope))
}

func (c *PixController) CreatePayment(ctx echo.Context) error {
	req, err := types.NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.CreatePayment(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrPlanNotFound):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, provider.ErrGatewayRequest):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Gateway create payment failed")
			return c.writeError(ctx, http.StatusBadGateway, "payment gateway error")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, mapper.CreatePaymentToResponse(result))
}

func (c *PixController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
