package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-pix-access/app/service"
	"github.com/vibast-solutions/ms-go-pix-access/app/types"
	"google.golang.org/protobuf/types/known/structpb"
)

func StatusToResponse(item *service.StatusEnvelope) *types.StatusResponse {
	if item == nil {
		return &types.StatusResponse{Status: "not_found"}
	}

	return &types.StatusResponse{
		PaymentId:          item.PaymentID,
		Status:             item.Status,
		SubscriptionId:     item.SubscriptionID,
		SubscriptionStatus: item.SubscriptionStatus,
		AccessCode:         item.AccessCode,
		PlanId:             item.PlanID,
		ExpiresAt:          formatTime(item.ExpiresAt),
	}
}

// StatusToStruct renders the status envelope for the gRPC surface, using the
// same field names as the HTTP response.
func StatusToStruct(item *service.StatusEnvelope) (*structpb.Struct, error) {
	resp := StatusToResponse(item)
	fields := map[string]any{"status": resp.Status}
	setIfNotEmpty(fields, "paymentId", resp.PaymentId)
	setIfNotEmpty(fields, "subscriptionId", resp.SubscriptionId)
	setIfNotEmpty(fields, "subscriptionStatus", resp.SubscriptionStatus)
	setIfNotEmpty(fields, "accessCode", resp.AccessCode)
	setIfNotEmpty(fields, "planId", resp.PlanId)
	setIfNotEmpty(fields, "expiresAt", resp.ExpiresAt)
	return structpb.NewStruct(fields)
}

func CreatePaymentToResponse(item *service.CreatePaymentResult) *types.CreatePaymentResponse {
	if item == nil || item.Payment == nil {
		return &types.CreatePaymentResponse{Ok: false}
	}

	return &types.CreatePaymentResponse{
		Ok:        true,
		PaymentId: item.Payment.ExternalIDValue(),
		QrCode:    derefString(item.Payment.QRCode),
		ExpiresAt: formatTime(item.Payment.ExpiresAt),
		Raw:       item.Raw,
	}
}

// WebhookToResponse never includes the internal error text; it only goes to
// the logs and the delivery record.
func WebhookToResponse(item *service.WebhookResult) *types.WebhookResponse {
	resp := &types.WebhookResponse{
		Ok:     item.OK(),
		Reason: string(item.Outcome),
	}
	if item.Outcome == service.OutcomeInternalError {
		resp.Error = "internal error"
	}

	if item.Payment != nil {
		resp.Result = &types.WebhookResultDetail{
			PaymentId: item.Payment.ExternalIDValue(),
			Status:    item.Payment.Status,
		}
		if item.Subscription != nil {
			resp.Result.SubscriptionId = item.Subscription.ID
			resp.Result.ExpiresAt = item.Subscription.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}

	return resp
}

func formatTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func setIfNotEmpty(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
