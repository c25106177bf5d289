package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brunovalongo/fretepay-backend/api/responses"
	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	gatewaywebhook "github.com/brunovalongo/fretepay-backend/internal/webhooks/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body,
// optionally prefixed with `sha256=`.
const SignatureHeader = "X-Webhook-Signature"

type GatewayWebhookService interface {
	HandleEvent(ctx context.Context, provider enums.GatewayKind, event *gatewaywebhook.Event) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

type clientGetter interface {
	Get(kind enums.GatewayKind) (gateway.Client, bool)
}

// GatewayWebhook handles signed payment events for the provider named in
// the URL.
func GatewayWebhook(svc GatewayWebhookService, clients clientGetter, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || clients == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		provider, err := enums.ParseGatewayKind(strings.ToLower(chi.URLParam(r, "provider")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown provider"))
			return
		}
		client, ok := clients.Get(provider)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "provider not registered"))
			return
		}
		ctx = logg.WithGateway(ctx, provider.String())

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if secret := client.SigningSecret(); secret == "" {
			// Startup validation refuses production without secrets, so
			// this path only exists in sandbox. It still deserves noise.
			logg.Error(ctx, "webhook secret not configured; accepting unverified event",
				pkgerrors.New(pkgerrors.CodeInternal, "missing webhook secret"))
		} else if !gateway.VerifySignature(secret, payload, r.Header.Get(SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event gatewaywebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.ID)
		if eventID == "" {
			eventID = event.Data.InvoiceID
		}
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, provider.String(), eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, provider, &event); err != nil {
			_ = guard.Release(ctx, provider.String(), eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(logg.WithField(ctx, "event_id", eventID), "webhook event processed")
		responses.WriteSuccess(w, nil)
	}
}
