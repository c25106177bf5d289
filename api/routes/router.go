package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brunovalongo/fretepay-backend/api/controllers"
	webhookcontrollers "github.com/brunovalongo/fretepay-backend/api/controllers/webhooks"
	"github.com/brunovalongo/fretepay-backend/api/middleware"
	"github.com/brunovalongo/fretepay-backend/internal/consolidation"
	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	gatewaywebhook "github.com/brunovalongo/fretepay-backend/internal/webhooks/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/config"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

// ConsolidationEngine is the engine surface the HTTP layer needs.
type ConsolidationEngine interface {
	ProcessAllClients(ctx context.Context, trigger string) (*consolidation.RunResult, error)
	ProcessClient(ctx context.Context, clientID uuid.UUID) (*consolidation.RunResult, error)
}

// WebhookService applies verified gateway events.
type WebhookService interface {
	HandleEvent(ctx context.Context, provider enums.GatewayKind, event *gatewaywebhook.Event) error
}

// WebhookGuard deduplicates redelivered webhook events.
type WebhookGuard interface {
	CheckAndMark(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

// GatewayClients resolves provider clients by kind.
type GatewayClients interface {
	Get(kind enums.GatewayKind) (gateway.Client, bool)
}

// Deps carries everything the router mounts.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	Engine         ConsolidationEngine
	WebhookService WebhookService
	WebhookGuard   WebhookGuard
	Gateways       GatewayClients
}

// NewRouter mounts the payment core's HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.Recoverer(deps.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/{provider}", webhookcontrollers.GatewayWebhook(deps.WebhookService, deps.Gateways, deps.WebhookGuard, deps.Logger))
	})

	r.Route("/api/v1/consolidations", func(r chi.Router) {
		r.Post("/run", controllers.RunConsolidation(deps.Engine, deps.Logger))
	})

	return r
}
